package visionplus

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const appointmentPage = `<!DOCTYPE html>
<html>
<head><title>
	Appointments &amp; Diary
</title></head>
<body>
<form method="post" action="./AppointmentLink.aspx?x=1" id="aspnetForm">
<input type="hidden" name="__EVENTTARGET" id="__EVENTTARGET" value="" />
<input type="hidden" name="__EVENTARGUMENT" id="__EVENTARGUMENT" value="" />
<input type="hidden" name="__VIEWSTATE" id="__VIEWSTATE" value="/wEPDwUKMTY1&#43;NDk=" />
<input value="gen-1" type="hidden" name="__VIEWSTATEGENERATOR" id="__VIEWSTATEGENERATOR" />
<input type='hidden' name='__EVENTVALIDATION' value='ev-1'>
<input type="text" name="ctl00$MainContentPlaceHolder$txtPatientName" value="" />
<select name="ctl00$MainContentPlaceHolder$drpBranch">
	<option value="">-- select --</option>
	<option value="1">Robinson House</option>
	<option value="3" selected="selected"> Honeydew </option>
	<option>Kensington</option>
</select>
</form>
</body>
</html>`

func TestExtractHiddenFields(t *testing.T) {
	fields := ExtractHiddenFields(appointmentPage)

	expected := map[string]string{
		"__EVENTTARGET":        "",
		"__EVENTARGUMENT":      "",
		"__VIEWSTATE":          "/wEPDwUKMTY1+NDk=",
		"__VIEWSTATEGENERATOR": "gen-1",
		"__EVENTVALIDATION":    "ev-1",
	}
	if diff := cmp.Diff(expected, fields); diff != "" {
		t.Fatalf("hidden fields mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractHiddenFieldsDefaults(t *testing.T) {
	for _, page := range []string{
		"",
		"<html><body>no form here</body></html>",
		`<input type="text" name="__VIEWSTATE" value="not hidden">`,
		"<input type=\"hidden\" name=",
	} {
		fields := ExtractHiddenFields(page)
		for _, name := range requiredStateFields {
			_, ok := fields[name]
			require.True(t, ok, "%q missing for page %q", name, page)
		}
	}

	fields := ExtractHiddenFields("<html></html>")
	require.Equal(t, map[string]string{
		"__VIEWSTATE":          "",
		"__EVENTVALIDATION":    "",
		"__VIEWSTATEGENERATOR": "",
	}, fields)
}

func TestExtractHiddenFieldsFallback(t *testing.T) {
	// no type attribute at all, only the permissive pass finds these
	page := `<input name="__VIEWSTATE" id="__VIEWSTATE" value="vs-fallback" />
<input id="__EVENTVALIDATION" value="ev-fallback" />
<input name="hdnFldPracId" value="132" />`

	fields := ExtractHiddenFields(page)
	require.Equal(t, "vs-fallback", fields["__VIEWSTATE"])
	require.Equal(t, "ev-fallback", fields["__EVENTVALIDATION"])
	require.Equal(t, "132", fields["hdnFldPracId"])
	require.Equal(t, "", fields["__VIEWSTATEGENERATOR"])
}

func TestCheckRequiresLogin(t *testing.T) {
	require.True(t, CheckRequiresLogin(`<input type="password">`))
	require.True(t, CheckRequiresLogin("Please LOG IN to continue"))
	require.True(t, CheckRequiresLogin(`<span id="ctl00_lblUserTime">`))
	require.True(t, CheckRequiresLogin("401 Unauthorized"))
	require.False(t, CheckRequiresLogin("<html><body>Diary</body></html>"))
	require.False(t, CheckRequiresLogin(""))
}

func TestExtractPageTitle(t *testing.T) {
	require.Equal(t, "Appointments & Diary", ExtractPageTitle(appointmentPage))
	require.Equal(t, NoTitle, ExtractPageTitle("<html></html>"))
	require.Equal(t, "x", ExtractPageTitle(`<TITLE lang="en">x</TITLE>`))
}

func TestExtractFormDetails(t *testing.T) {
	details := ExtractFormDetails(appointmentPage)
	expected := FormDetails{
		Action:             "./AppointmentLink.aspx?x=1",
		Method:             "POST",
		FormId:             "aspnetForm",
		HasViewState:       true,
		HasEventValidation: true,
		HasEventTarget:     true,
		HasEventArgument:   true,
		InputFields:        6,
		SelectFields:       1,
		TotalFields:        7,
	}
	if diff := cmp.Diff(expected, details); diff != "" {
		t.Fatalf("form details mismatch (-want +got):\n%s", diff)
	}

	empty := ExtractFormDetails("<p>nothing</p>")
	require.Equal(t, FormDetails{Method: "POST"}, empty)

	get := ExtractFormDetails(`<form method="get">`)
	require.Equal(t, "GET", get.Method)
}

func TestHasForm(t *testing.T) {
	require.True(t, HasForm(appointmentPage))
	require.True(t, HasForm(`<div id="aspnetForm">`))
	require.False(t, HasForm("<p></p>"))
}

func TestExtractSelectOptions(t *testing.T) {
	options := ExtractSelectOptions(appointmentPage, "ctl00$MainContentPlaceHolder$drpBranch")
	require.Equal(t, []Option{
		{Value: "", Label: "-- select --"},
		{Value: "1", Label: "Robinson House"},
		{Value: "3", Label: "Honeydew"},
		{Value: "Kensington", Label: "Kensington"},
	}, options)

	require.Nil(t, ExtractSelectOptions(appointmentPage, "missing"))
	require.Nil(t, ExtractSelectOptions("", "ctl00$MainContentPlaceHolder$drpBranch"))
}

func TestExtractRemoteId(t *testing.T) {
	require.Equal(t, "4711", ExtractRemoteId("http://vp/MainModule/AppointmentView.aspx?AppointmentId=4711", ""))
	require.Equal(t, "A-17", ExtractRemoteId("", `var apptId = "A-17";`))
	require.Equal(t, "99", ExtractRemoteId("", `<input id="AppointmentNo" value="99">`))
	// "0" is the placeholder for an unsaved appointment
	require.Equal(t, "12", ExtractRemoteId("?AppointmentId=0", "ApptId=12"))
	require.Equal(t, "", ExtractRemoteId("http://vp/MainModule/Home.aspx", "Saved"))
}
