package visionplus

import (
	"net/url"
	"sort"
)

// Paths are the VisionPlus pages the integration talks to, relative to the
// base url.
type Paths struct {
	Login           string `json:"login"`
	Practice        string `json:"practice"`
	ProtectedProbe  string `json:"protected_probe"`
	Appointment     string `json:"appointment"`
	StatusUpdate    string `json:"status_update"`
	EditAppointment string `json:"edit_appointment"`
}

func DefaultPaths() Paths {
	return Paths{
		Login:           "/LoginUser.aspx",
		Practice:        "/LoginStaffPractice.aspx",
		ProtectedProbe:  "/MainModule/AppointmentLink.aspx",
		Appointment:     "/MainModule/AppointmentLink.aspx",
		StatusUpdate:    "/MainModule/UpdateAppointmentStatus.aspx",
		EditAppointment: "/MainModule/EditAppointment.aspx",
	}
}

type Practice struct {
	Id    string `json:"id"`
	Label string `json:"label"`
}

func DefaultPractice() Practice {
	return Practice{Id: "132", Label: "Bindura"}
}

// The field name tables below were derived from the vendor's pages by hand and
// have never been confirmed against a schema, so every one of them can be
// overridden from configuration.

type LoginFields struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	PracticeId    string `json:"practice_id"`
	PracticeLabel string `json:"practice_label"`
	Button        string `json:"button"`
	ButtonValue   string `json:"button_value"`
}

type AppointmentFields struct {
	PatientName  string `json:"patient_name"`
	PatientEmail string `json:"patient_email"`
	PatientPhone string `json:"patient_phone"`
	Branch       string `json:"branch"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	ServiceType  string `json:"service_type"`
	Submit       string `json:"submit"`
	SubmitValue  string `json:"submit_value"`
}

type StatusFields struct {
	AppointmentId string `json:"appointment_id"`
	Status        string `json:"status"`
	Notes         string `json:"notes"`
	Submit        string `json:"submit"`
	SubmitValue   string `json:"submit_value"`
}

type EditFields struct {
	AppointmentId string `json:"appointment_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Branch        string `json:"branch"`
	Status        string `json:"status"`
	Submit        string `json:"submit"`
	SubmitValue   string `json:"submit_value"`
}

type Fields struct {
	Login LoginFields `json:"login"`
	// names used with a freshly scraped appointment page
	Templated AppointmentFields `json:"templated"`
	// names posted blind, without loading the page first
	Direct AppointmentFields `json:"direct"`
	Status StatusFields      `json:"status"`
	Edit   EditFields        `json:"edit"`
}

const mainContent = "ctl00$MainContentPlaceHolder$"

func DefaultFields() Fields {
	appointment := AppointmentFields{
		PatientName:  mainContent + "txtPatientName",
		PatientEmail: mainContent + "txtEmail",
		PatientPhone: mainContent + "txtPhone",
		Branch:       mainContent + "drpBranch",
		Date:         mainContent + "txtAppointmentDate",
		Time:         mainContent + "txtAppointmentTime",
		ServiceType:  mainContent + "drpServiceType",
		Submit:       mainContent + "btnSubmit",
		SubmitValue:  "Book Appointment",
	}

	return Fields{
		Login: LoginFields{
			Username:      "txtUserName",
			Password:      "txtPassword",
			PracticeId:    "drpPractice$HiddenField",
			PracticeLabel: "drpPractice$TextBox",
			Button:        "btnLogin",
			ButtonValue:   "Login",
		},
		Templated: appointment,
		Direct:    appointment,
		Status: StatusFields{
			AppointmentId: mainContent + "txtAppointmentId",
			Status:        mainContent + "drpStatus",
			Notes:         mainContent + "txtNotes",
			Submit:        mainContent + "btnUpdateStatus",
			SubmitValue:   "Update Status",
		},
		Edit: EditFields{
			AppointmentId: mainContent + "txtAppointmentId",
			Date:          mainContent + "txtDate",
			Time:          mainContent + "txtTime",
			Branch:        mainContent + "drpBranch",
			Status:        mainContent + "drpStatus",
			Submit:        mainContent + "btnUpdate",
			SubmitValue:   "Update Appointment",
		},
	}
}

// Form accumulates a postback body. Hidden fields go in first so explicit
// values set afterwards take precedence.
type Form struct {
	values url.Values
}

func NewForm(hidden map[string]string) *Form {
	f := &Form{values: url.Values{}}
	keys := make([]string, 0, len(hidden))
	for k := range hidden {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f.values.Set(k, hidden[k])
	}
	return f
}

// Set ignores empty field names.
func (f *Form) Set(name, value string) *Form {
	if name == "" {
		return f
	}
	f.values.Set(name, value)
	return f
}

func (f *Form) Values() url.Values {
	return f.values
}
