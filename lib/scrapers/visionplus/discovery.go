package visionplus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"visionsync-backend/lib/timezone"

	"go.opentelemetry.io/otel/codes"
)

type Endpoint struct {
	Name    string `json:"name"`
	Path    string `json:"url"`
	Purpose string `json:"purpose"`
}

// DiscoveryEndpoints are the pages of interest for appointment booking.
var DiscoveryEndpoints = []Endpoint{
	{Name: "Appointment Link", Path: "/MainModule/AppointmentLink.aspx", Purpose: "Main appointment dashboard"},
	{Name: "Online Appointments", Path: "/MainModule/ManageOnlineAppointment.aspx", Purpose: "Online appointment management"},
	{Name: "Optometrist Diary", Path: "/MainModule/OptometristDiary.aspx", Purpose: "Primary booking interface"},
	{Name: "New Patient Form", Path: "/MainModule/ManagePatient.aspx?PatientId=0", Purpose: "Patient registration"},
	{Name: "Quick Registration", Path: "/MainModule/QuickPatient.aspx", Purpose: "Fast patient creation"},
}

type EndpointResult struct {
	Endpoint
	// zero when the request did not complete
	Status        int          `json:"status"`
	Accessible    bool         `json:"accessible"`
	HasForm       bool         `json:"hasForm"`
	RequiresLogin bool         `json:"requiresLogin"`
	FormDetails   *FormDetails `json:"formDetails,omitempty"`
	PageTitle     string       `json:"pageTitle,omitempty"`
	ContentLength int          `json:"contentLength"`
	Error         string       `json:"error,omitempty"`
}

type LoginPageResult struct {
	LoginPageExists bool         `json:"loginPageExists"`
	HasLoginForm    bool         `json:"hasLoginForm"`
	FormDetails     *FormDetails `json:"formDetails,omitempty"`
	PageTitle       string       `json:"pageTitle,omitempty"`
	Error           string       `json:"error,omitempty"`
}

type DiscoverySummary struct {
	TotalEndpointsTested      int  `json:"totalEndpointsTested"`
	AccessibleEndpoints       int  `json:"accessibleEndpoints"`
	FormsFound                int  `json:"formsFound"`
	RequiresAuthentication    bool `json:"requiresAuthentication"`
	LoginPageAvailable        bool `json:"loginPageAvailable"`
	CanProceedWithIntegration bool `json:"canProceedWithIntegration"`
}

type DiscoveryReport struct {
	BaseUrl         string           `json:"baseUrl"`
	Authenticated   bool             `json:"authenticated"`
	Endpoints       []EndpointResult `json:"accessTest"`
	Login           LoginPageResult  `json:"loginTest"`
	Summary         DiscoverySummary `json:"summary"`
	Recommendations []string         `json:"recommendations"`
	Timestamp       time.Time        `json:"timestamp"`
}

// Discover probes the known appointment pages and the login page with the
// session's cookies. Pass an authenticated session to see the pages the way
// the sync strategies do.
func (c *Client) Discover(ctx context.Context, session *Session) DiscoveryReport {
	ctx, span := tracer.Start(ctx, "Discover")
	defer span.End()

	report := DiscoveryReport{
		BaseUrl:       c.BaseUrl.String(),
		Authenticated: session.Authenticated(),
		Timestamp:     timezone.Now(),
	}

	for _, endpoint := range DiscoveryEndpoints {
		report.Endpoints = append(report.Endpoints, c.probeEndpoint(ctx, session, endpoint))
	}
	report.Login = c.probeLoginPage(ctx, session)
	report.Summary = summarize(report.Endpoints, report.Login)
	report.Recommendations = recommend(report.Endpoints, report.Login)

	slog.InfoContext(
		ctx, "visionplus discovery finished",
		"accessible", report.Summary.AccessibleEndpoints,
		"forms", report.Summary.FormsFound,
	)
	return report
}

func (c *Client) probeEndpoint(ctx context.Context, session *Session, endpoint Endpoint) EndpointResult {
	result := EndpointResult{Endpoint: endpoint}

	res, err := c.Get(ctx, session, endpoint.Path)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	details := ExtractFormDetails(res.Body)
	result.Status = res.StatusCode
	result.Accessible = res.StatusCode == 200
	result.HasForm = HasForm(res.Body)
	result.RequiresLogin = CheckRequiresLogin(res.Body)
	result.FormDetails = &details
	result.PageTitle = ExtractPageTitle(res.Body)
	result.ContentLength = len(res.Body)
	return result
}

func (c *Client) probeLoginPage(ctx context.Context, session *Session) LoginPageResult {
	res, err := c.Get(ctx, session, c.Paths.Login)
	if err != nil {
		return LoginPageResult{Error: err.Error()}
	}
	details := ExtractFormDetails(res.Body)
	return LoginPageResult{
		LoginPageExists: res.StatusCode == 200,
		HasLoginForm:    strings.Contains(res.Body, "password") || strings.Contains(res.Body, "Login"),
		FormDetails:     &details,
		PageTitle:       ExtractPageTitle(res.Body),
	}
}

func summarize(endpoints []EndpointResult, login LoginPageResult) DiscoverySummary {
	summary := DiscoverySummary{
		TotalEndpointsTested: len(endpoints),
		LoginPageAvailable:   login.LoginPageExists,
	}
	for _, e := range endpoints {
		if e.Accessible {
			summary.AccessibleEndpoints++
		}
		if e.HasForm {
			summary.FormsFound++
		}
		if e.RequiresLogin {
			summary.RequiresAuthentication = true
		}
	}
	summary.CanProceedWithIntegration = summary.FormsFound > 0
	return summary
}

func recommend(endpoints []EndpointResult, login LoginPageResult) []string {
	summary := summarize(endpoints, login)
	switch {
	case summary.FormsFound == 0:
		return []string{"No forms found, form based integration is not possible"}
	case summary.RequiresAuthentication && !login.LoginPageExists:
		return []string{"Pages require authentication but no login page was found"}
	case summary.RequiresAuthentication:
		return []string{
			"Forms found but they require authentication",
			"Next: log in before submitting forms",
		}
	}
	return []string{
		"Forms are accessible without authentication",
		"Next: submit forms directly",
		"Next: analyze the form structure for field mapping",
	}
}

type ConnectionReport struct {
	Success       bool   `json:"success"`
	RequiresAuth  bool   `json:"requiresAuth"`
	Authenticated bool   `json:"authenticated"`
	Status        int    `json:"status"`
	Error         string `json:"error,omitempty"`
}

// TestConnection checks that the base url answers 200 without following
// redirects, then runs a full authentication.
func (c *Client) TestConnection(ctx context.Context, session *Session) ConnectionReport {
	ctx, span := tracer.Start(ctx, "TestConnection")
	defer span.End()

	res, err := c.Get(ctx, session, c.BaseUrl.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reach visionplus")
		return ConnectionReport{Error: err.Error()}
	}
	if res.StatusCode != 200 {
		span.SetStatus(codes.Error, "visionplus returned non-200")
		return ConnectionReport{
			Status: res.StatusCode,
			Error:  fmt.Sprintf("cannot connect to VisionPlus (HTTP %d)", res.StatusCode),
		}
	}

	authenticated := c.Authenticate(ctx, session)
	report := ConnectionReport{
		Success:       authenticated,
		RequiresAuth:  true,
		Authenticated: authenticated,
		Status:        200,
	}
	if !authenticated {
		report.Status = 401
		report.Error = "authentication failed"
		if session.Err != nil {
			report.Error = fmt.Sprintf("authentication failed: %s", session.Err.Error())
		}
	}
	return report
}
