package visionplus_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
	"visionsync-backend/lib/scrapers/visionplus"
	"visionsync-backend/lib/scrapers/visionplus/vptest"

	"github.com/stretchr/testify/require"
)

func newClient(t testing.TB, baseUrl string) *visionplus.Client {
	client, err := visionplus.NewClient(visionplus.Options{
		BaseUrl:           baseUrl,
		Username:          vptest.Username,
		Password:          vptest.Password,
		Timeout:           time.Second * 5,
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)
	return client
}

func TestNewClientNotConfigured(t *testing.T) {
	for _, opts := range []visionplus.Options{
		{},
		{BaseUrl: "http://vp", Username: "u"},
		{BaseUrl: "http://vp", Password: "p"},
		{Username: "u", Password: "p"},
	} {
		_, err := visionplus.NewClient(opts)
		require.ErrorIs(t, err, visionplus.ErrNotConfigured)
	}

	_, err := visionplus.NewClient(visionplus.Options{BaseUrl: "not a url", Username: "u", Password: "p"})
	require.Error(t, err)
	require.False(t, errors.Is(err, visionplus.ErrNotConfigured))
}

func TestAuthenticate(t *testing.T) {
	server := vptest.NewServer()
	defer server.Close()

	client := newClient(t, server.URL)
	session := &visionplus.Session{}

	require.True(t, client.Authenticate(context.Background(), session))
	require.True(t, session.Authenticated())
	require.Equal(t, visionplus.StateAuthenticated, session.State)
	require.Equal(t, visionplus.ConfidenceRedirectConfirmed, session.Confidence)
	require.NoError(t, session.Err)

	// the expires attribute of the auth cookie must not leak into the jar
	require.Equal(t, []string{
		"ASP.NET_SessionId=session-1",
		".ASPXAUTH=stage-1",
		"VPPractice=132",
	}, session.Cookies.Values())

	requests := server.Requests()
	require.Len(t, requests, 5)
	require.Equal(t, "/LoginUser.aspx", requests[0].Path)

	credentials := requests[1]
	require.Equal(t, http.MethodPost, credentials.Method)
	require.Equal(t, vptest.LoginViewState, credentials.Form.Get("__VIEWSTATE"))
	require.Equal(t, "login-validation", credentials.Form.Get("__EVENTVALIDATION"))
	require.Equal(t, "C2EE9ABB", credentials.Form.Get("__VIEWSTATEGENERATOR"))
	require.Equal(t, "ASP.NET_SessionId=session-1", credentials.Cookie)

	require.Equal(t, "/LoginStaffPractice.aspx", requests[2].Path)
	practice := requests[3]
	require.Equal(t, vptest.PracticeViewState, practice.Form.Get("__VIEWSTATE"))
	require.Equal(t, "132", practice.Form.Get("drpPractice$HiddenField"))
	require.Equal(t, "Bindura", practice.Form.Get("drpPractice$TextBox"))
	require.Equal(t, "Login", practice.Form.Get("btnLogin"))
	require.Equal(t, "0", practice.Form.Get("hdnFldPracId"))

	probe := requests[4]
	require.Equal(t, "/MainModule/AppointmentLink.aspx", probe.Path)
	require.Equal(t, session.Cookies.Header(), probe.Cookie)

	// already authenticated, no further requests
	require.True(t, client.EnsureAuthenticated(context.Background(), session))
	require.Len(t, server.Requests(), 5)
}

func TestAuthenticateLoginRejected(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusUnauthorized, http.StatusInternalServerError} {
		server := vptest.NewServer(func(s *vptest.Server) { s.LoginStatus = status })

		client := newClient(t, server.URL)
		session := &visionplus.Session{}

		require.False(t, client.Authenticate(context.Background(), session))
		require.False(t, session.Authenticated())
		require.Equal(t, visionplus.StateFailed, session.State)
		require.ErrorIs(t, session.Err, visionplus.ErrUnexpectedLoginResponse)
		require.Equal(t, 0, server.Count(http.MethodGet, "/LoginStaffPractice.aspx"))

		server.Close()
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	server := vptest.NewServer()
	defer server.Close()

	client, err := visionplus.NewClient(visionplus.Options{
		BaseUrl:           server.URL,
		Username:          vptest.Username,
		Password:          "wrong",
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)

	session := &visionplus.Session{}
	require.False(t, client.Authenticate(context.Background(), session))
	require.ErrorIs(t, session.Err, visionplus.ErrUnexpectedLoginResponse)
}

func TestAuthenticatePracticePageFailure(t *testing.T) {
	server := vptest.NewServer(func(s *vptest.Server) {
		s.PracticePageStatus = http.StatusServiceUnavailable
	})
	defer server.Close()

	client := newClient(t, server.URL)
	session := &visionplus.Session{}

	require.False(t, client.Authenticate(context.Background(), session))
	require.ErrorIs(t, session.Err, visionplus.ErrPracticePageLoad)
	require.Equal(t, 0, server.Count(http.MethodPost, "/LoginStaffPractice.aspx"))
}

func TestAuthenticateConfidence(t *testing.T) {
	cases := []struct {
		name       string
		setup      func(s *vptest.Server)
		ok         bool
		confidence visionplus.Confidence
	}{
		{
			name:       "probe not confirmed",
			setup:      func(s *vptest.Server) { s.ProbeStatus = http.StatusInternalServerError },
			ok:         true,
			confidence: visionplus.ConfidenceRedirectUnconfirmed,
		},
		{
			name: "content markers",
			setup: func(s *vptest.Server) {
				s.PracticeStatus = http.StatusOK
				s.PracticeBody = `<a href="/MainModule/Dashboard.aspx">Dashboard</a>`
			},
			ok:         true,
			confidence: visionplus.ConfidenceContentMarkers,
		},
		{
			name: "no login marker",
			setup: func(s *vptest.Server) {
				s.PracticeStatus = http.StatusOK
				s.PracticeBody = "Welcome back"
			},
			ok:         true,
			confidence: visionplus.ConfidenceNoLoginMarker,
		},
		{
			name: "still on the login page",
			setup: func(s *vptest.Server) {
				s.PracticeStatus = http.StatusOK
				s.PracticeBody = "Please Login again"
			},
			ok:         false,
			confidence: visionplus.ConfidenceNone,
		},
		{
			name: "practice page echoed back",
			setup: func(s *vptest.Server) {
				s.PracticeStatus = http.StatusOK
				s.PracticeBody = `<form action="LoginStaffPractice.aspx">Appointment</form>`
			},
			ok:         false,
			confidence: visionplus.ConfidenceNone,
		},
		{
			name: "server error",
			setup: func(s *vptest.Server) {
				s.PracticeStatus = http.StatusInternalServerError
			},
			ok:         false,
			confidence: visionplus.ConfidenceNone,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := vptest.NewServer(tc.setup)
			defer server.Close()

			client := newClient(t, server.URL)
			session := &visionplus.Session{}

			require.Equal(t, tc.ok, client.Authenticate(context.Background(), session))
			require.Equal(t, tc.confidence, session.Confidence)
			if !tc.ok {
				require.ErrorIs(t, session.Err, visionplus.ErrPracticeRejected)
			}
		})
	}
}

func unreachableUrl(t testing.TB) string {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return "http://" + addr
}

func TestAuthenticateUnreachable(t *testing.T) {
	client := newClient(t, unreachableUrl(t))
	session := &visionplus.Session{}

	require.False(t, client.Authenticate(context.Background(), session))
	require.Equal(t, visionplus.StateFailed, session.State)
	require.Error(t, session.Err)
	require.True(t, strings.Contains(session.Err.Error(), "fetch login page"))
}

func TestAuthenticateRestarts(t *testing.T) {
	server := vptest.NewServer()
	defer server.Close()
	client := newClient(t, server.URL)

	session := &visionplus.Session{}
	require.True(t, client.Authenticate(context.Background(), session))
	require.True(t, client.Authenticate(context.Background(), session))
	require.Equal(t, 2, server.Count(http.MethodPost, "/LoginUser.aspx"))
	require.Equal(t, visionplus.StateAuthenticated, session.State)
}

func TestAuthenticateRetryDropsCookies(t *testing.T) {
	server := vptest.NewServer(func(s *vptest.Server) { s.PracticePageStatus = http.StatusInternalServerError })
	defer server.Close()
	client := newClient(t, server.URL)

	session := &visionplus.Session{}
	require.False(t, client.Authenticate(context.Background(), session))
	first := session.Cookies.Values()
	require.NotEmpty(t, first)

	require.False(t, client.Authenticate(context.Background(), session))
	require.Equal(t, first, session.Cookies.Values())

	var loginGets []vptest.Request
	for _, r := range server.Requests() {
		if r.Method == http.MethodGet && r.Path == "/LoginUser.aspx" {
			loginGets = append(loginGets, r)
		}
	}
	require.Len(t, loginGets, 2)
	require.Empty(t, loginGets[1].Cookie)
}

func TestTestConnection(t *testing.T) {
	server := vptest.NewServer()
	defer server.Close()

	client := newClient(t, server.URL)
	report := client.TestConnection(context.Background(), &visionplus.Session{})
	require.Equal(t, visionplus.ConnectionReport{
		Success:       true,
		RequiresAuth:  true,
		Authenticated: true,
		Status:        200,
	}, report)

	rejecting := vptest.NewServer(func(s *vptest.Server) { s.LoginStatus = http.StatusOK })
	defer rejecting.Close()
	report = newClient(t, rejecting.URL).TestConnection(context.Background(), &visionplus.Session{})
	require.False(t, report.Success)
	require.True(t, report.RequiresAuth)
	require.Equal(t, 401, report.Status)
	require.Contains(t, report.Error, "unexpected login response")

	unreachable := newClient(t, unreachableUrl(t))
	report = unreachable.TestConnection(context.Background(), &visionplus.Session{})
	require.False(t, report.Success)
	require.False(t, report.RequiresAuth)
	require.NotEmpty(t, report.Error)
}

func TestDiscover(t *testing.T) {
	server := vptest.NewServer()
	defer server.Close()
	client := newClient(t, server.URL)

	anonymous := client.Discover(context.Background(), &visionplus.Session{})
	require.False(t, anonymous.Authenticated)
	require.Len(t, anonymous.Endpoints, len(visionplus.DiscoveryEndpoints))
	for _, e := range anonymous.Endpoints {
		// unauthenticated requests bounce to the login page
		require.Equal(t, http.StatusFound, e.Status)
		require.False(t, e.Accessible)
	}
	require.True(t, anonymous.Login.LoginPageExists)
	require.True(t, anonymous.Login.HasLoginForm)
	require.Equal(t, "VisionPlus Login", anonymous.Login.PageTitle)
	require.Equal(t, 0, anonymous.Summary.AccessibleEndpoints)
	require.False(t, anonymous.Summary.CanProceedWithIntegration)
	require.Len(t, anonymous.Recommendations, 1)

	session := &visionplus.Session{}
	require.True(t, client.Authenticate(context.Background(), session))
	report := client.Discover(context.Background(), session)
	require.True(t, report.Authenticated)
	require.Equal(t, visionplus.DiscoverySummary{
		TotalEndpointsTested:      5,
		AccessibleEndpoints:       5,
		FormsFound:                5,
		RequiresAuthentication:    false,
		LoginPageAvailable:        true,
		CanProceedWithIntegration: true,
	}, report.Summary)

	appointments := report.Endpoints[0]
	require.Equal(t, "Appointments", appointments.PageTitle)
	require.NotNil(t, appointments.FormDetails)
	require.True(t, appointments.FormDetails.HasViewState)
	require.Equal(t, 2, appointments.FormDetails.SelectFields)
	require.Len(t, report.Recommendations, 3)
}

func TestNewClientPartialTables(t *testing.T) {
	client, err := visionplus.NewClient(visionplus.Options{
		BaseUrl:  "http://vp.example.com/",
		Username: "u",
		Password: "p",
		Paths:    visionplus.Paths{Appointment: "/MainModule/NewAppointment.aspx"},
		Fields: visionplus.Fields{
			Templated: visionplus.AppointmentFields{PatientName: "txtName"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "http://vp.example.com", client.BaseUrl.String())

	require.Equal(t, "/MainModule/NewAppointment.aspx", client.Paths.Appointment)
	require.Equal(t, visionplus.DefaultPaths().Login, client.Paths.Login)

	defaults := visionplus.DefaultFields()
	require.Equal(t, "txtName", client.Fields.Templated.PatientName)
	require.Equal(t, defaults.Templated.Branch, client.Fields.Templated.Branch)
	require.Equal(t, defaults.Direct, client.Fields.Direct)
	require.Equal(t, defaults.Login, client.Fields.Login)
	require.Equal(t, visionplus.DefaultPractice(), client.Practice)
}

func TestAuthenticateFailureLogsReachedState(t *testing.T) {
	var logs bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logs, nil)))
	defer slog.SetDefault(previous)

	server := vptest.NewServer(func(s *vptest.Server) { s.PracticePageStatus = http.StatusInternalServerError })
	defer server.Close()

	session := &visionplus.Session{}
	require.False(t, newClient(t, server.URL).Authenticate(context.Background(), session))
	require.Equal(t, visionplus.StateFailed, session.State)

	var failure map[string]any
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["msg"] == "visionplus authentication failed" {
			failure = entry
		}
	}
	require.NotNil(t, failure)
	require.Equal(t, visionplus.StateCredentialsSubmitted.String(), failure["state"])
}
