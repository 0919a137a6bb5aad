// Package vptest runs a scripted stand-in for a VisionPlus host. It speaks the
// same web forms protocol (hidden state tokens, cookie session, two step
// login, redirects) so the integration can be exercised end to end.
package vptest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
)

const (
	Username = "staff"
	Password = "s3cret"

	PracticeId = "132"

	sessionCookie  = "ASP.NET_SessionId"
	authCookie     = ".ASPXAUTH"
	practiceCookie = "VPPractice"

	mainContent = "ctl00$MainContentPlaceHolder$"
)

// the state tokens each page hands out, a postback must echo them back
const (
	LoginViewState       = "login-viewstate"
	PracticeViewState    = "practice-viewstate"
	AppointmentViewState = "appointment-viewstate"
)

type Request struct {
	Method string
	Path   string
	Cookie string
	Form   url.Values
}

// Server is safe for concurrent use. The exported knobs are only read, set
// them through the configure functions of NewServer.
type Server struct {
	*httptest.Server

	// LoginStatus overrides the answer to the credentials POST, the default
	// is a 302 to the practice page.
	LoginStatus int
	// PracticePageStatus overrides the status of the practice page GET.
	PracticePageStatus int
	// PracticeStatus and PracticeBody override the answer to the practice
	// selection POST, the default is a 302 into the application.
	PracticeStatus int
	PracticeBody   string
	// ProbeStatus overrides the status of the appointment page GET.
	ProbeStatus int

	RejectTemplated bool
	RejectDirect    bool
	// bookings for these patient names are refused no matter the strategy
	RejectPatients map[string]bool

	StatusUpdateStatus int
	EditStatus         int

	mutex        sync.Mutex
	requests     []Request
	bookings     []url.Values
	nextRemoteId int
}

func NewServer(configure ...func(s *Server)) *Server {
	s := &Server{nextRemoteId: 4711}
	for _, fn := range configure {
		fn(s)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *Server) Requests() []Request {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Count returns how many requests were made with the given method and path.
func (s *Server) Count(method, path string) int {
	count := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			count++
		}
	}
	return count
}

// Bookings are the forms of every appointment the server accepted.
func (s *Server) Bookings() []url.Values {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]url.Values, len(s.bookings))
	copy(out, s.bookings)
	return out
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	err := r.ParseForm()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mutex.Lock()
	s.requests = append(s.requests, Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Cookie: r.Header.Get("Cookie"),
		Form:   r.PostForm,
	})
	s.mutex.Unlock()

	switch {
	case r.URL.Path == "/" && r.Method == http.MethodGet:
		writePage(w, http.StatusOK, "VisionPlus", "<a href=\"/LoginUser.aspx\">Login</a>")
	case r.URL.Path == "/LoginUser.aspx" && r.Method == http.MethodGet:
		s.loginPage(w)
	case r.URL.Path == "/LoginUser.aspx" && r.Method == http.MethodPost:
		s.submitLogin(w, r)
	case r.URL.Path == "/LoginStaffPractice.aspx" && r.Method == http.MethodGet:
		s.practicePage(w, r)
	case r.URL.Path == "/LoginStaffPractice.aspx" && r.Method == http.MethodPost:
		s.selectPractice(w, r)
	case r.URL.Path == "/MainModule/AppointmentLink.aspx" && r.Method == http.MethodGet:
		s.appointmentPage(w, r)
	case r.URL.Path == "/MainModule/AppointmentLink.aspx" && r.Method == http.MethodPost:
		s.book(w, r)
	case r.URL.Path == "/MainModule/UpdateAppointmentStatus.aspx" && r.Method == http.MethodPost:
		s.guarded(w, r, s.StatusUpdateStatus, http.StatusOK)
	case r.URL.Path == "/MainModule/EditAppointment.aspx" && r.Method == http.MethodPost:
		s.guarded(w, r, s.EditStatus, http.StatusFound)
	case strings.HasPrefix(r.URL.Path, "/MainModule/"):
		if !authenticated(r) {
			redirect(w, "/LoginUser.aspx")
			return
		}
		writePage(w, http.StatusOK, "VisionPlus", `<form id="aspnetForm" method="post">`+hidden("__VIEWSTATE", "page")+`</form>`)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) loginPage(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "session-1", Path: "/", HttpOnly: true})
	writePage(w, http.StatusOK, "VisionPlus Login", `
<form method="post" action="./LoginUser.aspx" id="form1">
	`+hidden("__VIEWSTATE", LoginViewState)+`
	<input type="hidden" name="__VIEWSTATEGENERATOR" id="__VIEWSTATEGENERATOR" value="C2EE9ABB" />
	<input value="login-validation" type="hidden" id="__EVENTVALIDATION" name="__EVENTVALIDATION" />
	<input name="txtUserName" type="text" id="txtUserName" />
	<input name="txtPassword" type="password" id="txtPassword" />
	<input type="submit" name="btnLogin" value="Login" id="btnLogin" />
</form>`)
}

func (s *Server) submitLogin(w http.ResponseWriter, r *http.Request) {
	if s.LoginStatus != 0 {
		writePage(w, s.LoginStatus, "VisionPlus Login", "Invalid login")
		return
	}
	if !hasCookie(r, sessionCookie) ||
		r.PostForm.Get("__VIEWSTATE") != LoginViewState ||
		r.PostForm.Get("txtUserName") != Username ||
		r.PostForm.Get("txtPassword") != Password ||
		r.PostForm.Get("btnLogin") != "Login" {
		s.loginPage(w)
		return
	}
	// Expires carries a comma, the client has to cope with it
	w.Header().Add("Set-Cookie", authCookie+"=stage-1; expires=Wed, 21 Oct 2037 07:28:00 GMT; path=/; HttpOnly")
	redirect(w, "LoginStaffPractice.aspx")
}

func (s *Server) practicePage(w http.ResponseWriter, r *http.Request) {
	if !hasCookie(r, authCookie) {
		redirect(w, "/LoginUser.aspx")
		return
	}
	status := http.StatusOK
	if s.PracticePageStatus != 0 {
		status = s.PracticePageStatus
	}
	writePage(w, status, "Select Practice", `
<form method="post" action="./LoginStaffPractice.aspx" id="form1">
	<input type="hidden" id="__VIEWSTATE" name="__VIEWSTATE" value="`+PracticeViewState+`" />
	<input type="hidden" name="hdnFldPracId" id="hdnFldPracId" value="0" />
	<input name="drpPractice$TextBox" type="text" />
	<input type="hidden" name="drpPractice$HiddenField" value="" />
	<input type="submit" name="btnLogin" value="Login" />
</form>`)
}

func (s *Server) selectPractice(w http.ResponseWriter, r *http.Request) {
	if !hasCookie(r, authCookie) ||
		r.PostForm.Get("__VIEWSTATE") != PracticeViewState ||
		r.PostForm.Get("drpPractice$HiddenField") != PracticeId {
		writePage(w, http.StatusOK, "Select Practice", "LoginStaffPractice.aspx Login failed")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: practiceCookie, Value: PracticeId, Path: "/"})
	if s.PracticeStatus != 0 {
		writePage(w, s.PracticeStatus, "VisionPlus", s.PracticeBody)
		return
	}
	redirect(w, "/MainModule/Home.aspx")
}

func (s *Server) appointmentPage(w http.ResponseWriter, r *http.Request) {
	if !authenticated(r) {
		redirect(w, "/LoginUser.aspx")
		return
	}
	status := http.StatusOK
	if s.ProbeStatus != 0 {
		status = s.ProbeStatus
	}
	writePage(w, status, "Appointments", `
<form method="post" action="./AppointmentLink.aspx" id="aspnetForm">
	`+hidden("__VIEWSTATE", AppointmentViewState)+`
	`+hidden("__EVENTVALIDATION", "appointment-validation")+`
	`+hidden(mainContent+"hdnBookingSource", "web")+`
	<input name="`+mainContent+`txtPatientName" type="text" />
	<select name="`+mainContent+`drpBranch">
		<option value="1">Robinson House</option>
		<option value="2">Kensington</option>
		<option value="3">Honeydew</option>
		<option value="4">Chipinge </option>
		<option value="5">Chiredzi</option>
	</select>
	<select name="`+mainContent+`drpServiceType">
		<option value="ET">Eye Test</option>
		<option value="CLF">Contact Lens Fitting</option>
		<option value="CLA">Contact Lens Aftercare</option>
		<option value="DO">Dispensing Only</option>
	</select>
	<input type="submit" name="`+mainContent+`btnSubmit" value="Book Appointment" />
</form>`)
}

func (s *Server) book(w http.ResponseWriter, r *http.Request) {
	if !authenticated(r) {
		redirect(w, "/LoginUser.aspx")
		return
	}
	form := r.PostForm
	templated := form.Get("__VIEWSTATE") == AppointmentViewState

	rejected := s.RejectPatients[form.Get(mainContent+"txtPatientName")] ||
		(templated && s.RejectTemplated) ||
		(!templated && s.RejectDirect)
	if rejected || form.Get(mainContent+"btnSubmit") == "" {
		writePage(w, http.StatusInternalServerError, "Error", "Booking failed")
		return
	}

	s.mutex.Lock()
	s.bookings = append(s.bookings, form)
	remoteId := s.nextRemoteId
	s.nextRemoteId++
	s.mutex.Unlock()

	if templated {
		redirect(w, fmt.Sprintf("/MainModule/AppointmentView.aspx?AppointmentId=%d", remoteId))
		return
	}
	writePage(w, http.StatusOK, "Appointments", "Appointment saved")
}

func (s *Server) guarded(w http.ResponseWriter, r *http.Request, override, fallback int) {
	if !authenticated(r) {
		redirect(w, "/LoginUser.aspx")
		return
	}
	status := fallback
	if override != 0 {
		status = override
	}
	if status == http.StatusFound {
		redirect(w, "/MainModule/AppointmentLink.aspx")
		return
	}
	writePage(w, status, "Appointments", "Updated")
}

func authenticated(r *http.Request) bool {
	return hasCookie(r, authCookie) && hasCookie(r, practiceCookie)
}

func hasCookie(r *http.Request, name string) bool {
	_, err := r.Cookie(name)
	return err == nil
}

func redirect(w http.ResponseWriter, location string) {
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusFound)
}

func hidden(name, value string) string {
	return fmt.Sprintf(`<input type="hidden" name="%s" id="%s" value="%s" />`, name, strings.ReplaceAll(name, "$", "_"), value)
}

func writePage(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<!DOCTYPE html><html><head><title>%s</title></head><body>%s</body></html>", title, body)
}
