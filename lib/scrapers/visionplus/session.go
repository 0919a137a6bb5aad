package visionplus

// AuthState is the position of a session in the two step login protocol.
type AuthState int

const (
	StateUnauthenticated AuthState = iota
	StateCredentialsSubmitted
	StatePracticePageLoaded
	StateAuthenticated
	StateFailed
)

func (s AuthState) String() string {
	switch s {
	case StateUnauthenticated:
		return "UNAUTHENTICATED"
	case StateCredentialsSubmitted:
		return "CREDENTIALS_SUBMITTED"
	case StatePracticePageLoaded:
		return "PRACTICE_PAGE_LOADED"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Confidence records which signal was accepted as proof that practice
// selection succeeded. Only a boolean leaves the authenticator today, this
// exists so the heuristics can be tightened later without guessing which one
// fired in production.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	// 302 after practice selection and the protected page answered 200
	ConfidenceRedirectConfirmed
	// 302 after practice selection, the protected page probe did not confirm it
	ConfidenceRedirectUnconfirmed
	// 200 with markers of the authenticated area
	ConfidenceContentMarkers
	// 200 without any login marker, last resort
	ConfidenceNoLoginMarker
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceNone:
		return "none"
	case ConfidenceRedirectConfirmed:
		return "redirect_confirmed"
	case ConfidenceRedirectUnconfirmed:
		return "redirect_unconfirmed"
	case ConfidenceContentMarkers:
		return "content_markers"
	case ConfidenceNoLoginMarker:
		return "no_login_marker"
	}
	return "unknown"
}

// Session is the transient state of one logical conversation with VisionPlus.
// It is mutated in place by every request and must not be shared between
// concurrent callers.
type Session struct {
	Cookies    CookieStore
	State      AuthState
	Confidence Confidence
	// Err is why the last authentication attempt failed, nil otherwise.
	Err error
}

func (s *Session) Authenticated() bool {
	return s.State == StateAuthenticated
}

func (s *Session) fail(err error) {
	s.State = StateFailed
	s.Confidence = ConfidenceNone
	s.Err = err
}
