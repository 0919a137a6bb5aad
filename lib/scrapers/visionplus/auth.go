package visionplus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrUnexpectedLoginResponse = errors.New("unexpected login response")
	ErrPracticePageLoad        = errors.New("failed to load practice page")
	ErrPracticeRejected        = errors.New("practice selection rejected")
)

// strings only found inside the authenticated area
var authenticatedMarkers = []string{"MainModule", "Dashboard", "Appointment"}

// practiceSignature identifies the practice selection page, both in redirect
// targets and in page bodies.
func (c *Client) practiceSignature() string {
	return path.Base(c.Paths.Practice)
}

// EnsureAuthenticated authenticates the session unless it already is.
func (c *Client) EnsureAuthenticated(ctx context.Context, session *Session) bool {
	if session.Authenticated() {
		return true
	}
	return c.Authenticate(ctx, session)
}

// Authenticate runs the two step login (credentials, then practice selection)
// from the start. Only a boolean leaves this method, the reason for a failure
// is left in session.Err and the signal that was trusted in
// session.Confidence.
func (c *Client) Authenticate(ctx context.Context, session *Session) bool {
	ctx, span := tracer.Start(ctx, "Authenticate")
	defer span.End()

	session.Cookies.Reset()
	session.State = StateUnauthenticated
	session.Confidence = ConfidenceNone
	session.Err = nil

	var hidden map[string]string
	practiceUrl, err := c.submitCredentials(ctx, session)
	if err == nil {
		hidden, err = c.loadPracticePage(ctx, session, practiceUrl)
	}
	if err == nil {
		err = c.selectPractice(ctx, session, hidden)
	}
	if err != nil {
		reached := session.State
		session.fail(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "authentication failed")
		slog.WarnContext(ctx, "visionplus authentication failed", "state", reached.String(), "err", err)
		return false
	}

	span.SetAttributes(attribute.String("confidence", session.Confidence.String()))
	slog.InfoContext(
		ctx, "visionplus authentication succeeded",
		"confidence", session.Confidence.String(),
		"cookies", session.Cookies.Len(),
	)
	return true
}

// submitCredentials returns the practice selection url the login redirected to.
func (c *Client) submitCredentials(ctx context.Context, session *Session) (string, error) {
	ctx, span := tracer.Start(ctx, "submitCredentials")
	defer span.End()

	loginPage, err := c.Get(ctx, session, c.Paths.Login)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch login page")
		return "", fmt.Errorf("fetch login page: %w", err)
	}

	fields := c.Fields.Login
	form := NewForm(ExtractHiddenFields(loginPage.Body)).
		Set(fields.Username, c.username).
		Set(fields.Password, c.password).
		Set(fields.Button, fields.ButtonValue)

	res, err := c.PostForm(ctx, session, c.Paths.Login, form.Values())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit credentials")
		return "", fmt.Errorf("submit credentials: %w", err)
	}
	span.SetAttributes(attribute.Int("status", res.StatusCode))

	if !res.Found() || !strings.Contains(res.Location, c.practiceSignature()) {
		slog.DebugContext(
			ctx, "login did not redirect to practice selection",
			"status", res.StatusCode,
			"location", res.Location,
		)
		span.SetStatus(codes.Error, "unexpected login response")
		return "", ErrUnexpectedLoginResponse
	}

	session.State = StateCredentialsSubmitted
	return res.Location, nil
}

// loadPracticePage returns the hidden fields of the practice selection page.
func (c *Client) loadPracticePage(ctx context.Context, session *Session, practiceUrl string) (map[string]string, error) {
	ctx, span := tracer.Start(ctx, "loadPracticePage")
	defer span.End()

	res, err := c.Get(ctx, session, practiceUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch practice page")
		return nil, fmt.Errorf("fetch practice page: %w", err)
	}
	if !res.OK() {
		span.SetStatus(codes.Error, "practice page returned non-2xx")
		return nil, fmt.Errorf("%w: status %d", ErrPracticePageLoad, res.StatusCode)
	}

	session.State = StatePracticePageLoaded
	return ExtractHiddenFields(res.Body), nil
}

func (c *Client) selectPractice(ctx context.Context, session *Session, hidden map[string]string) error {
	ctx, span := tracer.Start(ctx, "selectPractice")
	defer span.End()

	fields := c.Fields.Login
	form := NewForm(hidden).
		Set(fields.PracticeId, c.Practice.Id).
		Set(fields.PracticeLabel, c.Practice.Label).
		Set(fields.Button, fields.ButtonValue)

	res, err := c.PostForm(ctx, session, c.Paths.Practice, form.Values())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit practice selection")
		return fmt.Errorf("submit practice selection: %w", err)
	}
	span.SetAttributes(attribute.Int("status", res.StatusCode))

	switch {
	case res.Found():
		// the redirect target is not validated, it differs between practices
		session.Confidence = c.probeProtected(ctx, session)
	case res.StatusCode == 200 &&
		!strings.Contains(res.Body, c.practiceSignature()) &&
		containsAny(res.Body, authenticatedMarkers):
		session.Confidence = ConfidenceContentMarkers
	case res.StatusCode == 200 && !strings.Contains(res.Body, "Login"):
		session.Confidence = ConfidenceNoLoginMarker
	default:
		span.SetStatus(codes.Error, "practice selection rejected")
		return fmt.Errorf("%w: status %d", ErrPracticeRejected, res.StatusCode)
	}

	session.State = StateAuthenticated
	return nil
}

// probeProtected fetches a page that is only served to logged in sessions. A
// failed probe only lowers the confidence, it never fails the login.
func (c *Client) probeProtected(ctx context.Context, session *Session) Confidence {
	ctx, span := tracer.Start(ctx, "probeProtected")
	defer span.End()

	res, err := c.Get(ctx, session, c.Paths.ProtectedProbe)
	if err != nil {
		span.RecordError(err)
		slog.WarnContext(ctx, "protected page probe failed, accepting redirect alone", "err", err)
		return ConfidenceRedirectUnconfirmed
	}
	if res.StatusCode != 200 {
		slog.WarnContext(ctx, "protected page probe not confirmed, accepting redirect alone", "status", res.StatusCode)
		return ConfidenceRedirectUnconfirmed
	}
	return ConfidenceRedirectConfirmed
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
