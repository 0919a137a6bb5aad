package visionplus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrSessionExpired     = errors.New("bounced to the login page")
	ErrSubmissionRejected = errors.New("submission rejected")
)

// Booking is an appointment in VisionPlus terms, branch and service are
// already mapped to VisionPlus labels.
type Booking struct {
	PatientName  string
	PatientEmail string
	PatientPhone string
	Branch       string
	Service      string
	Date         time.Time
	Time         string
}

// Changes to an appointment that already exists remotely, empty fields are not
// sent.
type Changes struct {
	Date   *time.Time
	Time   string
	Branch string
}

type Submission struct {
	StatusCode int    `json:"status"`
	Location   string `json:"location,omitempty"`
	// RemoteId is whatever identifier could be found in the answer, it is
	// often empty.
	RemoteId string `json:"remoteId,omitempty"`
}

func submissionOf(res Response) Submission {
	return Submission{
		StatusCode: res.StatusCode,
		Location:   res.Location,
		RemoteId:   ExtractRemoteId(res.Location, res.Body),
	}
}

// accept decides whether VisionPlus took a postback. Redirects count as
// success only when allowRedirect is set and they do not lead back to login.
func (c *Client) accept(span trace.Span, res Response, allowRedirect bool) error {
	span.SetAttributes(attribute.Int("status", res.StatusCode))
	if c.BouncedToLogin(res) {
		span.SetStatus(codes.Error, "session expired")
		return ErrSessionExpired
	}
	if res.OK() || (allowRedirect && res.Found()) {
		return nil
	}
	span.SetStatus(codes.Error, "submission rejected")
	return fmt.Errorf("%w: status %d", ErrSubmissionRejected, res.StatusCode)
}

// loadForm fetches a page and returns its hidden fields and body. Only network
// failures and login bounces are errors, a page that failed to render still
// yields the defaulted state fields.
func (c *Client) loadForm(ctx context.Context, session *Session, target string) (map[string]string, string, error) {
	res, err := c.Get(ctx, session, target)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", target, err)
	}
	if c.BouncedToLogin(res) {
		return nil, "", ErrSessionExpired
	}
	if !res.OK() {
		slog.WarnContext(ctx, "form page returned non-2xx, posting with default state", "target", target, "status", res.StatusCode)
	}
	return ExtractHiddenFields(res.Body), res.Body, nil
}

// selectValue resolves a label to the value of the matching <option> on page,
// falling back to the label itself.
func selectValue(ctx context.Context, page, name, label string) string {
	options := ExtractSelectOptions(page, name)
	if len(options) == 0 {
		return label
	}
	opt, similarity, ok := MatchOption(options, label)
	if !ok {
		slog.WarnContext(ctx, "no matching option, sending the label", "select", name, "label", label, "similarity", similarity)
		return label
	}
	return opt.Value
}

// SubmitBookingForm loads the appointment page, fills in its form and posts it
// back with the page's own state fields.
func (c *Client) SubmitBookingForm(ctx context.Context, session *Session, booking Booking) (Submission, error) {
	ctx, span := tracer.Start(ctx, "SubmitBookingForm")
	defer span.End()

	hidden, page, err := c.loadForm(ctx, session, c.Paths.Appointment)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load appointment page")
		return Submission{}, err
	}

	fields := c.Fields.Templated
	form := NewForm(hidden).
		Set(fields.PatientName, booking.PatientName).
		Set(fields.PatientEmail, booking.PatientEmail).
		Set(fields.PatientPhone, booking.PatientPhone).
		Set(fields.Branch, selectValue(ctx, page, fields.Branch, booking.Branch)).
		Set(fields.ServiceType, selectValue(ctx, page, fields.ServiceType, booking.Service)).
		Set(fields.Date, FormatDate(booking.Date)).
		Set(fields.Time, booking.Time).
		Set(fields.Submit, fields.SubmitValue)

	res, err := c.PostForm(ctx, session, c.Paths.Appointment, form.Values())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to post appointment form")
		return Submission{}, fmt.Errorf("post appointment form: %w", err)
	}
	return submissionOf(res), c.accept(span, res, true)
}

// PostBookingDirect posts the appointment fields without loading the page
// first, the state fields are sent empty.
func (c *Client) PostBookingDirect(ctx context.Context, session *Session, booking Booking) (Submission, error) {
	ctx, span := tracer.Start(ctx, "PostBookingDirect")
	defer span.End()

	fields := c.Fields.Direct
	form := NewForm(defaultStateFields()).
		Set(fields.PatientName, booking.PatientName).
		Set(fields.PatientEmail, booking.PatientEmail).
		Set(fields.PatientPhone, booking.PatientPhone).
		Set(fields.Branch, booking.Branch).
		Set(fields.ServiceType, booking.Service).
		Set(fields.Date, FormatDate(booking.Date)).
		Set(fields.Time, booking.Time).
		Set(fields.Submit, fields.SubmitValue)

	res, err := c.PostForm(ctx, session, c.Paths.Appointment, form.Values())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to post appointment")
		return Submission{}, fmt.Errorf("post appointment: %w", err)
	}
	return submissionOf(res), c.accept(span, res, false)
}

// SubmitStatusForm changes the status of a remote appointment through the
// status update page.
func (c *Client) SubmitStatusForm(ctx context.Context, session *Session, remoteId, status, notes string) (Submission, error) {
	ctx, span := tracer.Start(ctx, "SubmitStatusForm")
	defer span.End()
	span.SetAttributes(attribute.String("remote_id", remoteId), attribute.String("status", status))

	target := c.Paths.StatusUpdate + "?AppointmentId=" + url.QueryEscape(remoteId)
	hidden, _, err := c.loadForm(ctx, session, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load status page")
		return Submission{}, err
	}

	fields := c.Fields.Status
	form := NewForm(hidden).
		Set(fields.AppointmentId, remoteId).
		Set(fields.Status, status).
		Set(fields.Notes, notes).
		Set(fields.Submit, fields.SubmitValue)

	res, err := c.PostForm(ctx, session, c.Paths.StatusUpdate, form.Values())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to post status form")
		return Submission{}, fmt.Errorf("post status form: %w", err)
	}
	return submissionOf(res), c.accept(span, res, true)
}

// PostStatusDirect changes the status through the appointment edit page,
// posted blind.
func (c *Client) PostStatusDirect(ctx context.Context, session *Session, remoteId, status string) (Submission, error) {
	ctx, span := tracer.Start(ctx, "PostStatusDirect")
	defer span.End()
	span.SetAttributes(attribute.String("remote_id", remoteId), attribute.String("status", status))

	fields := c.Fields.Edit
	form := NewForm(defaultStateFields()).
		Set(fields.AppointmentId, remoteId).
		Set(fields.Status, status).
		Set(fields.Submit, fields.SubmitValue)

	res, err := c.PostForm(ctx, session, c.Paths.EditAppointment, form.Values())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to post status")
		return Submission{}, fmt.Errorf("post status: %w", err)
	}
	return submissionOf(res), c.accept(span, res, true)
}

// SubmitEditForm changes the date, time or branch of a remote appointment.
func (c *Client) SubmitEditForm(ctx context.Context, session *Session, remoteId string, changes Changes) (Submission, error) {
	ctx, span := tracer.Start(ctx, "SubmitEditForm")
	defer span.End()
	span.SetAttributes(attribute.String("remote_id", remoteId))

	target := c.Paths.EditAppointment + "?AppointmentId=" + url.QueryEscape(remoteId)
	hidden, page, err := c.loadForm(ctx, session, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load edit page")
		return Submission{}, err
	}

	fields := c.Fields.Edit
	form := NewForm(hidden).Set(fields.AppointmentId, remoteId)
	if changes.Date != nil {
		form.Set(fields.Date, FormatDate(*changes.Date))
	}
	if changes.Time != "" {
		form.Set(fields.Time, changes.Time)
	}
	if changes.Branch != "" {
		form.Set(fields.Branch, selectValue(ctx, page, fields.Branch, changes.Branch))
	}
	form.Set(fields.Submit, fields.SubmitValue)

	res, err := c.PostForm(ctx, session, c.Paths.EditAppointment, form.Values())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to post edit form")
		return Submission{}, fmt.Errorf("post edit form: %w", err)
	}
	return submissionOf(res), c.accept(span, res, true)
}
