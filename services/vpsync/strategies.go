package vpsync

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"visionsync-backend/lib/scrapers/visionplus"
	"visionsync-backend/lib/timezone"
	"visionsync-backend/services/appointments/db"

	"github.com/mazen160/go-random"
)

// Strategy is one way of creating an appointment in VisionPlus. Strategies
// report failure through the result, they never panic or retry.
type Strategy interface {
	Method() Method
	Attempt(ctx context.Context, appointment db.Appointment) SyncResult
}

// StatusStrategy is one way of changing the status of an appointment that
// already exists in VisionPlus.
type StatusStrategy interface {
	Attempt(ctx context.Context, appointment db.Appointment, status string) SyncResult
}

func bookingOf(appointment db.Appointment) visionplus.Booking {
	return visionplus.Booking{
		PatientName:  appointment.PatientName,
		PatientEmail: appointment.PatientEmail,
		PatientPhone: appointment.PatientPhone,
		Branch:       visionplus.MapBranch(appointment.Branch),
		Service:      visionplus.MapService(appointment.ServiceType),
		Date:         appointment.AppointmentDate,
		Time:         appointment.AppointmentTime,
	}
}

// fallbackRemoteId is used when VisionPlus accepted a booking without telling
// us its id.
func fallbackRemoteId(prefix string) string {
	suffix, err := random.String(9)
	if err != nil {
		suffix = strconv.FormatInt(timezone.Now().UnixNano()%1_000_000_000, 36)
	}
	return fmt.Sprintf("%s-%d-%s", prefix, timezone.Now().UnixMilli(), strings.ToLower(suffix))
}

type formStrategy struct {
	client  *visionplus.Client
	session *visionplus.Session
}

func (formStrategy) Method() Method {
	return MethodForm
}

func (s formStrategy) Attempt(ctx context.Context, appointment db.Appointment) SyncResult {
	submission, err := s.client.SubmitBookingForm(ctx, s.session, bookingOf(appointment))
	if err != nil {
		return SyncResult{Method: MethodForm, Error: err.Error(), ResponseData: submission}
	}
	remoteId := submission.RemoteId
	if remoteId == "" {
		remoteId = fallbackRemoteId("FORM")
		slog.WarnContext(ctx, "booking accepted without a remote id", "appointment", appointment.Id, "fallback", remoteId)
	}
	return SyncResult{
		Success:      true,
		VisionPlusId: remoteId,
		Method:       MethodForm,
		ResponseData: submission,
	}
}

type directStrategy struct {
	client  *visionplus.Client
	session *visionplus.Session
}

func (directStrategy) Method() Method {
	return MethodDirect
}

func (s directStrategy) Attempt(ctx context.Context, appointment db.Appointment) SyncResult {
	submission, err := s.client.PostBookingDirect(ctx, s.session, bookingOf(appointment))
	if err != nil {
		return SyncResult{Method: MethodDirect, Error: err.Error(), ResponseData: submission}
	}
	remoteId := submission.RemoteId
	if remoteId == "" {
		remoteId = fallbackRemoteId("DIRECT")
	}
	return SyncResult{
		Success:      true,
		VisionPlusId: remoteId,
		Method:       MethodDirect,
		ResponseData: submission,
	}
}

// apiStrategy is where a JSON endpoint goes once one is found on the remote
// host, until then it always fails.
type apiStrategy struct{}

func (apiStrategy) Method() Method {
	return MethodApi
}

func (apiStrategy) Attempt(context.Context, db.Appointment) SyncResult {
	return failure(MethodApi, "API endpoints not discovered yet")
}

type statusFormStrategy struct {
	client  *visionplus.Client
	session *visionplus.Session
}

func (s statusFormStrategy) Attempt(ctx context.Context, appointment db.Appointment, status string) SyncResult {
	notes := "Status updated from website to: " + status
	submission, err := s.client.SubmitStatusForm(ctx, s.session, appointment.VisionPlusId, status, notes)
	if err != nil {
		return failure(MethodStatusUpdate, fmt.Sprintf("status form: %v", err))
	}
	return SyncResult{
		Success:      true,
		VisionPlusId: appointment.VisionPlusId,
		Method:       MethodStatusUpdate,
		ResponseData: statusChange{
			Status:         status,
			PreviousStatus: appointment.Status,
			Submission:     submission,
		},
	}
}

type statusEditStrategy struct {
	client  *visionplus.Client
	session *visionplus.Session
}

func (s statusEditStrategy) Attempt(ctx context.Context, appointment db.Appointment, status string) SyncResult {
	submission, err := s.client.PostStatusDirect(ctx, s.session, appointment.VisionPlusId, status)
	if err != nil {
		return failure(MethodStatusUpdate, fmt.Sprintf("direct status update: %v", err))
	}
	return SyncResult{
		Success:      true,
		VisionPlusId: appointment.VisionPlusId,
		Method:       MethodStatusUpdate,
		ResponseData: statusChange{
			Status:         status,
			PreviousStatus: appointment.Status,
			Submission:     submission,
		},
	}
}

type statusChange struct {
	Status         string                `json:"status"`
	PreviousStatus db.Status             `json:"previousStatus"`
	Submission     visionplus.Submission `json:"submission"`
}
