package vpsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"visionsync-backend/lib/scrapers/visionplus"
	"visionsync-backend/lib/timezone"
	"visionsync-backend/services/appointments/db"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Store is the part of the appointment store the orchestrator needs.
type Store interface {
	GetAppointment(ctx context.Context, id string) (db.Appointment, error)
	UpdateAppointment(ctx context.Context, id string, update db.AppointmentUpdate) (db.Appointment, error)
	ListAppointments(ctx context.Context, filter db.ListFilter) ([]db.Appointment, error)
}

// Escalator tells a human that an appointment has to be entered into
// VisionPlus by hand.
type Escalator interface {
	Escalate(ctx context.Context, appointment db.Appointment, reason string) error
}

// Orchestrator pushes local appointments to VisionPlus. It owns a single
// session and must not be used by concurrent callers, create one per logical
// sync attempt instead.
type Orchestrator struct {
	store     Store
	escalator Escalator

	client *visionplus.Client
	// set instead of client when the remote side is not configured
	configErr error
	session   *visionplus.Session

	strategies       []Strategy
	statusStrategies []StatusStrategy

	now func() time.Time
}

// NewOrchestrator never fails, a broken remote configuration is reported by
// every operation that needs the remote host. escalator may be nil.
func NewOrchestrator(store Store, remote visionplus.Options, escalator Escalator) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		escalator: escalator,
		session:   &visionplus.Session{},
		now:       timezone.Now,
	}
	o.client, o.configErr = visionplus.NewClient(remote)
	if o.configErr != nil {
		return o
	}

	o.strategies = []Strategy{
		formStrategy{client: o.client, session: o.session},
		directStrategy{client: o.client, session: o.session},
		apiStrategy{},
	}
	o.statusStrategies = []StatusStrategy{
		statusFormStrategy{client: o.client, session: o.session},
		statusEditStrategy{client: o.client, session: o.session},
	}
	return o
}

func (o *Orchestrator) configError() string {
	if errors.Is(o.configErr, visionplus.ErrNotConfigured) {
		return errNotConfigured
	}
	return o.configErr.Error()
}

// lookup loads an appointment, turning a failure into the result the caller
// should return.
func (o *Orchestrator) lookup(ctx context.Context, span trace.Span, id string, method Method) (db.Appointment, *SyncResult) {
	appointment, err := o.store.GetAppointment(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		span.SetStatus(codes.Error, errNotFound)
		result := failure(method, errNotFound)
		return db.Appointment{}, &result
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load appointment")
		result := failure(method, fmt.Sprintf("load appointment: %v", err))
		return db.Appointment{}, &result
	}
	return appointment, nil
}

// authenticate returns the reason authentication failed, nil on success.
func (o *Orchestrator) authenticate(ctx context.Context) error {
	if o.client.EnsureAuthenticated(ctx, o.session) {
		return nil
	}
	authFailures.Add(ctx, 1)
	if o.session.Err != nil {
		return o.session.Err
	}
	return errors.New("authentication failed")
}

// SyncAppointment creates the appointment in VisionPlus, trying each strategy
// in order until one succeeds, and records the outcome locally.
func (o *Orchestrator) SyncAppointment(ctx context.Context, id string) SyncResult {
	ctx, span := tracer.Start(ctx, "SyncAppointment")
	defer span.End()
	span.SetAttributes(attribute.String("appointment_id", id))

	appointment, res := o.lookup(ctx, span, id, MethodApi)
	if res != nil {
		return *res
	}
	if o.configErr != nil {
		span.SetStatus(codes.Error, "not configured")
		return failure(MethodForm, o.configError())
	}

	slog.InfoContext(ctx, "syncing appointment to visionplus", "appointment", id)

	var attempts []Attempt
	err := o.authenticate(ctx)
	if err != nil {
		attempts = append(attempts, Attempt{Method: methodAuthentication, Error: err.Error()})
	} else {
		for _, strategy := range o.strategies {
			result := strategy.Attempt(ctx, appointment)
			slog.InfoContext(
				ctx, "sync strategy finished",
				"appointment", id,
				"method", result.Method,
				"success", result.Success,
				"err", result.Error,
			)
			if result.Success {
				return o.markSynced(ctx, span, appointment, result)
			}
			attempts = append(attempts, Attempt{Method: strategy.Method(), Error: result.Error})
			if ctx.Err() != nil {
				break
			}
		}
	}

	if ctx.Err() != nil {
		return o.markFailed(ctx, span, appointment, attempts)
	}
	return o.markManualRequired(ctx, span, appointment, attempts)
}

func (o *Orchestrator) recordOutcome(ctx context.Context, status db.SyncStatus, method Method) {
	syncOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sync_status", string(status)),
		attribute.String("method", string(method)),
	))
}

func (o *Orchestrator) markSynced(ctx context.Context, span trace.Span, appointment db.Appointment, result SyncResult) SyncResult {
	synced := db.SyncSynced
	syncedAt := o.now()
	remoteId := result.VisionPlusId
	_, err := o.store.UpdateAppointment(ctx, appointment.Id, db.AppointmentUpdate{
		SyncStatus:   &synced,
		VisionPlusId: &remoteId,
		SyncedAt:     &syncedAt,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to record sync")
		slog.ErrorContext(
			ctx, "appointment reached visionplus but the sync could not be recorded",
			"appointment", appointment.Id,
			"visionplus_id", remoteId,
			"err", err,
		)
		result.Success = false
		result.Error = fmt.Sprintf("record sync: %v", err)
		return result
	}

	o.recordOutcome(ctx, db.SyncSynced, result.Method)
	span.SetAttributes(attribute.String("method", string(result.Method)), attribute.String("visionplus_id", remoteId))
	slog.InfoContext(ctx, "appointment synced", "appointment", appointment.Id, "method", result.Method, "visionplus_id", remoteId)
	return result
}

func (o *Orchestrator) markManualRequired(ctx context.Context, span trace.Span, appointment db.Appointment, attempts []Attempt) SyncResult {
	span.SetStatus(codes.Error, errAllFailed)
	result := SyncResult{
		Method:       MethodManual,
		Error:        errAllFailed,
		ResponseData: attempts,
	}

	manual := db.SyncManualRequired
	updated, err := o.store.UpdateAppointment(ctx, appointment.Id, db.AppointmentUpdate{SyncStatus: &manual})
	if err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "failed to mark appointment for manual entry", "appointment", appointment.Id, "err", err)
		result.Error = fmt.Sprintf("%s, record sync: %v", errAllFailed, err)
		return result
	}

	o.recordOutcome(ctx, db.SyncManualRequired, MethodManual)
	slog.WarnContext(ctx, "every sync strategy failed, manual entry required", "appointment", appointment.Id, "attempts", len(attempts))
	o.escalate(ctx, updated, "every automatic sync strategy failed")
	return result
}

// markFailed leaves the appointment in the queue when a sync was cut short,
// the write itself must survive the cancellation.
func (o *Orchestrator) markFailed(ctx context.Context, span trace.Span, appointment db.Appointment, attempts []Attempt) SyncResult {
	cause := ctx.Err()
	ctx = context.WithoutCancel(ctx)
	span.SetStatus(codes.Error, "sync interrupted")

	method := MethodForm
	if len(attempts) > 0 {
		method = attempts[len(attempts)-1].Method
	}
	result := SyncResult{
		Method:       method,
		Error:        fmt.Sprintf("sync interrupted: %v", cause),
		ResponseData: attempts,
	}

	failed := db.SyncFailed
	_, err := o.store.UpdateAppointment(ctx, appointment.Id, db.AppointmentUpdate{SyncStatus: &failed})
	if err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "failed to record interrupted sync", "appointment", appointment.Id, "err", err)
		return result
	}
	o.recordOutcome(ctx, db.SyncFailed, method)
	return result
}

func (o *Orchestrator) escalate(ctx context.Context, appointment db.Appointment, reason string) {
	if o.escalator == nil {
		return
	}
	err := o.escalator.Escalate(ctx, appointment, reason)
	if err != nil {
		slog.ErrorContext(ctx, "failed to escalate appointment", "appointment", appointment.Id, "err", err)
		return
	}
	escalations.Add(ctx, 1)
}

// requireSynced loads an appointment that must already exist remotely and
// makes sure the session is usable.
func (o *Orchestrator) requireSynced(ctx context.Context, span trace.Span, id string) (db.Appointment, *SyncResult) {
	appointment, res := o.lookup(ctx, span, id, MethodStatusUpdate)
	if res != nil {
		return db.Appointment{}, res
	}
	if appointment.VisionPlusId == "" {
		span.SetStatus(codes.Error, errNotSynced)
		result := failure(MethodStatusUpdate, errNotSynced)
		return db.Appointment{}, &result
	}
	if o.configErr != nil {
		span.SetStatus(codes.Error, "not configured")
		result := failure(MethodStatusUpdate, o.configError())
		return db.Appointment{}, &result
	}
	err := o.authenticate(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "authentication failed")
		result := failure(MethodStatusUpdate, fmt.Sprintf("authentication failed: %v", err))
		return db.Appointment{}, &result
	}
	return appointment, nil
}

// UpdateAppointmentStatusInVP changes the status of an already synced
// appointment. It returns the first successful attempt or the last failure.
func (o *Orchestrator) UpdateAppointmentStatusInVP(ctx context.Context, id string, status db.Status) SyncResult {
	ctx, span := tracer.Start(ctx, "UpdateAppointmentStatusInVP")
	defer span.End()
	span.SetAttributes(attribute.String("appointment_id", id), attribute.String("status", string(status)))

	appointment, res := o.requireSynced(ctx, span, id)
	if res != nil {
		return *res
	}

	label := visionplus.MapStatus(string(status))
	result := failure(MethodStatusUpdate, "no status update method available")
	for _, strategy := range o.statusStrategies {
		result = strategy.Attempt(ctx, appointment, label)
		if result.Success {
			slog.InfoContext(ctx, "visionplus status updated", "appointment", id, "status", label)
			return result
		}
		slog.WarnContext(ctx, "status update attempt failed", "appointment", id, "err", result.Error)
	}
	span.SetStatus(codes.Error, result.Error)
	return result
}

func (o *Orchestrator) CancelAppointmentInVP(ctx context.Context, id string) SyncResult {
	return o.UpdateAppointmentStatusInVP(ctx, id, db.StatusCancelled)
}

// AppointmentChanges are the details that can be changed on an appointment
// that already exists in VisionPlus.
type AppointmentChanges struct {
	AppointmentDate *time.Time `json:"appointmentDate"`
	AppointmentTime string     `json:"appointmentTime"`
	Branch          string     `json:"branch"`
}

func (o *Orchestrator) UpdateAppointmentInVP(ctx context.Context, id string, changes AppointmentChanges) SyncResult {
	ctx, span := tracer.Start(ctx, "UpdateAppointmentInVP")
	defer span.End()
	span.SetAttributes(attribute.String("appointment_id", id))

	appointment, res := o.requireSynced(ctx, span, id)
	if res != nil {
		return *res
	}

	remoteChanges := visionplus.Changes{
		Date: changes.AppointmentDate,
		Time: changes.AppointmentTime,
	}
	if changes.Branch != "" {
		remoteChanges.Branch = visionplus.MapBranch(changes.Branch)
	}

	submission, err := o.client.SubmitEditForm(ctx, o.session, appointment.VisionPlusId, remoteChanges)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "appointment update failed")
		return failure(MethodStatusUpdate, fmt.Sprintf("appointment update failed: %v", err))
	}
	return SyncResult{
		Success:      true,
		VisionPlusId: appointment.VisionPlusId,
		Method:       MethodStatusUpdate,
		ResponseData: map[string]any{
			"message":    "Appointment updated successfully",
			"submission": submission,
		},
	}
}

type AppointmentDetails struct {
	PatientName     string    `json:"patientName"`
	Branch          string    `json:"branch"`
	AppointmentDate time.Time `json:"appointmentDate"`
	AppointmentTime string    `json:"appointmentTime"`
	ServiceType     string    `json:"serviceType"`
}

func detailsOf(appointment db.Appointment) AppointmentDetails {
	return AppointmentDetails{
		PatientName:     appointment.PatientName,
		Branch:          appointment.Branch,
		AppointmentDate: appointment.AppointmentDate,
		AppointmentTime: appointment.AppointmentTime,
		ServiceType:     appointment.ServiceType,
	}
}

type ManualSyncData struct {
	Message            string             `json:"message"`
	AppointmentDetails AppointmentDetails `json:"appointmentDetails"`
}

// ManualSync hands an appointment over to a human without contacting
// VisionPlus.
func (o *Orchestrator) ManualSync(ctx context.Context, id string) SyncResult {
	ctx, span := tracer.Start(ctx, "ManualSync")
	defer span.End()
	span.SetAttributes(attribute.String("appointment_id", id))

	appointment, res := o.lookup(ctx, span, id, MethodManual)
	if res != nil {
		return *res
	}

	requested := db.SyncManualSyncRequested
	updated, err := o.store.UpdateAppointment(ctx, id, db.AppointmentUpdate{SyncStatus: &requested})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to request manual sync")
		return failure(MethodManual, fmt.Sprintf("request manual sync: %v", err))
	}

	o.recordOutcome(ctx, db.SyncManualSyncRequested, MethodManual)
	o.escalate(ctx, updated, "manual sync requested")
	return SyncResult{
		Success: true,
		Method:  MethodManual,
		ResponseData: ManualSyncData{
			Message:            "Manual sync requested - admin will process",
			AppointmentDetails: detailsOf(appointment),
		},
	}
}

type SyncInfo struct {
	CanSync        bool      `json:"canSync"`
	RequiresManual bool      `json:"requiresManual"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

// GetSyncInfo reads the sync state of an appointment, it returns
// db.ErrNotFound for unknown ids.
func (o *Orchestrator) GetSyncInfo(ctx context.Context, id string) (db.Appointment, SyncInfo, error) {
	appointment, err := o.store.GetAppointment(ctx, id)
	if err != nil {
		return db.Appointment{}, SyncInfo{}, err
	}
	return appointment, SyncInfo{
		CanSync:        appointment.SyncStatus != db.SyncSynced,
		RequiresManual: appointment.SyncStatus == db.SyncManualRequired,
		LastUpdated:    appointment.UpdatedAt,
	}, nil
}

func (o *Orchestrator) TestConnection(ctx context.Context) visionplus.ConnectionReport {
	if o.configErr != nil {
		return visionplus.ConnectionReport{Error: o.configError()}
	}
	return o.client.TestConnection(ctx, o.session)
}

// Discover probes the known VisionPlus pages, logged in when possible.
func (o *Orchestrator) Discover(ctx context.Context) (visionplus.DiscoveryReport, error) {
	if o.configErr != nil {
		return visionplus.DiscoveryReport{}, o.configErr
	}
	err := o.authenticate(ctx)
	if err != nil {
		slog.WarnContext(ctx, "discovering without a session", "err", err)
	}
	return o.client.Discover(ctx, o.session), nil
}
