package vpsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"visionsync-backend/lib/scrapers/visionplus"
	"visionsync-backend/lib/timezone"
	"visionsync-backend/services/appointments/db"
)

type Options struct {
	Remote visionplus.Options
	// may be nil
	Escalator  Escalator
	QueueDelay time.Duration
}

// Service hands out a fresh orchestrator (and so a fresh VisionPlus session)
// for every logical operation.
type Service struct {
	store   QueueStore
	options Options
}

func NewService(store QueueStore, options Options) Service {
	return Service{store: store, options: options}
}

func (s Service) NewOrchestrator() *Orchestrator {
	return NewOrchestrator(s.store, s.options.Remote, s.options.Escalator)
}

func (s Service) Runner() Runner {
	return NewRunner(s.store, s.NewOrchestrator, s.options.QueueDelay)
}

func (s Service) QueueStatus(ctx context.Context) (QueueStatus, error) {
	return GetQueueStatus(ctx, s.store, timezone.Now())
}

// Trigger syncs an appointment in the background, for callers that must not
// wait on VisionPlus (such as the booking flow). The result is logged and
// also delivered on the returned channel, which nobody has to read.
func (s Service) Trigger(ctx context.Context, id string) <-chan SyncResult {
	done := make(chan SyncResult, 1)
	ctx = context.WithoutCancel(ctx)
	go func() {
		result := s.NewOrchestrator().SyncAppointment(ctx, id)
		if result.Success {
			slog.InfoContext(ctx, "background sync finished", "appointment", id, "method", result.Method)
		} else {
			slog.WarnContext(ctx, "background sync failed", "appointment", id, "err", result.Error)
		}
		done <- result
	}()
	return done
}

// Book records a new appointment and starts syncing it without waiting for
// VisionPlus. The returned channel delivers the sync result.
func (s Service) Book(ctx context.Context, params db.NewAppointment) (db.Appointment, <-chan SyncResult, error) {
	appointment, err := s.store.CreateAppointment(ctx, params)
	if err != nil {
		return db.Appointment{}, nil, fmt.Errorf("create appointment: %w", err)
	}
	slog.InfoContext(ctx, "appointment booked", "appointment", appointment.Id, "branch", appointment.Branch)
	return appointment, s.Trigger(ctx, appointment.Id), nil
}

type StatusChange struct {
	Success    bool        `json:"success"`
	Status     db.Status   `json:"status"`
	Propagated bool        `json:"propagated"`
	SyncResult *SyncResult `json:"syncResult,omitempty"`
}

// ChangeStatus records a new local status and mirrors it into VisionPlus when
// the appointment exists there and the change is one VisionPlus cares about.
// Unknown ids return db.ErrNotFound.
func (s Service) ChangeStatus(ctx context.Context, id string, status db.Status) (StatusChange, error) {
	appointment, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return StatusChange{}, err
	}
	_, err = s.store.UpdateAppointment(ctx, id, db.AppointmentUpdate{Status: &status})
	if err != nil {
		return StatusChange{}, err
	}

	change := StatusChange{Success: true, Status: status}
	if appointment.VisionPlusId == "" || !ShouldPropagateStatus(appointment.Status, status) {
		return change, nil
	}
	result := s.NewOrchestrator().UpdateAppointmentStatusInVP(ctx, id, status)
	change.Propagated = true
	change.SyncResult = &result
	return change, nil
}
