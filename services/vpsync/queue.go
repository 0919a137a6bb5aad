package vpsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"visionsync-backend/services/appointments/db"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultBatchSize = 10

type BatchDetail struct {
	AppointmentId string `json:"appointmentId"`
	PatientName   string `json:"patientName"`
	SyncResult
}

type BatchSummary struct {
	Processed int           `json:"processed"`
	Synced    int           `json:"synced"`
	Failed    int           `json:"failed"`
	Details   []BatchDetail `json:"details"`
}

// Runner works through the appointments that still have to reach VisionPlus.
type Runner struct {
	store           Store
	newOrchestrator func() *Orchestrator
	// pause between two appointments, the remote host is a single shared
	// server
	delay time.Duration
}

func NewRunner(store Store, newOrchestrator func() *Orchestrator, delay time.Duration) Runner {
	return Runner{
		store:           store,
		newOrchestrator: newOrchestrator,
		delay:           delay,
	}
}

// Run syncs up to batchSize PENDING or FAILED appointments, oldest first, one
// after another. maxRetries is accepted for callers but no attempt cap is
// enforced, appointments leave the queue only by syncing or by escalating to
// manual entry. A cancelled ctx stops the run early with the partial summary.
func (r Runner) Run(ctx context.Context, batchSize, maxRetries int) (BatchSummary, error) {
	ctx, span := tracer.Start(ctx, "Runner.Run")
	defer span.End()

	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	span.SetAttributes(attribute.Int("batch_size", batchSize), attribute.Int("max_retries", maxRetries))

	pending, err := r.store.ListAppointments(ctx, db.ListFilter{
		SyncStatusIn: []db.SyncStatus{db.SyncPending, db.SyncFailed},
		Limit:        batchSize,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list pending appointments")
		return BatchSummary{}, fmt.Errorf("list pending appointments: %w", err)
	}

	summary := BatchSummary{Details: []BatchDetail{}}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "no appointments need syncing")
		return summary, nil
	}
	slog.InfoContext(ctx, "starting queue run", "pending", len(pending), "batch_size", batchSize, "max_retries", maxRetries)

	// sequential use, so one session serves the whole run
	orchestrator := r.newOrchestrator()
	for i, appointment := range pending {
		if i > 0 && r.delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(r.delay):
			}
		}
		if ctx.Err() != nil {
			span.SetStatus(codes.Error, "queue run interrupted")
			return summary, ctx.Err()
		}

		result := orchestrator.SyncAppointment(ctx, appointment.Id)
		summary.Processed++
		if result.Success {
			summary.Synced++
		} else {
			summary.Failed++
		}
		summary.Details = append(summary.Details, BatchDetail{
			AppointmentId: appointment.Id,
			PatientName:   appointment.PatientName,
			SyncResult:    result,
		})
	}

	span.SetAttributes(
		attribute.Int("processed", summary.Processed),
		attribute.Int("synced", summary.Synced),
		attribute.Int("failed", summary.Failed),
	)
	slog.InfoContext(
		ctx, "queue run finished",
		"processed", summary.Processed,
		"synced", summary.Synced,
		"failed", summary.Failed,
	)
	return summary, nil
}

// QueueStore adds booking and the aggregate reads the dashboard needs.
type QueueStore interface {
	Store
	CreateAppointment(ctx context.Context, params db.NewAppointment) (db.Appointment, error)
	CountBySyncStatus(ctx context.Context) (map[db.SyncStatus]int, error)
	CountAppointments(ctx context.Context) (int, error)
	ListRecentActivity(ctx context.Context, since time.Time, limit int) ([]db.Appointment, error)
}

type RecentActivity struct {
	Id           string        `json:"id"`
	PatientName  string        `json:"patientName"`
	SyncStatus   db.SyncStatus `json:"syncStatus"`
	VisionPlusId string        `json:"visionPlusId,omitempty"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

type QueueCounts struct {
	NeedsSync      int `json:"needsSync"`
	FailedSyncs    int `json:"failedSyncs"`
	ManualRequired int `json:"manualRequired"`
}

type QueueStatus struct {
	SyncStatus        map[db.SyncStatus]int `json:"syncStatus"`
	TotalAppointments int                   `json:"totalAppointments"`
	RecentActivity    []RecentActivity      `json:"recentActivity"`
	Queue             QueueCounts           `json:"queueStatus"`
	Timestamp         time.Time             `json:"timestamp"`
}

const (
	recentActivityWindow = 24 * time.Hour
	recentActivityLimit  = 10
)

// GetQueueStatus aggregates the sync state of every appointment.
func GetQueueStatus(ctx context.Context, store QueueStore, now time.Time) (QueueStatus, error) {
	ctx, span := tracer.Start(ctx, "GetQueueStatus")
	defer span.End()

	counts, err := store.CountBySyncStatus(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to count sync statuses")
		return QueueStatus{}, err
	}
	total, err := store.CountAppointments(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to count appointments")
		return QueueStatus{}, err
	}
	recent, err := store.ListRecentActivity(ctx, now.Add(-recentActivityWindow), recentActivityLimit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list recent activity")
		return QueueStatus{}, err
	}

	activity := make([]RecentActivity, len(recent))
	for i, a := range recent {
		activity[i] = RecentActivity{
			Id:           a.Id,
			PatientName:  a.PatientName,
			SyncStatus:   a.SyncStatus,
			VisionPlusId: a.VisionPlusId,
			UpdatedAt:    a.UpdatedAt,
		}
	}

	return QueueStatus{
		SyncStatus:        counts,
		TotalAppointments: total,
		RecentActivity:    activity,
		Queue: QueueCounts{
			NeedsSync:      counts[db.SyncPending],
			FailedSyncs:    counts[db.SyncFailed],
			ManualRequired: counts[db.SyncManualRequired],
		},
		Timestamp: now,
	}, nil
}
