package vpsync

import (
	"context"
	"testing"
	"time"
	"visionsync-backend/lib/scrapers/visionplus/vptest"
	"visionsync-backend/services/appointments/db"

	"github.com/stretchr/testify/require"
)

func TestSchedule(t *testing.T) {
	server := vptest.NewServer()
	defer server.Close()
	store := setupStore(t)
	appointment := createAppointment(t, store, "Scheduled")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	service := NewService(store, Options{Remote: remote(server.URL)})
	require.NoError(t, service.Schedule(ctx, "@every 1s", DefaultBatchSize, 5))

	require.Eventually(t, func() bool {
		a, err := store.GetAppointment(context.Background(), appointment.Id)
		return err == nil && a.SyncStatus == db.SyncSynced
	}, time.Second*5, time.Millisecond*50)
}

func TestScheduleInvalidSpec(t *testing.T) {
	service := NewService(setupStore(t), Options{})
	err := service.Schedule(context.Background(), "every now and then", DefaultBatchSize, 5)
	require.ErrorContains(t, err, "invalid queue schedule")
}
