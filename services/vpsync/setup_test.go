package vpsync

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"
	"visionsync-backend/lib/scrapers/visionplus"
	"visionsync-backend/lib/scrapers/visionplus/vptest"
	"visionsync-backend/lib/testutil"
	"visionsync-backend/services/appointments/db"

	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *db.Queries {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/vpsync",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)
	return db.New(res.DB)
}

func remote(baseUrl string) visionplus.Options {
	return visionplus.Options{
		BaseUrl:           baseUrl,
		Username:          vptest.Username,
		Password:          vptest.Password,
		Timeout:           time.Second * 5,
		RequestsPerSecond: 1000,
	}
}

func unreachableUrl(t testing.TB) string {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return "http://" + addr
}

func createAppointment(t testing.TB, store *db.Queries, name string) db.Appointment {
	a, err := store.CreateAppointment(context.Background(), db.NewAppointment{
		PatientName:     name,
		PatientEmail:    "patient@example.com",
		PatientPhone:    "+263 77 000 0000",
		Branch:          "Kensington",
		AppointmentDate: time.Date(2024, 3, 5, 7, 0, 0, 0, time.UTC),
		AppointmentTime: "09:00",
		ServiceType:     "Eye Test",
	})
	require.NoError(t, err)
	return a
}

func reload(t testing.TB, store *db.Queries, id string) db.Appointment {
	a, err := store.GetAppointment(context.Background(), id)
	require.NoError(t, err)
	return a
}

type escalation struct {
	AppointmentId string
	SyncStatus    db.SyncStatus
	Reason        string
}

type fakeEscalator struct {
	mutex sync.Mutex
	calls []escalation
}

func (e *fakeEscalator) Escalate(_ context.Context, appointment db.Appointment, reason string) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.calls = append(e.calls, escalation{
		AppointmentId: appointment.Id,
		SyncStatus:    appointment.SyncStatus,
		Reason:        reason,
	})
	return nil
}

func (e *fakeEscalator) Calls() []escalation {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return append([]escalation(nil), e.calls...)
}
