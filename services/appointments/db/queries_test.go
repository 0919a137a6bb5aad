package db

import (
	"context"
	"testing"
	"time"
	"visionsync-backend/lib/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func setup(t *testing.T) (*Queries, *clock) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/appointments/db",
		DbSchema: Schema,
	})
	t.Cleanup(cleanup)

	c := &clock{now: time.UnixMilli(1_700_000_000_000)}
	qry := New(res.DB)
	qry.Now = c.Now
	return qry, c
}

func newAppointment(name string) NewAppointment {
	return NewAppointment{
		PatientName:     name,
		PatientEmail:    "patient@example.com",
		PatientPhone:    "+263 77 000 0000",
		Branch:          "Kensington",
		AppointmentDate: time.UnixMilli(1_700_600_000_000),
		AppointmentTime: "10:30",
		ServiceType:     "Eye Test",
	}
}

func TestCreateAndGet(t *testing.T) {
	qry, c := setup(t)
	ctx := context.Background()

	dob := time.UnixMilli(600_000_000_000)
	params := newAppointment("Tariro Moyo")
	params.DateOfBirth = &dob
	params.Notes = "first visit"

	created, err := qry.CreateAppointment(ctx, params)
	require.NoError(t, err)
	require.NotEmpty(t, created.Id)

	expected := Appointment{
		Id:              created.Id,
		PatientName:     "Tariro Moyo",
		PatientEmail:    "patient@example.com",
		PatientPhone:    "+263 77 000 0000",
		DateOfBirth:     &dob,
		Branch:          "Kensington",
		AppointmentDate: time.UnixMilli(1_700_600_000_000),
		AppointmentTime: "10:30",
		ServiceType:     "Eye Test",
		Notes:           "first visit",
		Status:          StatusPending,
		SyncStatus:      SyncPending,
		CreatedAt:       c.now,
		UpdatedAt:       c.now,
	}
	if diff := cmp.Diff(expected, created); diff != "" {
		t.Fatal(diff)
	}

	got, err := qry.GetAppointment(ctx, created.Id)
	require.NoError(t, err)
	if diff := cmp.Diff(created, got); diff != "" {
		t.Fatal(diff)
	}

	_, err = qry.GetAppointment(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateAppointment(t *testing.T) {
	qry, c := setup(t)
	ctx := context.Background()

	created, err := qry.CreateAppointment(ctx, newAppointment("Farai"))
	require.NoError(t, err)

	c.Advance(time.Minute)
	synced := SyncSynced
	remoteId := "4711"
	syncedAt := c.now
	updated, err := qry.UpdateAppointment(ctx, created.Id, AppointmentUpdate{
		SyncStatus:   &synced,
		VisionPlusId: &remoteId,
		SyncedAt:     &syncedAt,
	})
	require.NoError(t, err)
	require.Equal(t, SyncSynced, updated.SyncStatus)
	require.Equal(t, "4711", updated.VisionPlusId)
	require.NotNil(t, updated.SyncedAt)
	require.True(t, syncedAt.Equal(*updated.SyncedAt))
	require.True(t, c.now.Equal(updated.UpdatedAt))
	require.True(t, created.CreatedAt.Equal(updated.CreatedAt))

	// untouched fields survive a partial update
	require.Equal(t, created.PatientName, updated.PatientName)
	require.Equal(t, StatusPending, updated.Status)

	branch := "Honeydew Lifestyle Centre"
	appointmentTime := "14:00"
	updated, err = qry.UpdateAppointment(ctx, created.Id, AppointmentUpdate{
		Branch:          &branch,
		AppointmentTime: &appointmentTime,
	})
	require.NoError(t, err)
	require.Equal(t, branch, updated.Branch)
	require.Equal(t, appointmentTime, updated.AppointmentTime)
	require.Equal(t, "4711", updated.VisionPlusId)

	_, err = qry.UpdateAppointment(ctx, "missing", AppointmentUpdate{SyncStatus: &synced})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListAppointments(t *testing.T) {
	qry, c := setup(t)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"a", "b", "c", "d"} {
		created, err := qry.CreateAppointment(ctx, newAppointment(name))
		require.NoError(t, err)
		ids = append(ids, created.Id)
	}
	// same created_at as "d", insertion order breaks the tie
	created, err := qry.CreateAppointment(ctx, newAppointment("e"))
	require.NoError(t, err)
	ids = append(ids, created.Id)

	c.Advance(time.Second)
	failed := SyncFailed
	manual := SyncManualRequired
	_, err = qry.UpdateAppointment(ctx, ids[1], AppointmentUpdate{SyncStatus: &failed})
	require.NoError(t, err)
	_, err = qry.UpdateAppointment(ctx, ids[2], AppointmentUpdate{SyncStatus: &manual})
	require.NoError(t, err)

	list, err := qry.ListAppointments(ctx, ListFilter{
		SyncStatusIn: []SyncStatus{SyncPending, SyncFailed},
	})
	require.NoError(t, err)
	names := make([]string, len(list))
	for i, a := range list {
		names[i] = a.PatientName
	}
	require.Equal(t, []string{"a", "b", "d", "e"}, names)

	list, err = qry.ListAppointments(ctx, ListFilter{
		SyncStatusIn: []SyncStatus{SyncPending, SyncFailed},
		Limit:        2,
	})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, ids[0], list[0].Id)
	require.Equal(t, ids[1], list[1].Id)

	all, err := qry.ListAppointments(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 5)

	total, err := qry.CountAppointments(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, total)

	counts, err := qry.CountBySyncStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, map[SyncStatus]int{
		SyncPending:             3,
		SyncSynced:              0,
		SyncFailed:              1,
		SyncManualRequired:      1,
		SyncManualSyncRequested: 0,
	}, counts)
}

func TestListRecentActivity(t *testing.T) {
	qry, c := setup(t)
	ctx := context.Background()

	synced := SyncSynced
	failed := SyncFailed
	manual := SyncManualRequired

	old, err := qry.CreateAppointment(ctx, newAppointment("old"))
	require.NoError(t, err)
	_, err = qry.UpdateAppointment(ctx, old.Id, AppointmentUpdate{SyncStatus: &synced})
	require.NoError(t, err)

	c.Advance(48 * time.Hour)
	since := c.now.Add(-24 * time.Hour)

	var expected []string
	for _, update := range []struct {
		name   string
		status *SyncStatus
	}{
		{"first", &synced},
		{"escalated", &manual},
		{"second", &failed},
	} {
		c.Advance(time.Minute)
		a, err := qry.CreateAppointment(ctx, newAppointment(update.name))
		require.NoError(t, err)
		_, err = qry.UpdateAppointment(ctx, a.Id, AppointmentUpdate{SyncStatus: update.status})
		require.NoError(t, err)
		if *update.status != SyncManualRequired {
			expected = append([]string{a.Id}, expected...)
		}
	}

	recent, err := qry.ListRecentActivity(ctx, since, 10)
	require.NoError(t, err)
	ids := make([]string, len(recent))
	for i, a := range recent {
		ids[i] = a.Id
	}
	require.Equal(t, expected, ids)

	recent, err = qry.ListRecentActivity(ctx, since, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, expected[0], recent[0].Id)
}
