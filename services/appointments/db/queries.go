package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("appointment not found")

const table = "appointments"

var columns = []any{
	"id",
	"patient_name",
	"patient_email",
	"patient_phone",
	"date_of_birth",
	"branch",
	"appointment_date",
	"appointment_time",
	"service_type",
	"notes",
	"status",
	"sync_status",
	"vision_plus_id",
	"synced_at",
	"created_at",
	"updated_at",
}

var dialect = goqu.Dialect("sqlite3")

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Queries struct {
	db DBTX
	// Now stamps created_at, updated_at and synced_at.
	Now func() time.Time
}

func New(db DBTX) *Queries {
	return &Queries{db: db, Now: time.Now}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, Now: q.Now}
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func nullableMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row scanner) (Appointment, error) {
	var a Appointment
	var dateOfBirth, syncedAt sql.NullInt64
	var visionPlusId sql.NullString
	var appointmentDate, createdAt, updatedAt int64
	err := row.Scan(
		&a.Id,
		&a.PatientName,
		&a.PatientEmail,
		&a.PatientPhone,
		&dateOfBirth,
		&a.Branch,
		&appointmentDate,
		&a.AppointmentTime,
		&a.ServiceType,
		&a.Notes,
		&a.Status,
		&a.SyncStatus,
		&visionPlusId,
		&syncedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return Appointment{}, err
	}

	a.AppointmentDate = time.UnixMilli(appointmentDate)
	a.CreatedAt = time.UnixMilli(createdAt)
	a.UpdatedAt = time.UnixMilli(updatedAt)
	a.VisionPlusId = visionPlusId.String
	if dateOfBirth.Valid {
		t := time.UnixMilli(dateOfBirth.Int64)
		a.DateOfBirth = &t
	}
	if syncedAt.Valid {
		t := time.UnixMilli(syncedAt.Int64)
		a.SyncedAt = &t
	}
	return a, nil
}

func (q *Queries) CreateAppointment(ctx context.Context, params NewAppointment) (Appointment, error) {
	status := params.Status
	if status == "" {
		status = StatusPending
	}
	now := millis(q.Now())

	id := uuid.NewString()
	query, args, err := dialect.Insert(table).
		Prepared(true).
		Rows(goqu.Record{
			"id":               id,
			"patient_name":     params.PatientName,
			"patient_email":    params.PatientEmail,
			"patient_phone":    params.PatientPhone,
			"date_of_birth":    nullableMillis(params.DateOfBirth),
			"branch":           params.Branch,
			"appointment_date": millis(params.AppointmentDate),
			"appointment_time": params.AppointmentTime,
			"service_type":     params.ServiceType,
			"notes":            params.Notes,
			"status":           string(status),
			"sync_status":      string(SyncPending),
			"created_at":       now,
			"updated_at":       now,
		}).
		ToSQL()
	if err != nil {
		return Appointment{}, fmt.Errorf("build insert: %w", err)
	}
	_, err = q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return Appointment{}, fmt.Errorf("insert appointment: %w", err)
	}
	return q.GetAppointment(ctx, id)
}

func (q *Queries) GetAppointment(ctx context.Context, id string) (Appointment, error) {
	query, args, err := dialect.From(table).
		Prepared(true).
		Select(columns...).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return Appointment{}, fmt.Errorf("build select: %w", err)
	}
	a, err := scanAppointment(q.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Appointment{}, ErrNotFound
	}
	if err != nil {
		return Appointment{}, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

// UpdateAppointment writes the non-nil fields of update in a single statement
// and returns the stored result.
func (q *Queries) UpdateAppointment(ctx context.Context, id string, update AppointmentUpdate) (Appointment, error) {
	record := goqu.Record{"updated_at": millis(q.Now())}
	if update.Status != nil {
		record["status"] = string(*update.Status)
	}
	if update.SyncStatus != nil {
		record["sync_status"] = string(*update.SyncStatus)
	}
	if update.VisionPlusId != nil {
		record["vision_plus_id"] = *update.VisionPlusId
	}
	if update.SyncedAt != nil {
		record["synced_at"] = millis(*update.SyncedAt)
	}
	if update.Branch != nil {
		record["branch"] = *update.Branch
	}
	if update.AppointmentDate != nil {
		record["appointment_date"] = millis(*update.AppointmentDate)
	}
	if update.AppointmentTime != nil {
		record["appointment_time"] = *update.AppointmentTime
	}

	query, args, err := dialect.Update(table).
		Prepared(true).
		Set(record).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return Appointment{}, fmt.Errorf("build update: %w", err)
	}
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return Appointment{}, fmt.Errorf("update appointment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return Appointment{}, ErrNotFound
	}
	return q.GetAppointment(ctx, id)
}

func syncStatusIn(statuses []SyncStatus) exp.Expression {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return goqu.C("sync_status").In(values)
}

// ListAppointments returns the oldest appointments first.
func (q *Queries) ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	ds := dialect.From(table).
		Prepared(true).
		Select(columns...).
		Order(goqu.C("created_at").Asc(), goqu.L("rowid").Asc())
	if len(filter.SyncStatusIn) > 0 {
		ds = ds.Where(syncStatusIn(filter.SyncStatusIn))
	}
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return q.queryAppointments(ctx, query, args)
}

// ListRecentActivity returns synced or failed appointments touched at or
// after since, the most recently updated first.
func (q *Queries) ListRecentActivity(ctx context.Context, since time.Time, limit int) ([]Appointment, error) {
	ds := dialect.From(table).
		Prepared(true).
		Select(columns...).
		Where(
			syncStatusIn([]SyncStatus{SyncSynced, SyncFailed}),
			goqu.C("updated_at").Gte(millis(since)),
		).
		Order(goqu.C("updated_at").Desc(), goqu.L("rowid").Desc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return q.queryAppointments(ctx, query, args)
}

func (q *Queries) queryAppointments(ctx context.Context, query string, args []any) ([]Appointment, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountBySyncStatus returns a count for every sync status, including the
// empty buckets.
func (q *Queries) CountBySyncStatus(ctx context.Context) (map[SyncStatus]int, error) {
	query, args, err := dialect.From(table).
		Prepared(true).
		Select(goqu.C("sync_status"), goqu.COUNT("*")).
		GroupBy("sync_status").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build count: %w", err)
	}
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count by sync status: %w", err)
	}
	defer rows.Close()

	counts := make(map[SyncStatus]int)
	for _, s := range SyncStatuses() {
		counts[s] = 0
	}
	for rows.Next() {
		var status SyncStatus
		var count int
		err = rows.Scan(&status, &count)
		if err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (q *Queries) CountAppointments(ctx context.Context) (int, error) {
	query, args, err := dialect.From(table).
		Prepared(true).
		Select(goqu.COUNT("*")).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var count int
	err = q.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count appointments: %w", err)
	}
	return count, nil
}
