package db

import "time"

// Status is the local lifecycle of an appointment, owned by the booking side.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
	StatusNoShow    Status = "NOSHOW"
)

// SyncStatus tracks whether an appointment has been pushed to VisionPlus.
type SyncStatus string

const (
	SyncPending             SyncStatus = "PENDING"
	SyncSynced              SyncStatus = "SYNCED"
	SyncFailed              SyncStatus = "FAILED"
	SyncManualRequired      SyncStatus = "MANUAL_REQUIRED"
	SyncManualSyncRequested SyncStatus = "MANUAL_SYNC_REQUESTED"
)

func SyncStatuses() []SyncStatus {
	return []SyncStatus{
		SyncPending,
		SyncSynced,
		SyncFailed,
		SyncManualRequired,
		SyncManualSyncRequested,
	}
}

type Appointment struct {
	Id              string     `json:"id"`
	PatientName     string     `json:"patientName"`
	PatientEmail    string     `json:"patientEmail"`
	PatientPhone    string     `json:"patientPhone"`
	DateOfBirth     *time.Time `json:"dateOfBirth"`
	Branch          string     `json:"branch"`
	AppointmentDate time.Time  `json:"appointmentDate"`
	AppointmentTime string     `json:"appointmentTime"`
	ServiceType     string     `json:"serviceType"`
	Notes           string     `json:"notes"`
	Status          Status     `json:"status"`
	SyncStatus      SyncStatus `json:"syncStatus"`
	// empty until the first successful sync
	VisionPlusId string     `json:"visionPlusId,omitempty"`
	SyncedAt     *time.Time `json:"syncedAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type NewAppointment struct {
	PatientName     string
	PatientEmail    string
	PatientPhone    string
	DateOfBirth     *time.Time
	Branch          string
	AppointmentDate time.Time
	AppointmentTime string
	ServiceType     string
	Notes           string
	// defaults to PENDING
	Status Status
}

// AppointmentUpdate is a partial update, nil fields are left untouched.
type AppointmentUpdate struct {
	Status          *Status
	SyncStatus      *SyncStatus
	VisionPlusId    *string
	SyncedAt        *time.Time
	Branch          *string
	AppointmentDate *time.Time
	AppointmentTime *string
}

type ListFilter struct {
	SyncStatusIn []SyncStatus
	// zero means no limit
	Limit int
}
