package vpsync

import "visionsync-backend/services/appointments/db"

var propagatedStatuses = map[db.Status]bool{
	db.StatusConfirmed: true,
	db.StatusCancelled: true,
	db.StatusCompleted: true,
	db.StatusNoShow:    true,
}

// ShouldPropagateStatus reports whether a local status change has to be
// mirrored into VisionPlus. A cancelled appointment is never re-confirmed
// remotely.
func ShouldPropagateStatus(old, new db.Status) bool {
	if old == new || !propagatedStatuses[new] {
		return false
	}
	if old == db.StatusCancelled && new == db.StatusConfirmed {
		return false
	}
	return true
}
