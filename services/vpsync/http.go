package vpsync

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
	"visionsync-backend/lib/timezone"
	"visionsync-backend/services/appointments/db"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler exposes the sync operations to the admin dashboard.
type Handler struct {
	service Service
}

func NewHandler(service Service) Handler {
	return Handler{service: service}
}

func (h Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/appointments", h.book)
	r.Route("/sync", func(r chi.Router) {
		r.Post("/background", h.runQueue)
		r.Get("/background", h.queueStatus)
		r.Post("/{id}", h.sync)
		r.Get("/{id}", h.syncInfo)
		r.Post("/{id}/manual", h.manualSync)
		r.Post("/{id}/status", h.updateStatus)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		slog.Warn("failed to write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}

type syncResponse struct {
	Success            bool               `json:"success"`
	AppointmentId      string             `json:"appointmentId"`
	SyncResult         SyncResult         `json:"syncResult"`
	AppointmentDetails AppointmentDetails `json:"appointmentDetails"`
	Timestamp          time.Time          `json:"timestamp"`
}

func (h Handler) sync(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	appointment, err := h.service.store.GetAppointment(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Appointment not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := h.service.NewOrchestrator().SyncAppointment(r.Context(), id)
	writeJSON(w, http.StatusOK, syncResponse{
		Success:            result.Success,
		AppointmentId:      id,
		SyncResult:         result,
		AppointmentDetails: detailsOf(appointment),
		Timestamp:          timezone.Now(),
	})
}

func (h Handler) syncInfo(w http.ResponseWriter, r *http.Request) {
	appointment, info, err := h.service.NewOrchestrator().GetSyncInfo(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Appointment not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get sync status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"appointment": appointment,
		"syncInfo":    info,
	})
}

func (h Handler) manualSync(w http.ResponseWriter, r *http.Request) {
	result := h.service.NewOrchestrator().ManualSync(r.Context(), chi.URLParam(r, "id"))
	status := http.StatusOK
	if result.Error == errNotFound {
		status = http.StatusNotFound
	}
	writeJSON(w, status, result)
}

type statusRequest struct {
	Status db.Status `json:"status"`
}

func (h Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil || req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	change, err := h.service.ChangeStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Appointment not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, change)
}

type bookingRequest struct {
	PatientName     string     `json:"patientName"`
	PatientEmail    string     `json:"patientEmail"`
	PatientPhone    string     `json:"patientPhone"`
	DateOfBirth     *time.Time `json:"dateOfBirth"`
	Branch          string     `json:"branch"`
	AppointmentDate time.Time  `json:"appointmentDate"`
	AppointmentTime string     `json:"appointmentTime"`
	ServiceType     string     `json:"serviceType"`
	Notes           string     `json:"notes"`
}

// book records an appointment from the website and answers right away, the
// VisionPlus sync happens in the background.
func (h Handler) book(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PatientName == "" || req.Branch == "" || req.AppointmentDate.IsZero() || req.AppointmentTime == "" || req.ServiceType == "" {
		writeError(w, http.StatusBadRequest, "patientName, branch, appointmentDate, appointmentTime and serviceType are required")
		return
	}

	appointment, _, err := h.service.Book(r.Context(), db.NewAppointment{
		PatientName:     req.PatientName,
		PatientEmail:    req.PatientEmail,
		PatientPhone:    req.PatientPhone,
		DateOfBirth:     req.DateOfBirth,
		Branch:          req.Branch,
		AppointmentDate: req.AppointmentDate,
		AppointmentTime: req.AppointmentTime,
		ServiceType:     req.ServiceType,
		Notes:           req.Notes,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"appointment": appointment,
	})
}

type queueRunRequest struct {
	MaxRetries int `json:"maxRetries"`
	BatchSize  int `json:"batchSize"`
}

func (h Handler) runQueue(w http.ResponseWriter, r *http.Request) {
	req := queueRunRequest{MaxRetries: 5, BatchSize: DefaultBatchSize}
	if r.ContentLength != 0 {
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	summary, err := h.service.Runner().Run(r.Context(), req.BatchSize, req.MaxRetries)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"summary":   summary,
		"timestamp": timezone.Now(),
	})
}

func (h Handler) queueStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.QueueStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get sync status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}
