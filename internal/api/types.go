package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hackgods/appointment-sync/internal/appointment"
)

type CreateAppointmentRequest struct {
	Date           string `json:"date"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time,omitempty"`
	Type           string `json:"type,omitempty"`
	Subtype        string `json:"subtype,omitempty"`
	StatusCode     string `json:"status_code,omitempty"`
	PatientID      string `json:"patient_id,omitempty"`
	PatientName    string `json:"patient_name,omitempty"`
	AssignedUserID string `json:"assigned_user_id,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

func (r CreateAppointmentRequest) toAppointment() appointment.Appointment {
	return appointment.Appointment{
		Date:           r.Date,
		StartTime:      r.StartTime,
		EndTime:        r.EndTime,
		Type:           r.Type,
		Subtype:        r.Subtype,
		StatusCode:     appointment.StatusCode(r.StatusCode),
		PatientID:      r.PatientID,
		PatientName:    r.PatientName,
		AssignedUserID: r.AssignedUserID,
		Notes:          r.Notes,
	}
}

type SetStatusRequest struct {
	StatusCode string `json:"status_code"`
}

type RescheduleRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
}

type AppointmentResponse struct {
	ID               string    `json:"id"`
	Provisional      bool      `json:"provisional,omitempty"`
	Date             string    `json:"date"`
	StartTime        string    `json:"start_time"`
	EndTime          string    `json:"end_time"`
	Type             string    `json:"type"`
	Subtype          string    `json:"subtype,omitempty"`
	StatusCode       string    `json:"status_code"`
	Status           string    `json:"status"`
	Terminal         bool      `json:"terminal,omitempty"`
	PatientID        string    `json:"patient_id,omitempty"`
	PatientName      string    `json:"patient_name,omitempty"`
	AssignedUserID   string    `json:"assigned_user_id,omitempty"`
	AssignedUserName string    `json:"assigned_user_name,omitempty"`
	LeadID           string    `json:"lead_id,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toResponse(a appointment.Appointment) AppointmentResponse {
	lead, _ := a.LeadReference()
	return AppointmentResponse{
		ID:               a.ID,
		Provisional:      a.Provisional(),
		Date:             a.Date,
		StartTime:        a.StartTime,
		EndTime:          a.EndTime,
		Type:             a.Type,
		Subtype:          a.Subtype,
		StatusCode:       string(a.StatusCode),
		Status:           a.Status(),
		Terminal:         a.StatusCode.Terminal(),
		PatientID:        a.PatientID,
		PatientName:      a.PatientName,
		AssignedUserID:   a.AssignedUserID,
		AssignedUserName: a.AssignedUserName,
		LeadID:           lead,
		Notes:            a.Notes,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

type SlotsResponse struct {
	Date  string             `json:"date"`
	Slots []appointment.Slot `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	SagaID  string `json:"saga_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
