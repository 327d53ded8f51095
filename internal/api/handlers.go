package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/appointment-sync/internal/appointment"
)

func listAppointmentsHandler(store *appointment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		from, to := q.Get("from"), q.Get("to")
		if d := q.Get("date"); d != "" {
			from, to = d, d
		}

		resp := []AppointmentResponse{}
		for _, a := range store.Snapshot() {
			if from != "" && a.Date < from {
				continue
			}
			if to != "" && a.Date > to {
				continue
			}
			resp = append(resp, toResponse(a))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(store *appointment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := store.Get(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "appointment_not_found", appointment.ErrAppointmentNotFound.Error())
			return
		}
		writeJSON(w, http.StatusOK, toResponse(a))
	}
}

func availableSlotsHandler(store *appointment.Store, checker appointment.Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date == "" {
			writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required")
			return
		}

		slots, err := checker.AvailableSlots(date, store.OnDate(date))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, SlotsResponse{Date: date, Slots: slots})
	}
}

func createAppointmentHandler(mut *appointment.Mutator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := mut.Create(r.Context(), req.toAppointment())
		if err != nil {
			handleMutationError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toResponse(*appt))
	}
}

func updateAppointmentHandler(mut *appointment.Mutator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch appointment.Patch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := mut.Update(r.Context(), chi.URLParam(r, "id"), patch)
		if err != nil {
			handleMutationError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toResponse(*appt))
	}
}

func setStatusHandler(mut *appointment.Mutator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SetStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		code, err := appointment.ParseStatusCode(req.StatusCode)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_status_code", err.Error())
			return
		}

		appt, err := mut.SetStatus(r.Context(), chi.URLParam(r, "id"), code)
		if err != nil {
			handleMutationError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toResponse(*appt))
	}
}

func deleteAppointmentHandler(mut *appointment.Mutator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := mut.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			handleMutationError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func rescheduleHandler(mut *appointment.Mutator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := mut.Reschedule(r.Context(), chi.URLParam(r, "id"), req.Date, req.StartTime)
		if err != nil {
			handleMutationError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toResponse(*appt))
	}
}

func handleMutationError(w http.ResponseWriter, err error) {
	var partial *appointment.RescheduleError

	switch {
	case errors.As(err, &partial):
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "reschedule_incomplete",
			Details: err.Error(),
			SagaID:  partial.SagaID,
		})
	case errors.Is(err, appointment.ErrInvalidAppointment):
		writeError(w, http.StatusBadRequest, "invalid_appointment", err.Error())
	case errors.Is(err, appointment.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrRemote):
		writeError(w, http.StatusBadGateway, "backend_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
