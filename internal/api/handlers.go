package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
	"github.com/hackgods/opd-token-allocation/internal/lock"
)

func createProviderHandler(svc *allocation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateProviderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Name == "" || req.Specialization == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "name and specialization are required")
			return
		}

		p, err := svc.CreateProvider(r.Context(), req.Name, req.Specialization)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toProviderResponse(*p))
	}
}

func listProvidersHandler(svc *allocation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers, err := svc.ListProviders(r.Context())
		if err != nil {
			handleError(w, r, err)
			return
		}

		resp := make([]ProviderResponse, 0, len(providers))
		for _, p := range providers {
			resp = append(resp, toProviderResponse(p))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createSlotHandler(svc *allocation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseIDParam(w, r, "providerID", "invalid_provider_id")
		if !ok {
			return
		}

		var req CreateSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Start == "" || req.End == "" || req.Capacity == nil {
			writeError(w, http.StatusBadRequest, "missing_fields", "start, end and capacity are required")
			return
		}

		slot, err := svc.CreateSlot(r.Context(), providerID, req.Start, req.End, *req.Capacity)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponse(*slot))
	}
}

func listSlotsHandler(svc *allocation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseIDParam(w, r, "providerID", "invalid_provider_id")
		if !ok {
			return
		}

		views, err := svc.ListSlots(r.Context(), providerID)
		if err != nil {
			handleError(w, r, err)
			return
		}

		resp := make([]SlotResponse, 0, len(views))
		for _, v := range views {
			resp = append(resp, toSlotResponse(v.Slot))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func waitlistHandler(svc *allocation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseIDParam(w, r, "providerID", "invalid_provider_id")
		if !ok {
			return
		}

		tokens, err := svc.Waitlist(r.Context(), providerID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toTokenResponses(tokens))
	}
}

func promoteWaitlistHandler(svc *allocation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseIDParam(w, r, "providerID", "invalid_provider_id")
		if !ok {
			return
		}

		promoted, err := svc.PromoteFromWaitlist(r.Context(), providerID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toTokenResponses(promoted))
	}
}

func requestTokenHandler(svc *allocation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RequestTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.ProviderID == "" || req.SlotID == "" || req.PatientName == "" || req.Source == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "missing required fields: providerId, slotId, patientName, source")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "providerId must be a valid UUID")
			return
		}
		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slotId must be a valid UUID")
			return
		}

		token, err := svc.RequestToken(r.Context(), providerID, slotID, req.PatientName, req.Source)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toTokenResponse(*token))
	}
}

func cancelTokenHandler(svc *allocation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenID, ok := parseIDParam(w, r, "tokenID", "invalid_token_id")
		if !ok {
			return
		}

		token, err := svc.CancelToken(r.Context(), tokenID)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, CancelTokenResponse{
			Message: "Token cancelled",
			Token:   toTokenResponse(*token),
		})
	}
}

func completeTokenHandler(svc *allocation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenID, ok := parseIDParam(w, r, "tokenID", "invalid_token_id")
		if !ok {
			return
		}

		token, err := svc.CompleteToken(r.Context(), tokenID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toTokenResponse(*token))
	}
}

func tokenStatusHandler(svc *allocation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenID, ok := parseIDParam(w, r, "tokenID", "invalid_token_id")
		if !ok {
			return
		}

		detail, err := svc.GetTokenStatus(r.Context(), tokenID)
		if err != nil {
			handleError(w, r, err)
			return
		}

		resp := TokenStatusResponse{TokenResponse: toTokenResponse(detail.Token)}
		if detail.Slot != nil {
			resp.SlotDetails = &SlotDetails{Start: detail.Slot.Start, End: detail.Slot.End}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, allocation.ErrInvalidSource):
		writeError(w, http.StatusBadRequest, "invalid_source", err.Error())
	case errors.Is(err, allocation.ErrMissingField):
		writeError(w, http.StatusBadRequest, "missing_fields", err.Error())
	case errors.Is(err, allocation.ErrInvalidCapacity):
		writeError(w, http.StatusBadRequest, "invalid_capacity", err.Error())
	case errors.Is(err, allocation.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, allocation.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, allocation.ErrTokenNotFound):
		writeError(w, http.StatusNotFound, "token_not_found", err.Error())
	case errors.Is(err, allocation.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, lock.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "provider_busy", "provider schedule is being updated, please retry shortly")
	default:
		if errors.Is(err, allocation.ErrInvariantViolation) {
			loggerFrom(r.Context()).Error("allocation invariant violated", zap.Error(err))
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
