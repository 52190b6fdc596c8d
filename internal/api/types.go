package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
)

type CreateProviderRequest struct {
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
}

type CreateSlotRequest struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Capacity *int   `json:"capacity"`
}

type RequestTokenRequest struct {
	ProviderID  string `json:"providerId"`
	SlotID      string `json:"slotId"`
	PatientName string `json:"patientName"`
	Source      string `json:"source"`
}

type ProviderResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization"`
	CreatedAt      time.Time `json:"createdAt"`
}

type SlotResponse struct {
	ID           uuid.UUID   `json:"id"`
	ProviderID   uuid.UUID   `json:"providerId"`
	Start        string      `json:"start"`
	End          string      `json:"end"`
	Capacity     int         `json:"capacity"`
	TokenIDs     []uuid.UUID `json:"tokenIds"`
	CurrentCount int         `json:"currentCount"`
	IsFull       bool        `json:"isFull"`
}

type TokenResponse struct {
	ID              uuid.UUID  `json:"id"`
	ProviderID      uuid.UUID  `json:"providerId"`
	RequestedSlotID uuid.UUID  `json:"requestedSlotId"`
	PatientName     string     `json:"patientName"`
	Source          string     `json:"source"`
	Priority        int        `json:"priority"`
	Status          string     `json:"status"`
	SlotID          *uuid.UUID `json:"slotId"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type SlotDetails struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type TokenStatusResponse struct {
	TokenResponse
	SlotDetails *SlotDetails `json:"slotDetails"`
}

type CancelTokenResponse struct {
	Message string        `json:"message"`
	Token   TokenResponse `json:"token"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toProviderResponse(p allocation.Provider) ProviderResponse {
	return ProviderResponse{
		ID:             p.ID,
		Name:           p.Name,
		Specialization: p.Specialization,
		CreatedAt:      p.CreatedAt,
	}
}

func toSlotResponse(s allocation.Slot) SlotResponse {
	ids := s.Occupants
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return SlotResponse{
		ID:           s.ID,
		ProviderID:   s.ProviderID,
		Start:        s.Start,
		End:          s.End,
		Capacity:     s.Capacity,
		TokenIDs:     ids,
		CurrentCount: s.OccupantCount(),
		IsFull:       s.IsFull(),
	}
}

func toTokenResponse(t allocation.Token) TokenResponse {
	return TokenResponse{
		ID:              t.ID,
		ProviderID:      t.ProviderID,
		RequestedSlotID: t.RequestedSlotID,
		PatientName:     t.PatientName,
		Source:          string(t.Source),
		Priority:        t.Priority,
		Status:          string(t.Status),
		SlotID:          t.SlotID,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func toTokenResponses(tokens []allocation.Token) []TokenResponse {
	out := make([]TokenResponse, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, toTokenResponse(t))
	}
	return out
}
