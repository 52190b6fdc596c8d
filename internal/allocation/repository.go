package allocation

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrProviderNotFound = errors.New("provider not found")
	ErrSlotNotFound     = errors.New("slot not found")
	ErrTokenNotFound    = errors.New("token not found")
	ErrSlotFull         = errors.New("slot is at capacity")
)

// Repository contains all entity access needed by the service.
// Accessors return copies; mutations go through the store.
type Repository interface {
	CreateProvider(ctx context.Context, name, specialization string) (*Provider, error)
	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)
	ListProviders(ctx context.Context) ([]Provider, error)

	CreateSlot(ctx context.Context, providerID uuid.UUID, start, end string, capacity int) (*Slot, error)
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	// SlotsOfProvider returns slots ordered by start, ties in creation order.
	SlotsOfProvider(ctx context.Context, providerID uuid.UUID) ([]Slot, error)

	// Occupancy
	AddOccupant(ctx context.Context, slotID, tokenID uuid.UUID) error
	RemoveOccupant(ctx context.Context, slotID, tokenID uuid.UUID) error

	CreateToken(ctx context.Context, in TokenInput) (*Token, error)
	GetToken(ctx context.Context, id uuid.UUID) (*Token, error)
	UpdateToken(ctx context.Context, t *Token) error
	TokensOfProvider(ctx context.Context, providerID uuid.UUID, status TokenStatus) ([]Token, error)
}
