package allocation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SlotsOrderedByStart(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p, err := store.CreateProvider(ctx, "Dr. Alice", "Cardiology")
	require.NoError(t, err)
	other, err := store.CreateProvider(ctx, "Dr. Bob", "Neurology")
	require.NoError(t, err)

	late, err := store.CreateSlot(ctx, p.ID, "11:00", "12:00", 1)
	require.NoError(t, err)
	early, err := store.CreateSlot(ctx, p.ID, "09:00", "10:00", 1)
	require.NoError(t, err)
	sameStart, err := store.CreateSlot(ctx, p.ID, "09:00", "09:30", 1)
	require.NoError(t, err)
	_, err = store.CreateSlot(ctx, other.ID, "08:00", "09:00", 1)
	require.NoError(t, err)

	slots, err := store.SlotsOfProvider(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, early.ID, slots[0].ID)
	assert.Equal(t, sameStart.ID, slots[1].ID)
	assert.Equal(t, late.ID, slots[2].ID)

	_, err = store.SlotsOfProvider(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestMemoryStore_CreateSlotValidation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.CreateSlot(ctx, uuid.New(), "09:00", "10:00", 1)
	assert.ErrorIs(t, err, ErrProviderNotFound)

	p, err := store.CreateProvider(ctx, "Dr. Alice", "Cardiology")
	require.NoError(t, err)
	_, err = store.CreateSlot(ctx, p.ID, "09:00", "10:00", 0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestMemoryStore_AddOccupantEnforcesCapacity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p, _ := store.CreateProvider(ctx, "Dr. Alice", "Cardiology")
	slot, err := store.CreateSlot(ctx, p.ID, "09:00", "10:00", 1)
	require.NoError(t, err)

	require.NoError(t, store.AddOccupant(ctx, slot.ID, uuid.New()))
	err = store.AddOccupant(ctx, slot.ID, uuid.New())
	assert.ErrorIs(t, err, ErrSlotFull)

	assert.ErrorIs(t, store.AddOccupant(ctx, uuid.New(), uuid.New()), ErrSlotNotFound)
	assert.ErrorIs(t, store.RemoveOccupant(ctx, uuid.New(), uuid.New()), ErrSlotNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p, _ := store.CreateProvider(ctx, "Dr. Alice", "Cardiology")
	slot, _ := store.CreateSlot(ctx, p.ID, "09:00", "10:00", 2)
	tokenID := uuid.New()
	require.NoError(t, store.AddOccupant(ctx, slot.ID, tokenID))

	got, err := store.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	got.Occupants[0] = uuid.New()

	again, err := store.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{tokenID}, again.Occupants)

	tok, err := store.CreateToken(ctx, TokenInput{ProviderID: p.ID, PatientName: "A", Source: SourcePaid})
	require.NoError(t, err)
	tok.Status = StatusAllocated

	stored, err := store.GetToken(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestMemoryStore_Tokens(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	p, _ := store.CreateProvider(ctx, "Dr. Alice", "Cardiology")

	first, err := store.CreateToken(ctx, TokenInput{ProviderID: p.ID, PatientName: "A", Source: SourceWalkIn})
	require.NoError(t, err)
	second, err := store.CreateToken(ctx, TokenInput{ProviderID: p.ID, PatientName: "B", Source: SourceEmergency})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, first.Status)
	assert.Nil(t, first.SlotID)
	assert.Equal(t, 5, first.Priority)
	assert.Equal(t, 1, second.Priority)
	assert.True(t, first.CreatedBefore(second))
	assert.False(t, second.CreatedBefore(first))

	second.Status = StatusWaitlisted
	require.NoError(t, store.UpdateToken(ctx, second))

	waitlisted, err := store.TokensOfProvider(ctx, p.ID, StatusWaitlisted)
	require.NoError(t, err)
	require.Len(t, waitlisted, 1)
	assert.Equal(t, second.ID, waitlisted[0].ID)

	all, err := store.TokensOfProvider(ctx, p.ID, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)

	_, err = store.GetToken(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrTokenNotFound)
	assert.ErrorIs(t, store.UpdateToken(ctx, &Token{ID: uuid.New()}), ErrTokenNotFound)
}
