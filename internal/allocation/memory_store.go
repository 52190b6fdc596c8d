package allocation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps providers, slots and tokens for the lifetime of the process.
type MemoryStore struct {
	mu        sync.RWMutex
	providers map[uuid.UUID]*Provider
	order     []uuid.UUID
	slots     map[uuid.UUID]*Slot
	tokens    map[uuid.UUID]*Token
	seq       uint64
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		providers: make(map[uuid.UUID]*Provider),
		slots:     make(map[uuid.UUID]*Slot),
		tokens:    make(map[uuid.UUID]*Token),
		now:       time.Now,
	}
}

func (m *MemoryStore) nextSeq() uint64 {
	m.seq++
	return m.seq
}

func (m *MemoryStore) CreateProvider(_ context.Context, name, specialization string) (*Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := &Provider{
		ID:             uuid.New(),
		Name:           name,
		Specialization: specialization,
		CreatedAt:      m.now(),
	}
	m.providers[p.ID] = p
	m.order = append(m.order, p.ID)

	out := *p
	return &out, nil
}

func (m *MemoryStore) GetProvider(_ context.Context, id uuid.UUID) (*Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	out := *p
	return &out, nil
}

func (m *MemoryStore) ListProviders(_ context.Context) ([]Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Provider, 0, len(m.order))
	for _, id := range m.order {
		result = append(result, *m.providers[id])
	}
	return result, nil
}

func (m *MemoryStore) CreateSlot(_ context.Context, providerID uuid.UUID, start, end string, capacity int) (*Slot, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.providers[providerID]; !ok {
		return nil, ErrProviderNotFound
	}

	s := &Slot{
		ID:         uuid.New(),
		ProviderID: providerID,
		Start:      start,
		End:        end,
		Capacity:   capacity,
		CreatedAt:  m.now(),
		seq:        m.nextSeq(),
	}
	m.slots[s.ID] = s

	out := s.clone()
	return &out, nil
}

func (m *MemoryStore) GetSlot(_ context.Context, id uuid.UUID) (*Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	out := s.clone()
	return &out, nil
}

func (m *MemoryStore) SlotsOfProvider(_ context.Context, providerID uuid.UUID) ([]Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.providers[providerID]; !ok {
		return nil, ErrProviderNotFound
	}

	var result []Slot
	for _, s := range m.slots {
		if s.ProviderID == providerID {
			result = append(result, s.clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Start != result[j].Start {
			return result[i].Start < result[j].Start
		}
		return result[i].seq < result[j].seq
	})

	return result, nil
}

func (m *MemoryStore) AddOccupant(_ context.Context, slotID, tokenID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[slotID]
	if !ok {
		return ErrSlotNotFound
	}
	if err := s.AddOccupant(tokenID); err != nil {
		return fmt.Errorf("add token %s to slot %s: %w", tokenID, slotID, err)
	}
	return nil
}

func (m *MemoryStore) RemoveOccupant(_ context.Context, slotID, tokenID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[slotID]
	if !ok {
		return ErrSlotNotFound
	}
	s.RemoveOccupant(tokenID)
	return nil
}

func (m *MemoryStore) CreateToken(_ context.Context, in TokenInput) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	t := &Token{
		ID:              uuid.New(),
		ProviderID:      in.ProviderID,
		RequestedSlotID: in.RequestedSlotID,
		PatientName:     in.PatientName,
		Source:          in.Source,
		Priority:        in.Source.Priority(),
		Status:          StatusPending,
		Seq:             m.nextSeq(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	m.tokens[t.ID] = t

	out := *t
	return &out, nil
}

func (m *MemoryStore) GetToken(_ context.Context, id uuid.UUID) (*Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tokens[id]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return copyToken(t), nil
}

func (m *MemoryStore) UpdateToken(_ context.Context, t *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tokens[t.ID]; !ok {
		return ErrTokenNotFound
	}
	updated := copyToken(t)
	updated.UpdatedAt = m.now()
	m.tokens[t.ID] = updated
	t.UpdatedAt = updated.UpdatedAt
	return nil
}

// TokensOfProvider returns the provider's tokens in creation order. An empty
// status matches every token.
func (m *MemoryStore) TokensOfProvider(_ context.Context, providerID uuid.UUID, status TokenStatus) ([]Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Token
	for _, t := range m.tokens {
		if t.ProviderID != providerID {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		result = append(result, *copyToken(t))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})

	return result, nil
}

func copyToken(t *Token) *Token {
	out := *t
	if t.SlotID != nil {
		id := *t.SlotID
		out.SlotID = &id
	}
	return &out
}
