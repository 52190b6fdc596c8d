package allocation

import (
	"time"

	"github.com/google/uuid"
)

// Source is the channel a token request came through. It determines priority.
type Source string

const (
	SourceEmergency Source = "Emergency"
	SourcePaid      Source = "Paid"
	SourceFollowUp  Source = "Follow-up"
	SourceOnline    Source = "Online"
	SourceWalkIn    Source = "Walk-in"
)

// Lower value is more urgent.
var sourcePriority = map[Source]int{
	SourceEmergency: 1,
	SourcePaid:      2,
	SourceFollowUp:  3,
	SourceOnline:    4,
	SourceWalkIn:    5,
}

// Sources lists every accepted source from most to least urgent.
func Sources() []Source {
	return []Source{SourceEmergency, SourcePaid, SourceFollowUp, SourceOnline, SourceWalkIn}
}

// ParseSource converts a raw label into a Source, rejecting anything outside the fixed set.
func ParseSource(raw string) (Source, error) {
	s := Source(raw)
	if _, ok := sourcePriority[s]; !ok {
		return "", ErrInvalidSource
	}
	return s, nil
}

// Priority returns the priority value for s, or 0 when s is not a known source.
func (s Source) Priority() int {
	return sourcePriority[s]
}

type TokenStatus string

const (
	StatusPending    TokenStatus = "Pending"
	StatusAllocated  TokenStatus = "Allocated"
	StatusCompleted  TokenStatus = "Completed"
	StatusCancelled  TokenStatus = "Cancelled"
	StatusWaitlisted TokenStatus = "Waitlisted"
)

type Provider struct {
	ID             uuid.UUID
	Name           string
	Specialization string
	CreatedAt      time.Time
}

type Slot struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	Start      string
	End        string
	Capacity   int
	Occupants  []uuid.UUID
	CreatedAt  time.Time

	seq uint64
}

func (s *Slot) OccupantCount() int {
	return len(s.Occupants)
}

func (s *Slot) IsFull() bool {
	return len(s.Occupants) >= s.Capacity
}

func (s *Slot) HasOccupant(tokenID uuid.UUID) bool {
	for _, id := range s.Occupants {
		if id == tokenID {
			return true
		}
	}
	return false
}

// AddOccupant admits tokenID. Adding an existing occupant is a no-op.
func (s *Slot) AddOccupant(tokenID uuid.UUID) error {
	if s.HasOccupant(tokenID) {
		return nil
	}
	if s.IsFull() {
		return ErrSlotFull
	}
	s.Occupants = append(s.Occupants, tokenID)
	return nil
}

func (s *Slot) RemoveOccupant(tokenID uuid.UUID) {
	for i, id := range s.Occupants {
		if id == tokenID {
			s.Occupants = append(s.Occupants[:i], s.Occupants[i+1:]...)
			return
		}
	}
}

func (s Slot) clone() Slot {
	s.Occupants = append([]uuid.UUID(nil), s.Occupants...)
	return s
}

type Token struct {
	ID              uuid.UUID
	ProviderID      uuid.UUID
	RequestedSlotID uuid.UUID
	PatientName     string
	Source          Source
	Priority        int
	Status          TokenStatus
	SlotID          *uuid.UUID
	// Seq is strictly increasing across tokens and orders tokens created
	// within the same clock tick.
	Seq       uint64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreatedBefore reports whether t was created before other.
func (t *Token) CreatedBefore(other *Token) bool {
	return t.Seq < other.Seq
}

func (t *Token) assign(slotID uuid.UUID) {
	id := slotID
	t.SlotID = &id
	t.Status = StatusAllocated
}

func (t *Token) release(status TokenStatus) {
	t.SlotID = nil
	t.Status = status
}

type TokenInput struct {
	ProviderID      uuid.UUID
	RequestedSlotID uuid.UUID
	PatientName     string
	Source          Source
}

// SlotView is a slot enriched with derived occupancy data.
type SlotView struct {
	Slot
	CurrentCount int
	IsFull       bool
}

// TokenDetail is a token together with the window of the slot it holds, if any.
type TokenDetail struct {
	Token
	Slot *Slot
}
