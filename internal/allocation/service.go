package allocation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/opd-token-allocation/internal/lock"
)

var (
	ErrInvalidSource           = errors.New("invalid source")
	ErrMissingField            = errors.New("missing required field")
	ErrInvalidCapacity         = errors.New("capacity must be greater than zero")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	// ErrInvariantViolation signals an internal consistency fault. It is never retryable.
	ErrInvariantViolation = errors.New("allocation invariant violated")
)

type StepKind string

const (
	// StepAdmitted: the token took free capacity.
	StepAdmitted StepKind = "admitted"
	// StepBumped: the token took the place of VictimID, which moves on.
	StepBumped StepKind = "bumped"
	// StepPushed: the slot was full and the token could not unseat anyone.
	StepPushed StepKind = "pushed"
	// StepWaitlisted: the token ran past the provider's last slot.
	StepWaitlisted StepKind = "waitlisted"
)

// Step is one admission attempt in a cascade.
type Step struct {
	Kind     StepKind
	TokenID  uuid.UUID
	SlotID   uuid.UUID
	VictimID uuid.UUID
}

type Option func(*Service)

func WithEventSink(sink EventSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.events = sink
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service is the allocation engine. All mutations of one provider's slots and
// tokens run under that provider's lock.
type Service struct {
	repo     Repository
	locker   lock.Locker
	logger   *zap.Logger
	events   EventSink
	observer Observer
	now      func() time.Time
}

func NewService(repo Repository, locker lock.Locker, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:     repo,
		locker:   locker,
		logger:   logger,
		events:   nopSink{},
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) withProviderLock(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error {
	start := time.Now()
	return s.locker.WithProviderLock(ctx, providerID, func(lockCtx context.Context) error {
		s.observer.LockWaited(time.Since(start))
		return fn(lockCtx)
	})
}

// CreateProvider registers a provider with no slots.
func (s *Service) CreateProvider(ctx context.Context, name, specialization string) (*Provider, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name", ErrMissingField)
	}
	if strings.TrimSpace(specialization) == "" {
		return nil, fmt.Errorf("%w: specialization", ErrMissingField)
	}

	p, err := s.repo.CreateProvider(ctx, name, specialization)
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	s.logger.Info("provider created", zap.Stringer("provider_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

func (s *Service) ListProviders(ctx context.Context) ([]Provider, error) {
	providers, err := s.repo.ListProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return providers, nil
}

// CreateSlot adds a slot to the provider's schedule.
func (s *Service) CreateSlot(ctx context.Context, providerID uuid.UUID, start, end string, capacity int) (*Slot, error) {
	if strings.TrimSpace(start) == "" {
		return nil, fmt.Errorf("%w: start", ErrMissingField)
	}
	if strings.TrimSpace(end) == "" {
		return nil, fmt.Errorf("%w: end", ErrMissingField)
	}
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if _, err := s.repo.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}

	var created *Slot
	err := s.withProviderLock(ctx, providerID, func(lockCtx context.Context) error {
		slot, err := s.repo.CreateSlot(lockCtx, providerID, start, end, capacity)
		if err != nil {
			return err
		}
		created = slot
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}

	s.logger.Info("slot created",
		zap.Stringer("provider_id", providerID),
		zap.Stringer("slot_id", created.ID),
		zap.String("start", created.Start),
		zap.Int("capacity", created.Capacity),
	)
	return created, nil
}

// ListSlots returns the provider's slots ordered by start with occupancy.
func (s *Service) ListSlots(ctx context.Context, providerID uuid.UUID) ([]SlotView, error) {
	if _, err := s.repo.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}

	var views []SlotView
	err := s.withProviderLock(ctx, providerID, func(lockCtx context.Context) error {
		slots, err := s.repo.SlotsOfProvider(lockCtx, providerID)
		if err != nil {
			return err
		}
		views = make([]SlotView, 0, len(slots))
		for _, slot := range slots {
			views = append(views, SlotView{
				Slot:         slot,
				CurrentCount: slot.OccupantCount(),
				IsFull:       slot.IsFull(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return views, nil
}

// RequestToken creates a token for patientName and places it starting at
// slotID. The returned token is either Allocated or Waitlisted.
// A zero providerID means the provider is taken from the slot.
func (s *Service) RequestToken(ctx context.Context, providerID, slotID uuid.UUID, patientName, source string) (*Token, error) {
	src, err := ParseSource(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, source)
	}
	if strings.TrimSpace(patientName) == "" {
		return nil, fmt.Errorf("%w: patientName", ErrMissingField)
	}

	slot, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if providerID != uuid.Nil && slot.ProviderID != providerID {
		if _, err := s.repo.GetProvider(ctx, providerID); err != nil {
			return nil, err
		}
		return nil, ErrSlotNotFound
	}

	s.observer.TokenRequested(src)

	var (
		result *Token
		events []Event
	)

	err = s.withProviderLock(ctx, slot.ProviderID, func(lockCtx context.Context) error {
		token, err := s.repo.CreateToken(lockCtx, TokenInput{
			ProviderID:      slot.ProviderID,
			RequestedSlotID: slot.ID,
			PatientName:     patientName,
			Source:          src,
		})
		if err != nil {
			return fmt.Errorf("create token: %w", err)
		}

		events = append(events, Event{
			Type:    EventTokenRequested,
			TokenID: token.ID,
			Payload: map[string]any{
				"slot_id":  slot.ID.String(),
				"source":   string(src),
				"priority": token.Priority,
			},
			CreatedAt: s.now(),
		})

		steps, err := s.cascade(lockCtx, token, slot.ID)
		if err != nil {
			return err
		}

		final, err := s.repo.GetToken(lockCtx, token.ID)
		if err != nil {
			return fmt.Errorf("reload token: %w", err)
		}

		s.observer.CascadeFinished(steps, final)
		events = append(events, eventsForSteps(steps, s.now())...)
		result = final
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events)
	return result, nil
}

// cascade places token starting at slotID and keeps pushing whichever token
// is displaced forward through the provider's later slots. Every iteration
// moves one slot later, so the loop runs at most once per remaining slot.
func (s *Service) cascade(ctx context.Context, token *Token, slotID uuid.UUID) ([]Step, error) {
	slots, err := s.repo.SlotsOfProvider(ctx, token.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load provider slots: %w", err)
	}

	idx := -1
	for i := range slots {
		if slots[i].ID == slotID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: slot %s not in provider %s schedule", ErrInvariantViolation, slotID, token.ProviderID)
	}

	var steps []Step
	current := token

	for i := idx; current != nil; i++ {
		if i >= len(slots) {
			if err := s.waitlist(ctx, current); err != nil {
				return steps, err
			}
			steps = append(steps, Step{Kind: StepWaitlisted, TokenID: current.ID})
			break
		}

		step, next, err := s.tryAllocate(ctx, current, slots[i].ID)
		if err != nil {
			return steps, err
		}
		steps = append(steps, step)
		current = next
	}

	return steps, nil
}

// tryAllocate attempts to admit token to slotID. It returns the token that
// still needs a place: nil when token was admitted into free capacity, the
// evicted victim after a bump, or token itself when it could not get in.
func (s *Service) tryAllocate(ctx context.Context, token *Token, slotID uuid.UUID) (Step, *Token, error) {
	slot, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return Step{}, nil, fmt.Errorf("load slot: %w", err)
	}

	if slot.OccupantCount() < slot.Capacity {
		if err := s.admit(ctx, token, slot); err != nil {
			return Step{}, nil, err
		}
		return Step{Kind: StepAdmitted, TokenID: token.ID, SlotID: slot.ID}, nil, nil
	}

	victim, err := s.selectVictim(ctx, slot)
	if err != nil {
		return Step{}, nil, err
	}

	if token.Priority < victim.Priority {
		if err := s.evict(ctx, victim, slot); err != nil {
			return Step{}, nil, err
		}
		if err := s.admit(ctx, token, slot); err != nil {
			return Step{}, nil, err
		}
		s.logger.Debug("token bumped",
			zap.Stringer("token_id", token.ID),
			zap.Stringer("victim_id", victim.ID),
			zap.String("victim_source", string(victim.Source)),
			zap.Stringer("slot_id", slot.ID),
		)
		return Step{Kind: StepBumped, TokenID: token.ID, SlotID: slot.ID, VictimID: victim.ID}, victim, nil
	}

	s.logger.Debug("token pushed forward",
		zap.Stringer("token_id", token.ID),
		zap.Stringer("slot_id", slot.ID),
		zap.String("start", slot.Start),
	)
	return Step{Kind: StepPushed, TokenID: token.ID, SlotID: slot.ID}, token, nil
}

// selectVictim picks the least urgent occupant; among equals the most
// recently created one goes first.
func (s *Service) selectVictim(ctx context.Context, slot *Slot) (*Token, error) {
	var victim *Token
	for _, id := range slot.Occupants {
		t, err := s.repo.GetToken(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: occupant %s of slot %s: %v", ErrInvariantViolation, id, slot.ID, err)
		}
		if victim == nil ||
			t.Priority > victim.Priority ||
			(t.Priority == victim.Priority && victim.CreatedBefore(t)) {
			victim = t
		}
	}
	if victim == nil {
		return nil, fmt.Errorf("%w: slot %s reported full with no occupants", ErrInvariantViolation, slot.ID)
	}
	return victim, nil
}

func (s *Service) admit(ctx context.Context, token *Token, slot *Slot) error {
	if err := s.repo.AddOccupant(ctx, slot.ID, token.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	token.assign(slot.ID)
	if err := s.repo.UpdateToken(ctx, token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	s.logger.Debug("token allocated",
		zap.Stringer("token_id", token.ID),
		zap.Stringer("slot_id", slot.ID),
		zap.String("start", slot.Start),
	)
	return nil
}

func (s *Service) evict(ctx context.Context, token *Token, slot *Slot) error {
	if err := s.repo.RemoveOccupant(ctx, slot.ID, token.ID); err != nil {
		return fmt.Errorf("remove occupant: %w", err)
	}
	token.release(StatusPending)
	if err := s.repo.UpdateToken(ctx, token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (s *Service) waitlist(ctx context.Context, token *Token) error {
	token.release(StatusWaitlisted)
	if err := s.repo.UpdateToken(ctx, token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	s.logger.Debug("token waitlisted",
		zap.Stringer("token_id", token.ID),
		zap.Stringer("provider_id", token.ProviderID),
	)
	return nil
}

// CancelToken releases the token's slot, if any, and marks it Cancelled. The
// freed capacity is left for future requests.
func (s *Service) CancelToken(ctx context.Context, tokenID uuid.UUID) (*Token, error) {
	return s.finish(ctx, tokenID, StatusCancelled)
}

// CompleteToken marks an allocated token as seen and releases its slot.
func (s *Service) CompleteToken(ctx context.Context, tokenID uuid.UUID) (*Token, error) {
	return s.finish(ctx, tokenID, StatusCompleted)
}

func (s *Service) finish(ctx context.Context, tokenID uuid.UUID, to TokenStatus) (*Token, error) {
	t, err := s.repo.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	var (
		result  *Token
		changed bool
		freed   *uuid.UUID
	)

	err = s.withProviderLock(ctx, t.ProviderID, func(lockCtx context.Context) error {
		token, err := s.repo.GetToken(lockCtx, tokenID)
		if err != nil {
			return err
		}

		switch to {
		case StatusCancelled:
			if token.Status == StatusCompleted {
				return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, token.Status, to)
			}
			if token.Status == StatusCancelled {
				result = token
				return nil
			}
		case StatusCompleted:
			if token.Status != StatusAllocated {
				return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, token.Status, to)
			}
		}

		if token.SlotID != nil {
			slotID := *token.SlotID
			if err := s.repo.RemoveOccupant(lockCtx, slotID, token.ID); err != nil {
				return fmt.Errorf("remove occupant: %w", err)
			}
			freed = &slotID
		}
		token.release(to)
		if err := s.repo.UpdateToken(lockCtx, token); err != nil {
			return fmt.Errorf("save token: %w", err)
		}

		result = token
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		payload := map[string]any{}
		if freed != nil {
			payload["slot_id"] = freed.String()
		}
		eventType := EventTokenCompleted
		if to == StatusCancelled {
			eventType = EventTokenCancelled
			s.observer.TokenCancelled()
		}
		s.logger.Info("token closed",
			zap.Stringer("token_id", result.ID),
			zap.String("status", string(to)),
		)
		s.publish(ctx, []Event{{Type: eventType, TokenID: result.ID, Payload: payload, CreatedAt: s.now()}})
	}

	return result, nil
}

// GetTokenStatus returns the token and the slot it currently holds.
func (s *Service) GetTokenStatus(ctx context.Context, tokenID uuid.UUID) (*TokenDetail, error) {
	t, err := s.repo.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	var detail *TokenDetail
	err = s.withProviderLock(ctx, t.ProviderID, func(lockCtx context.Context) error {
		token, err := s.repo.GetToken(lockCtx, tokenID)
		if err != nil {
			return err
		}
		detail = &TokenDetail{Token: *token}
		if token.SlotID != nil {
			slot, err := s.repo.GetSlot(lockCtx, *token.SlotID)
			if err != nil {
				return fmt.Errorf("%w: assigned slot: %v", ErrInvariantViolation, err)
			}
			detail.Slot = slot
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// Waitlist returns the provider's waitlisted tokens in creation order.
func (s *Service) Waitlist(ctx context.Context, providerID uuid.UUID) ([]Token, error) {
	if _, err := s.repo.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}

	var tokens []Token
	err := s.withProviderLock(ctx, providerID, func(lockCtx context.Context) error {
		var err error
		tokens, err = s.repo.TokensOfProvider(lockCtx, providerID, StatusWaitlisted)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return tokens, nil
}

// PromoteFromWaitlist moves waitlisted tokens into free capacity, most urgent
// first, each to the earliest slot with room. It never evicts anyone.
func (s *Service) PromoteFromWaitlist(ctx context.Context, providerID uuid.UUID) ([]Token, error) {
	if _, err := s.repo.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}

	var promoted []Token
	err := s.withProviderLock(ctx, providerID, func(lockCtx context.Context) error {
		waiting, err := s.repo.TokensOfProvider(lockCtx, providerID, StatusWaitlisted)
		if err != nil {
			return err
		}
		if len(waiting) == 0 {
			return nil
		}

		sort.SliceStable(waiting, func(i, j int) bool {
			if waiting[i].Priority != waiting[j].Priority {
				return waiting[i].Priority < waiting[j].Priority
			}
			return waiting[i].Seq < waiting[j].Seq
		})

		slots, err := s.repo.SlotsOfProvider(lockCtx, providerID)
		if err != nil {
			return err
		}
		free := make([]int, len(slots))
		for i := range slots {
			free[i] = slots[i].Capacity - slots[i].OccupantCount()
		}

		for i := range waiting {
			token := waiting[i]
			for j := range slots {
				if free[j] <= 0 {
					continue
				}
				if err := s.admit(lockCtx, &token, &slots[j]); err != nil {
					return err
				}
				free[j]--
				promoted = append(promoted, token)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("promote from waitlist: %w", err)
	}

	if len(promoted) > 0 {
		events := make([]Event, 0, len(promoted))
		for _, t := range promoted {
			events = append(events, Event{
				Type:      EventTokenPromoted,
				TokenID:   t.ID,
				Payload:   map[string]any{"slot_id": t.SlotID.String()},
				CreatedAt: s.now(),
			})
		}
		s.logger.Info("waitlist promoted",
			zap.Stringer("provider_id", providerID),
			zap.Int("count", len(promoted)),
		)
		s.publish(ctx, events)
	}

	return promoted, nil
}

func (s *Service) publish(ctx context.Context, events []Event) {
	for _, ev := range events {
		if err := s.events.Record(ctx, ev); err != nil {
			s.logger.Warn("failed to record event",
				zap.String("event_type", ev.Type),
				zap.Stringer("token_id", ev.TokenID),
				zap.Error(err),
			)
		}
	}
}
