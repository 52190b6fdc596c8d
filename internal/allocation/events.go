package allocation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventTokenRequested  = "TOKEN_REQUESTED"
	EventTokenAllocated  = "TOKEN_ALLOCATED"
	EventTokenBumped     = "TOKEN_BUMPED"
	EventTokenWaitlisted = "TOKEN_WAITLISTED"
	EventTokenCancelled  = "TOKEN_CANCELLED"
	EventTokenCompleted  = "TOKEN_COMPLETED"
	EventTokenPromoted   = "TOKEN_PROMOTED"
)

type Event struct {
	Type      string
	TokenID   uuid.UUID
	Payload   map[string]any
	CreatedAt time.Time
}

// EventSink receives audit events after the provider lock is released.
type EventSink interface {
	Record(ctx context.Context, ev Event) error
}

type nopSink struct{}

func (nopSink) Record(context.Context, Event) error { return nil }

// Observer is notified about engine activity, typically to export metrics.
type Observer interface {
	TokenRequested(source Source)
	CascadeFinished(steps []Step, final *Token)
	TokenCancelled()
	LockWaited(d time.Duration)
}

type nopObserver struct{}

func (nopObserver) TokenRequested(Source)          {}
func (nopObserver) CascadeFinished([]Step, *Token) {}
func (nopObserver) TokenCancelled()                {}
func (nopObserver) LockWaited(time.Duration)       {}

// eventsForSteps turns a cascade trace into audit events.
func eventsForSteps(steps []Step, now time.Time) []Event {
	var events []Event
	for _, st := range steps {
		switch st.Kind {
		case StepAdmitted:
			events = append(events, Event{
				Type:      EventTokenAllocated,
				TokenID:   st.TokenID,
				Payload:   map[string]any{"slot_id": st.SlotID.String()},
				CreatedAt: now,
			})
		case StepBumped:
			events = append(events,
				Event{
					Type:      EventTokenAllocated,
					TokenID:   st.TokenID,
					Payload:   map[string]any{"slot_id": st.SlotID.String(), "bumped": st.VictimID.String()},
					CreatedAt: now,
				},
				Event{
					Type:      EventTokenBumped,
					TokenID:   st.VictimID,
					Payload:   map[string]any{"slot_id": st.SlotID.String(), "by": st.TokenID.String()},
					CreatedAt: now,
				},
			)
		case StepWaitlisted:
			events = append(events, Event{
				Type:      EventTokenWaitlisted,
				TokenID:   st.TokenID,
				Payload:   map[string]any{},
				CreatedAt: now,
			})
		}
	}
	return events
}
