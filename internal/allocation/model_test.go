package allocation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		raw      string
		want     Source
		priority int
		wantErr  bool
	}{
		{raw: "Emergency", want: SourceEmergency, priority: 1},
		{raw: "Paid", want: SourcePaid, priority: 2},
		{raw: "Follow-up", want: SourceFollowUp, priority: 3},
		{raw: "Online", want: SourceOnline, priority: 4},
		{raw: "Walk-in", want: SourceWalkIn, priority: 5},
		{raw: "walk-in", wantErr: true},
		{raw: "VIP", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseSource(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSource)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.priority, got.Priority())
		})
	}
}

func TestSources_OrderedByUrgency(t *testing.T) {
	sources := Sources()
	require.Len(t, sources, 5)
	for i := 1; i < len(sources); i++ {
		assert.Less(t, sources[i-1].Priority(), sources[i].Priority())
	}
	assert.Equal(t, 0, Source("Unknown").Priority())
}

func TestSlot_Occupancy(t *testing.T) {
	s := &Slot{ID: uuid.New(), Capacity: 2}
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, s.AddOccupant(a))
	require.NoError(t, s.AddOccupant(a))
	assert.Equal(t, 1, s.OccupantCount())
	assert.False(t, s.IsFull())

	require.NoError(t, s.AddOccupant(b))
	assert.True(t, s.IsFull())
	assert.ErrorIs(t, s.AddOccupant(c), ErrSlotFull)

	s.RemoveOccupant(a)
	assert.False(t, s.HasOccupant(a))
	assert.True(t, s.HasOccupant(b))
	assert.Equal(t, 1, s.OccupantCount())

	s.RemoveOccupant(uuid.New())
	assert.Equal(t, 1, s.OccupantCount())
}
