package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadSchedule(t *testing.T) {
	s, err := loadSchedule(filepath.Join("..", "..", "configs", "schedule.example.yaml"))
	require.NoError(t, err)
	require.Len(t, s.Providers, 2)
	assert.Equal(t, "Cardiology", s.Providers[0].Specialization)
	require.Len(t, s.Providers[0].Slots, 3)
	assert.Equal(t, SlotSpec{Start: "11:00", End: "12:00", Capacity: 2}, s.Providers[0].Slots[2])
}

func TestLoadSchedule_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "empty", yaml: "providers: []\n", want: "no providers"},
		{name: "missing specialization", yaml: "providers:\n  - name: Dr. X\n", want: "specialization"},
		{
			name: "zero capacity",
			yaml: "providers:\n  - name: Dr. X\n    specialization: ENT\n    slots:\n      - {start: \"09:00\", end: \"10:00\", capacity: 0}\n",
			want: "capacity",
		},
		{name: "bad yaml", yaml: "providers: [", want: "parse yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "schedule.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))

			_, err := loadSchedule(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGenerateSchedule(t *testing.T) {
	s := generateSchedule(gofakeit.New(7), 2, 3)
	require.NoError(t, s.validate())
	require.Len(t, s.Providers, 2)

	for _, p := range s.Providers {
		assert.True(t, strings.HasPrefix(p.Name, "Dr. "))
		assert.Contains(t, specialties, p.Specialization)
		require.Len(t, p.Slots, 3)
		assert.Equal(t, "09:00", p.Slots[0].Start)
		assert.Equal(t, "12:00", p.Slots[2].End)
		for _, slot := range p.Slots {
			assert.GreaterOrEqual(t, slot.Capacity, 2)
			assert.LessOrEqual(t, slot.Capacity, 5)
		}
	}
}

func TestClientApply(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	providerID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": providerID})
	}))
	defer srv.Close()

	c := &client{base: srv.URL, http: srv.Client()}
	s := Schedule{Providers: []ProviderSpec{{
		Name:           "Dr. A",
		Specialization: "ENT",
		Slots:          []SlotSpec{{Start: "09:00", End: "10:00", Capacity: 2}, {Start: "10:00", End: "11:00", Capacity: 1}},
	}}}

	require.NoError(t, c.apply(context.Background(), zap.NewNop(), s))
	slotPath := "POST /api/providers/" + providerID.String() + "/slots"
	assert.Equal(t, []string{"POST /api/providers", slotPath, slotPath}, paths)
}

func TestClientApply_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"missing_fields"}`))
	}))
	defer srv.Close()

	c := &client{base: srv.URL, http: srv.Client()}
	err := c.apply(context.Background(), zap.NewNop(), Schedule{Providers: []ProviderSpec{{Name: "Dr. A", Specialization: "ENT"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
	assert.Contains(t, err.Error(), "missing_fields")
}
