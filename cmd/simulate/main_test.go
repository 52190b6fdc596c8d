package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestValidateConfig(t *testing.T) {
	valid := SimConfig{Providers: 1, Slots: 2, Requests: 10, Workers: 2, HotRatio: 0.8}
	require.NoError(t, validateConfig(valid))

	tests := []struct {
		name   string
		mutate func(*SimConfig)
	}{
		{name: "no providers", mutate: func(c *SimConfig) { c.Providers = 0 }},
		{name: "no slots", mutate: func(c *SimConfig) { c.Slots = 0 }},
		{name: "too many slots", mutate: func(c *SimConfig) { c.Slots = 15 }},
		{name: "negative requests", mutate: func(c *SimConfig) { c.Requests = -1 }},
		{name: "no workers", mutate: func(c *SimConfig) { c.Workers = 0 }},
		{name: "hot ratio above one", mutate: func(c *SimConfig) { c.HotRatio = 1.5 }},
		{name: "negative cancel ratio", mutate: func(c *SimConfig) { c.CancelRatio = -0.1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, validateConfig(cfg))
		})
	}
}

func TestPlanIsReproducible(t *testing.T) {
	cfg := SimConfig{Providers: 2, Slots: 3, Requests: 50, Workers: 1, Seed: 99, HotRatio: 0.8, CancelRatio: 0.1}
	sim, err := NewSimulator(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	first := sim.plan()
	second := sim.plan()
	require.Len(t, first, 50)
	assert.Equal(t, first, second)

	hot := 0
	for _, j := range first {
		if j.slotID == sim.slots[j.providerID][0].ID {
			hot++
		}
	}
	assert.Greater(t, hot, 25)
}

func TestRunRespectsCapacity(t *testing.T) {
	cfg := SimConfig{Providers: 2, Slots: 3, Requests: 120, Workers: 8, Seed: 42, HotRatio: 0.8, CancelRatio: 0.1}
	ctx := context.Background()
	sim, err := NewSimulator(ctx, cfg, zap.NewNop())
	require.NoError(t, err)

	sim.Run(ctx)

	assert.EqualValues(t, 120, sim.Request.Total)
	assert.EqualValues(t, 120, sim.Request.Success)
	assert.Zero(t, sim.Cancel.Error)

	allocated := 0
	for _, p := range sim.providers {
		views, err := sim.svc.ListSlots(ctx, p.ID)
		require.NoError(t, err)
		for _, v := range views {
			assert.LessOrEqual(t, v.CurrentCount, v.Slot.Capacity)
			allocated += v.CurrentCount
		}
	}
	assert.Positive(t, allocated)

	require.NoError(t, sim.PrintReport(ctx, time.Second))
}
