package bitrix

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/bitrixbot/core/bitrix/state"
	"github.com/m3rciful/bitrixbot/core/config"
)

func TestMaintenanceJobsFollowConfig(t *testing.T) {
	withTTL := state.NewStore(state.WithTTL(time.Minute))

	m, err := NewMaintenance(MaintenanceOptions{
		Store:             withTTL,
		SweepSchedule:     "@every 1m",
		HeartbeatSchedule: "@every 1h",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fsm.sweep", "heartbeat"}, m.Jobs())

	m, err = NewMaintenance(MaintenanceOptions{
		Store:             state.NewStore(),
		SweepSchedule:     "@every 1m",
		HeartbeatSchedule: config.ScheduleOff,
	})
	require.NoError(t, err)
	assert.Empty(t, m.Jobs(), "no TTL means nothing to sweep")

	_, err = NewMaintenance(MaintenanceOptions{HeartbeatSchedule: "whenever"})
	assert.Error(t, err)
	_, err = NewMaintenance(MaintenanceOptions{Store: withTTL, SweepSchedule: "bad spec"})
	assert.Error(t, err)
}

func TestMaintenanceSweepEvictsIdleContexts(t *testing.T) {
	now := time.Unix(1000, 0)
	store := state.NewStore(state.WithTTL(time.Minute), state.WithClock(func() time.Time { return now }))
	store.Get(1)
	store.Get(2)
	require.Equal(t, 2, store.Len())

	m, err := NewMaintenance(MaintenanceOptions{Store: store, SweepSchedule: "@every 1m"})
	require.NoError(t, err)

	m.Sweep()
	assert.Equal(t, 2, store.Len())

	now = now.Add(2 * time.Minute)
	m.Sweep()
	assert.Zero(t, store.Len())
}

func TestMaintenanceHeartbeatAndLifecycle(t *testing.T) {
	calls := 0
	m, err := NewMaintenance(MaintenanceOptions{
		HeartbeatSchedule: "@every 1h",
		Stats: func() []slog.Attr {
			calls++
			return []slog.Attr{slog.Int("queue", 0)}
		},
	})
	require.NoError(t, err)

	m.Heartbeat()
	assert.Equal(t, 1, calls)

	m.Start()
	m.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.Stop(ctx)
	m.Stop(ctx)
}
