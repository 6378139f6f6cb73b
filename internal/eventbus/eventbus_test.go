package eventbus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/annel0/shopzones/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	ev, err := NewEnvelope("node-1", TypeBackupCompleted, BackupCompleted{ZoneID: "zone_w_1", Layout: "general", Success: true, BlocksSaved: 12})
	require.NoError(t, err)
	assert.Len(t, ev.ID, 36)
	assert.Equal(t, TypeBackupCompleted, ev.EventType)
	assert.Equal(t, PayloadVersion, ev.Version)

	got, err := Decode[BackupCompleted](ev)
	require.NoError(t, err)
	assert.Equal(t, "zone_w_1", got.ZoneID)
	assert.Equal(t, 12, got.BlocksSaved)

	other, err := NewEnvelope("node-1", TypeBackupCompleted, nil)
	require.NoError(t, err)
	assert.NotEqual(t, ev.ID, other.ID)
}

func TestMemoryBusDelivers(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()

	got := make(chan *Envelope, 4)
	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{TypeZoneRemoved}}, func(_ context.Context, ev *Envelope) {
		got <- ev
	})
	require.NoError(t, err)

	scan, _ := NewEnvelope("n", TypeScanCompleted, ScanCompleted{World: "w"})
	removed, _ := NewEnvelope("n", TypeZoneRemoved, ZoneRemoved{ZoneID: "zone_w_1", World: "w"})
	require.NoError(t, bus.Publish(context.Background(), scan))
	require.NoError(t, bus.Publish(context.Background(), removed))

	select {
	case ev := <-got:
		assert.Equal(t, TypeZoneRemoved, ev.EventType)
	case <-time.After(time.Second):
		t.Fatal("событие не доставлено")
	}
	select {
	case ev := <-got:
		t.Fatalf("лишнее событие %s", ev.EventType)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	bus := NewMemoryBus(4)
	got := make(chan struct{}, 1)
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(context.Context, *Envelope) { got <- struct{}{} })
	require.NoError(t, err)
	sub.Unsubscribe()

	ev, _ := NewEnvelope("n", TypeScanCompleted, nil)
	require.NoError(t, bus.Publish(context.Background(), ev))
	require.NoError(t, bus.Close())
	assert.Len(t, got, 0)
	assert.EqualValues(t, 1, bus.Metrics().Published)
}

func TestMemoryBusClose(t *testing.T) {
	bus := NewMemoryBus(4)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
	ev, _ := NewEnvelope("n", TypeScanCompleted, nil)
	assert.ErrorIs(t, bus.Publish(context.Background(), ev), ErrClosed)
}

func TestMemoryBusDropsLowPriorityWhenFull(t *testing.T) {
	// без цикла рассылки буфер не освобождается
	bus := &memoryBus{
		subscribers: make(map[int]subscriber),
		buffer:      make(chan *Envelope, 1),
		done:        make(chan struct{}),
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(context.Background(), &Envelope{EventType: "x", Priority: 0}))
	}
	s := bus.Metrics()
	assert.EqualValues(t, 1, s.Published)
	assert.EqualValues(t, 2, s.Dropped)
	assert.Equal(t, 1, s.InFlight)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := bus.Publish(ctx, &Envelope{EventType: "x", Priority: 9})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMetricsExporterCollect(t *testing.T) {
	bus := NewMemoryBus(8)
	defer bus.Close()
	reg := prometheus.NewRegistry()
	m := NewMetricsExporter(bus, reg, time.Hour)

	ev, _ := NewEnvelope("n", TypeScanCompleted, nil)
	require.NoError(t, bus.Publish(context.Background(), ev))
	require.NoError(t, bus.Publish(context.Background(), ev))

	prev := m.collect(Stats{})
	assert.EqualValues(t, 2, prev.Published)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.published))
	m.collect(prev)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.published))
}

func TestLoggingListener(t *testing.T) {
	bus := NewMemoryBus(4)
	defer bus.Close()
	sub, err := StartLoggingListener(bus, logging.Discard())
	require.NoError(t, err)
	sub.Unsubscribe()
}

func TestJetStreamBus(t *testing.T) {
	url := os.Getenv("ZONES_TEST_NATS_URL")
	if url == "" {
		url = "nats://localhost:4222"
	}
	bus, err := NewJetStreamBus(url, "ZONES_TEST", time.Hour)
	if err != nil {
		t.Skipf("NATS JetStream not available, skipping test: %v", err)
	}
	defer bus.Close()

	got := make(chan *Envelope, 1)
	_, err = bus.Subscribe(context.Background(), Filter{Types: []string{TypeRestoreCompleted}}, func(_ context.Context, ev *Envelope) {
		got <- ev
	})
	require.NoError(t, err)

	ev, _ := NewEnvelope("n", TypeRestoreCompleted, RestoreCompleted{ZoneID: "z", Success: true})
	require.NoError(t, bus.Publish(context.Background(), ev))
	select {
	case in := <-got:
		assert.Equal(t, ev.ID, in.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("событие не доставлено")
	}
}

func TestFilterMatch(t *testing.T) {
	ev := &Envelope{EventType: TypeZoneRemoved, Source: "node-a"}
	assert.True(t, Filter{}.Match(ev))
	assert.True(t, Filter{Types: []string{TypeScanCompleted, TypeZoneRemoved}}.Match(ev))
	assert.False(t, Filter{Types: []string{TypeScanCompleted}}.Match(ev))
	assert.True(t, Filter{Sources: []string{"node-a"}}.Match(ev))
	assert.False(t, Filter{Types: []string{TypeZoneRemoved}, Sources: []string{"node-b"}}.Match(ev))
}
