package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmanhype/vsm-temporal-core/hlc"
	"github.com/jmanhype/vsm-temporal-core/vsmcore"
)

func startedStore(t *testing.T, cfg Config) (*MemoryStore, func()) {
	t.Helper()
	clock := hlc.New("test-node")
	s := NewMemoryStore(cfg, clock, nil, nil)
	require.NoError(t, s.Start(context.Background()))
	return s, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}
}

func evt(physical int64, id string, subsystem vsmcore.Subsystem, typ string) vsmcore.Event {
	return vsmcore.Event{
		ID:        vsmcore.EventID(id),
		Timestamp: hlc.Timestamp{Physical: physical, NodeID: "test-node"},
		Type:      typ,
		Subsystem: subsystem,
	}
}

func TestIngestAssignsIDAndTimestampWhenMissing(t *testing.T) {
	s, stop := startedStore(t, DefaultConfig())
	defer stop()

	e := vsmcore.Event{Type: "tick", Subsystem: vsmcore.S1}
	require.NoError(t, s.Ingest(context.Background(), e))

	got, err := s.QueryWindow(context.Background(), vsmcore.Window{
		Start: hlc.Timestamp{Physical: 0},
		End:   hlc.Timestamp{Physical: time.Now().UnixMilli() + 10_000},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].Timestamp.Zero())
}

func TestQueryWindowReturnsAscendingHLCOrder(t *testing.T) {
	s, stop := startedStore(t, DefaultConfig())
	defer stop()

	ctx := context.Background()
	base := time.Now().UnixMilli() - 10_000
	require.NoError(t, s.Ingest(ctx, evt(base+300, "c", vsmcore.S1, "x")))
	require.NoError(t, s.Ingest(ctx, evt(base+100, "a", vsmcore.S1, "x")))
	require.NoError(t, s.Ingest(ctx, evt(base+200, "b", vsmcore.S1, "x")))

	got, err := s.QueryWindow(ctx, vsmcore.Window{
		Start: hlc.Timestamp{Physical: base},
		End:   hlc.Timestamp{Physical: base + 1000},
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{base + 100, base + 200, base + 300}, []int64{
		got[0].Timestamp.Physical, got[1].Timestamp.Physical, got[2].Timestamp.Physical,
	})
}

func TestTiedHLCOrdersByEventIDLexicographic(t *testing.T) {
	s, stop := startedStore(t, DefaultConfig())
	defer stop()

	ctx := context.Background()
	now := time.Now().UnixMilli()
	require.NoError(t, s.Ingest(ctx, evt(now, "zeta", vsmcore.S1, "x")))
	require.NoError(t, s.Ingest(ctx, evt(now, "alpha", vsmcore.S1, "x")))

	got, err := s.QueryWindow(ctx, vsmcore.Window{
		Start: hlc.Timestamp{Physical: now - 1000},
		End:   hlc.Timestamp{Physical: now + 1000},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, vsmcore.EventID("alpha"), got[0].ID)
	assert.Equal(t, vsmcore.EventID("zeta"), got[1].ID)
}

func TestIngestRejectsEventOlderThanRetentionWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetentionMs = 1000
	s, stop := startedStore(t, cfg)
	defer stop()

	ctx := context.Background()
	now := time.Now().UnixMilli()
	require.NoError(t, s.Ingest(ctx, evt(now, "recent", vsmcore.S1, "x")))

	tooOld := evt(now-10_000, "ancient", vsmcore.S1, "x")
	err := s.Ingest(ctx, tooOld)
	assert.ErrorIs(t, err, ErrRetired)
}

func TestIngestAcceptsOutOfOrderEventWithinRetention(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetentionMs = 3_600_000
	s, stop := startedStore(t, cfg)
	defer stop()

	ctx := context.Background()
	now := time.Now().UnixMilli()
	require.NoError(t, s.Ingest(ctx, evt(now, "recent", vsmcore.S1, "x")))
	require.NoError(t, s.Ingest(ctx, evt(now-500, "slightly-late", vsmcore.S1, "x")))

	stats := s.Stats()
	assert.Equal(t, 2, stats.EventCount)
}

func TestMaxEventsEvictsOldestOnIngest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEvents = 2
	s, stop := startedStore(t, cfg)
	defer stop()

	ctx := context.Background()
	require.NoError(t, s.Ingest(ctx, evt(100, "a", vsmcore.S1, "x")))
	require.NoError(t, s.Ingest(ctx, evt(200, "b", vsmcore.S1, "x")))
	require.NoError(t, s.Ingest(ctx, evt(300, "c", vsmcore.S1, "x")))

	stats := s.Stats()
	assert.Equal(t, 2, stats.EventCount)
	assert.Equal(t, uint64(1), stats.TotalEvicted)

	got, err := s.QueryWindow(ctx, vsmcore.Window{Start: hlc.Timestamp{Physical: 0}, End: hlc.Timestamp{Physical: 1000}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, vsmcore.EventID("b"), got[0].ID)
	assert.Equal(t, vsmcore.EventID("c"), got[1].ID)
}

func TestRecentFiltersBySubsystem(t *testing.T) {
	s, stop := startedStore(t, DefaultConfig())
	defer stop()

	ctx := context.Background()
	now := time.Now().UnixMilli()
	require.NoError(t, s.Ingest(ctx, evt(now, "s1-event", vsmcore.S1, "x")))
	require.NoError(t, s.Ingest(ctx, evt(now, "s2-event", vsmcore.S2, "x")))

	got, err := s.Recent(ctx, vsmcore.S1, 60_000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, vsmcore.EventID("s1-event"), got[0].ID)
}

func TestFindSequencesGroupsByGapAndMinLength(t *testing.T) {
	s, stop := startedStore(t, DefaultConfig())
	defer stop()

	ctx := context.Background()
	now := time.Now().UnixMilli()
	base := now - 5_000
	// chain of 3 close together, then a lone outlier far past max gap.
	require.NoError(t, s.Ingest(ctx, evt(base, "1", vsmcore.S1, "x")))
	require.NoError(t, s.Ingest(ctx, evt(base+500, "2", vsmcore.S1, "x")))
	require.NoError(t, s.Ingest(ctx, evt(base+1000, "3", vsmcore.S1, "x")))
	require.NoError(t, s.Ingest(ctx, evt(base+10_000, "4", vsmcore.S1, "x")))

	spec := vsmcore.PatternSpec{Kind: vsmcore.KindErrorCascade, MinEvents: 3, MaxGapMs: 2_000}
	sequences, err := s.FindSequences(ctx, spec, 60_000)
	require.NoError(t, err)
	require.Len(t, sequences, 1)
	assert.Len(t, sequences[0].Events, 3)
}

func TestCorrelateMatchesSameSubsystemWithinWindow(t *testing.T) {
	s, stop := startedStore(t, DefaultConfig())
	defer stop()

	ctx := context.Background()
	now := time.Now().UnixMilli()
	source := evt(now, "source", vsmcore.S1, "x")
	require.NoError(t, s.Ingest(ctx, source))
	require.NoError(t, s.Ingest(ctx, evt(now+100, "same-sub", vsmcore.S1, "y")))
	require.NoError(t, s.Ingest(ctx, evt(now+100, "other-sub", vsmcore.S2, "y")))

	got, err := s.Correlate(ctx, source, []Rule{{Kind: RuleSameSubsystem}}, 1_000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, vsmcore.EventID("same-sub"), got[0].ID)
}

func TestCorrelateCausalBefore(t *testing.T) {
	s, stop := startedStore(t, DefaultConfig())
	defer stop()

	ctx := context.Background()
	now := time.Now().UnixMilli()
	source := evt(now, "source", vsmcore.S1, "x")
	require.NoError(t, s.Ingest(ctx, source))

	caused := evt(now+50, "effect", vsmcore.S1, "y")
	caused.Payload = map[string]any{"caused_by": "source"}
	require.NoError(t, s.Ingest(ctx, caused))

	got, err := s.Correlate(ctx, source, []Rule{{Kind: RuleCausalBefore}}, 1_000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, vsmcore.EventID("effect"), got[0].ID)
}

func TestCompressionRoundTripsLargePayload(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompressionThresholdBytes = 16
	s, stop := startedStore(t, cfg)
	defer stop()

	ctx := context.Background()
	e := evt(time.Now().UnixMilli(), "big", vsmcore.S1, "x")
	e.Payload = map[string]any{"blob": strings.Repeat("a", 4096)}
	require.NoError(t, s.Ingest(ctx, e))

	stats := s.Stats()
	assert.Equal(t, 1, stats.CompressedCount)

	got, err := s.QueryWindow(ctx, vsmcore.Window{Start: hlc.Timestamp{Physical: 0}, End: hlc.Timestamp{Physical: time.Now().UnixMilli() + 1}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, strings.Repeat("a", 4096), got[0].Payload["blob"])
}

func TestStatsReportsOldestAndNewest(t *testing.T) {
	s, stop := startedStore(t, DefaultConfig())
	defer stop()

	ctx := context.Background()
	require.NoError(t, s.Ingest(ctx, evt(100, "a", vsmcore.S1, "x")))
	require.NoError(t, s.Ingest(ctx, evt(300, "b", vsmcore.S1, "x")))

	stats := s.Stats()
	assert.Equal(t, int64(100), stats.OldestPhysical)
	assert.Equal(t, int64(300), stats.NewestPhysical)
}
