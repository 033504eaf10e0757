package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmanhype/vsm-temporal-core/hlc"
	"github.com/jmanhype/vsm-temporal-core/vsmcore"
)

func TestSnapshotRoundTrips(t *testing.T) {
	s, stop := startedStore(t, DefaultConfig())
	defer stop()

	base := time.Now().UnixMilli()
	for i := 0; i < 3; i++ {
		e := evt(base+int64(i)*10, "", vsmcore.S2, "tick")
		e.Payload = map[string]any{"i": float64(i), "label": "x"}
		require.NoError(t, s.Ingest(context.Background(), e))
	}

	var buf bytes.Buffer
	watermark := hlc.Timestamp{Physical: base + 100, NodeID: "test-node"}
	require.NoError(t, WriteSnapshot(&buf, s, "test-node", watermark))

	nodeID, gotWatermark, events, err := LoadSnapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, "test-node", nodeID)
	assert.Equal(t, watermark, gotWatermark)
	require.Len(t, events, 3)
	assert.Equal(t, "x", events[0].Payload["label"])

	s2, stop2 := startedStore(t, DefaultConfig())
	defer stop2()
	accepted, err := s2.Restore(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, 3, accepted)
}

func TestLoadSnapshotRejectsWrongVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(snapshotRecord{Version: 99}))

	_, _, _, err := LoadSnapshot(&buf)
	assert.ErrorIs(t, err, ErrSnapshotVersion)
}
