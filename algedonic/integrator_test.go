package algedonic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmanhype/vsm-temporal-core/eventbus"
	"github.com/jmanhype/vsm-temporal-core/hlc"
	"github.com/jmanhype/vsm-temporal-core/vsmcore"
)

func ts(physical int64) hlc.Timestamp {
	return hlc.Timestamp{Physical: physical, NodeID: "test-node"}
}

func cascadeDetection() vsmcore.Detection {
	return vsmcore.Detection{
		Pattern:            "cascade",
		Kind:               vsmcore.KindErrorCascade,
		Timestamp:          ts(1_000_000),
		Severity:           vsmcore.SeverityHigh,
		AffectedSubsystems: []vsmcore.Subsystem{vsmcore.S1, vsmcore.S2, vsmcore.S3},
		Category:           "error",
		Urgency:            0.8,
	}
}

// TestErrorCascadeEmitsEmergencyPain checks that an error_cascade detection
// classifies as pain with intensity >= 0.95 and emergency_bypass=true,
// delivered on the emergency topic within 10ms.
func TestErrorCascadeEmitsEmergencyPain(t *testing.T) {
	bus := eventbus.NewMemoryBus(eventbus.DefaultConfig(), nil, nil)
	require.NoError(t, bus.Start(context.Background()))
	defer bus.Stop(context.Background())

	received := make(chan time.Time, 1)
	_, err := bus.Subscribe(context.Background(), eventbus.TopicEmergencyAlgedonicBypass, func(ctx context.Context, msg eventbus.Message) error {
		received <- time.Now()
		return nil
	}, eventbus.SubscribeOptions{})
	require.NoError(t, err)

	in := New(DefaultConfig(), bus, nil, nil)
	start := time.Now()
	signal, err := in.Process(context.Background(), cascadeDetection())
	require.NoError(t, err)
	require.NotNil(t, signal)

	assert.Equal(t, vsmcore.SignalPain, signal.Type)
	assert.GreaterOrEqual(t, signal.Intensity, 0.95)
	assert.True(t, signal.EmergencyBypass)
	assert.Equal(t, []string{"isolate_failing_subsystems", "activate_backup_channels", "emergency_rate_limiting"}, signal.EmergencyActions)

	select {
	case at := <-received:
		assert.Less(t, at.Sub(start), 10*time.Millisecond)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("emergency subscriber never received the bypass signal")
	}
}

// TestPleasureSaturationScenario checks that repeated optimization_success
// detections trend toward a declining intensity once the saturation factor
// engages.
func TestPleasureSaturationScenario(t *testing.T) {
	in := New(DefaultConfig(), nil, nil, nil)

	det := vsmcore.Detection{
		Pattern:   "saturation",
		Kind:      vsmcore.KindPleasureSaturation,
		Severity:  vsmcore.SeverityMedium,
		Category:  "optimization_success",
		Timestamp: ts(2_000_000),
	}

	first, err := in.Process(context.Background(), det)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, first.Intensity, 0.1)
	assert.False(t, first.EmergencyBypass)

	var last *vsmcore.AlgedonicSignal
	for i := 0; i < 8; i++ {
		det.Timestamp = ts(2_000_000 + int64(i+1)*500)
		sig, err := in.Process(context.Background(), det)
		require.NoError(t, err)
		last = sig
	}
	require.NotNil(t, last)
	assert.False(t, last.EmergencyBypass)
	assert.Less(t, last.Intensity, first.Intensity)
}

// TestClampInvariant checks that emitted intensities always lie in [0,1]
// regardless of how extreme the inputs are.
func TestClampInvariant(t *testing.T) {
	in := New(DefaultConfig(), nil, nil, nil)
	det := vsmcore.Detection{
		Pattern:  "storm",
		Kind:     vsmcore.KindAlgedonicStorm,
		Severity: vsmcore.SeverityCritical,
		Category: "cascade_failure",
		Urgency:  1.0,
	}
	for i := 0; i < 20; i++ {
		det.Timestamp = ts(int64(i) * 1000)
		sig, err := in.Process(context.Background(), det)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, sig.Intensity, 0.0)
		assert.LessOrEqual(t, sig.Intensity, 1.0)
	}
}

// TestIdempotentClassification checks that classifying the same detection
// twice against the same adaptive state yields the same category and
// pain/pleasure/neutral outcome.
func TestIdempotentClassification(t *testing.T) {
	det := cascadeDetection()
	cat1, kind1 := classify(det)
	cat2, kind2 := classify(det)
	assert.Equal(t, cat1, cat2)
	assert.Equal(t, kind1, kind2)
}

// TestNeutralDetectionReturnsError covers a detection whose kind and
// category match neither table.
func TestNeutralDetectionReturnsError(t *testing.T) {
	in := New(DefaultConfig(), nil, nil, nil)
	det := vsmcore.Detection{
		Pattern:  "burst",
		Kind:     vsmcore.KindRateBurst,
		Category: "request",
		Timestamp: ts(1),
	}
	signal, err := in.Process(context.Background(), det)
	assert.ErrorIs(t, err, ErrNeutralDetection)
	assert.Nil(t, signal)
}

// TestCurrentLevelDecaysOlderSignals checks that CurrentLevel weights more
// recent history above older history.
func TestCurrentLevelDecaysOlderSignals(t *testing.T) {
	in := New(DefaultConfig(), nil, nil, nil)
	det := vsmcore.Detection{Pattern: "cascade", Kind: vsmcore.KindErrorCascade, Category: "error", Severity: vsmcore.SeverityLow}
	det.Timestamp = ts(1)
	low, err := in.Process(context.Background(), det)
	require.NoError(t, err)

	det.Severity = vsmcore.SeverityCritical
	det.Timestamp = ts(2)
	high, err := in.Process(context.Background(), det)
	require.NoError(t, err)

	level := in.CurrentLevel(vsmcore.SignalPain)
	assert.Greater(t, level, (low.Intensity+high.Intensity)/2)
}
