package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/jmanhype/vsm-temporal-core/hlc"
)

// HealthStatus is the coarse health verdict for a Bus.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthReport summarizes the bus's operational state at CheckedAt, in the
// shape a supervising health aggregator expects from any component.
type HealthReport struct {
	Component string
	Status    HealthStatus
	Message   string
	CheckedAt time.Time
	Details   map[string]any
}

// HealthCheck publishes a throwaway probe event and folds in delivery
// counters to judge whether the bus is keeping up. It never blocks on a
// handler: the probe topic has no subscribers by construction, so Publish
// returning is sufficient to confirm the publish path is live.
func (b *MemoryBus) HealthCheck(ctx context.Context) HealthReport {
	report := HealthReport{
		Component: "eventbus",
		CheckedAt: time.Now(),
		Details:   make(map[string]any),
	}

	if !b.started {
		report.Status = HealthStatusUnhealthy
		report.Message = "bus not started"
		return report
	}

	probeTopic := "health_check_probe"
	start := time.Now()
	if err := b.Publish(ctx, probeTopic, nil, hlc.Timestamp{}); err != nil {
		report.Status = HealthStatusUnhealthy
		report.Message = fmt.Sprintf("probe publish failed: %v", err)
		return report
	}
	publishDuration := time.Since(start)
	report.Details["publish_duration_ms"] = publishDuration.Milliseconds()

	stats := b.Stats()
	report.Details["delivered"] = stats.Delivered
	report.Details["dropped_ordinary"] = stats.DroppedOrdinary
	report.Details["rejected_emergency"] = stats.RejectedEmergency
	report.Details["handler_timeouts"] = stats.HandlerTimeouts
	report.Details["handlers_evicted"] = stats.HandlersEvicted

	switch {
	case publishDuration > 5*time.Second:
		report.Status = HealthStatusUnhealthy
		report.Message = fmt.Sprintf("publish took %dms, bus likely stalled", publishDuration.Milliseconds())
	case stats.RejectedEmergency > 0:
		report.Status = HealthStatusDegraded
		report.Message = "emergency queue has rejected publishes; algedonic subscribers are falling behind"
	case publishDuration > time.Second:
		report.Status = HealthStatusDegraded
		report.Message = fmt.Sprintf("publish took %dms, bus under load", publishDuration.Milliseconds())
	default:
		report.Status = HealthStatusHealthy
		report.Message = "bus operational"
	}

	return report
}
