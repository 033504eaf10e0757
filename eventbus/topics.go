package eventbus

// Topic names the core publishes to and consumes from.
const (
	TopicVSMAllEvents              = "vsm_all_events"
	TopicSystemEvent                = "system_event"
	TopicAlgedonicSignal            = "algedonic_signal"
	TopicTemporalPatternDetected    = "temporal_pattern_detected"
	TopicVarietyPatternDetected     = "variety_pattern_detected"
	TopicEmergencyAlgedonicBypass   = "emergency_algedonic_bypass"
	TopicTemporalPatternReinforcement = "temporal_pattern_reinforcement"

	// topicHandlerEvicted is an internal notification topic published
	// when a subscription is auto-removed for repeated handler-deadline
	// violations.
	topicHandlerEvicted = "handler_evicted"
)
