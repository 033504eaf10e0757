package algedonic

import (
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/jmanhype/vsm-temporal-core/vsmcore"
)

// cloudEventTypeEmergencyBypass is the CloudEvents type attribute for
// emergency bypass signals, using reverse-DNS-style type naming.
const cloudEventTypeEmergencyBypass = "com.vsm.algedonic.emergency_bypass"

// toCloudEvent shapes an emergency-bypass AlgedonicSignal as a CloudEvent so
// external subscribers outside this process's Go ABI can consume the same
// signal over any CloudEvents-compatible transport.
func toCloudEvent(source string, signal vsmcore.AlgedonicSignal) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource(source)
	event.SetType(cloudEventTypeEmergencyBypass)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)

	_ = event.SetData(cloudevents.ApplicationJSON, signal)
	event.SetExtension("pattern", signal.Pattern)
	event.SetExtension("kind", string(signal.Kind))
	// CloudEvents 1.0 extension attributes are restricted to
	// Boolean/Integer/String/Binary/URI/Timestamp (no Number type), so
	// intensity is carried as a formatted string rather than a float.
	event.SetExtension("intensity", fmt.Sprintf("%.4f", signal.Intensity))

	return event
}
