package metrics

import (
	statsd "github.com/DataDog/datadog-go/v5/statsd"
)

// DatadogSink forwards emissions directly to a DogStatsD client, one
// emission at a time rather than on a polled interval: the core's
// emissions are already rate-limited upstream (detector.max_detections_per_hour,
// bus backpressure), so a push model does not risk flooding the agent.
type DatadogSink struct {
	client *statsd.Client
	prefix string
}

// NewDatadogSink dials addr (e.g. "127.0.0.1:8125") and tags every metric
// with prefix.
func NewDatadogSink(addr, prefix string) (*DatadogSink, error) {
	client, err := statsd.New(addr, statsd.WithNamespace(prefix+"."))
	if err != nil {
		return nil, err
	}
	return &DatadogSink{client: client, prefix: prefix}, nil
}

func tagsOf(labels map[string]string) []string {
	tags := make([]string, 0, len(labels))
	for k, v := range labels {
		tags = append(tags, k+":"+v)
	}
	return tags
}

func (d *DatadogSink) Counter(name string, delta float64, labels map[string]string) {
	_ = d.client.Count(name, int64(delta), tagsOf(labels), 1)
}

func (d *DatadogSink) Histogram(name string, value float64, labels map[string]string) {
	_ = d.client.Histogram(name, value, tagsOf(labels), 1)
}

func (d *DatadogSink) Gauge(name string, value float64, labels map[string]string) {
	_ = d.client.Gauge(name, value, tagsOf(labels), 1)
}

// Close flushes and closes the underlying statsd client.
func (d *DatadogSink) Close() error {
	return d.client.Close()
}
