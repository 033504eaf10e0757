package algedonic

// Stats reports running Integrator counters.
type Stats struct {
	Processed       uint64
	Emitted         uint64
	Bypassed        uint64
	Neutral         uint64
	PainHistory     int
	PleasureHistory int
}
