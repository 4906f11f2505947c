package p2p

// Metrics is the narrow observability sink the state machine reports
// through. internal/metrics.Collector implements this with Prometheus
// instruments; NopMetrics discards everything (default, and used in tests).
type Metrics interface {
	ConnectionAttempt(result string)
	StateEntered(s DeviceState)
	IEPublished()
}

type NopMetrics struct{}

func (NopMetrics) ConnectionAttempt(string) {}
func (NopMetrics) StateEntered(DeviceState) {}
func (NopMetrics) IEPublished()             {}
