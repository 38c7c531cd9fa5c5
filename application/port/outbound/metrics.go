package outbound

// PipelineMetrics receives counters from the security pipeline and the audit
// dispatcher.
type PipelineMetrics interface {
	Rejection(reason string)
	RiskScore(action string, score int)
	AuditWritten(auditType string)
	AuditDropped(reason string)
	AuditFailed()
	AuditQueueDepth(n int)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) Rejection(string)      {}
func (NoopMetrics) RiskScore(string, int) {}
func (NoopMetrics) AuditWritten(string)   {}
func (NoopMetrics) AuditDropped(string)   {}
func (NoopMetrics) AuditFailed()          {}
func (NoopMetrics) AuditQueueDepth(int)   {}
