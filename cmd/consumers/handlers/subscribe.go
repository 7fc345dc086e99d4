package handlers

// SubscribeAll attaches the audit and metrics handlers to every event name.
func SubscribeAll(bus Subscriber, names []string, auditH *AuditEvent, metricsH *MetricsEvent) {
	for _, name := range names {
		if auditH != nil {
			bus.Subscribe(name, auditH.HandleAny)
		}
		if metricsH != nil {
			bus.Subscribe(name, metricsH.HandleAny)
		}
	}
}
