package broker

// setupRoutes registers every HTTP/WS route this transport exposes.
func (b *Broker) setupRoutes() {
	b.App.Get("/health", b.getHealth)

	stream := b.App.Group("/stream")
	stream.Post("/metrics", b.postMetric)
	stream.Post("/metrics-unavailable", b.postMetricUnavailable)
	stream.Post("/assets", b.postAsset)

	b.App.Use("/stream/alerts", b.hub.upgradeRequired())
	b.App.Get("/stream/alerts", b.hub.handler())

	mailbox := b.App.Group("/mailbox", b.bearerAuth())
	mailbox.Post("/rfc-evaluator-rules", b.postMailbox)

	if b.autoconfig != nil {
		b.App.Get("/templates", b.listTemplates)
	}
}
