// Package broker is the default fiber/websocket transport binding the
// engine's external interfaces: POST ingestion for metric samples,
// metric-unavailable signals and asset events, a websocket stream for
// alerts, and an HTTP mailbox endpoint for the rule catalog RPC.
package broker

import (
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/42ity/fty-alert-engine-sub000/internal/alertengine"
	"github.com/42ity/fty-alert-engine-sub000/internal/audit"
	"github.com/42ity/fty-alert-engine-sub000/internal/autoconfig"
	"github.com/42ity/fty-alert-engine-sub000/internal/metrics"
	"github.com/42ity/fty-alert-engine-sub000/internal/opsnotify"
	"github.com/42ity/fty-alert-engine-sub000/internal/rule"
	"github.com/42ity/fty-alert-engine-sub000/internal/selfhealth"
)

// Broker wires the catalog, the alert engine, and the autoconfigurator to
// the outside world over HTTP and WebSocket.
type Broker struct {
	App *fiber.App

	catalog    *rule.Catalog
	engine     *alertengine.Engine
	autoconfig *autoconfig.Autoconfig
	auditStore *audit.Store
	metrics    *metrics.Registry
	notifier   opsnotify.Notifier
	health     *selfhealth.Reporter

	hub *Hub

	// MailboxToken authenticates the rfc-evaluator-rules RPC, if non-empty.
	MailboxToken string
}

// Config names every collaborator a Broker needs; any may be left nil
// except catalog and engine.
type Config struct {
	Catalog      *rule.Catalog
	Engine       *alertengine.Engine
	Autoconfig   *autoconfig.Autoconfig
	Audit        *audit.Store
	Metrics      *metrics.Registry
	Notifier     opsnotify.Notifier
	Health       *selfhealth.Reporter
	MailboxToken string
}

// New builds a Broker and registers every route.
func New(cfg Config) *Broker {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	b := &Broker{
		App:          app,
		catalog:      cfg.Catalog,
		engine:       cfg.Engine,
		autoconfig:   cfg.Autoconfig,
		auditStore:   cfg.Audit,
		metrics:      cfg.Metrics,
		notifier:     cfg.Notifier,
		health:       cfg.Health,
		hub:          NewHub(),
		MailboxToken: cfg.MailboxToken,
	}

	go b.hub.Run()

	app.Use(recover.New(recover.Config{
		EnableStackTrace: os.Getenv("FTY_SERVER_MODE") != "production",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	b.setupRoutes()
	return b
}

// Publish hands a Message to the ALERTS websocket stream. Pass this as the
// alertengine.Publisher when constructing the Engine so emitted messages
// reach the broker.
func (b *Broker) Publish(m alertengine.Message) {
	b.hub.Broadcast(m)
}

// ListenAndServe starts the HTTP/WS listener on addr, blocking until it
// exits or errors.
func (b *Broker) ListenAndServe(addr string) error {
	log.Printf("[Broker] listening on %s", addr)
	return b.App.Listen(addr)
}

// Shutdown gracefully drains in-flight requests.
func (b *Broker) Shutdown() error {
	return b.App.Shutdown()
}

func (b *Broker) reportFault(component string, severity opsnotify.Severity, msg, detail string) {
	log.Printf("[Broker] %s: %s", component, msg)
	if b.notifier == nil {
		return
	}
	if err := b.notifier.Notify(opsnotify.Fault{
		Component: component,
		Severity:  severity,
		Message:   msg,
		Detail:    detail,
		Time:      time.Now(),
	}); err != nil {
		log.Printf("[Broker] opsnotify delivery failed: %v", err)
	}
}
