// Command engine is the composition root: it loads configuration, wires
// the rule catalog, alert engine, autoconfigurator, audit trail, metrics
// registry, and operator notifier together, then serves them over the
// broker transport until it receives a termination signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/42ity/fty-alert-engine-sub000/internal/alertengine"
	"github.com/42ity/fty-alert-engine-sub000/internal/audit"
	"github.com/42ity/fty-alert-engine-sub000/internal/autoconfig"
	"github.com/42ity/fty-alert-engine-sub000/internal/broker"
	"github.com/42ity/fty-alert-engine-sub000/internal/config"
	"github.com/42ity/fty-alert-engine-sub000/internal/metrics"
	"github.com/42ity/fty-alert-engine-sub000/internal/opsnotify"
	"github.com/42ity/fty-alert-engine-sub000/internal/rule"
	"github.com/42ity/fty-alert-engine-sub000/internal/secure"
	"github.com/42ity/fty-alert-engine-sub000/internal/selfhealth"
)

func main() {
	configPath := flag.String("config", "", "path to config.json (defaults to ./config.json)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[Engine] config load failed: %v", err)
	}

	catalog := rule.NewCatalog(cfg.Paths.RulesDir)
	if err := catalog.LoadAll(); err != nil {
		log.Fatalf("[Engine] rule catalog load failed: %v", err)
	}
	log.Printf("[Engine] rule catalog loaded from %s", cfg.Paths.RulesDir)

	reg := prometheus.NewRegistry()
	metricsReg := metrics.New(reg)
	catalog.SetMetrics(metricsReg)

	notifier := buildNotifier(cfg.OpsNotify)

	auditStore, err := audit.Open(cfg.Audit.DBPath)
	if err != nil {
		log.Fatalf("[Engine] audit store open failed: %v", err)
	}
	defer auditStore.Close()

	cipher, err := secure.NewCipher(cfg.Security.EncryptionKey)
	if err != nil {
		log.Fatalf("[Engine] cipher init failed: %v", err)
	}

	autoconfigCfg := autoconfig.Config{
		TemplatesDir:        cfg.Paths.TemplatesDir,
		StateDir:            cfg.Paths.StateDir,
		DefaultPollInterval: cfg.Poll.DefaultInterval,
		FastPollInterval:    cfg.Poll.FastInterval,
		DisableXPhaseFilter: cfg.Poll.DisableXPhaseFilter,
	}
	ac := autoconfig.New(autoconfigCfg, catalog, cipher)
	if err := ac.LoadState(); err != nil {
		log.Fatalf("[Engine] autoconfig state load failed: %v", err)
	}

	healthReporter, err := selfhealth.NewReporter()
	if err != nil {
		log.Printf("[Engine] self-health reporter unavailable: %v", err)
		healthReporter = nil
	}

	var b *broker.Broker
	engine := alertengine.New(catalog, func(m alertengine.Message) {
		if b != nil {
			b.Publish(m)
		}
		auditStore.Record("", "alert."+string(m.State), "engine", m.Subject(), m.Description)
	})
	engine.SetMetrics(metricsReg)

	mailboxToken := cfg.Security.MailboxToken
	if mailboxToken == "" {
		mailboxToken = secure.GenerateMailboxToken()
		log.Printf("[Engine] no mailbox token configured, generated one for this run")
	}

	b = broker.New(broker.Config{
		Catalog:      catalog,
		Engine:       engine,
		Autoconfig:   ac,
		Audit:        auditStore,
		Metrics:      metricsReg,
		Notifier:     notifier,
		Health:       healthReporter,
		MailboxToken: mailboxToken,
	})
	b.App.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	pollCron := newAutoconfigScheduler(ac, metricsReg, notifier)
	pollCron.Start()
	defer pollCron.Stop()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		if err := b.ListenAndServe(addr); err != nil {
			log.Printf("[Engine] broker stopped: %v", err)
		}
	}()

	waitForShutdown(b)
}

// autoconfigScheduler drives the polling pass on a cron entry whose
// cadence is swapped between the default and fast intervals depending on
// whether any asset is still awaiting configuration. robfig/cron doesn't
// support changing an entry's spec in place, so each pass removes and
// re-adds the entry if the desired cadence changed.
type autoconfigScheduler struct {
	cron        *cron.Cron
	ac          *autoconfig.Autoconfig
	reg         *metrics.Registry
	notifier    opsnotify.Notifier
	entryID     cron.EntryID
	currentFast bool
}

func newAutoconfigScheduler(ac *autoconfig.Autoconfig, reg *metrics.Registry, notifier opsnotify.Notifier) *autoconfigScheduler {
	s := &autoconfigScheduler{cron: cron.New(), ac: ac, reg: reg, notifier: notifier}
	s.reschedule(false)
	return s
}

func (s *autoconfigScheduler) Start() { s.cron.Start() }
func (s *autoconfigScheduler) Stop()  { s.cron.Stop() }

func (s *autoconfigScheduler) reschedule(fast bool) {
	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}
	spec := fmt.Sprintf("@every %s", s.ac.PollInterval())
	id, err := s.cron.AddFunc(spec, s.runOnce)
	if err != nil {
		log.Fatalf("[Engine] failed to schedule autoconfig poll: %v", err)
	}
	s.entryID = id
	s.currentFast = fast
}

func (s *autoconfigScheduler) runOnce() {
	anyPending, err := s.ac.PollOnce(time.Now())
	s.reg.AutoconfigPolls.Inc()
	if err != nil {
		log.Printf("[Autoconfig] poll failed: %v", err)
		if s.notifier != nil {
			s.notifier.Notify(opsnotify.Fault{
				Component: "autoconfig",
				Severity:  opsnotify.SeverityCritical,
				Message:   "poll pass failed",
				Detail:    err.Error(),
				Time:      time.Now(),
			})
		}
		return
	}
	if anyPending {
		s.reg.AutoconfigBacklog.Set(1)
	} else {
		s.reg.AutoconfigBacklog.Set(0)
	}
	if anyPending != s.currentFast {
		s.reschedule(anyPending)
	}
}

func buildNotifier(cfg config.OpsNotifyConfig) opsnotify.Notifier {
	var notifiers opsnotify.Multi
	if cfg.DiscordWebhookURL != "" {
		notifiers = append(notifiers, opsnotify.NewDiscordNotifier(cfg.DiscordWebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, opsnotify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if len(notifiers) == 0 {
		return nil
	}
	return notifiers
}

func waitForShutdown(b *broker.Broker) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Printf("[Engine] shutdown signal received, draining")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		b.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("[Engine] shutdown timed out")
	}
}
