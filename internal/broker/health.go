package broker

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// listTemplates exposes the autoconfigurator's template listing
// interface, optionally filtered by a category tag matched against the
// template body.
func (b *Broker) listTemplates(c *fiber.Ctx) error {
	templates, err := b.autoconfig.ListTemplates(c.Query("category"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	return c.JSON(templates)
}

// getHealth reports a liveness summary: engine self health, alert count,
// and websocket subscriber count. Used by orchestrators, not by any asset
// monitoring path — this is the engine's own health, not an asset's.
func (b *Broker) getHealth(c *fiber.Ctx) error {
	resp := fiber.Map{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}

	if b.engine != nil {
		resp["alerts"] = len(b.engine.Alerts())
	}
	resp["alert_subscribers"] = b.hub.ClientCount()

	if b.health != nil {
		if snap, err := b.health.Sample(0); err == nil {
			resp["self"] = fiber.Map{
				"cpu_percent":    snap.CPUPercent,
				"memory_rss_mb":  snap.MemoryRSSMB,
				"memory_percent": snap.MemoryPercent,
				"goroutines":     snap.Goroutines,
			}
		}
	}

	return c.JSON(resp)
}
