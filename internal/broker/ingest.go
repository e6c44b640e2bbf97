package broker

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/42ity/fty-alert-engine-sub000/internal/autoconfig"
	"github.com/42ity/fty-alert-engine-sub000/internal/metric"
	"github.com/42ity/fty-alert-engine-sub000/internal/opsnotify"
)

// metricFrame is the wire shape for one METRICS stream POST: fields match
// the broker message fields named in the external-interfaces table, with
// the element/type pair producing the topic.
type metricFrame struct {
	ElementSrc string `json:"element_src"`
	Type       string `json:"type"`
	Value      string `json:"value"`
	Unit       string `json:"unit"`
	TTL        uint32 `json:"ttl"`
}

// postMetric handles METRICS stream ingestion. Non-numeric values are
// dropped with a warning rather than failing the request, matching the
// "asset-stream, metric-stream ... parse failures are non-fatal" policy.
func (b *Broker) postMetric(c *fiber.Ctx) error {
	var frame metricFrame
	if err := c.BodyParser(&frame); err != nil {
		b.reportFault("broker", opsnotify.SeverityWarning, "malformed metric frame", err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad frame"})
	}

	value, err := strconv.ParseFloat(frame.Value, 64)
	if err != nil {
		b.reportFault("broker", opsnotify.SeverityWarning, "non-numeric metric value dropped", frame.ElementSrc+"@"+frame.Type)
		return c.SendStatus(fiber.StatusAccepted)
	}

	b.engine.OnMetricSample(metric.Sample{
		ElementName: frame.ElementSrc,
		Type:        frame.Type,
		Unit:        frame.Unit,
		Value:       value,
		TimestampS:  metric.Now(),
		TTLSeconds:  frame.TTL,
	})
	return c.SendStatus(fiber.StatusAccepted)
}

type metricUnavailableFrame struct {
	Topic string `json:"topic"`
}

// postMetricUnavailable handles METRICUNAVAILABLE frames.
func (b *Broker) postMetricUnavailable(c *fiber.Ctx) error {
	var frame metricUnavailableFrame
	if err := c.BodyParser(&frame); err != nil || frame.Topic == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad frame"})
	}
	b.engine.OnMetricUnavailable(frame.Topic)
	return c.SendStatus(fiber.StatusAccepted)
}

// assetFrame is the wire shape for one ASSETS stream POST.
type assetFrame struct {
	Operation string            `json:"operation"`
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	Type      string            `json:"type"`
	Subtype   string            `json:"subtype"`
	ExtAttrs  map[string]string `json:"ext_attrs"`
	AuxAttrs  map[string]string `json:"aux_attrs"`
}

// postAsset handles ASSETS stream ingestion: it reconciles the
// autoconfigurator's inventory and, for a delete event or a non-active
// asset status, cascades catalog removals plus their alert resolution.
func (b *Broker) postAsset(c *fiber.Ctx) error {
	if b.autoconfig == nil {
		return c.SendStatus(fiber.StatusServiceUnavailable)
	}

	var frame assetFrame
	if err := c.BodyParser(&frame); err != nil {
		b.reportFault("broker", opsnotify.SeverityWarning, "malformed asset frame", err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad frame"})
	}

	removed, err := b.autoconfig.OnAsset(autoconfig.Event{
		Operation: autoconfig.Operation(frame.Operation),
		Asset: autoconfig.Asset{
			ID:       frame.ID,
			Status:   frame.Status,
			Type:     frame.Type,
			Subtype:  frame.Subtype,
			ExtAttrs: frame.ExtAttrs,
			AuxAttrs: frame.AuxAttrs,
		},
	})
	if err != nil {
		b.reportFault("autoconfig", opsnotify.SeverityCritical, "asset reconciliation failed", err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}

	for _, r := range removed {
		b.engine.ResolveRule(r)
		if b.auditStore != nil {
			b.auditStore.Record(c.Get("X-Correlation-Id"), "rule.delete_element", "autoconfig", r.Name, "removed on asset delete")
		}
	}
	return c.SendStatus(fiber.StatusAccepted)
}
