// Package opsnotify notifies operators of internal engine faults (the
// engine reports autoconfig poll failures, asset reconciliation failures,
// malformed or non-numeric stream frames, and audit write failures) over
// Discord and Telegram. This is distinct from asset alert
// dispatch (e-mail/SMS/GPO), which lives downstream of this engine and
// is out of scope here.
package opsnotify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Severity classifies an internal fault for color/emoji selection.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Fault is one internal-engine condition worth paging an operator about.
type Fault struct {
	Component string // "catalog", "autoconfig", "evalengine", "broker", ...
	Severity  Severity
	Message   string
	Detail    string
	Time      time.Time
}

// Notifier delivers a Fault to an external channel.
type Notifier interface {
	Notify(f Fault) error
}

// Multi fans a Fault out to every configured notifier, collecting (not
// short-circuiting on) individual delivery failures.
type Multi []Notifier

func (m Multi) Notify(f Fault) error {
	var errs []string
	for _, n := range m {
		if err := n.Notify(f); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("opsnotify: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DiscordNotifier posts faults to a Discord webhook.
type DiscordNotifier struct {
	WebhookURL string
	httpClient *http.Client
}

// NewDiscordNotifier builds a notifier for webhookURL.
func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{WebhookURL: webhookURL, httpClient: &http.Client{Timeout: 5 * time.Second}}
}

func severityColor(s Severity) (int, string) {
	switch s {
	case SeverityCritical:
		return 15158332, "🔴"
	case SeverityWarning:
		return 16776960, "🟡"
	default:
		return 3447003, "ℹ️"
	}
}

func (d *DiscordNotifier) Notify(f Fault) error {
	color, emoji := severityColor(f.Severity)

	embed := map[string]interface{}{
		"username": "fty-alert-engine",
		"embeds": []map[string]interface{}{
			{
				"title":       fmt.Sprintf("%s Engine fault [%s] — %s", emoji, strings.ToUpper(string(f.Severity)), f.Component),
				"description": f.Message,
				"color":       color,
				"timestamp":   f.Time.Format(time.RFC3339),
				"fields": []map[string]interface{}{
					{"name": "Component", "value": f.Component, "inline": true},
					{"name": "Detail", "value": orDash(f.Detail), "inline": false},
				},
			},
		},
	}

	payload, err := json.Marshal(embed)
	if err != nil {
		return fmt.Errorf("opsnotify: marshal discord payload: %w", err)
	}

	resp, err := d.httpClient.Post(d.WebhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("opsnotify: send discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("opsnotify: discord webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// TelegramNotifier posts faults via the Telegram Bot API.
type TelegramNotifier struct {
	BotToken   string
	ChatID     string
	httpClient *http.Client
	apiBase    string // overridden in tests; defaults to the real Bot API
}

// NewTelegramNotifier builds a notifier posting to chatID via botToken.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		BotToken:   botToken,
		ChatID:     chatID,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		apiBase:    "https://api.telegram.org",
	}
}

func severityLabel(s Severity) (string, string) {
	switch s {
	case SeverityCritical:
		return "🔴", "Critical"
	case SeverityWarning:
		return "🟡", "Warning"
	default:
		return "ℹ️", "Info"
	}
}

func (tg *TelegramNotifier) Notify(f Fault) error {
	emoji, label := severityLabel(f.Severity)

	text := fmt.Sprintf(
		"%s *Engine fault \\[%s\\]*\n\nComponent: %s\nTime: %s\nMessage: %s",
		emoji, label, f.Component, f.Time.Format("2006-01-02 15:04:05"), f.Message,
	)
	if f.Detail != "" {
		text += "\n\nDetail:\n" + f.Detail
	}

	payload, err := json.Marshal(map[string]interface{}{
		"chat_id":    tg.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("opsnotify: marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", tg.apiBase, tg.BotToken)
	resp, err := tg.httpClient.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("opsnotify: send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("opsnotify: telegram API returned status %d", resp.StatusCode)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
