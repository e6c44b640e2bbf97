package opsnotify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordNotifier_Notify(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewDiscordNotifier(srv.URL)
	err := n.Notify(Fault{
		Component: "autoconfig",
		Severity:  SeverityCritical,
		Message:   "poll failed",
		Detail:    "disk full",
		Time:      time.Unix(0, 0),
	})
	require.NoError(t, err)

	embeds := captured["embeds"].([]interface{})
	require.Len(t, embeds, 1)
	embed := embeds[0].(map[string]interface{})
	assert.Contains(t, embed["title"], "autoconfig")
	assert.Contains(t, embed["title"], "CRITICAL")
}

func TestTelegramNotifier_Notify(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := &TelegramNotifier{BotToken: "token", ChatID: "123", httpClient: srv.Client()}
	n.apiBase = srv.URL
	err := n.Notify(Fault{
		Component: "evalengine",
		Severity:  SeverityWarning,
		Message:   "lua sandbox timeout",
		Time:      time.Unix(0, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, "123", captured["chat_id"])
	assert.Contains(t, captured["text"], "evalengine")
}

func TestMulti_NotifyCollectsErrors(t *testing.T) {
	bad := &DiscordNotifier{WebhookURL: "http://127.0.0.1:1", httpClient: srvTimeoutClient()}
	m := Multi{bad}
	err := m.Notify(Fault{Component: "x", Severity: SeverityInfo, Message: "m", Time: time.Unix(0, 0)})
	assert.Error(t, err)
}

func srvTimeoutClient() *http.Client {
	return &http.Client{Timeout: 50 * time.Millisecond}
}
