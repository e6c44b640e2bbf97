package autoconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/42ity/fty-alert-engine-sub000/internal/secure"
)

// deviceInfo is the per-asset bookkeeping record the autoconfigurator
// persists, equivalent to the original AutoConfigurationInfo.
type deviceInfo struct {
	Type       string            `json:"type"`
	Subtype    string            `json:"subtype"`
	UpdateTS   string            `json:"update_ts"`
	Configured bool              `json:"configured"`
	Attempted  bool              `json:"attempted"`
	Attributes map[string]string `json:"attributes"`
}

// wireState is the state file's on-disk shape. SaveState encrypts each
// device's contact_email/contact_sms attributes before writing it (the one
// PII the asset model carries).
type wireState struct {
	Devices    map[string]deviceInfo `json:"devices"`
	Containers map[string]string     `json:"containers"`
}

func (a *Autoconfig) statePath() string {
	return filepath.Join(a.cfg.StateDir, "state")
}

// LoadState reads the persisted configurableDevices map and containers
// index, decrypting PII attributes. A missing state file is not an error
// (first run).
func (a *Autoconfig) LoadState() error {
	data, err := os.ReadFile(a.statePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("autoconfig: read state: %w", err)
	}
	var ws wireState
	if err := json.Unmarshal(data, &ws); err != nil {
		return fmt.Errorf("autoconfig: parse state: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.devices = make(map[string]deviceInfo, len(ws.Devices))
	for id, info := range ws.Devices {
		decryptPII(a.cipher, info.Attributes)
		a.devices[id] = info
	}
	a.containers = ws.Containers
	if a.containers == nil {
		a.containers = make(map[string]string)
	}
	return nil
}

// SaveState persists the current configurableDevices map and containers
// index, encrypting PII attributes, via temp-file-then-rename.
func (a *Autoconfig) SaveState() error {
	a.mu.Lock()
	devices := make(map[string]deviceInfo, len(a.devices))
	for id, info := range a.devices {
		cp := info
		cp.Attributes = cloneAttrs(info.Attributes)
		encryptPII(a.cipher, cp.Attributes)
		devices[id] = cp
	}
	containers := make(map[string]string, len(a.containers))
	for k, v := range a.containers {
		containers[k] = v
	}
	a.mu.Unlock()

	data, err := json.Marshal(wireState{Devices: devices, Containers: containers})
	if err != nil {
		return fmt.Errorf("autoconfig: serialize state: %w", err)
	}

	if err := os.MkdirAll(a.cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("autoconfig: create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(a.cfg.StateDir, ".tmp-state-*")
	if err != nil {
		return fmt.Errorf("autoconfig: create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("autoconfig: write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("autoconfig: close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, a.statePath()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("autoconfig: rename state file into place: %w", err)
	}
	return nil
}

var piiAttributes = []string{"contact_email", "contact_sms"}

func encryptPII(c *secure.Cipher, attrs map[string]string) {
	if attrs == nil {
		return
	}
	for _, key := range piiAttributes {
		if v, ok := attrs[key]; ok && v != "" {
			enc, err := c.Encrypt(v)
			if err == nil {
				attrs[key] = enc
			}
		}
	}
}

func decryptPII(c *secure.Cipher, attrs map[string]string) {
	if attrs == nil {
		return
	}
	for _, key := range piiAttributes {
		if v, ok := attrs[key]; ok && v != "" {
			dec, err := c.Decrypt(v)
			if err == nil {
				attrs[key] = dec
			}
		}
	}
}

func cloneAttrs(attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
