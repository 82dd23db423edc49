// Package config loads and persists the process-wide Settings resource: a
// JSON file merged against hard defaults on every load, mutable at runtime
// through the admin /settings endpoint and rewritten atomically on change.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Settings mirrors the on-disk settings.json schema (§6.3 of the spec).
type Settings struct {
	Port                int      `json:"port"`
	AllowedIPs          []string `json:"allowed_ips"`
	RateLimitPerSecond  int      `json:"rate_limit_per_second"`
	DataPath            string   `json:"data_path"`
	IndexPath           string   `json:"index_path"`
	UpsertIndexBuffer   int      `json:"upsert_index_buffer"`
	CompactIndexBuffer  int      `json:"compact_index_buffer"`
	DefaultScanLimit    int      `json:"default_scan_limit"`
	MaxScanLimit        int      `json:"max_scan_limit"`
	PayloadLimit        int      `json:"payload_limit"`
}

// Default returns the baseline configuration used to seed a missing
// settings.json and to fill in any zero-valued field found in one.
func Default() Settings {
	return Settings{
		Port:               8080,
		AllowedIPs:         []string{"127.0.0.1"},
		RateLimitPerSecond: 10,
		DataPath:           "./data",
		IndexPath:          "./index",
		UpsertIndexBuffer:  15_000_000,
		CompactIndexBuffer: 50_000_000,
		DefaultScanLimit:   100,
		MaxScanLimit:       1000,
		PayloadLimit:       2_097_152,
	}
}

// merge replaces every zero-valued (missing or empty, per §6.3) field of s
// with the matching default field and reports whether anything changed.
func merge(s *Settings, def Settings) bool {
	changed := false
	if s.Port == 0 {
		s.Port = def.Port
		changed = true
	}
	if len(s.AllowedIPs) == 0 {
		s.AllowedIPs = def.AllowedIPs
		changed = true
	}
	if s.RateLimitPerSecond == 0 {
		s.RateLimitPerSecond = def.RateLimitPerSecond
		changed = true
	}
	if s.DataPath == "" {
		s.DataPath = def.DataPath
		changed = true
	}
	if s.IndexPath == "" {
		s.IndexPath = def.IndexPath
		changed = true
	}
	if s.UpsertIndexBuffer == 0 {
		s.UpsertIndexBuffer = def.UpsertIndexBuffer
		changed = true
	}
	if s.CompactIndexBuffer == 0 {
		s.CompactIndexBuffer = def.CompactIndexBuffer
		changed = true
	}
	if s.DefaultScanLimit == 0 {
		s.DefaultScanLimit = def.DefaultScanLimit
		changed = true
	}
	if s.MaxScanLimit == 0 {
		s.MaxScanLimit = def.MaxScanLimit
		changed = true
	}
	if s.PayloadLimit == 0 {
		s.PayloadLimit = def.PayloadLimit
		changed = true
	}
	return changed
}

// Manager guards the live Settings behind a reader-writer lock and keeps
// the backing file in sync with every mutation, matching the "Settings:
// reader-writer lock; mutations are brief and immediately persisted"
// discipline of §5.
type Manager struct {
	mu       sync.RWMutex
	path     string
	settings Settings
	log      *zap.Logger
}

// Load reads path, merging in defaults for any missing/zero field and
// rewriting the file when the load is missing, invalid, or was patched by
// the merge. A brand-new path gets the defaults written to it.
func Load(path string, log *zap.Logger) (*Manager, error) {
	def := Default()
	m := &Manager{path: path, log: log}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		m.settings = def
		return m, m.persistLocked()
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		log.Warn("settings.json invalid, resetting to defaults", zap.Error(err))
		m.settings = def
		return m, m.persistLocked()
	}

	if merge(&s, def) {
		m.settings = s
		return m, m.persistLocked()
	}
	m.settings = s
	return m, nil
}

// Snapshot returns a copy of the current settings; callers must never keep
// a pointer into Manager's internal state across a mutation.
func (m *Manager) Snapshot() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// Apply merges the given field overrides into the live settings and
// persists the result. It mirrors the original's per-field switch over a
// generic JSON object so unknown keys are reported rather than rejected.
func (m *Manager) Apply(updates map[string]json.RawMessage) (applied []string, unknown []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, raw := range updates {
		var ok bool
		switch key {
		case "port":
			ok = setInt(&m.settings.Port, raw)
		case "rate_limit_per_second":
			ok = setInt(&m.settings.RateLimitPerSecond, raw)
		case "upsert_index_buffer":
			ok = setInt(&m.settings.UpsertIndexBuffer, raw)
		case "compact_index_buffer":
			ok = setInt(&m.settings.CompactIndexBuffer, raw)
		case "default_scan_limit":
			ok = setInt(&m.settings.DefaultScanLimit, raw)
		case "max_scan_limit":
			ok = setInt(&m.settings.MaxScanLimit, raw)
		case "payload_limit":
			ok = setInt(&m.settings.PayloadLimit, raw)
		case "data_path":
			ok = setString(&m.settings.DataPath, raw)
		case "index_path":
			ok = setString(&m.settings.IndexPath, raw)
		case "allowed_ips":
			var ips []string
			if err := json.Unmarshal(raw, &ips); err == nil {
				m.settings.AllowedIPs = ips
				ok = true
			}
		default:
			unknown = append(unknown, key)
			continue
		}
		if ok {
			applied = append(applied, key)
		} else {
			unknown = append(unknown, key)
		}
	}

	if err := m.persistLocked(); err != nil {
		m.log.Error("failed to persist settings", zap.Error(err))
	}
	return applied, unknown
}

func setInt(dst *int, raw json.RawMessage) bool {
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	*dst = v
	return true
}

func setString(dst *string, raw json.RawMessage) bool {
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	*dst = v
	return true
}

// persistLocked rewrites the settings file atomically (write-temp, rename)
// so a crash mid-write never leaves a truncated settings.json behind.
func (m *Manager) persistLocked() error {
	data, err := json.MarshalIndent(m.settings, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(m.path)
	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, m.path)
}
