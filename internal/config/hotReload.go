package config

import (
	"fmt"
	"time"
)

// maxDebounce bounds how long a config edit may sit unapplied
const maxDebounce = time.Minute

// HotReloadConfig controls re-reading the config file while running. Only the
// log level and the API key set are applied; listener settings need a restart.
type HotReloadConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Debounce time.Duration `json:"debounce" yaml:"debounce"`
}

func DefaultHotReloadConfig() HotReloadConfig {
	return HotReloadConfig{
		Enabled:  true,
		Debounce: 500 * time.Millisecond,
	}
}

func (h HotReloadConfig) Validate() error {
	switch {
	case h.Debounce < 0:
		return fmt.Errorf("debounce must be non-negative, got %s", h.Debounce)
	case h.Debounce > maxDebounce:
		return fmt.Errorf("debounce must not exceed %s, got %s", maxDebounce, h.Debounce)
	}
	return nil
}
