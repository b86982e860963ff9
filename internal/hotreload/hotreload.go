// Package hotreload watches configuration files and tells registered
// components to reload when they change.
package hotreload

import (
	"time"

	"go.uber.org/zap"
)

// Manager wires a Watcher to a Coordinator
type Manager struct {
	watcher     *Watcher
	coordinator *Coordinator
	logger      *zap.Logger
	started     bool
}

func NewManager(logger *zap.Logger) (*Manager, error) {
	watcher, err := NewWatcher(logger)
	if err != nil {
		return nil, err
	}

	return &Manager{
		watcher:     watcher,
		coordinator: NewCoordinator(watcher, logger),
		logger:      logger,
	}, nil
}

func (m *Manager) AddWatch(path string) error {
	return m.watcher.Add(path)
}

func (m *Manager) RegisterReloadable(reloadable Reloadable) error {
	return m.coordinator.Register(reloadable)
}

func (m *Manager) Start() error {
	if m.started {
		return nil
	}
	if err := m.coordinator.Start(); err != nil {
		return err
	}

	m.started = true
	m.logger.Info("Hot reload system started")
	return nil
}

// Stop shuts the watcher down. The manager cannot be started again.
func (m *Manager) Stop() {
	if !m.started {
		m.watcher.Stop()
		return
	}

	m.coordinator.Stop()
	m.started = false
	m.logger.Info("Hot reload system stopped")
}

// Trigger schedules a reload as if the watched files had changed.
func (m *Manager) Trigger() {
	m.coordinator.Trigger()
}

func (m *Manager) SetDebounceTime(d time.Duration) {
	m.coordinator.SetDebounceTime(d)
}

func (m *Manager) IsRunning() bool {
	return m.started
}
