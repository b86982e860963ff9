package hotreload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reloadable is a component that re-reads its configuration on demand
type Reloadable interface {
	Reload(ctx context.Context) error
	Name() string
}

// Coordinator batches watcher events and reloads every registered component
// once the events have been quiet for the debounce time.
type Coordinator struct {
	watcher      *Watcher
	logger       *zap.Logger
	reloadables  map[string]Reloadable
	manual       chan struct{}
	ctx          context.Context
	cancel       context.CancelFunc
	mu           sync.RWMutex
	debounceTime time.Duration
	wg           sync.WaitGroup
	isRunning    bool
}

func NewCoordinator(watcher *Watcher, logger *zap.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		watcher:      watcher,
		logger:       logger,
		reloadables:  make(map[string]Reloadable),
		manual:       make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
		debounceTime: 500 * time.Millisecond,
	}
}

func (c *Coordinator) Register(reloadable Reloadable) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := reloadable.Name()
	if _, exists := c.reloadables[name]; exists {
		return fmt.Errorf("reloadable %s already registered", name)
	}

	c.reloadables[name] = reloadable
	c.logger.Info("Registered reloadable component", zap.String("name", name))
	return nil
}

func (c *Coordinator) Start() error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return fmt.Errorf("coordinator already running")
	}
	c.isRunning = true
	c.mu.Unlock()

	c.watcher.Start()

	c.wg.Add(1)
	go c.coordinateReloads()

	c.logger.Info("Hot reload coordinator started")
	return nil
}

func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return
	}
	c.isRunning = false
	c.mu.Unlock()

	c.cancel()
	c.watcher.Stop()
	c.wg.Wait()

	c.logger.Info("Hot reload coordinator stopped")
}

// Trigger requests a reload without a file event, subject to the same
// debounce. Requests made while one is pending are merged.
func (c *Coordinator) Trigger() {
	select {
	case c.manual <- struct{}{}:
	default:
	}
}

func (c *Coordinator) coordinateReloads() {
	defer c.wg.Done()

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending int
	)

	arm := func() {
		c.mu.RLock()
		d := c.debounceTime
		c.mu.RUnlock()

		if timer == nil {
			timer = time.NewTimer(d)
		} else {
			timer.Reset(d)
		}
		timerC = timer.C
	}

	for {
		select {
		case <-c.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-c.watcher.Events():
			if !ok {
				return
			}
			c.logger.Debug("Reload queued",
				zap.String("path", event.Path),
				zap.String("operation", event.Op.String()),
			)
			pending++
			arm()

		case <-c.manual:
			c.logger.Debug("Manual reload queued")
			pending++
			arm()

		case <-timerC:
			timerC = nil
			if pending > 0 {
				c.triggerReload(pending)
				pending = 0
			}
		}
	}
}

func (c *Coordinator) triggerReload(events int) {
	c.mu.RLock()
	reloadables := make([]Reloadable, 0, len(c.reloadables))
	for _, r := range c.reloadables {
		reloadables = append(reloadables, r)
	}
	c.mu.RUnlock()

	if len(reloadables) == 0 {
		return
	}

	c.logger.Info("Triggering hot reload", zap.Int("events", events))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, reloadable := range reloadables {
		wg.Add(1)
		go func(r Reloadable) {
			defer wg.Done()
			if err := r.Reload(c.ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("failed to reload %s: %w", r.Name(), err))
				mu.Unlock()
				return
			}
			c.logger.Info("Successfully reloaded component", zap.String("name", r.Name()))
		}(reloadable)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		c.logger.Error("Hot reload completed with errors", zap.Error(err))
		return
	}
	c.logger.Info("Hot reload completed successfully")
}

func (c *Coordinator) SetDebounceTime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debounceTime = d
}

func (c *Coordinator) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isRunning
}
