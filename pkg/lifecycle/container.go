// Package lifecycle coordinates construction, startup and shutdown of the
// engine's subsystems. Services declare dependencies by name; the container
// computes a topological start order, rolls back on partial failure, and
// stops everything in reverse order on shutdown.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hudhaifi/murattal/pkg/logging"
)

// ErrCyclicDependency is returned by StartAll when the declared dependency
// graph has no valid order. It is detected before any service is constructed.
var ErrCyclicDependency = errors.New("lifecycle: cyclic dependency")

// ServiceState tracks a service through its lifecycle.
type ServiceState int

const (
	StateUninitialized ServiceState = iota
	StateInitialized
	StateRunning
	StateStopped
	StateFailed
)

func (s ServiceState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Descriptor describes a registered service.
type Descriptor struct {
	Name         string
	Dependencies []string
	State        ServiceState
}

// Service is a startable/stoppable subsystem.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Factory constructs a service. It runs only after all dependencies are
// running.
type Factory func() (Service, error)

// ServiceFunc adapts start/stop functions to the Service interface. Either
// may be nil.
type ServiceFunc struct {
	StartFunc func(ctx context.Context) error
	StopFunc  func(ctx context.Context) error
}

func (s ServiceFunc) Start(ctx context.Context) error {
	if s.StartFunc == nil {
		return nil
	}
	return s.StartFunc(ctx)
}

func (s ServiceFunc) Stop(ctx context.Context) error {
	if s.StopFunc == nil {
		return nil
	}
	return s.StopFunc(ctx)
}

type registration struct {
	desc    Descriptor
	factory Factory
	service Service
}

// Config controls container behavior.
type Config struct {
	// InitTimeout bounds each service's Start call. Zero means no limit.
	InitTimeout time.Duration

	// StopTimeout bounds each service's Stop call. Zero means no limit.
	StopTimeout time.Duration
}

// Container is the service lifecycle coordinator.
type Container struct {
	cfg    Config
	logger logging.Logger

	mu         sync.Mutex
	entries    map[string]*registration
	names      []string // registration order, for stable topo sorting
	startOrder []string
	started    bool
	stopped    bool
}

// NewContainer creates an empty container.
func NewContainer(cfg Config, logger logging.Logger) *Container {
	if logger == nil {
		logger = logging.Default()
	}
	return &Container{
		cfg:     cfg,
		logger:  logger.With(logging.String("component", "lifecycle")),
		entries: make(map[string]*registration),
	}
}

// Register adds a service. Names must be unique; dependencies are validated
// at StartAll.
func (c *Container) Register(name string, dependencies []string, factory Factory) error {
	if name == "" {
		return errors.New("lifecycle: service name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("lifecycle: service %q has no factory", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[name]; exists {
		return fmt.Errorf("lifecycle: service %q already registered", name)
	}

	c.entries[name] = &registration{
		desc: Descriptor{
			Name:         name,
			Dependencies: append([]string(nil), dependencies...),
			State:        StateUninitialized,
		},
		factory: factory,
	}
	c.names = append(c.names, name)
	return nil
}

// StartAll constructs and starts every service in dependency order. On any
// failure, services already started are stopped in reverse order and the
// error is returned; no partially initialized system is left running.
func (c *Container) StartAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return errors.New("lifecycle: container already started")
	}

	order, err := c.topoOrderLocked()
	if err != nil {
		return err
	}
	c.startOrder = order

	var launched []string
	for _, name := range order {
		reg := c.entries[name]

		svc, err := reg.factory()
		if err != nil {
			reg.desc.State = StateFailed
			c.rollbackLocked(launched)
			return fmt.Errorf("lifecycle: construct %q: %w", name, err)
		}
		reg.service = svc
		reg.desc.State = StateInitialized

		startCtx := ctx
		var cancel context.CancelFunc
		if c.cfg.InitTimeout > 0 {
			startCtx, cancel = context.WithTimeout(ctx, c.cfg.InitTimeout)
		}
		err = svc.Start(startCtx)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			reg.desc.State = StateFailed
			c.rollbackLocked(launched)
			return fmt.Errorf("lifecycle: start %q: %w", name, err)
		}

		reg.desc.State = StateRunning
		launched = append(launched, name)
		c.logger.Info("Service started", logging.String("service", name))
	}

	c.started = true
	return nil
}

// StopAll stops all running services in reverse start order. It is
// idempotent and best-effort: individual stop failures are collected and the
// rest still stop.
func (c *Container) StopAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}
	c.stopped = true

	var errs []error
	for i := len(c.startOrder) - 1; i >= 0; i-- {
		name := c.startOrder[i]
		reg := c.entries[name]
		if reg.desc.State != StateRunning {
			continue
		}
		if err := c.stopOneLocked(reg); err != nil {
			errs = append(errs, fmt.Errorf("stop %q: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("lifecycle: shutdown completed with errors: %w", errors.Join(errs...))
	}
	return nil
}

// HealthReport returns a snapshot of every registered service descriptor in
// registration order.
func (c *Container) HealthReport() []Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()

	report := make([]Descriptor, 0, len(c.names))
	for _, name := range c.names {
		d := c.entries[name].desc
		d.Dependencies = append([]string(nil), d.Dependencies...)
		report = append(report, d)
	}
	return report
}

// rollbackLocked stops already-started services in reverse order.
func (c *Container) rollbackLocked(launched []string) {
	for i := len(launched) - 1; i >= 0; i-- {
		reg := c.entries[launched[i]]
		if err := c.stopOneLocked(reg); err != nil {
			c.logger.Warn("Rollback stop failed",
				logging.String("service", launched[i]),
				logging.Error(err),
			)
		}
	}
}

func (c *Container) stopOneLocked(reg *registration) error {
	ctx := context.Background()
	var cancel context.CancelFunc
	if c.cfg.StopTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.cfg.StopTimeout)
		defer cancel()
	}

	err := reg.service.Stop(ctx)
	if err != nil {
		reg.desc.State = StateFailed
		return err
	}
	reg.desc.State = StateStopped
	c.logger.Info("Service stopped", logging.String("service", reg.desc.Name))
	return nil
}

// topoOrderLocked computes a dependency-respecting start order (Kahn's
// algorithm over registration order for stability). Unknown dependencies and
// cycles fail before anything is constructed.
func (c *Container) topoOrderLocked() ([]string, error) {
	indegree := make(map[string]int, len(c.entries))
	dependents := make(map[string][]string, len(c.entries))

	for _, name := range c.names {
		reg := c.entries[name]
		for _, dep := range reg.desc.Dependencies {
			if _, ok := c.entries[dep]; !ok {
				return nil, fmt.Errorf("lifecycle: service %q depends on unknown service %q", name, dep)
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var queue []string
	for _, name := range c.names {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	order := make([]string, 0, len(c.names))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)
		for _, dep := range dependents[name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) != len(c.names) {
		return nil, ErrCyclicDependency
	}
	return order, nil
}
