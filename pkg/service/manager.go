package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/small-frappuccino/modcore/pkg/log"
)

// ServiceState is where a service is in its lifecycle.
type ServiceState string

const (
	StateRegistered ServiceState = "registered"
	StateRunning    ServiceState = "running"
	StateStopped    ServiceState = "stopped"
	StateError      ServiceState = "error"
)

// ServiceType groups services for logging.
type ServiceType string

const (
	TypeScheduler ServiceType = "scheduler"
	TypeTasks     ServiceType = "tasks"
	TypeEvents    ServiceType = "events"
	TypeCommands  ServiceType = "commands"
)

// ServicePriority orders services that do not depend on each other.
// Higher starts first and stops last.
type ServicePriority int

const (
	PriorityLow    ServicePriority = 1
	PriorityNormal ServicePriority = 5
	PriorityHigh   ServicePriority = 10
)

// Service is a long-lived component with a start/stop lifecycle.
type Service interface {
	Name() string
	Type() ServiceType
	Priority() ServicePriority
	// Dependencies names the services that must be running first.
	Dependencies() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

// Status is the manager's bookkeeping for one service.
type Status struct {
	State    ServiceState
	Since    time.Time
	Failures int
	LastErr  error
}

type entry struct {
	svc    Service
	status Status
}

// ServiceManager starts services in dependency order and stops them in
// reverse.
type ServiceManager struct {
	mu      sync.Mutex
	entries map[string]*entry
	started []string // start sequence of the running services

	StartTimeout time.Duration
	StopTimeout  time.Duration
}

func NewServiceManager() *ServiceManager {
	return &ServiceManager{
		entries:      make(map[string]*entry),
		StartTimeout: 30 * time.Second,
		StopTimeout:  30 * time.Second,
	}
}

// Register adds a service. Names must be unique.
func (sm *ServiceManager) Register(svc Service) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	name := svc.Name()
	if _, dup := sm.entries[name]; dup {
		return fmt.Errorf("service '%s' is already registered", name)
	}
	sm.entries[name] = &entry{svc: svc, status: Status{State: StateRegistered, Since: time.Now()}}
	log.Info().Applicationf("Service registered: service=%s type=%s priority=%d dependencies=%v",
		name, svc.Type(), svc.Priority(), svc.Dependencies())
	return nil
}

// StartAll starts every service. When one fails, the ones already started
// are stopped again and the start error is returned.
func (sm *ServiceManager) StartAll() error {
	order, err := sm.startOrder()
	if err != nil {
		return err
	}
	log.Info().Applicationf("Starting services: %s", strings.Join(order, ", "))
	for _, name := range order {
		if err := sm.start(name); err != nil {
			if stopErr := sm.StopAll(); stopErr != nil {
				log.Error().Errorf("Rollback after failed start left errors: %v", stopErr)
			}
			return fmt.Errorf("failed to start service '%s': %w", name, err)
		}
	}
	log.Info().Applicationf("All services started; services_count=%d", len(order))
	return nil
}

// StopAll stops running services in reverse start order and joins their
// errors.
func (sm *ServiceManager) StopAll() error {
	sm.mu.Lock()
	seq := slices.Clone(sm.started)
	sm.mu.Unlock()

	var errs []error
	for _, name := range slices.Backward(seq) {
		if err := sm.stop(name); err != nil {
			errs = append(errs, fmt.Errorf("service '%s': %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Status reports the bookkeeping for name.
func (sm *ServiceManager) Status(name string) (Status, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	e, ok := sm.entries[name]
	if !ok {
		return Status{}, false
	}
	return e.status, true
}

// Running returns the names of running services in start order.
func (sm *ServiceManager) Running() []string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return slices.Clone(sm.started)
}

func (sm *ServiceManager) start(name string) error {
	sm.mu.Lock()
	e := sm.entries[name]
	sm.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), sm.StartTimeout)
	defer cancel()
	err := e.svc.Start(ctx)

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if err != nil {
		e.status.Failures++
		e.status.LastErr = err
		e.setState(StateError)
		return err
	}
	e.setState(StateRunning)
	sm.started = append(sm.started, name)
	log.Info().Applicationf("service %s: started", name)
	return nil
}

func (sm *ServiceManager) stop(name string) error {
	sm.mu.Lock()
	e := sm.entries[name]
	sm.started = slices.DeleteFunc(sm.started, func(n string) bool { return n == name })
	sm.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), sm.StopTimeout)
	defer cancel()
	err := e.svc.Stop(ctx)

	sm.mu.Lock()
	defer sm.mu.Unlock()
	e.setState(StateStopped)
	if err != nil {
		e.status.Failures++
		e.status.LastErr = err
		log.Error().Errorf("Service %s stopped with errors: %v", name, err)
		return err
	}
	log.Info().Applicationf("service %s: stopped", name)
	return nil
}

func (e *entry) setState(s ServiceState) {
	e.status.State = s
	e.status.Since = time.Now()
}

// startOrder is a topological sort of the registered services. Among the
// services whose dependencies are satisfied, higher priority goes first and
// ties go by name.
func (sm *ServiceManager) startOrder() ([]string, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	waiting := make(map[string]int, len(sm.entries))
	dependents := make(map[string][]string)
	for name, e := range sm.entries {
		for _, dep := range e.svc.Dependencies() {
			if _, ok := sm.entries[dep]; !ok {
				return nil, fmt.Errorf("service '%s' depends on unknown service '%s'", name, dep)
			}
			waiting[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name := range sm.entries {
		if waiting[name] == 0 {
			ready = append(ready, name)
		}
	}
	order := make([]string, 0, len(sm.entries))
	for len(ready) > 0 {
		slices.SortFunc(ready, func(a, b string) int {
			pa, pb := sm.entries[a].svc.Priority(), sm.entries[b].svc.Priority()
			if pa != pb {
				return cmp.Compare(pb, pa)
			}
			return strings.Compare(a, b)
		})
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, d := range dependents[next] {
			if waiting[d]--; waiting[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(order) != len(sm.entries) {
		var stuck []string
		for name := range sm.entries {
			if !slices.Contains(order, name) {
				stuck = append(stuck, name)
			}
		}
		slices.Sort(stuck)
		return nil, fmt.Errorf("circular dependency between services: %s", strings.Join(stuck, ", "))
	}
	return order, nil
}
