package service

import (
	"context"
	"sync"
)

// ServiceWrapper adapts components that expose plain start/stop functions,
// such as the reversion scheduler or the task router, to Service.
type ServiceWrapper struct {
	name         string
	serviceType  ServiceType
	priority     ServicePriority
	dependencies []string

	start func(ctx context.Context) error
	stop  func(ctx context.Context) error

	mu      sync.Mutex
	running bool
}

// NewServiceWrapper creates a wrapper. Either function may be nil.
func NewServiceWrapper(
	name string,
	serviceType ServiceType,
	priority ServicePriority,
	dependencies []string,
	startFunc func(ctx context.Context) error,
	stopFunc func(ctx context.Context) error,
) *ServiceWrapper {
	return &ServiceWrapper{
		name:         name,
		serviceType:  serviceType,
		priority:     priority,
		dependencies: dependencies,
		start:        startFunc,
		stop:         stopFunc,
	}
}

func (sw *ServiceWrapper) Name() string              { return sw.name }
func (sw *ServiceWrapper) Type() ServiceType         { return sw.serviceType }
func (sw *ServiceWrapper) Priority() ServicePriority { return sw.priority }
func (sw *ServiceWrapper) Dependencies() []string    { return sw.dependencies }

// Start runs the wrapped start function once.
func (sw *ServiceWrapper) Start(ctx context.Context) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.running {
		return nil
	}
	if sw.start != nil {
		if err := sw.start(ctx); err != nil {
			return err
		}
	}
	sw.running = true
	return nil
}

// Stop runs the wrapped stop function if the service is running.
func (sw *ServiceWrapper) Stop(ctx context.Context) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if !sw.running {
		return nil
	}
	sw.running = false
	if sw.stop != nil {
		return sw.stop(ctx)
	}
	return nil
}

func (sw *ServiceWrapper) IsRunning() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.running
}
