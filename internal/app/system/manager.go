package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Manager starts services in registration order and stops them in reverse.
type Manager struct {
	mu       sync.Mutex
	services []Service
	names    map[string]bool
	started  []Service
}

func NewManager() *Manager {
	return &Manager{names: make(map[string]bool)}
}

// Register adds a service. Names must be unique.
func (m *Manager) Register(svc Service) error {
	if svc == nil {
		return errors.New("service is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	name := svc.Name()
	if name == "" {
		return errors.New("service name is required")
	}
	if m.names[name] {
		return fmt.Errorf("service %s already registered", name)
	}
	m.names[name] = true
	m.services = append(m.services, svc)
	return nil
}

// Start starts every registered service. When one fails, the services
// already started are stopped again.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, svc := range m.services {
		if err := svc.Start(ctx); err != nil {
			startErr := fmt.Errorf("start %s: %w", svc.Name(), err)
			if stopErr := m.stopLocked(ctx); stopErr != nil {
				return errors.Join(startErr, stopErr)
			}
			return startErr
		}
		m.started = append(m.started, svc)
	}
	return nil
}

// Stop stops started services in reverse order.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(ctx)
}

func (m *Manager) stopLocked(ctx context.Context) error {
	var errs []error
	for i := len(m.started) - 1; i >= 0; i-- {
		svc := m.started[i]
		if err := svc.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", svc.Name(), err))
		}
	}
	m.started = nil
	return errors.Join(errs...)
}

// NoopService is a placeholder for components without background work.
type NoopService struct {
	ServiceName string
}

func (n NoopService) Name() string                { return n.ServiceName }
func (n NoopService) Start(context.Context) error { return nil }
func (n NoopService) Stop(context.Context) error  { return nil }
