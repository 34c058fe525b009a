// Package service provides a named service registry with a dependency DAG,
// failure-aware topological start/stop, and mutual service discovery that
// rejects reads of not-yet-started services.
package service

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "service")

// Error taxonomy for graph construction and lifecycle failures.
var (
	ErrDependencyCycle     = errors.New("dependency cycle")
	ErrDependencyNotStarted = errors.New("dependency not started")
	ErrUnknownService       = errors.New("unknown service")
	ErrAlreadyRegistered    = errors.New("service already registered")
)

// Service is the contract every member of the graph must satisfy.
// Dependencies names the services that must be started before this one;
// Started reports the current lifecycle state.
type Service interface {
	Dependencies() []string
	Start() error
	Stop() error
	Started() bool
}

// Graph is a named registry of services with dependency-ordered lifecycle
// control, logging a "started"/"stopped" entry per service as it
// transitions.
type Graph struct {
	mu         sync.Mutex
	order      []string // registration order; topological sort is stable over it
	services   map[string]Service
	startOrder []string // recorded at Start(), reversed by Stop()
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{services: make(map[string]Service)}
}

// RegisterService instantiates (the caller has already built svc) and adds
// it to the registry under name.
func (g *Graph) RegisterService(name string, svc Service) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.services[name]; exists {
		return errors.Wrapf(ErrAlreadyRegistered, "%s", name)
	}
	g.services[name] = svc
	g.order = append(g.order, name)
	return nil
}

// Service returns the named service, rejecting the lookup if it is not yet
// started — a fail-fast guard against init-order bugs in service discovery.
func (g *Graph) Service(name string) (Service, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	svc, ok := g.services[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownService, "%s", name)
	}
	if !svc.Started() {
		return nil, errors.Wrapf(ErrDependencyNotStarted, "%s", name)
	}
	return svc, nil
}

// Start builds the dependency DAG, topologically sorts it, and starts
// every service in dependency-first order. Any failure stops the sequence
// immediately; services already started remain started.
func (g *Graph) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	order, err := startOrder(g.order, g.services)
	if err != nil {
		return err
	}

	for _, name := range order {
		svc := g.services[name]
		for _, dep := range svc.Dependencies() {
			depSvc, ok := g.services[dep]
			if !ok || !depSvc.Started() {
				return errors.Wrapf(ErrDependencyNotStarted, "%s depends on %s", name, dep)
			}
		}
		if err := svc.Start(); err != nil {
			return errors.Wrapf(err, "starting %s", name)
		}
		log.WithField("service", name).Info("started")
		g.startOrder = append(g.startOrder, name)
	}
	return nil
}

// Stop stops every started service in reverse start order. Per-service
// stop errors are logged and do not abort the sequence.
func (g *Graph) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := len(g.startOrder) - 1; i >= 0; i-- {
		name := g.startOrder[i]
		if err := g.services[name].Stop(); err != nil {
			log.WithError(err).WithField("service", name).Error("stop failed, continuing")
			continue
		}
		log.WithField("service", name).Info("stopped")
	}
	g.startOrder = nil
}

// startOrder computes a dependency-first order via post-order DFS over
// registered-order nodes, so the same registration order always yields the
// same start order. Cycles (including self-reference through a chain) and
// references to unregistered services both fail the whole start before any
// service starts.
func startOrder(names []string, services map[string]Service) ([]string, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(names))
	order := make([]string, 0, len(names))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return errors.Wrapf(ErrDependencyCycle, "%s", name)
		}
		state[name] = visiting

		svc, ok := services[name]
		if !ok {
			return errors.Wrapf(ErrUnknownService, "%s", name)
		}
		for _, dep := range svc.Dependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}

		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}
