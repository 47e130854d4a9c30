package main

import (
	"errors"
	"fmt"
	"sync"
)

// Handler receives the merged table of a trait whenever it changes.
type Handler func(trait string, t Table) error

// Registry is the global store implementors tables are published into.
// A table published before a handler is attached is merged and parked as
// pending; attaching a handler delivers every pending trait.
//
// Handlers run with the registry locked and must not call back into it.
type Registry struct {
	mu      sync.Mutex
	tables  Index
	pending map[string]bool
	handler Handler
}

// NewRegistry returns an empty registry with no handler.
func NewRegistry() *Registry {
	return &Registry{
		tables:  make(Index),
		pending: make(map[string]bool),
	}
}

// Publish merges t into the table for trait. The merged table is delivered
// to the handler immediately when one is attached; otherwise the trait is
// marked pending.
func (r *Registry) Publish(trait string, t Table) error {
	if trait == "" {
		return errors.New("publish: empty trait")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tables.Merge(Index{trait: t})
	if r.handler == nil {
		r.pending[trait] = true
		return nil
	}
	if err := r.handler(trait, r.tables[trait].Clone()); err != nil {
		r.pending[trait] = true
		return fmt.Errorf("deliver %s: %w", trait, err)
	}
	delete(r.pending, trait)
	return nil
}

// PublishIndex publishes every table of x in trait order.
func (r *Registry) PublishIndex(x Index) error {
	for _, trait := range x.Traits() {
		if err := r.Publish(trait, x[trait]); err != nil {
			return err
		}
	}
	return nil
}

// Attach installs h, replacing any previous handler, and delivers pending
// traits in sorted order. Delivery stops at the first error; undelivered
// traits stay pending.
func (r *Registry) Attach(h Handler) error {
	if h == nil {
		return errors.New("attach: nil handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handler = h
	for _, trait := range sortedKeys(r.pending) {
		if err := h(trait, r.tables[trait].Clone()); err != nil {
			return fmt.Errorf("deliver %s: %w", trait, err)
		}
		delete(r.pending, trait)
	}
	return nil
}

// Pending returns the traits not yet delivered to a handler.
func (r *Registry) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.pending)
}

// Snapshot returns a copy of every table in the registry.
func (r *Registry) Snapshot() Index {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(Index, len(r.tables))
	for trait, t := range r.tables {
		out[trait] = t.Clone()
	}
	return out
}

// Fanout returns a Handler that delivers to every h, joining their errors.
func Fanout(hs ...Handler) Handler {
	return func(trait string, t Table) error {
		var errs []error
		for _, h := range hs {
			if err := h(trait, t); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
