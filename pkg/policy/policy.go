// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package policy

import (
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Mirror receives every store mutation, e.g. kernel BPF maps that must hold
// the same entries as the in-process stores.
type Mirror interface {
	PutPath(key string, a Action) error
	DeletePath(key string) error
	PutPort(port uint16, a Action) error
	DeletePort(port uint16) error
}

// PolicyManager is the population interface of the policy stores. Writers
// are serialized by the manager; readers go straight to the stores.
type PolicyManager struct {
	mu      sync.Mutex
	paths   *PathStore
	ports   *PortStore
	mirrors []Mirror
	storage Storage
}

// NewManager creates a new policy manager without persistence
func NewManager(paths *PathStore, ports *PortStore) *PolicyManager {
	return &PolicyManager{
		paths: paths,
		ports: ports,
	}
}

// NewManagerWithStorage creates a new policy manager with persistence
func NewManagerWithStorage(paths *PathStore, ports *PortStore, storage Storage) *PolicyManager {
	return &PolicyManager{
		paths:   paths,
		ports:   ports,
		storage: storage,
	}
}

// AddMirror registers m and replays the current entries into it.
func (pm *PolicyManager) AddMirror(m Mirror) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var errs []error
	for _, e := range pm.paths.Entries() {
		if err := m.PutPath(e.Key, e.Action); err != nil {
			errs = append(errs, fmt.Errorf("mirror path %q: %w", e.Key, err))
		}
	}
	for _, e := range pm.ports.Entries() {
		if err := m.PutPort(e.Port, e.Action); err != nil {
			errs = append(errs, fmt.Errorf("mirror port %d: %w", e.Port, err))
		}
	}
	pm.mirrors = append(pm.mirrors, m)
	return errors.Join(errs...)
}

// LoadPersisted loads policies from persistent storage into the stores
func (pm *PolicyManager) LoadPersisted() error {
	if pm.storage == nil {
		return fmt.Errorf("no storage configured")
	}

	paths, err := pm.storage.LoadPaths()
	if err != nil {
		return fmt.Errorf("failed to load path policies from storage: %w", err)
	}
	ports, err := pm.storage.LoadPorts()
	if err != nil {
		return fmt.Errorf("failed to load port policies from storage: %w", err)
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	successCount := 0
	for _, e := range paths {
		if err := pm.putPathLocked(e.Key, e.Action); err != nil {
			log.Warnf("Failed to restore path policy %q: %v", e.Key, err)
			continue
		}
		successCount++
	}
	for _, e := range ports {
		if err := pm.putPortLocked(e.Port, e.Action); err != nil {
			log.Warnf("Failed to restore port policy %d: %v", e.Port, err)
			continue
		}
		successCount++
	}

	log.Infof("Restored %d/%d policies from storage", successCount, len(paths)+len(ports))
	return nil
}

// PutPath inserts or updates a path policy entry
func (pm *PolicyManager) PutPath(key string, a Action) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if err := pm.putPathLocked(key, a); err != nil {
		return err
	}
	if pm.storage != nil {
		if err := pm.storage.SavePath(key, a); err != nil {
			// The in-memory store stays authoritative.
			log.Warnf("Failed to persist path policy %q: %v", key, err)
		}
	}

	log.Infof("Path policy set: key=%q action=%s", key, a)
	return nil
}

func (pm *PolicyManager) putPathLocked(key string, a Action) error {
	if err := pm.paths.Put(key, a); err != nil {
		return err
	}
	for _, m := range pm.mirrors {
		if err := m.PutPath(key, a); err != nil {
			log.Warnf("Failed to mirror path policy %q: %v", key, err)
		}
	}
	return nil
}

// DeletePath removes a path policy entry
func (pm *PolicyManager) DeletePath(key string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if !pm.deletePathLocked(key) {
		return fmt.Errorf("%w: path %q", ErrNotFound, key)
	}
	if pm.storage != nil {
		if err := pm.storage.DeletePath(key); err != nil && !errors.Is(err, ErrNotFound) {
			log.Warnf("Failed to delete path policy %q from storage: %v", key, err)
		}
	}

	log.Infof("Path policy deleted: key=%q", key)
	return nil
}

func (pm *PolicyManager) deletePathLocked(key string) bool {
	if !pm.paths.Delete(key) {
		return false
	}
	for _, m := range pm.mirrors {
		if err := m.DeletePath(key); err != nil {
			log.Warnf("Failed to delete mirrored path policy %q: %v", key, err)
		}
	}
	return true
}

// PutPort inserts or updates a port policy entry
func (pm *PolicyManager) PutPort(port uint16, a Action) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if err := pm.putPortLocked(port, a); err != nil {
		return err
	}
	if pm.storage != nil {
		if err := pm.storage.SavePort(port, a); err != nil {
			log.Warnf("Failed to persist port policy %d: %v", port, err)
		}
	}

	log.Infof("Port policy set: port=%d action=%s", port, a)
	return nil
}

func (pm *PolicyManager) putPortLocked(port uint16, a Action) error {
	if err := pm.ports.Put(port, a); err != nil {
		return err
	}
	for _, m := range pm.mirrors {
		if err := m.PutPort(port, a); err != nil {
			log.Warnf("Failed to mirror port policy %d: %v", port, err)
		}
	}
	return nil
}

// DeletePort removes a port policy entry
func (pm *PolicyManager) DeletePort(port uint16) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if !pm.deletePortLocked(port) {
		return fmt.Errorf("%w: port %d", ErrNotFound, port)
	}
	if pm.storage != nil {
		if err := pm.storage.DeletePort(port); err != nil && !errors.Is(err, ErrNotFound) {
			log.Warnf("Failed to delete port policy %d from storage: %v", port, err)
		}
	}

	log.Infof("Port policy deleted: port=%d", port)
	return nil
}

func (pm *PolicyManager) deletePortLocked(port uint16) bool {
	if !pm.ports.Delete(port) {
		return false
	}
	for _, m := range pm.mirrors {
		if err := m.DeletePort(port); err != nil {
			log.Warnf("Failed to delete mirrored port policy %d: %v", port, err)
		}
	}
	return true
}

// GetPath returns the action stored for key
func (pm *PolicyManager) GetPath(key string) (Action, error) {
	a, ok := pm.paths.Get(key)
	if !ok {
		return ActionNone, fmt.Errorf("%w: path %q", ErrNotFound, key)
	}
	return a, nil
}

// GetPort returns the action stored for port
func (pm *PolicyManager) GetPort(port uint16) (Action, error) {
	a, ok := pm.ports.Lookup(port)
	if !ok {
		return ActionNone, fmt.Errorf("%w: port %d", ErrNotFound, port)
	}
	return a, nil
}

// ListPaths lists all path policy entries
func (pm *PolicyManager) ListPaths() []PathEntry {
	return pm.paths.Entries()
}

// ListPorts lists all port policy entries
func (pm *PolicyManager) ListPorts() []PortEntry {
	return pm.ports.Entries()
}

// PathCount returns the number of path policy entries
func (pm *PolicyManager) PathCount() int {
	return pm.paths.Len()
}

// PortCount returns the number of port policy entries
func (pm *PolicyManager) PortCount() int {
	return pm.ports.Len()
}

// ReplaceRules makes the stores hold exactly the compiled rule set with the
// persisted policies overlaid on it, so API-made changes survive a reload.
// The target set is built before the writer lock is taken and applied as
// one diff: keys present before and after are never removed, even briefly.
// Storage is only read here.
func (pm *PolicyManager) ReplaceRules(rules []Rule) error {
	target, err := Compile(rules)
	if err != nil {
		return err
	}

	persisted := 0
	if pm.storage != nil {
		n, err := pm.overlayPersisted(target)
		if err != nil {
			return err
		}
		persisted = n
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	errs := pm.applyLocked(target)

	log.Infof("Rules applied: %d path policies, %d port policies (%d persisted)",
		len(target.Paths), len(target.Ports), persisted)
	return errors.Join(errs...)
}

// overlayPersisted writes the stored policies over target and returns how
// many there were.
func (pm *PolicyManager) overlayPersisted(target *CompiledRules) (int, error) {
	paths, err := pm.storage.LoadPaths()
	if err != nil {
		return 0, fmt.Errorf("failed to load path policies from storage: %w", err)
	}
	ports, err := pm.storage.LoadPorts()
	if err != nil {
		return 0, fmt.Errorf("failed to load port policies from storage: %w", err)
	}

	for _, e := range paths {
		target.Paths[e.Key] = e.Action
	}
	for _, e := range ports {
		target.Ports[e.Port] = e.Action
	}
	return len(paths) + len(ports), nil
}

// applyLocked deletes stale keys, freeing capacity, then writes new and
// changed ones. Keys whose action is unchanged are not touched.
func (pm *PolicyManager) applyLocked(target *CompiledRules) []error {
	for _, e := range pm.paths.Entries() {
		if _, keep := target.Paths[e.Key]; !keep {
			pm.deletePathLocked(e.Key)
		}
	}
	for _, e := range pm.ports.Entries() {
		if _, keep := target.Ports[e.Port]; !keep {
			pm.deletePortLocked(e.Port)
		}
	}

	var errs []error
	for key, a := range target.Paths {
		if cur, ok := pm.paths.Get(key); ok && cur == a {
			continue
		}
		if err := pm.putPathLocked(key, a); err != nil {
			errs = append(errs, fmt.Errorf("path %q: %w", key, err))
		}
	}
	for port, a := range target.Ports {
		if cur, ok := pm.ports.Lookup(port); ok && cur == a {
			continue
		}
		if err := pm.putPortLocked(port, a); err != nil {
			errs = append(errs, fmt.Errorf("port %d: %w", port, err))
		}
	}
	return errs
}
