// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package syncx holds values shared between goroutines.
package syncx

import "sync"

// Protect returns a [Protected] holding val.
func Protect[T any](val T) *Protected[T] { return &Protected[T]{val: val} }

// Protected guards a value of type T with a read-write mutex. Use Load and
// Store for values that are replaced as a whole, like snapshots, and
// ReadAccess and WriteAccess for values changed in place, like maps.
type Protected[T any] struct {
	mu  sync.RWMutex
	val T
}

// ReadAccess calls f with the value under a read lock.
func (p *Protected[T]) ReadAccess(f func(T)) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f(p.val)
}

// WriteAccess calls f with the value under a write lock.
func (p *Protected[T]) WriteAccess(f func(T)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f(p.val)
}

// Load returns the value.
func (p *Protected[T]) Load() T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.val
}

// Store replaces the value.
func (p *Protected[T]) Store(val T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.val = val
}

// Lazy is a value computed on first use.
type Lazy[T any] struct {
	once sync.Once
	val  T
}

// Get returns the value, calling f to compute it on the first call only.
func (l *Lazy[T]) Get(f func() T) T {
	l.once.Do(func() { l.val = f() })
	return l.val
}
