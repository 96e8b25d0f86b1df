// Package nav tracks the current screen and guards protected routes.
package nav

import (
	"strings"
	"sync"
)

// Route paths
const (
	Login       = "/login"
	Dashboard   = "/dashboard"
	Events      = "/security/events"
	Files       = "/files"
	Assistant   = "/ai"
	Settings    = "/settings"
	defaultHome = Dashboard
)

// Navigator is the read/redirect side of the router used by the HTTP wrapper
type Navigator interface {
	Location() string
	Redirect(path string)
}

// Router holds the current location
type Router struct {
	mu       sync.RWMutex
	location string
	history  []string
	nextSub  int
	subs     map[int]func(string)
}

// NewRouter creates a router positioned at start
func NewRouter(start string) *Router {
	if start == "" {
		start = Login
	}
	return &Router{location: start, subs: make(map[int]func(string))}
}

// Location returns the current path
func (r *Router) Location() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.location
}

// Navigate moves to path and records the previous location
func (r *Router) Navigate(path string) {
	r.move(path, true)
}

// Redirect replaces the current location without recording history
func (r *Router) Redirect(path string) {
	r.move(path, false)
}

// Back returns to the previous location, if any
func (r *Router) Back() bool {
	r.mu.Lock()
	if len(r.history) == 0 {
		r.mu.Unlock()
		return false
	}
	prev := r.history[len(r.history)-1]
	r.history = r.history[:len(r.history)-1]
	r.mu.Unlock()

	r.move(prev, false)
	return true
}

// Subscribe registers fn to be called with every new location
func (r *Router) Subscribe(fn func(string)) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

func (r *Router) move(path string, record bool) {
	r.mu.Lock()
	if path == r.location {
		r.mu.Unlock()
		return
	}
	if record {
		r.history = append(r.history, r.location)
	}
	r.location = path
	subs := make([]func(string), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	for _, fn := range subs {
		fn(path)
	}
}

// IsLogin reports whether path is the login screen
func IsLogin(path string) bool {
	return path == Login || strings.HasPrefix(path, Login+"?")
}
