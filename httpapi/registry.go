package httpapi

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrEthical07/credflow"
	"github.com/google/uuid"
)

// ErrTooManyForms is returned by Open once MaxForms forms are open.
var ErrTooManyForms = errors.New("too many open forms")

type formEntry struct {
	controller *credflow.Controller
	lastSeen   time.Time
}

// FormRegistry maps form IDs to controllers and evicts idle ones.
type FormRegistry struct {
	engine   *credflow.Engine
	idleTTL  time.Duration
	maxForms int
	now      func() time.Time

	mu    sync.Mutex
	forms map[string]*formEntry
}

func NewFormRegistry(engine *credflow.Engine, idleTTL time.Duration, maxForms int) *FormRegistry {
	return &FormRegistry{
		engine:   engine,
		idleTTL:  idleTTL,
		maxForms: maxForms,
		now:      time.Now,
		forms:    make(map[string]*formEntry),
	}
}

// Open creates a controller under a fresh ID.
func (r *FormRegistry) Open() (string, *credflow.Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxForms > 0 && len(r.forms) >= r.maxForms {
		return "", nil, ErrTooManyForms
	}

	id := uuid.NewString()
	ctrl := r.engine.NewController()
	r.forms[id] = &formEntry{controller: ctrl, lastSeen: r.now()}
	return id, ctrl, nil
}

// Get returns the controller for id and marks it as used.
func (r *FormRegistry) Get(id string) (*credflow.Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.forms[id]
	if !ok {
		return nil, false
	}
	entry.lastSeen = r.now()
	return entry.controller, true
}

// Close drops id. It reports whether the form existed.
func (r *FormRegistry) Close(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.forms[id]
	delete(r.forms, id)
	return ok
}

// Len is the number of open forms.
func (r *FormRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.forms)
}

// Sweep evicts forms idle for longer than the TTL and returns how many went.
// Forms with a submission in flight are kept.
func (r *FormRegistry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, entry := range r.forms {
		if entry.lastSeen.Before(cutoff) && !entry.controller.Status().Loading {
			delete(r.forms, id)
			evicted++
		}
	}
	return evicted
}

// Run sweeps every interval until ctx is done.
func (r *FormRegistry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
