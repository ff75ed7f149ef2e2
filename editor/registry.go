package editor

import (
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"shipyard_report/kv"
	"shipyard_report/store"
)

type entry struct {
	w        *Workspace
	lastUsed time.Time
}

// Registry holds the open workspaces, one per login session. Workspaces not
// touched for longer than idle are closed on the next Open.
type Registry struct {
	backend store.Backend
	cache   kv.Store
	opts    Options
	idle    time.Duration
	now     func() time.Time

	mu     sync.Mutex
	spaces map[string]*entry
}

// NewRegistry returns an empty registry. An idle of zero keeps workspaces
// until they are closed explicitly.
func NewRegistry(backend store.Backend, cache kv.Store, opts Options, idle time.Duration) *Registry {
	return &Registry{
		backend: backend,
		cache:   cache,
		opts:    opts,
		idle:    idle,
		now:     time.Now,
		spaces:  make(map[string]*entry),
	}
}

// Open returns the workspace id belongs to when it is still open for user,
// or a fresh workspace otherwise. A workspace found under id for another
// user is closed.
func (r *Registry) Open(id string, user User) *Workspace {
	r.mu.Lock()
	now := r.now()
	stale := r.sweepLocked(now)
	e, ok := r.spaces[id]
	if ok && e.w.user != user {
		delete(r.spaces, id)
		stale = append(stale, e.w)
		ok = false
	}
	if !ok {
		e = &entry{w: NewWorkspace(uuid.NewString(), user, r.backend, r.cache, r.opts)}
		r.spaces[e.w.ID] = e
	}
	e.lastUsed = now
	r.mu.Unlock()

	closeAll(stale)
	return e.w
}

// sweepLocked removes the idle workspaces and returns them for closing.
func (r *Registry) sweepLocked(now time.Time) []*Workspace {
	if r.idle <= 0 {
		return nil
	}
	var stale []*Workspace
	for id, e := range r.spaces {
		if now.Sub(e.lastUsed) > r.idle {
			delete(r.spaces, id)
			stale = append(stale, e.w)
		}
	}
	if len(stale) > 0 {
		log.WithField("count", len(stale)).Info("closing idle workspaces")
	}
	return stale
}

func (r *Registry) Get(id string) (*Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.spaces[id]
	if !ok {
		return nil, false
	}
	e.lastUsed = r.now()
	return e.w, true
}

// Close removes the workspace and tears it down. Unknown ids are ignored.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	e, ok := r.spaces[id]
	delete(r.spaces, id)
	r.mu.Unlock()
	if ok {
		e.w.Close()
	}
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	spaces := r.spaces
	r.spaces = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range spaces {
		e.w.Close()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spaces)
}

func closeAll(spaces []*Workspace) {
	for _, w := range spaces {
		w.Close()
	}
}
