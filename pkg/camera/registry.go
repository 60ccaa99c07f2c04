package camera

import (
	"context"
	"sort"
	"sync"

	"github.com/wachiwi/camwatch/pkg/config"
)

// Registry holds one session per distinct device index.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int]*Session
}

// NewRegistry creates sessions for the configured devices. Duplicate
// indices collapse to the first entry.
func NewRegistry(devices []config.VideoDeviceConfig, opts Options) *Registry {
	r := &Registry{sessions: make(map[int]*Session, len(devices))}
	for _, d := range devices {
		if _, ok := r.sessions[d.Idx]; ok {
			continue
		}
		r.sessions[d.Idx] = NewSession(d.Idx, d.Recording.Enabled, d.MaxWidth(), opts)
	}
	return r
}

func (r *Registry) Get(idx int) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[idx]
	return s, ok
}

// All returns the sessions ordered by device index.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Index < all[j].Index })
	return all
}

func (r *Registry) Statuses() []Status {
	sessions := r.All()
	statuses := make([]Status, 0, len(sessions))
	for _, s := range sessions {
		statuses = append(statuses, s.Status())
	}
	return statuses
}

// StartAll starts every session in the background.
func (r *Registry) StartAll(ctx context.Context) {
	for _, s := range r.All() {
		_ = s.Start(ctx)
	}
}

// Close waits for every session to stop and drains their queues.
func (r *Registry) Close() {
	var wg sync.WaitGroup
	for _, s := range r.All() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()
}
