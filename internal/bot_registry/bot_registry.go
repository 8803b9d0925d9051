package botregistry

import (
	"sort"
	"strings"
	"sync"
)

func NewRegistry(addresses ...string) *Registry {
	r := &Registry{bots: make(map[string]struct{}, len(addresses))}
	for _, address := range addresses {
		r.Add(address)
	}
	return r
}

func (r *Registry) Add(address string) bool {
	key := normalize(address)
	if key == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bots[key]; ok {
		return false
	}
	r.bots[key] = struct{}{}
	return true
}

func (r *Registry) Remove(address string) bool {
	key := normalize(address)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bots[key]; !ok {
		return false
	}
	delete(r.bots, key)
	return true
}

func (r *Registry) Contains(address string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bots[normalize(address)]
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bots)
}

func (r *Registry) List() []string {
	r.mu.RLock()
	bots := make([]string, 0, len(r.bots))
	for bot := range r.bots {
		bots = append(bots, bot)
	}
	r.mu.RUnlock()

	sort.Strings(bots)
	return bots
}

func normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

type Registry struct {
	mu   sync.RWMutex
	bots map[string]struct{}
}
