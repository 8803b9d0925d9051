package frontruntracker

import (
	"strings"
	"sync"
	"time"

	"github.com/avalkov/mev-monitor/internal/model"
)

func NewTracker(ttl time.Duration) *Tracker {
	return &Tracker{
		entries: make(map[string]model.PendingHighRiskEntry),
		ttl:     ttl,
	}
}

// Live returns the sender's unresolved high-risk entry. Entries older than
// the ttl are treated as absent even before a sweep removes them.
func (t *Tracker) Live(sender string, now time.Time) (model.PendingHighRiskEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[strings.ToLower(sender)]
	if !ok || t.expired(entry, now) {
		return model.PendingHighRiskEntry{}, false
	}
	return entry, true
}

func (t *Tracker) Register(sender string, entry model.PendingHighRiskEntry) {
	t.mu.Lock()
	t.entries[strings.ToLower(sender)] = entry
	t.mu.Unlock()
}

func (t *Tracker) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for sender, entry := range t.entries {
		if t.expired(entry, now) {
			delete(t.entries, sender)
			removed++
		}
	}
	return removed
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Tracker) expired(entry model.PendingHighRiskEntry, now time.Time) bool {
	return now.Sub(entry.Timestamp) > t.ttl
}

type Tracker struct {
	mu      sync.Mutex
	entries map[string]model.PendingHighRiskEntry
	ttl     time.Duration
}
