package profilestore

import (
	"strings"
	"sync"
	"time"

	"github.com/avalkov/mev-monitor/internal/model"
)

const (
	highGasRatio     = 0.7
	burstTxCount     = 10
	burstWindow      = 60 * time.Second
	DefaultIdleLimit = 5 * time.Minute
)

func NewStore(idleLimit time.Duration) *Store {
	if idleLimit <= 0 {
		idleLimit = DefaultIdleLimit
	}
	return &Store{
		profiles:  make(map[string]*model.AddressProfile),
		idleLimit: idleLimit,
	}
}

// Observe records one qualifying transaction from address and returns the
// profile as it was before this transaction, together with the updated
// transaction count. A zero prior profile means the address was new.
func (s *Store) Observe(address string, now time.Time) (prior model.AddressProfile, txCount int) {
	key := strings.ToLower(address)

	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[key]
	if !ok {
		profile = &model.AddressProfile{Address: key, FirstSeen: now, LastSeen: now}
		s.profiles[key] = profile
		prior = model.AddressProfile{Address: key, FirstSeen: now, LastSeen: now}
	} else {
		prior = *profile
	}

	profile.TxCount++
	profile.LastSeen = now

	return prior, profile.TxCount
}

// MarkHighGas counts a high-gas transaction against an existing profile.
func (s *Store) MarkHighGas(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if profile, ok := s.profiles[strings.ToLower(address)]; ok && profile.HighGasCount < profile.TxCount {
		profile.HighGasCount++
	}
}

func (s *Store) Get(address string) (model.AddressProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[strings.ToLower(address)]
	if !ok {
		return model.AddressProfile{}, false
	}
	return *profile, true
}

// Sweep drops profiles idle for longer than the idle limit.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, profile := range s.profiles {
		if now.Sub(profile.LastSeen) > s.idleLimit {
			delete(s.profiles, key)
			removed++
		}
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.profiles)
}

// SuspiciousCount counts profiles whose high-gas ratio alone flags them.
func (s *Store) SuspiciousCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, profile := range s.profiles {
		if gasAggressive(*profile) {
			count++
		}
	}
	return count
}

// IsSuspicious flags gas-aggressive or bursty senders.
func IsSuspicious(profile model.AddressProfile) bool {
	return gasAggressive(profile) ||
		(profile.TxCount > burstTxCount && profile.LastSeen.Sub(profile.FirstSeen) < burstWindow)
}

func HighGasRatio(profile model.AddressProfile) float64 {
	if profile.TxCount == 0 {
		return 0
	}
	return float64(profile.HighGasCount) / float64(profile.TxCount)
}

func gasAggressive(profile model.AddressProfile) bool {
	return HighGasRatio(profile) > highGasRatio
}

type Store struct {
	mu        sync.Mutex
	profiles  map[string]*model.AddressProfile
	idleLimit time.Duration
}
