// Package memory keeps the most recent alerts in process when no database is
// configured.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/avalkov/mev-monitor/internal/model"
)

const DefaultCapacity = 10000

func NewStorage(capacity int) *Storage {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Storage{
		alerts:   make([]model.ArchivedAlert, 0, capacity),
		byHash:   make(map[string]int),
		capacity: capacity,
	}
}

// StoreAlert keeps the first alert per hash. Once full, the oldest alert is
// overwritten.
func (s *Storage) StoreAlert(_ context.Context, alert model.ArchivedAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byHash[alert.Hash]; ok {
		return nil
	}

	if len(s.alerts) < s.capacity {
		s.byHash[alert.Hash] = len(s.alerts)
		s.alerts = append(s.alerts, alert)
		return nil
	}

	delete(s.byHash, s.alerts[s.next].Hash)
	s.alerts[s.next] = alert
	s.byHash[alert.Hash] = s.next
	s.next = (s.next + 1) % s.capacity
	return nil
}

func (s *Storage) GetAlert(_ context.Context, hash string) (model.ArchivedAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.byHash[hash]; ok {
		return s.alerts[i], nil
	}
	return model.ArchivedAlert{}, fmt.Errorf("alert (%s): %w", hash, model.ErrNotArchived)
}

// GetAlerts returns the newest alerts first, optionally for one sender.
func (s *Storage) GetAlerts(_ context.Context, sender string, limit int) ([]model.ArchivedAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alerts := []model.ArchivedAlert{}
	for i := 0; i < len(s.alerts) && len(alerts) < limit; i++ {
		// Walk backwards from the most recent write.
		alert := s.alerts[(s.next-1-i+2*len(s.alerts))%len(s.alerts)]
		if sender != "" && !strings.EqualFold(alert.Sender, sender) {
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

type Storage struct {
	mu       sync.Mutex
	alerts   []model.ArchivedAlert
	byHash   map[string]int
	capacity int
	next     int
}
