// Package broadcaster fans alerts and status summaries out to websocket
// subscribers.
package broadcaster

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/avalkov/mev-monitor/internal/authenticator"
	"github.com/avalkov/mev-monitor/internal/metrics"
	"github.com/avalkov/mev-monitor/internal/model"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	WelcomeMessage = "Connected to MEV Detection Server"

	sendQueue    = 64
	writeTimeout = 5 * time.Second
)

func NewBroadcaster(verifier tokenVerifier, m *metrics.Metrics, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uuid.UUID]*subscriber),
		upgrader:    websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		verifier:    verifier,
		metrics:     m,
		log:         log.With().Str("component", "broadcaster").Logger(),
	}
}

// Broadcast serializes v once and queues it for every subscriber. A
// subscriber whose queue is full misses this message but stays connected;
// only a failed or timed out write disconnects it.
func (b *Broadcaster) Broadcast(v interface{}) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subscribers {
		select {
		case sub.send <- msg:
		default:
			b.log.Debug().Str("subscriber", id.String()).Msg("send queue full, message skipped")
			if b.metrics != nil {
				b.metrics.SubscriberDrops.Inc()
			}
		}
	}
	return nil
}

// Handler accepts websocket subscribers.
func (b *Broadcaster) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if b.verifier != nil {
			if _, err := b.verifier.VerifyToken(authenticator.TokenFromRequest(r)); err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
		}

		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.log.Debug().Err(err).Msg("websocket upgrade")
			return
		}

		sub := &subscriber{id: uuid.New(), conn: conn, send: make(chan []byte, sendQueue)}
		welcome, _ := json.Marshal(model.Welcome{Type: model.WelcomeType, Message: WelcomeMessage})
		sub.send <- welcome

		b.mu.Lock()
		b.subscribers[sub.id] = sub
		b.setGaugeLocked()
		b.mu.Unlock()

		b.log.Info().Str("subscriber", sub.id.String()).Str("remote", r.RemoteAddr).Msg("subscriber connected")

		go b.writeLoop(sub)
		go b.readLoop(sub)
	}
}

func (b *Broadcaster) writeLoop(sub *subscriber) {
	for msg := range sub.send {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			b.remove(sub.id)
			return
		}
	}
}

// readLoop only notices the peer going away.
func (b *Broadcaster) readLoop(sub *subscriber) {
	defer b.remove(sub.id)
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *Broadcaster) remove(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(id)
}

func (b *Broadcaster) removeLocked(id uuid.UUID) {
	sub, ok := b.subscribers[id]
	if !ok {
		return
	}
	delete(b.subscribers, id)
	close(sub.send)
	sub.conn.Close()
	b.setGaugeLocked()
	b.log.Info().Str("subscriber", id.String()).Msg("subscriber disconnected")
}

func (b *Broadcaster) setGaugeLocked() {
	if b.metrics != nil {
		b.metrics.Subscribers.Set(float64(len(b.subscribers)))
	}
}

func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Close disconnects every subscriber.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.subscribers {
		b.removeLocked(id)
	}
}

type tokenVerifier interface {
	VerifyToken(token string) (*authenticator.Claims, error)
}

type subscriber struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[uuid.UUID]*subscriber
	upgrader    websocket.Upgrader
	verifier    tokenVerifier
	metrics     *metrics.Metrics
	log         zerolog.Logger
}
