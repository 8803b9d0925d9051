package monitor

import (
	"context"

	"github.com/avalkov/mev-monitor/internal/clock"
	"github.com/avalkov/mev-monitor/internal/model"
)

// Sink is a named alert destination.
type Sink struct {
	Name    string
	Deliver func(ctx context.Context, alert model.Alert) error
}

func BroadcastSink(b broadcaster) Sink {
	return Sink{
		Name: "websocket",
		Deliver: func(_ context.Context, alert model.Alert) error {
			return b.Broadcast(alert)
		},
	}
}

func ArchiveSink(store archive, clk clock.Clock) Sink {
	return Sink{
		Name: "archive",
		Deliver: func(ctx context.Context, alert model.Alert) error {
			archived, err := model.NewArchivedAlert(alert, clk.Now())
			if err != nil {
				return err
			}
			return store.StoreAlert(ctx, archived)
		},
	}
}

func KafkaSink(p publisher) Sink {
	return Sink{
		Name:    "kafka",
		Deliver: p.Publish,
	}
}

type broadcaster interface {
	Broadcast(v interface{}) error
}

type archive interface {
	StoreAlert(ctx context.Context, alert model.ArchivedAlert) error
}

type publisher interface {
	Publish(ctx context.Context, alert model.Alert) error
}
