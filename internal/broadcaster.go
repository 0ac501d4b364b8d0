package internal

import (
	"context"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"

	"github.com/arcana-project/arcana/internal/client"
	"github.com/arcana-project/arcana/internal/game"
	"github.com/arcana-project/arcana/internal/wire"
)

// broadcaster periodically snapshots the game state and fans the
// per-player views out to every registered client. Delivery to live
// clients is best effort through each client's bounded update queue;
// anything generated for a disconnected client goes onto its unbounded
// missed packet queue instead, to be replayed on reconnect.
type broadcaster struct {
	Registry *client.Registry
	Game     *game.Instance
	Logger   *logrus.Logger
	Interval time.Duration
}

// Run ticks for the lifetime of the server. A tick with no registered
// clients is a no-op.
func (b *broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.publish()
		}
	}
}

func (b *broadcaster) publish() {
	clients := b.Registry.Snapshot()
	if len(clients) == 0 {
		return
	}

	for _, c := range clients {
		view, err := b.Game.State.SnapshotFor(c.ID())
		if err != nil {
			// Registered but not seated; nothing to tell them yet.
			continue
		}

		payload, err := cbor.Marshal(view)
		if err != nil {
			b.Logger.Errorf("[broadcast] failed to encode view for `%s`: %s", c.ID(), err)
			continue
		}
		packet := wire.New(wire.GameStateUpdateType, payload)

		if !c.Connected() {
			c.QueueMissed(packet)
			continue
		}
		if !c.TryPushUpdate(packet) {
			b.Logger.Debugf("[broadcast] dropped update for slow consumer `%s`", c.ID())
		}
	}
}
