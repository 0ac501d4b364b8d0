package internal

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/arcana-project/arcana/internal/client"
	"github.com/arcana-project/arcana/internal/core"
	"github.com/arcana-project/arcana/internal/core/data"
	"github.com/arcana-project/arcana/internal/game"
	"github.com/arcana-project/arcana/internal/identity"
	"github.com/arcana-project/arcana/internal/protocol"
)

// ErrFatal is returned by Start when the server was brought down by a
// process-fatal condition rather than a context cancellation.
var ErrFatal = errors.New("server terminated by fatal condition")

// Controller is the main entrypoint for the server. It's responsible for
// initializing the shared resources (database, logging, the game instance)
// and wiring the dispatcher, broadcaster, and frontend together.
type Controller struct {
	Config *core.Config

	// Resolver executes card effects. Left nil, the built-in static
	// resolver is used.
	Resolver game.CardResolver

	logger *logrus.Logger
	db     *gorm.DB
	wg     sync.WaitGroup

	fatalMu  sync.Mutex
	fatalErr error
}

// Start brings the server up and blocks until ctx is cancelled or a fatal
// condition shuts it down.
func (c *Controller) Start(ctx context.Context) error {
	var err error
	// Set up the logger, which will be used by all components.
	c.logger, err = core.NewLogger(c.Config)
	if err != nil {
		return err
	}

	if c.Config.Database.Filename != "" {
		c.db, err = data.Initialize(c.Config.Database.Filename, c.Config.Debugging.PacketLoggingEnabled)
		if err != nil {
			c.logger.Errorf("error initializing database: %v", err)
			return err
		}
		defer func() {
			if err := data.Shutdown(c.db); err != nil {
				c.logger.Warnf("error closing database: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resolver := c.Resolver
	if resolver == nil {
		resolver = game.NewStaticResolver()
	}
	gameInstance := game.NewInstance(resolver)
	registry := client.NewRegistry(c.Config.GameServer.DisconnectedRetention, c.logger)
	// A record leaving the registry frees the player's seat so the match
	// cannot be wedged on an evicted player's turn.
	registry.OnRelease(gameInstance.State.UnseatPlayer)
	identityResolver := identity.NewResolver(c.Config, c.logger)

	dispatcher := protocol.New(registry, gameInstance, identityResolver, c.logger, func(reason string) {
		// A fatal condition is outside any single connection's failure
		// domain; take the whole server down.
		c.fatalMu.Lock()
		c.fatalErr = ErrFatal
		c.fatalMu.Unlock()
		c.logger.Errorf("fatal: %s", reason)
		cancel()
	})

	front := &frontend{
		Config:   c.Config,
		Logger:   c.logger,
		Protocol: dispatcher,
		Registry: registry,
		DB:       c.db,
	}
	if err := front.Start(ctx, &c.wg); err != nil {
		c.logger.Errorf("error starting frontend: %v", err)
		return err
	}

	caster := &broadcaster{
		Registry: registry,
		Game:     gameInstance,
		Logger:   c.logger,
		Interval: c.Config.GameServer.BroadcastInterval,
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		caster.Run(ctx)
	}()

	<-ctx.Done()
	c.wg.Wait()

	c.fatalMu.Lock()
	defer c.fatalMu.Unlock()
	return c.fatalErr
}
