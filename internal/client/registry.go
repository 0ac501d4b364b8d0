package client

import (
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// ErrAlreadyRegistered is returned when an insert races with an existing
// record for the same player id. The existing record always wins; callers
// treat this as an internal error on the losing connection.
var ErrAlreadyRegistered = errors.New("player id already registered")

// Registry maps player ids to their shared connection records. Insert and
// Remove are the only operations that mutate the mapping, and both are
// mutually exclusive with any concurrent mutation of the same key.
//
// Disconnected records are retained so that a reconnect can find them, but
// not forever: every disconnect arms a retention timer, and records still
// disconnected when it fires are evicted.
type Registry struct {
	clients   *cache.Cache
	retention time.Duration
	logger    *logrus.Logger

	// onRelease is invoked with the player id whenever a record leaves the
	// registry, whether by retention expiry or explicit removal.
	onRelease func(playerID string)
}

// noExpiration is the marker used for live records; only records pending
// eviction carry a TTL.
const noExpiration = cache.NoExpiration

func NewRegistry(retention time.Duration, logger *logrus.Logger) *Registry {
	cleanupInterval := retention
	if cleanupInterval > time.Minute {
		cleanupInterval = time.Minute
	}

	r := &Registry{
		clients:   cache.New(noExpiration, cleanupInterval),
		retention: retention,
		logger:    logger,
	}
	r.clients.OnEvicted(func(id string, v interface{}) {
		c, ok := v.(*Client)
		if !ok {
			return
		}
		c.CloseUpdates()
		if r.onRelease != nil {
			r.onRelease(id)
		}
		// Expiry only ever fires for records whose retention timer was
		// armed by a disconnect; explicit removes land here too.
		if !c.Connected() {
			logger.Infof("[registry] released seat of player `%s`", id)
		}
	})
	return r
}

// OnRelease registers the hook run when a record leaves the registry, used
// to free the player's seat in the match. Must be set before the registry
// sees traffic.
func (r *Registry) OnRelease(fn func(playerID string)) {
	r.onRelease = fn
}

// Insert registers a connection record under its player id. If any record
// already holds the id the insert fails and the existing record is left
// untouched.
func (r *Registry) Insert(c *Client) error {
	if err := r.clients.Add(c.ID(), c, noExpiration); err != nil {
		return ErrAlreadyRegistered
	}
	return nil
}

// Get looks up the record for a player id.
func (r *Registry) Get(playerID string) (*Client, bool) {
	v, ok := r.clients.Get(playerID)
	if !ok {
		return nil, false
	}
	return v.(*Client), true
}

// Remove deletes a record outright. The eviction hook ends its live
// broadcast queue.
func (r *Registry) Remove(playerID string) {
	r.clients.Delete(playerID)
}

// MarkDisconnected flips the record to disconnected and arms its retention
// timer. The record remains resolvable until the timer fires.
func (r *Registry) MarkDisconnected(c *Client) {
	c.Disconnect()
	r.clients.Set(c.ID(), c, r.retention)
}

// MarkReconnected disarms a pending eviction after a successful reconnect.
func (r *Registry) MarkReconnected(c *Client) {
	r.clients.Set(c.ID(), c, noExpiration)
}

// Snapshot returns the current set of records, for the broadcaster's
// fan-out pass.
func (r *Registry) Snapshot() []*Client {
	items := r.clients.Items()
	clients := make([]*Client, 0, len(items))
	for _, item := range items {
		clients = append(clients, item.Object.(*Client))
	}
	return clients
}

// Len returns the number of registered records, live and disconnected.
func (r *Registry) Len() int {
	return r.clients.ItemCount()
}
