// Package protocol implements the dispatcher that sits between the raw
// read loop and the game: it validates incoming packets, routes them to
// their handlers, owns the outbound retry discipline, and performs the
// connect/reconnect handshakes that promote temporary connections into
// registered clients.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"

	"github.com/arcana-project/arcana/internal/client"
	"github.com/arcana-project/arcana/internal/game"
	"github.com/arcana-project/arcana/internal/identity"
	"github.com/arcana-project/arcana/internal/wire"
)

const (
	// sendAttempts is the total number of writes tried before a send is
	// reported as failed.
	sendAttempts = 3
	// sendRetryWait is the pause between failed write attempts.
	sendRetryWait = 500 * time.Millisecond
	// missedPacketPacing bounds the outbound burst rate when flushing a
	// reconnected client's missed packet backlog. Tunable, not a
	// correctness requirement.
	missedPacketPacing = 30 * time.Microsecond
)

var (
	// ErrPacketWrite indicates a send that failed every retry attempt.
	ErrPacketWrite = errors.New("could not send packet")
	// ErrPlayerNotConnected indicates a reconnect for a player this
	// session has no record of; a fresh connect is required instead.
	ErrPlayerNotConnected = errors.New("player is not connected to this session")
	// ErrConnectionClosed is the dispatcher's signal to the read loop that
	// the connection was terminated and no further packets should be read.
	ErrConnectionClosed = errors.New("connection closed")
)

// InternalError marks invariant violations, promotion and registration
// failures that should close the affected connection without being
// reported to the client as anything more specific.
type InternalError struct {
	Reason string
}

func (e *InternalError) Error() string { return fmt.Sprintf("internal error: %s", e.Reason) }

// PlayCardRequest is the payload of a PlayCard packet.
type PlayCardRequest struct {
	PlayerID string `cbor:"player_id"`
	CardID   string `cbor:"card_id"`
}

// FatalFunc shuts the whole server process down. The dispatcher only pulls
// this lever for failures outside a single connection's failure domain.
type FatalFunc func(reason string)

// Protocol routes validated packets between connected clients and the game.
type Protocol struct {
	Registry *client.Registry
	Game     *game.Instance
	Resolver *identity.Resolver
	Logger   *logrus.Logger

	// Fatal is invoked for process-fatal conditions, e.g. failing to
	// provision card data after a successful connect.
	Fatal FatalFunc

	// Overridable in tests.
	SendAttempts  int
	SendRetryWait time.Duration
}

func New(registry *client.Registry, g *game.Instance, resolver *identity.Resolver, logger *logrus.Logger, fatal FatalFunc) *Protocol {
	return &Protocol{
		Registry:      registry,
		Game:          g,
		Resolver:      resolver,
		Logger:        logger,
		Fatal:         fatal,
		SendAttempts:  sendAttempts,
		SendRetryWait: sendRetryWait,
	}
}

// HandleIncoming processes one framed message from an authenticated client.
// Undecodable frames are logged and dropped; a checksum mismatch is
// answered with InvalidChecksum and terminates the connection. Valid
// packets are routed by header type. The returned error is
// ErrConnectionClosed when the read loop should stop.
func (p *Protocol) HandleIncoming(ctx context.Context, c *client.Client, buffer []byte) error {
	packet, err := wire.Decode(buffer)
	if err != nil {
		// Framing this broken cannot be answered; there is no telling
		// where the next message boundary is.
		p.Logger.Errorf("[protocol] %s", err)
		return nil
	}

	p.Logger.Debugf("[protocol] received packet { type: %s, size: %d }",
		packet.Header.Type, packet.Header.PayloadLength)

	if !wire.Check(packet.Header.Checksum, packet.Payload) {
		p.Logger.Warnf("[protocol] invalid checksum value from `%s`", c.Addr())
		p.SendAndDisconnect(c, wire.New(wire.InvalidChecksumType, nil))
		return ErrConnectionClosed
	}

	return p.handlePacket(ctx, c, packet)
}

func (p *Protocol) handlePacket(ctx context.Context, c *client.Client, packet *wire.Packet) error {
	switch packet.Header.Type {
	case wire.DisconnectType:
		p.handleDisconnect(c)
		return ErrConnectionClosed
	case wire.PlayCardType:
		p.handlePlayCardPacket(ctx, c, packet)
		return nil
	default:
		p.Logger.Warnf("[protocol] invalid header 0x%02x from `%s`", uint8(packet.Header.Type), c.Addr())
		if p.SendOrDisconnect(c, wire.New(wire.InvalidHeaderType, nil)) {
			return nil
		}
		return ErrConnectionClosed
	}
}

// handleDisconnect acknowledges a graceful disconnect. The acknowledgement
// is best effort; the disconnect happens regardless of the send outcome.
func (p *Protocol) handleDisconnect(c *client.Client) {
	p.SendAndDisconnect(c, wire.New(wire.DisconnectType, nil))
}

func (p *Protocol) handlePlayCardPacket(ctx context.Context, c *client.Client, packet *wire.Packet) {
	var request PlayCardRequest
	if err := cbor.Unmarshal(packet.Payload, &request); err != nil {
		// A bad payload costs the request, not the connection.
		p.Logger.Warnf("[protocol] undecodable play card request from `%s`: %s", c.Addr(), err)
		invalid := wire.New(wire.InvalidPacketPayloadType, []byte("Could not parse play card request."))
		_ = p.SendPacket(c, invalid)
		return
	}

	if err := p.handlePlayCard(ctx, c, &request); err != nil {
		var logicErr *game.LogicError
		if errors.As(err, &logicErr) {
			p.Logger.Warnf("[protocol] rejected play from `%s`: %s", c.ID(), err)
			p.sendError(c, err)
			return
		}
		p.Logger.Errorf("[protocol] play card failed for `%s`: %s", c.ID(), err)
		p.sendError(c, err)
	}
}

// handlePlayCard validates a play card request and, if it is legal, hands
// the card to the resolution engine. Validation failures are game logic
// errors: reported to the player, never a reason to disconnect.
func (p *Protocol) handlePlayCard(ctx context.Context, c *client.Client, request *PlayCardRequest) error {
	player, err := p.Game.State.Player(request.PlayerID)
	if err != nil {
		return err
	}

	// The requesting connection must be the one the server has on record
	// for that player; anything else is a spoofed id.
	registered, ok := p.Registry.Get(request.PlayerID)
	if !ok || registered != c {
		return &game.LogicError{Err: fmt.Errorf("client does not match player `%s`", request.PlayerID)}
	}

	if !p.Game.State.IsTurnOf(request.PlayerID) {
		return &game.LogicError{Err: game.ErrNotPlayersTurn}
	}

	if !player.HandContains(request.CardID) {
		return &game.LogicError{Err: game.ErrCardNotInHand}
	}

	return p.Game.Resolver.OnPlay(ctx, p.Game.State, request.PlayerID, request.CardID)
}

// sendError reports a per-request failure on an otherwise healthy
// connection.
func (p *Protocol) sendError(c *client.Client, err error) {
	_ = p.SendPacket(c, wire.New(wire.ErrType, []byte(err.Error())))
}

// SendPacket attempts to deliver a packet, retrying failed writes a fixed
// number of times with a fixed pause in between. After exhausting the
// attempts it returns ErrPacketWrite; whether that warrants a disconnect
// is the caller's decision.
func (p *Protocol) SendPacket(c *client.Client, packet *wire.Packet) error {
	data := packet.Encode()

	for attempt := 0; attempt < p.SendAttempts; attempt++ {
		if err := c.Send(data); err != nil {
			time.Sleep(p.SendRetryWait)
			continue
		}
		p.Logger.Debugf("[protocol] sent packet { type: %s, size: %d } to `%s`",
			packet.Header.Type, len(data), c.Addr())
		return nil
	}

	return fmt.Errorf("%w: %s to `%s`", ErrPacketWrite, packet.Header.Type, c.Addr())
}

// Disconnect marks the client's record as disconnected and arms its
// retention timer. No packets are sent.
func (p *Protocol) Disconnect(c *client.Client) {
	p.Logger.Infof("[protocol] client `%s` disconnected", c.Addr())
	p.Registry.MarkDisconnected(c)
}

// SendOrDisconnect delivers a packet, disconnecting the client only if the
// send itself fails. Returns whether the client is still connected.
func (p *Protocol) SendOrDisconnect(c *client.Client, packet *wire.Packet) bool {
	if err := p.SendPacket(c, packet); err != nil {
		p.Logger.Warn(err.Error())
		p.Disconnect(c)
		return false
	}
	return true
}

// SendAndDisconnect delivers a packet on a best effort basis and
// disconnects the client regardless of the outcome.
func (p *Protocol) SendAndDisconnect(c *client.Client, packet *wire.Packet) {
	if err := p.SendPacket(c, packet); err != nil {
		p.Logger.Warn(err.Error())
	}
	p.Disconnect(c)
}

// SendMissedPackets drains the client's missed packet queue in FIFO order,
// pausing briefly between sends to bound the outbound burst rate.
func (p *Protocol) SendMissedPackets(c *client.Client) {
	sent := 0
	for {
		packet, ok := c.DequeueMissed()
		if !ok {
			break
		}
		if !p.SendOrDisconnect(c, packet) {
			return
		}
		sent++
		time.Sleep(missedPacketPacing)
	}
	if sent > 0 {
		p.Logger.Infof("[protocol] sent %d missed packets to `%s`", sent, c.Addr())
	}
}

// HandleConnect authenticates a temporary connection's Connect payload and
// promotes it into a registered client. On any failure the temporary
// handle is left unpromoted and the caller answers and closes the socket.
func (p *Protocol) HandleConnect(ctx context.Context, temp *client.Temporary, packet *wire.Packet) (*client.Client, error) {
	player, err := p.Resolver.NewConnection(ctx, packet.Payload)
	if err != nil {
		return nil, err
	}
	p.Logger.Infof("[protocol] client `%s` successfully authenticated as `%s`", temp.Addr(), player.Username)

	conn, err := temp.Consume()
	if err != nil {
		return nil, &InternalError{Reason: "failed to take ownership of temporary connection"}
	}

	c := client.New(conn, temp.Addr(), player)
	if err := p.Registry.Insert(c); err != nil {
		// Lost the race for this player id; the winner's connection
		// stays untouched. The loser is told before its socket closes.
		intErr := &InternalError{Reason: fmt.Sprintf("player `%s` already has a live connection", player.ID)}
		if sendErr := p.SendPacket(c, wire.New(wire.ErrType, []byte(intErr.Error()))); sendErr != nil {
			p.Logger.Warn(sendErr.Error())
		}
		c.Disconnect()
		return nil, intErr
	}

	p.Game.State.SeatPlayer(player.ID, player.CurrentDeck.Cards)

	if err := p.SendPacket(c, wire.New(wire.PlayerConnectedType, nil)); err != nil {
		p.Logger.Warn(err.Error())
	}

	// Card data is provisioned for the whole match; failing here leaves
	// the game unplayable for everyone, not just this connection.
	if err := p.Game.Resolver.FetchCardDetails(ctx, player.CurrentDeck.Cards); err != nil {
		p.Fatal(fmt.Sprintf("card data provisioning failed: %s", err))
		return nil, err
	}

	return c, nil
}

// HandleReconnect authenticates a Reconnect payload, locates the player's
// retained record, and reattaches the new socket to it. The missed packet
// backlog is flushed before any new traffic is generated for the client.
func (p *Protocol) HandleReconnect(ctx context.Context, temp *client.Temporary, packet *wire.Packet) (*client.Client, error) {
	p.Logger.Infof("[protocol] reconnection request from `%s`", temp.Addr())

	playerID, err := p.Resolver.Reconnection(ctx, packet.Payload)
	if err != nil {
		return nil, err
	}
	p.Logger.Infof("[protocol] client `%s` has been authenticated as player `%s`", temp.Addr(), playerID)

	c, ok := p.Registry.Get(playerID)
	if !ok {
		return nil, ErrPlayerNotConnected
	}

	conn, err := temp.Consume()
	if err != nil {
		return nil, &InternalError{Reason: "failed to take ownership of temporary connection"}
	}

	c.Reattach(conn, temp.Addr())
	p.Registry.MarkReconnected(c)

	// The record still reads as disconnected while the backlog drains, so
	// broadcast ticks landing mid-flush queue behind it instead of
	// interleaving with the replay.
	p.SendMissedPackets(c)
	c.MarkConnected()
	p.Logger.Infof("[protocol] reconnected player `%s`", playerID)

	return c, nil
}
