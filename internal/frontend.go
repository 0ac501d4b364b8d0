package internal

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/arcana-project/arcana/internal/client"
	"github.com/arcana-project/arcana/internal/core"
	"github.com/arcana-project/arcana/internal/core/data"
	archdebug "github.com/arcana-project/arcana/internal/core/debug"
	"github.com/arcana-project/arcana/internal/protocol"
	"github.com/arcana-project/arcana/internal/wire"
)

// maxPayloadSize caps what a single packet may declare; anything larger is
// treated as a framing error.
const maxPayloadSize = 1 << 20

// frontend implements the concurrent client connection logic.
//
// Sockets are accepted here, authenticated through the protocol dispatcher,
// and then read in a loop until the connection ends. The lower level
// connection details stay out of the dispatcher.
type frontend struct {
	Config   *core.Config
	Logger   *logrus.Logger
	Protocol *protocol.Protocol
	Registry *client.Registry
	DB       *gorm.DB
}

// Start opens the TCP socket for the game server. A blocking loop for
// accepting client connections is spun off in its own goroutine and added
// to the WaitGroup. Context cancellation stops the server.
func (f *frontend) Start(ctx context.Context, wg *sync.WaitGroup) error {
	socket, err := f.createSocket()
	if err != nil {
		return fmt.Errorf("error creating socket on %s: %v", f.Config.GameServerAddress(), err)
	}

	wg.Add(1)
	go f.startBlockingLoop(ctx, socket, wg)

	return nil
}

func (f *frontend) createSocket() (*net.TCPListener, error) {
	hostAddr, err := net.ResolveTCPAddr("tcp", f.Config.GameServerAddress())
	if err != nil {
		return nil, fmt.Errorf("error resolving address %s", err.Error())
	}

	socket, err := net.ListenTCP("tcp", hostAddr)
	if err != nil {
		return nil, fmt.Errorf("error listening on socket: %s", err.Error())
	}

	return socket, nil
}

// startBlockingLoop implements a connection handling loop that's purely
// responsible for accepting new connections and spinning off goroutines to
// handle them.
func (f *frontend) startBlockingLoop(ctx context.Context, socket *net.TCPListener, wg *sync.WaitGroup) {
	defer wg.Done()

	f.Logger.Printf("[game] waiting for connections on %v", f.Config.GameServerAddress())

	connections := make(chan *net.TCPConn)
	go func() {
		for {
			// Poll until we can accept more clients.
			for f.Config.MaxConnections > 0 && f.Registry.Len() >= f.Config.MaxConnections {
				time.Sleep(time.Second)
			}

			connection, err := socket.AcceptTCP()
			if err != nil {
				f.Logger.Warnf("failed to accept connection: %s", err.Error())
				continue
			}

			connections <- connection
		}
	}()

	clientWg := &sync.WaitGroup{}
handleLoop:
	for {
		select {
		case <-ctx.Done():
			break handleLoop
		case connection := <-connections:
			clientWg.Add(1)
			go func() {
				defer clientWg.Done()
				f.acceptClient(ctx, connection)
			}()
		}
	}

	_ = socket.Close()
	f.Logger.Infof("[game] shutting down (waiting for connections to close)")
	clientWg.Wait()
	f.Logger.Infof("[game] exited")
}

// acceptClient performs the handshake for a newly accepted socket: the
// first packet must be a valid Connect or Reconnect, anything else is
// answered with an error and the socket is closed. A successful handshake
// moves the goroutine into the packet processing loop.
func (f *frontend) acceptClient(ctx context.Context, connection *net.TCPConn) {
	temp := client.NewTemporary(connection)
	f.Logger.Infof("[game] accepted connection %s from %s", temp.Tag, temp.Addr())

	frame, err := readFrame(temp)
	if err != nil {
		f.Logger.Warnf("[game] connection %s ended before handshake: %s", temp.Tag, err)
		_ = temp.Close()
		return
	}

	packet, err := wire.Decode(frame)
	if err != nil {
		// Framing too broken to answer.
		f.Logger.Errorf("[game] %s", err)
		_ = temp.Close()
		return
	}

	if !wire.Check(packet.Header.Checksum, packet.Payload) {
		f.Logger.Warnf("[game] invalid checksum in handshake from `%s`", temp.Addr())
		_, _ = temp.Write(wire.New(wire.InvalidChecksumType, nil).Encode())
		_ = temp.Close()
		return
	}

	var c *client.Client
	switch packet.Header.Type {
	case wire.ConnectType:
		c, err = f.Protocol.HandleConnect(ctx, temp, packet)
		if err == nil {
			f.recordConnect(c)
			go f.clientWriter(c)
		}
	case wire.ReconnectType:
		c, err = f.Protocol.HandleReconnect(ctx, temp, packet)
		if err == nil {
			f.recordReconnect(c)
		}
	default:
		err = fmt.Errorf("unexpected %s packet before authentication", packet.Header.Type)
	}

	if err != nil {
		f.Logger.Errorf("[game] handshake failed for `%s`: %s", temp.Addr(), err)
		_, _ = temp.Write(wire.New(wire.ErrType, []byte(err.Error())).Encode())
		_ = temp.Close()
		return
	}

	f.processPackets(ctx, c)
}

// processPackets starts a blocking loop dedicated to reading data sent from
// a game client and only returns once the connection has closed.
func (f *frontend) processPackets(ctx context.Context, c *client.Client) {
	conn := c.Conn()
	if conn == nil {
		return
	}
	defer f.closeConnectionAndRecover(c, conn)

	for {
		select {
		case <-ctx.Done():
			// Allow the deferred function to mark the disconnect.
			return
		default:
		}

		frame, err := readFrame(conn)
		if err == io.EOF {
			return
		} else if err != nil {
			if c.Connected() && conn == c.Conn() {
				f.Logger.Warn(err.Error())
			}
			return
		}

		if f.Config.Debugging.PacketLoggingEnabled {
			if packet, decodeErr := wire.Decode(frame); decodeErr == nil {
				archdebug.PrintPacket(archdebug.PrintPacketParams{
					Writer:       os.Stdout,
					ClientPacket: true,
					Packet:       packet,
				})
			}
		}

		if err := f.Protocol.HandleIncoming(ctx, c, frame); err != nil {
			if !errors.Is(err, protocol.ErrConnectionClosed) {
				f.Logger.Warn("error in client communication: " + err.Error())
			}
			return
		}
	}
}

// closeConnectionAndRecover is the failsafe that catches any panics and
// marks the client disconnected regardless of the state of the connection.
// The record itself stays in the registry for the retention window so the
// player can reconnect.
func (f *frontend) closeConnectionAndRecover(c *client.Client, conn net.Conn) {
	if err := recover(); err != nil {
		f.Logger.Errorf("error in client communication with %s: error=%s, trace: %s",
			c.Addr(), err, debug.Stack())
	}

	// A reconnect replaces the record's socket while the old read loop is
	// still winding down; a loop whose socket has been superseded must not
	// touch the record.
	if current := c.Conn(); current != nil && current != conn {
		return
	}

	if c.Connected() {
		f.Protocol.Disconnect(c)
	}
	f.recordDisconnect(c)

	f.Logger.Infof("[game] connection closed for player `%s`", c.ID())
}

// clientWriter drains the client's live broadcast queue for the lifetime
// of the record. Queue entries racing a disconnect are dropped; durable
// delivery for disconnected players goes through the missed packet queue.
func (f *frontend) clientWriter(c *client.Client) {
	for packet := range c.Updates() {
		if !c.Connected() {
			continue
		}
		if err := f.Protocol.SendPacket(c, packet); err != nil {
			f.Logger.Warn(err.Error())
			f.Protocol.Disconnect(c)
		}
	}
}

func (f *frontend) recordConnect(c *client.Client) {
	if f.DB == nil {
		return
	}
	var username string
	if player := c.Player(); player != nil {
		username = player.Username
	}
	if _, err := data.RecordConnect(f.DB, c.ID(), username, c.Addr()); err != nil {
		f.Logger.Warnf("failed to record session for `%s`: %s", c.ID(), err)
	}
}

func (f *frontend) recordReconnect(c *client.Client) {
	if f.DB == nil {
		return
	}
	if err := data.RecordReconnect(f.DB, c.ID(), c.Addr()); err != nil {
		f.Logger.Warnf("failed to record reconnect for `%s`: %s", c.ID(), err)
	}
}

func (f *frontend) recordDisconnect(c *client.Client) {
	if f.DB == nil {
		return
	}
	if err := data.RecordDisconnect(f.DB, c.ID()); err != nil {
		f.Logger.Warnf("failed to record disconnect for `%s`: %s", c.ID(), err)
	}
}

// readFrame is a blocking call that only returns once a complete packet
// has been received: the fixed-size header first, then exactly the number
// of payload bytes the header declares.
func readFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, wire.HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}

	payloadLength := binary.LittleEndian.Uint32(header[1:5])
	if payloadLength > maxPayloadSize {
		return nil, fmt.Errorf("declared payload of %d bytes exceeds limit", payloadLength)
	}

	frame := make([]byte, wire.HeaderSize+int(payloadLength))
	copy(frame, header)
	if _, err := io.ReadFull(r, frame[wire.HeaderSize:]); err != nil {
		return nil, err
	}

	return frame, nil
}
