// Package wire implements the binary framing used between the game server
// and its clients. Every message is a fixed-size little endian header
// followed by an arbitrary payload.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the fixed number of bytes occupied by a packet header.
const HeaderSize = 9

// HeaderType identifies the kind of message carried in a packet's payload.
// The wire values are part of the protocol and must not be reordered.
type HeaderType uint8

const (
	ConnectType HeaderType = iota + 1
	ReconnectType
	DisconnectType
	PlayCardType
	GameStateUpdateType
	InvalidChecksumType
	InvalidHeaderType
	InvalidPacketPayloadType
	PlayerConnectedType
	ErrType
)

func (h HeaderType) String() string {
	switch h {
	case ConnectType:
		return "Connect"
	case ReconnectType:
		return "Reconnect"
	case DisconnectType:
		return "Disconnect"
	case PlayCardType:
		return "PlayCard"
	case GameStateUpdateType:
		return "GameStateUpdate"
	case InvalidChecksumType:
		return "InvalidChecksum"
	case InvalidHeaderType:
		return "InvalidHeader"
	case InvalidPacketPayloadType:
		return "InvalidPacketPayload"
	case PlayerConnectedType:
		return "PlayerConnected"
	case ErrType:
		return "Err"
	}
	return fmt.Sprintf("Unknown(0x%02x)", uint8(h))
}

var (
	// ErrMalformedHeader is returned when fewer bytes than a full header
	// are available to the decoder.
	ErrMalformedHeader = errors.New("malformed packet header")
	// ErrTruncatedPayload is returned when the header declares more
	// payload bytes than the buffer contains.
	ErrTruncatedPayload = errors.New("truncated packet payload")
)

// Header precedes every packet payload on the wire.
type Header struct {
	Type          HeaderType
	PayloadLength uint32
	Checksum      uint32
}

// Packet is one framed protocol message. Instances are treated as immutable
// once constructed.
type Packet struct {
	Header  Header
	Payload []byte
}

// New builds a packet for the given header type, computing the payload
// length and checksum fields.
func New(headerType HeaderType, payload []byte) *Packet {
	return &Packet{
		Header: Header{
			Type:          headerType,
			PayloadLength: uint32(len(payload)),
			Checksum:      Sum(payload),
		},
		Payload: payload,
	}
}

// Encode serializes the packet to its wire representation.
func (p *Packet) Encode() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(p.Payload)))
	buf.WriteByte(byte(p.Header.Type))
	_ = binary.Write(buf, binary.LittleEndian, p.Header.PayloadLength)
	_ = binary.Write(buf, binary.LittleEndian, p.Header.Checksum)
	buf.Write(p.Payload)
	return buf.Bytes()
}

// Decode parses a packet from data. The checksum field is carried through
// as-is; verifying it against the payload is the caller's responsibility so
// that framing errors and corruption remain distinguishable.
func Decode(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrMalformedHeader, len(data), HeaderSize)
	}

	header := Header{
		Type:          HeaderType(data[0]),
		PayloadLength: binary.LittleEndian.Uint32(data[1:5]),
		Checksum:      binary.LittleEndian.Uint32(data[5:9]),
	}

	if int(header.PayloadLength) > len(data)-HeaderSize {
		return nil, fmt.Errorf("%w: declared %d bytes, have %d",
			ErrTruncatedPayload, header.PayloadLength, len(data)-HeaderSize)
	}

	payload := make([]byte, header.PayloadLength)
	copy(payload, data[HeaderSize:HeaderSize+header.PayloadLength])

	return &Packet{Header: header, Payload: payload}, nil
}
