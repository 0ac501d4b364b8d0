// Package debug contains development-time helpers for inspecting protocol
// traffic. Nothing here runs unless packet logging is enabled in the
// server config.
package debug

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"

	"github.com/arcana-project/arcana/internal/wire"
)

var dumper = spew.ConfigState{Indent: "  ", DisableMethods: true}

// PrintPacketParams holds the arguments to PrintPacket.
type PrintPacketParams struct {
	Writer       io.Writer
	ClientPacket bool
	Packet       *wire.Packet
}

// PrintPacket writes a human-readable dump of a decoded packet: the header
// fields via spew and the payload as a hex block.
func PrintPacket(params PrintPacketParams) {
	direction := "server->client"
	if params.ClientPacket {
		direction = "client->server"
	}

	fmt.Fprintf(params.Writer, "[%s] %s\n", direction, params.Packet.Header.Type)
	dumper.Fdump(params.Writer, params.Packet.Header)

	if len(params.Packet.Payload) > 0 {
		fmt.Fprint(params.Writer, hex.Dump(params.Packet.Payload))
	}
	fmt.Fprintln(params.Writer)
}
