// Package conn defines the four connection shapes used by the transport:
// a remote connection either dialed out from here (client role) or
// accepted from a peer (server role), and their local-loopback
// counterparts used when a node sends to a subject it serves itself.
package conn

import (
	"context"

	"github.com/sensiasoft/atomix/pkg/transport/async"
	"github.com/sensiasoft/atomix/pkg/transport/wire"
)

// Dispatch delivers an inbound request to application handlers and writes
// its outcome back through reply. A single Dispatch implementation is
// shared by the remote inbound path and the local loopback path so both
// observe identical handler-lookup and error-classification behavior.
type Dispatch func(ctx context.Context, req wire.Request, reply ServerConnection)

// ClientConnection is the caller-facing half of a channel: it can send
// requests (optionally expecting a reply) and fire-and-forget messages.
type ClientConnection interface {
	// Send transmits req without waiting for a reply.
	Send(ctx context.Context, req wire.Request) error
	// SendReceive transmits req and returns a future resolving to the
	// peer's reply payload, or a classified error.
	SendReceive(ctx context.Context, req wire.Request) async.Future[[]byte]
	// Address identifies the remote peer (or, for a local connection, this
	// process's own listening address).
	Address() wire.Address
	// Close releases the connection's resources. Idempotent.
	Close() error
}

// ServerConnection is the handler-facing half of a channel: it can only
// reply to a request it has already received.
type ServerConnection interface {
	// Reply sends id's outcome back to the original caller.
	Reply(ctx context.Context, id uint64, payload []byte, status wire.Status) error
	// Address identifies the remote peer that sent the request being
	// replied to.
	Address() wire.Address
}
