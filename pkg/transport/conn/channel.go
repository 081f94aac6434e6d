package conn

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sensiasoft/atomix/pkg/transport/async"
	"github.com/sensiasoft/atomix/pkg/transport/callback"
	"github.com/sensiasoft/atomix/pkg/transport/errs"
	"github.com/sensiasoft/atomix/pkg/transport/wire"
)

// Channel is a full-duplex remote connection: it can issue requests (as a
// client) and answer requests sent the other way (as a server) over the
// same socket. RemoteClientConnection and RemoteServerConnection are both
// thin views over one Channel, matching the fact that a single TCP
// connection carries traffic in both directions once established.
type Channel struct {
	ID       uuid.UUID
	conn     net.Conn
	codec    wire.Codec
	addr     wire.Address
	idGen    wire.IDGenerator
	table    *callback.Table
	dispatch Dispatch
	log      *zap.Logger

	writeMu sync.Mutex
	closed  atomic.Bool
	onClose func(*Channel)
}

// NewChannel wraps an already-handshaken net.Conn. dispatch is invoked for
// every inbound Request frame; onClose, if non-nil, is called exactly once
// when the channel's read loop exits for any reason.
func NewChannel(c net.Conn, codec wire.Codec, addr wire.Address, dispatch Dispatch, log *zap.Logger, onClose func(*Channel)) *Channel {
	return &Channel{
		ID:       uuid.New(),
		conn:     c,
		codec:    codec,
		addr:     addr,
		table:    callback.NewTable(),
		dispatch: dispatch,
		log:      log,
		onClose:  onClose,
	}
}

// Address implements ClientConnection and ServerConnection.
func (ch *Channel) Address() wire.Address { return ch.addr }

// Run drives the channel's read loop until the connection fails or Close
// is called. It blocks; callers run it in its own goroutine.
func (ch *Channel) Run() {
	defer ch.teardown(errs.New(errs.KindConnectionClosed, "channel closed"))

	for {
		msg, err := ch.codec.Decode(ch.conn)
		if err != nil {
			ch.log.Debug("channel read failed", zap.String("addr", ch.addr.String()), zap.Error(err))
			return
		}
		switch m := msg.(type) {
		case wire.Request:
			ctx := context.Background()
			ch.dispatch(ctx, m, ch)
		case wire.Reply:
			ch.table.Complete(m.ID, m.Payload, m.Status)
		}
	}
}

func (ch *Channel) teardown(cause error) {
	if !ch.closed.CompareAndSwap(false, true) {
		return
	}
	ch.conn.Close()
	ch.table.CloseAll(cause)
	if ch.onClose != nil {
		ch.onClose(ch)
	}
}

func (ch *Channel) write(msg wire.Message) error {
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	if ch.closed.Load() {
		return errs.ErrConnectionClosed
	}
	return ch.codec.Encode(ch.conn, msg)
}

// Send implements ClientConnection.
func (ch *Channel) Send(ctx context.Context, req wire.Request) error {
	return ch.write(req)
}

// SendReceive implements ClientConnection.
func (ch *Channel) SendReceive(ctx context.Context, req wire.Request) async.Future[[]byte] {
	future, complete := async.NewFuture[[]byte]()

	// A caller-supplied context deadline becomes a static timeout; a
	// context with no deadline leaves timeout at its zero value, which
	// the callback table treats as "judge this one adaptively" instead of
	// defaulting it to some arbitrary fixed duration.
	var timeout time.Duration
	if d, ok := ctx.Deadline(); ok {
		if remaining := time.Until(d); remaining > 0 {
			timeout = remaining
		}
	}

	ch.table.Register(req.ID, req.Subject, timeout, func(payload []byte, status wire.Status, err error) {
		if err != nil {
			complete(nil, err)
			return
		}
		switch status {
		case wire.StatusOK:
			complete(payload, nil)
		case wire.StatusErrNoHandler:
			complete(nil, errs.ErrNoRemoteHandler)
		case wire.StatusErrHandlerException:
			complete(nil, errs.HandlerFailure(nil))
		default:
			complete(nil, errs.Protocol("peer reported protocol exception", nil))
		}
	})

	if err := ch.write(req); err != nil {
		ch.table.Fail(req.ID, err)
		// A raw write failure that isn't already a classified messaging
		// error or timeout means the socket itself is suspect: close the
		// channel so the pool reconnects instead of reusing it.
		if !errs.IsMessaging(err) && !errs.Is(err, errs.KindTimeout) {
			ch.Close()
		}
	}
	return future
}

// Reply implements ServerConnection.
func (ch *Channel) Reply(ctx context.Context, id uint64, payload []byte, status wire.Status) error {
	return ch.write(wire.Reply{ID: id, Payload: payload, Status: status})
}

// Close shuts the channel down, failing every outstanding callback with a
// connection-closed error. Safe to call more than once.
func (ch *Channel) Close() error {
	ch.teardown(errs.ErrConnectionClosed)
	return nil
}

// Closed reports whether the channel has already torn down.
func (ch *Channel) Closed() bool { return ch.closed.Load() }

// NextID hands out the next outbound request id on this channel.
func (ch *Channel) NextID() uint64 { return ch.idGen.Next() }

// Sweep fails any of this channel's pending requests that have timed out.
// Called by the owning service's periodic sweeper.
func (ch *Channel) Sweep() []callback.Expired { return ch.table.Sweep() }

// Len reports the number of requests this channel currently has pending a
// reply. Intended for metrics gauges, not control flow.
func (ch *Channel) Len() int { return ch.table.Len() }
