package conn

import (
	"context"

	"github.com/sensiasoft/atomix/pkg/transport/async"
	"github.com/sensiasoft/atomix/pkg/transport/errs"
	"github.com/sensiasoft/atomix/pkg/transport/wire"
)

// LocalClientConnection routes a request straight into this process's own
// dispatch function instead of over a socket, used when a node sends to a
// subject it serves itself. It shares the exact dispatch function the
// wire path uses, so a missing handler, a handler panic, or a successful
// reply behave identically whether the caller and callee are the same
// process or not.
type LocalClientConnection struct {
	addr     wire.Address
	dispatch Dispatch
}

// NewLocalClientConnection builds a loopback client bound to addr (this
// process's own listening address) that delivers through dispatch.
func NewLocalClientConnection(addr wire.Address, dispatch Dispatch) *LocalClientConnection {
	return &LocalClientConnection{addr: addr, dispatch: dispatch}
}

func (l *LocalClientConnection) Address() wire.Address { return l.addr }

// Send delivers req to the local dispatcher and discards any reply it
// produces: a fire-and-forget call to a subject this process serves
// itself still runs the handler, it just never observes the outcome, even
// a "no handler registered" one.
func (l *LocalClientConnection) Send(ctx context.Context, req wire.Request) error {
	l.dispatch(ctx, req, discardReply{addr: l.addr})
	return nil
}

// SendReceive delivers req to the local dispatcher synchronously and
// returns its outcome through a future, mirroring the remote path's
// asynchronous shape without crossing a socket.
func (l *LocalClientConnection) SendReceive(ctx context.Context, req wire.Request) async.Future[[]byte] {
	resultCh := make(chan struct {
		payload []byte
		status  wire.Status
	}, 1)
	l.dispatch(ctx, req, &localServerConnection{resultCh: resultCh})

	select {
	case r := <-resultCh:
		switch r.status {
		case wire.StatusOK:
			return async.Completed[[]byte](r.payload, nil)
		case wire.StatusErrNoHandler:
			return async.Completed[[]byte](nil, errs.ErrNoRemoteHandler)
		case wire.StatusErrHandlerException:
			return async.Completed[[]byte](nil, errs.HandlerFailure(nil))
		default:
			return async.Completed[[]byte](nil, errs.Protocol("local dispatch returned protocol exception", nil))
		}
	case <-ctx.Done():
		return async.Completed[[]byte](nil, errs.New(errs.KindTimeout, "local dispatch did not reply before context was done"))
	}
}

func (l *LocalClientConnection) Close() error { return nil }

// localServerConnection is the ServerConnection a local dispatch call
// replies through; it hands the outcome back over a channel instead of a
// socket.
type localServerConnection struct {
	addr     wire.Address
	resultCh chan struct {
		payload []byte
		status  wire.Status
	}
}

func (s *localServerConnection) Address() wire.Address { return s.addr }

func (s *localServerConnection) Reply(ctx context.Context, id uint64, payload []byte, status wire.Status) error {
	select {
	case s.resultCh <- struct {
		payload []byte
		status  wire.Status
	}{payload, status}:
	default:
	}
	return nil
}

// discardReply is the ServerConnection used for a fire-and-forget local
// send: any reply the handler produces is silently dropped, matching what
// happens to a fire-and-forget reply sent over a real socket with nobody
// reading it.
type discardReply struct {
	addr wire.Address
}

func (d discardReply) Address() wire.Address { return d.addr }

func (d discardReply) Reply(ctx context.Context, id uint64, payload []byte, status wire.Status) error {
	return nil
}
