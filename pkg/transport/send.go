package transport

import (
	"context"

	"github.com/sensiasoft/atomix/pkg/transport/async"
	"github.com/sensiasoft/atomix/pkg/transport/conn"
	"github.com/sensiasoft/atomix/pkg/transport/metrics"
	"github.com/sensiasoft/atomix/pkg/transport/wire"
)

// clientFor returns the ClientConnection this service would use to reach
// addr for subject: the in-process loopback connection when addr names
// this service's own listener, otherwise a pooled outbound channel.
func (s *Service) clientFor(ctx context.Context, addr wire.Address, subject string) (conn.ClientConnection, error) {
	if addr.Equal(s.selfAddr) {
		return s.local, nil
	}
	return s.pool.Acquire(ctx, addr, subject)
}

// SendAsync fires subject at addr without waiting for any reply. The
// returned future resolves once the request has been written (or failed
// to write); it says nothing about whether a handler ever ran.
func (s *Service) SendAsync(ctx context.Context, addr wire.Address, subject string, payload []byte) async.Future[struct{}] {
	metrics.RequestsSent.WithLabelValues(subject).Inc()

	cc, err := s.clientFor(ctx, addr, subject)
	if err != nil {
		return async.Completed[struct{}](struct{}{}, err)
	}
	req := wire.Request{ID: s.idGen.Next(), Sender: s.selfAddr, Subject: subject, Payload: payload}
	return async.Completed[struct{}](struct{}{}, cc.Send(ctx, req))
}

// SendAndReceive sends subject at addr and blocks until the reply arrives
// or ctx is done.
func (s *Service) SendAndReceive(ctx context.Context, addr wire.Address, subject string, payload []byte) ([]byte, error) {
	future, err := s.SendAndReceiveAsync(ctx, addr, subject, payload)
	if err != nil {
		return nil, err
	}
	return future.Wait(ctx)
}

// SendAndReceiveAsync sends subject at addr and returns immediately with a
// future the caller can wait on whenever convenient.
func (s *Service) SendAndReceiveAsync(ctx context.Context, addr wire.Address, subject string, payload []byte) (async.Future[[]byte], error) {
	metrics.RequestsSent.WithLabelValues(subject).Inc()

	cc, err := s.clientFor(ctx, addr, subject)
	if err != nil {
		return async.Future[[]byte]{}, err
	}
	req := wire.Request{ID: s.idGen.Next(), Sender: s.selfAddr, Subject: subject, Payload: payload}
	return cc.SendReceive(ctx, req), nil
}
