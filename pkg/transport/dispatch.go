package transport

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/sensiasoft/atomix/pkg/transport/conn"
	"github.com/sensiasoft/atomix/pkg/transport/metrics"
	"github.com/sensiasoft/atomix/pkg/transport/wire"
)

// handlerTraceCacheSize bounds the per-sender handler-invocation trace
// cache: one entry per distinct sender address, evicting the
// least-recently-dispatched sender once full.
const handlerTraceCacheSize = 1024

func newHandlerTraceCache() *lru.Cache {
	c, err := lru.New(handlerTraceCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// handlerTraceCacheSize never is.
		panic(err)
	}
	return c
}

// dispatch is the single routing function shared by every inbound
// request, whether it arrived over a socket from a remote peer or was
// sent to this same process's own address through the loopback path. A
// caller with no handler registered for req.Subject gets the same
// StatusErrNoHandler reply either way, and a fire-and-forget call to a
// missing handler is silently dropped in both cases since nothing is
// waiting to read that reply.
func (s *Service) dispatch(ctx context.Context, req wire.Request, reply conn.ServerConnection) {
	metrics.RequestsReceived.WithLabelValues(req.Subject).Inc()

	if s.log.Core().Enabled(zap.DebugLevel) {
		senderKey := req.Sender.Key()
		if prev, ok := s.traceCache.Get(senderKey); ok {
			s.log.Debug("handler invocation trace",
				zap.String("sender", senderKey),
				zap.String("subject", req.Subject),
				zap.String("previous_subject", prev.(string)))
		}
		s.traceCache.Add(senderKey, req.Subject)
	}

	s.handlersMu.RLock()
	h, hasSync := s.handlers[req.Subject]
	ah, hasAsync := s.asyncHandlers[req.Subject]
	c, hasConsumer := s.consumers[req.Subject]
	s.handlersMu.RUnlock()

	switch {
	case hasConsumer:
		go func() {
			c(ctx, req)
			reply.Reply(ctx, req.ID, nil, wire.StatusOK)
		}()
	case hasAsync:
		go func() {
			payload, err := ah(ctx, req).Wait(ctx)
			s.completeDispatch(ctx, req, reply, payload, err)
		}()
	case hasSync:
		go func() {
			payload, err := s.runHandlerSafely(ctx, h, req)
			s.completeDispatch(ctx, req, reply, payload, err)
		}()
	default:
		reply.Reply(ctx, req.ID, nil, wire.StatusErrNoHandler)
	}
}

func (s *Service) completeDispatch(ctx context.Context, req wire.Request, reply conn.ServerConnection, payload []byte, err error) {
	if err == nil {
		reply.Reply(ctx, req.ID, payload, wire.StatusOK)
		return
	}
	metrics.HandlerErrors.WithLabelValues(req.Subject).Inc()
	s.log.Debug("handler failed", zap.String("subject", req.Subject), zap.Error(err))
	reply.Reply(ctx, req.ID, []byte(err.Error()), wire.StatusErrHandlerException)
}

func (s *Service) runHandlerSafely(ctx context.Context, h HandlerFunc, req wire.Request) (payload []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, req)
}
