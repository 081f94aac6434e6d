// Package transport is the messaging service facade: it binds listeners,
// maintains outbound connection pools, routes inbound requests to
// registered handlers, and exposes the send-side API applications call to
// talk to peers. Everything else in this module (wire, handshake,
// callback, conn, pool) exists to make this facade possible.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/sensiasoft/atomix/pkg/transport/async"
	"github.com/sensiasoft/atomix/pkg/transport/conn"
	"github.com/sensiasoft/atomix/pkg/transport/errs"
	"github.com/sensiasoft/atomix/pkg/transport/handshake"
	"github.com/sensiasoft/atomix/pkg/transport/metrics"
	"github.com/sensiasoft/atomix/pkg/transport/pool"
	"github.com/sensiasoft/atomix/pkg/transport/wire"
)

// HandlerFunc answers a request synchronously, returning the reply
// payload or an error to report back to the caller as a handler failure.
type HandlerFunc func(ctx context.Context, req wire.Request) ([]byte, error)

// AsyncHandlerFunc answers a request through a future, for handlers whose
// work completes on another goroutine's schedule rather than inline.
type AsyncHandlerFunc func(ctx context.Context, req wire.Request) async.Future[[]byte]

// ConsumerFunc handles a fire-and-forget request. Any reply generated on
// its behalf carries no payload and is discarded by callers that, by
// definition, sent without waiting for one.
type ConsumerFunc func(ctx context.Context, req wire.Request)

// Service is the single entry point applications use to join a cluster's
// messaging fabric: register handlers for the subjects this node serves,
// then send requests to other nodes by address.
type Service struct {
	cfg      Config
	preamble handshake.Preamble
	log      *zap.Logger

	handlersMu    sync.RWMutex
	handlers      map[string]HandlerFunc
	asyncHandlers map[string]AsyncHandlerFunc
	consumers     map[string]ConsumerFunc

	idGen      wire.IDGenerator
	pool       *pool.Pool
	local      *conn.LocalClientConnection
	selfAddr   wire.Address
	channels   *channelRegistry
	traceCache *lru.Cache

	listeners []net.Listener
	stopCh    chan struct{}
	wg        sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// New builds a Service bound to cfg. Call Start to bind listeners and
// begin accepting connections.
func New(cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cfg:           cfg,
		preamble:      handshake.ComputePreamble(cfg.ClusterName),
		log:           log,
		handlers:      make(map[string]HandlerFunc),
		asyncHandlers: make(map[string]AsyncHandlerFunc),
		consumers:     make(map[string]ConsumerFunc),
		channels:      newChannelRegistry(),
		traceCache:    newHandlerTraceCache(),
		stopCh:        make(chan struct{}),
	}
}

// Start binds every configured listen address, opens the outbound
// connection pool, and begins the periodic timeout sweep. It returns once
// every listener is bound; accepting and sweeping continue in the
// background until Stop is called.
func (s *Service) Start() error {
	var startErr error
	s.startOnce.Do(func() {
		metrics.Register()

		tlsConfig, err := buildTLSConfig(s.cfg.TLS)
		if err != nil {
			startErr = err
			return
		}

		s.pool = pool.New(pool.Options{
			ClusterPreamble: s.preamble,
			Supported:       wire.Supported,
			Dispatch:        s.dispatch,
			ConnectTimeout:  s.cfg.ConnectTimeout,
			TLSConfig:       tlsConfig,
			ReadBufferSize:  s.cfg.ReadBufferSize,
			WriteBufferSize: s.cfg.WriteBufferSize,
			KeepAlive:       s.cfg.KeepAlive,
			Logger:          s.log,
		})

		if len(s.cfg.BindAddresses) == 0 {
			startErr = errs.New(errs.KindStartupError, "no bind addresses configured")
			return
		}

		for _, addr := range s.cfg.BindAddresses {
			ln, err := listen(addr, s.cfg, tlsConfig)
			if err != nil {
				startErr = errs.Wrap(errs.KindStartupError, fmt.Sprintf("bind %s", addr), err)
				return
			}
			s.listeners = append(s.listeners, ln)
		}

		tcpAddr, ok := s.listeners[0].Addr().(*net.TCPAddr)
		if !ok {
			startErr = errs.New(errs.KindStartupError, "first listener is not TCP")
			return
		}
		s.selfAddr = wire.Address{Host: tcpAddr.IP.String(), Port: tcpAddr.Port}
		s.local = conn.NewLocalClientConnection(s.selfAddr, s.dispatch)

		for _, ln := range s.listeners {
			s.wg.Add(1)
			go s.acceptLoop(ln)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runSweeper(s.cfg.SweepInterval, s.stopCh)
		}()
	})
	return startErr
}

func (s *Service) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		c, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				s.log.Debug("accept failed", zap.Error(err))
				return
			}
		}
		go s.handleAccepted(c)
	}
}

func (s *Service) handleAccepted(c net.Conn) {
	_, codec, err := handshake.Perform(c, handshake.RoleServer, s.preamble, wire.Supported)
	if err != nil {
		s.log.Debug("handshake failed", zap.Error(err))
		return
	}

	remoteAddr := wire.Address{Host: "", Port: 0}
	if tcpAddr, ok := c.RemoteAddr().(*net.TCPAddr); ok {
		remoteAddr = wire.Address{Host: tcpAddr.IP.String(), Port: tcpAddr.Port}
	}

	ch := conn.NewChannel(c, codec, remoteAddr, s.dispatch, s.log, func(closed *conn.Channel) {
		s.channels.remove(closed)
		metrics.ChannelsOpen.Dec()
	})
	s.channels.add(ch)
	metrics.ChannelsOpen.Inc()
	ch.Run()
}

// Address returns this service's own listening address, usable as the
// target of a loopback send.
func (s *Service) Address() wire.Address { return s.selfAddr }

// Stop closes every listener and open channel. Outstanding callbacks on
// those channels fail with a connection-closed error; Stop does not wait
// for or proactively resolve them any earlier than that.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		for _, ln := range s.listeners {
			ln.Close()
		}
		s.channels.closeAll()
		if s.pool != nil {
			s.pool.CloseAll()
		}
		s.wg.Wait()
	})
	return nil
}

// RegisterHandler binds a synchronous handler to subject, replacing any
// handler, async handler, or consumer previously registered for it.
func (s *Service) RegisterHandler(subject string, h HandlerFunc) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	delete(s.asyncHandlers, subject)
	delete(s.consumers, subject)
	s.handlers[subject] = h
}

// RegisterAsyncHandler binds a handler whose reply completes through a
// future rather than inline.
func (s *Service) RegisterAsyncHandler(subject string, h AsyncHandlerFunc) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	delete(s.handlers, subject)
	delete(s.consumers, subject)
	s.asyncHandlers[subject] = h
}

// RegisterConsumer binds a fire-and-forget handler to subject: callers
// using SendAsync to this subject never see its outcome.
func (s *Service) RegisterConsumer(subject string, c ConsumerFunc) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	delete(s.handlers, subject)
	delete(s.asyncHandlers, subject)
	s.consumers[subject] = c
}

// UnregisterHandler removes whatever handler, async handler, or consumer
// is registered for subject.
func (s *Service) UnregisterHandler(subject string) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	delete(s.handlers, subject)
	delete(s.asyncHandlers, subject)
	delete(s.consumers, subject)
}
