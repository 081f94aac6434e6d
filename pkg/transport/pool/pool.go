// Package pool maintains a small fixed-size set of outbound connections
// per peer address, spreading load across them by subject and
// transparently reconnecting a slot whose connection has died.
package pool

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/twmb/murmur3"
	"go.uber.org/zap"

	"github.com/sensiasoft/atomix/pkg/transport/conn"
	"github.com/sensiasoft/atomix/pkg/transport/errs"
	"github.com/sensiasoft/atomix/pkg/transport/handshake"
	"github.com/sensiasoft/atomix/pkg/transport/metrics"
	"github.com/sensiasoft/atomix/pkg/transport/wire"
)

// Slots is the number of outbound connections a Pool maintains per peer
// address. A fixed small fan-out bounds file-descriptor and handshake
// cost while still letting independent subjects make progress on
// different sockets instead of serializing behind one.
const Slots = 8

// Options configures how a Pool dials and bootstraps new connections.
type Options struct {
	ClusterPreamble handshake.Preamble
	Supported       []wire.Version
	Dispatch        conn.Dispatch
	ConnectTimeout  time.Duration
	TLSConfig       *tls.Config
	ReadBufferSize  int
	WriteBufferSize int
	KeepAlive       time.Duration
	Logger          *zap.Logger
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = 5 * time.Second
	}
	if out.KeepAlive <= 0 {
		out.KeepAlive = 30 * time.Second
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	return out
}

type peerSlots struct {
	mu    sync.Mutex
	addr  wire.Address
	slots [Slots]*conn.Channel
}

// Pool hands out per-subject connections to peers, dialing lazily and
// evicting a slot whose channel has closed.
type Pool struct {
	opts Options

	mu    sync.Mutex
	peers map[string]*peerSlots
}

// New builds an empty pool. Connections are established lazily on first
// Acquire for a given peer.
func New(opts Options) *Pool {
	return &Pool{
		opts:  opts.withDefaults(),
		peers: make(map[string]*peerSlots),
	}
}

func slotFor(subject string) int {
	return int(murmur3.Sum32([]byte(subject)) % Slots)
}

func (p *Pool) peer(addr wire.Address) *peerSlots {
	p.mu.Lock()
	defer p.mu.Unlock()
	ps, ok := p.peers[addr.Key()]
	if !ok {
		ps = &peerSlots{addr: addr}
		p.peers[addr.Key()] = ps
	}
	return ps
}

// Acquire returns the connection this pool uses for subject traffic to
// addr, dialing and handshaking a fresh one if the slot is empty or its
// previous occupant has died. On a failed connect it retries the dial
// exactly once before giving up; the slot itself is left as it was.
func (p *Pool) Acquire(ctx context.Context, addr wire.Address, subject string) (*conn.Channel, error) {
	return p.acquire(ctx, addr, subject, true)
}

func (p *Pool) acquire(ctx context.Context, addr wire.Address, subject string, retry bool) (*conn.Channel, error) {
	ps := p.peer(addr)
	idx := slotFor(subject)

	ps.mu.Lock()
	existing := ps.slots[idx]
	ps.mu.Unlock()
	if existing != nil && !existing.Closed() {
		return existing, nil
	}

	ch, err := p.connect(ctx, addr)
	if err != nil {
		if retry {
			return p.acquire(ctx, addr, subject, false)
		}
		return nil, err
	}

	ps.mu.Lock()
	ps.slots[idx] = ch
	ps.mu.Unlock()

	go ch.Run()
	return ch, nil
}

func (p *Pool) connect(ctx context.Context, addr wire.Address) (*conn.Channel, error) {
	dialer := &net.Dialer{Timeout: p.opts.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", addr.Host, addr.Port))
	if err != nil {
		return nil, errs.Wrap(errs.KindConnectionClosed, "dial failed", err)
	}

	if tcpConn, ok := raw.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
		tcpConn.SetKeepAlive(true)
		tcpConn.SetKeepAlivePeriod(p.opts.KeepAlive)
		if p.opts.ReadBufferSize > 0 {
			tcpConn.SetReadBuffer(p.opts.ReadBufferSize)
		}
		if p.opts.WriteBufferSize > 0 {
			tcpConn.SetWriteBuffer(p.opts.WriteBufferSize)
		}
	}

	var transport net.Conn = raw
	if p.opts.TLSConfig != nil {
		tlsConfig := p.opts.TLSConfig
		if tlsConfig.ServerName == "" {
			tlsConfig = tlsConfig.Clone()
			tlsConfig.ServerName = addr.Host
		}
		transport = tls.Client(raw, tlsConfig)
	}

	version, codec, err := handshake.Perform(transport, handshake.RoleClient, p.opts.ClusterPreamble, p.opts.Supported)
	if err != nil {
		return nil, err
	}
	_ = version

	return conn.NewChannel(transport, codec, addr, p.opts.Dispatch, p.opts.Logger, func(c *conn.Channel) {
		p.evict(addr, c)
	}), nil
}

// evict clears any slot still holding c, so the next Acquire for that
// subject reconnects instead of reusing a dead channel.
func (p *Pool) evict(addr wire.Address, c *conn.Channel) {
	p.mu.Lock()
	ps, ok := p.peers[addr.Key()]
	p.mu.Unlock()
	if !ok {
		return
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for i, s := range ps.slots {
		if s == c {
			ps.slots[i] = nil
			metrics.PoolEvictions.Inc()
		}
	}
}

// CloseAll closes every connection this pool currently holds open, across
// every peer. Used on service shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	peers := make([]*peerSlots, 0, len(p.peers))
	for _, ps := range p.peers {
		peers = append(peers, ps)
	}
	p.mu.Unlock()

	for _, ps := range peers {
		ps.mu.Lock()
		open := make([]*conn.Channel, 0, Slots)
		for i, ch := range ps.slots {
			if ch != nil {
				open = append(open, ch)
				ps.slots[i] = nil
			}
		}
		ps.mu.Unlock()

		// Close outside ps.mu: each channel's onClose runs evict, which
		// takes ps.mu itself.
		for _, ch := range open {
			ch.Close()
		}
	}
}

// Sweep runs each live channel's callback sweep pass. Called by the
// owning service's periodic sweeper goroutine.
func (p *Pool) Sweep() {
	p.mu.Lock()
	peers := make([]*peerSlots, 0, len(p.peers))
	for _, ps := range p.peers {
		peers = append(peers, ps)
	}
	p.mu.Unlock()

	for _, ps := range peers {
		ps.mu.Lock()
		channels := make([]*conn.Channel, 0, Slots)
		for _, ch := range ps.slots {
			if ch != nil {
				channels = append(channels, ch)
			}
		}
		ps.mu.Unlock()

		for _, ch := range channels {
			for _, e := range ch.Sweep() {
				metrics.RequestsTimedOut.WithLabelValues(e.Subject).Inc()
			}
		}
	}
}

// PendingCount sums the number of requests currently awaiting a reply
// across every channel this pool holds open. Used to feed the
// PendingCallbacks gauge.
func (p *Pool) PendingCount() int {
	p.mu.Lock()
	peers := make([]*peerSlots, 0, len(p.peers))
	for _, ps := range p.peers {
		peers = append(peers, ps)
	}
	p.mu.Unlock()

	total := 0
	for _, ps := range peers {
		ps.mu.Lock()
		for _, ch := range ps.slots {
			if ch != nil {
				total += ch.Len()
			}
		}
		ps.mu.Unlock()
	}
	return total
}
