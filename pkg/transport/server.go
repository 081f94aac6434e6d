package transport

import (
	"crypto/tls"
	"net"
	"time"
)

// tcpOptsListener wraps a raw *net.TCPListener and applies the service's
// socket options to every accepted connection before handing it back to
// the caller. It must sit underneath any tls.Listener wrapping, since
// tls.Listener.Accept returns an opaque *tls.Conn that can no longer be
// type-asserted back to *net.TCPConn.
type tcpOptsListener struct {
	net.Listener
	keepAlive       time.Duration
	readBufferSize  int
	writeBufferSize int
}

func (l *tcpOptsListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if tcpConn, ok := c.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
		tcpConn.SetKeepAlive(true)
		tcpConn.SetKeepAlivePeriod(l.keepAlive)
		if l.readBufferSize > 0 {
			tcpConn.SetReadBuffer(l.readBufferSize)
		}
		if l.writeBufferSize > 0 {
			tcpConn.SetWriteBuffer(l.writeBufferSize)
		}
	}
	return c, nil
}

// listen binds addr and wraps it with socket-option handling and,
// optionally, TLS. The TLS handshake on an accepted *tls.Conn happens
// lazily on its first Read/Write, which is exactly when this service's
// handshake.Perform call first touches the connection, so TLS transparently
// sits ahead of the application handshake without any extra plumbing.
func listen(addr string, cfg Config, tlsConfig *tls.Config) (net.Listener, error) {
	raw, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	wrapped := &tcpOptsListener{
		Listener:        raw,
		keepAlive:       cfg.KeepAlive,
		readBufferSize:  cfg.ReadBufferSize,
		writeBufferSize: cfg.WriteBufferSize,
	}
	if tlsConfig == nil {
		return wrapped, nil
	}
	return tls.NewListener(wrapped, tlsConfig), nil
}
