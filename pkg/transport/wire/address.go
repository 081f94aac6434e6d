package wire

import (
	"net"
	"strconv"
)

// Address is the stable identity key used as the pool map key and as a
// Request's sender field.
type Address struct {
	Host string
	Port int
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Key returns the canonical string used to index per-peer pool state.
func (a Address) Key() string { return a.String() }

// Equal reports whether a and b name the same peer.
func (a Address) Equal(b Address) bool {
	return a.Host == b.Host && a.Port == b.Port
}
