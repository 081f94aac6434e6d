package transport

import (
	"sync"

	"github.com/google/uuid"

	"github.com/sensiasoft/atomix/pkg/transport/conn"
)

// channelRegistry is the process-wide set of accepted remote connections,
// keyed by channel identity rather than holding the channel object itself
// as a map key, so the registry and the channel don't end up owning each
// other. It exists for the two operations that need to enumerate every
// inbound connection at once: the sweeper's timeout pass and shutdown.
type channelRegistry struct {
	mu    sync.Mutex
	items map[uuid.UUID]*conn.Channel
}

func newChannelRegistry() *channelRegistry {
	return &channelRegistry{items: make(map[uuid.UUID]*conn.Channel)}
}

func (r *channelRegistry) add(ch *conn.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[ch.ID] = ch
}

func (r *channelRegistry) remove(ch *conn.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, ch.ID)
}

func (r *channelRegistry) snapshot() []*conn.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*conn.Channel, 0, len(r.items))
	for _, ch := range r.items {
		out = append(out, ch)
	}
	return out
}

func (r *channelRegistry) closeAll() {
	for _, ch := range r.snapshot() {
		ch.Close()
	}
}

func (r *channelRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
