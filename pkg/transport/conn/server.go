package conn

// RemoteServerConnection is the inbound view of a Channel: what a
// registered handler receives as its reply sink when a request arrives
// over an accepted connection. It is just a Channel; the named type
// documents intent at call sites and satisfies ServerConnection.
type RemoteServerConnection = *Channel
