package conn

// RemoteClientConnection is the outbound view of a Channel: the side the
// connection pool hands to a caller that wants to send requests to a
// peer. It is just a Channel; the named type documents intent at call
// sites and satisfies ClientConnection.
type RemoteClientConnection = *Channel
