package interaction

import "context"

// Peer identifies the bus peer behind a call.
type Peer struct {
	// Sender is the unique bus name of the caller, e.g. ":1.42".
	Sender string

	// Path is the object path the call was addressed to.
	Path string
}

type peerKey struct{}

// ContextWithPeer returns a new context carrying the calling peer.
func ContextWithPeer(ctx context.Context, p Peer) context.Context {
	return context.WithValue(ctx, peerKey{}, p)
}

// PeerFromContext extracts the calling peer from the context.
// Returns the zero Peer if not set.
func PeerFromContext(ctx context.Context) Peer {
	if v := ctx.Value(peerKey{}); v != nil {
		if p, ok := v.(Peer); ok {
			return p
		}
	}
	return Peer{}
}
