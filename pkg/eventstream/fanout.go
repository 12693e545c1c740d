package eventstream

import "context"

// fanoutTransport sends every envelope to each of several peer transports
// and never receives; a Publisher only ever calls Send, so Recv exists
// solely to satisfy Transport. One fanoutTransport lets a single Publisher
// drive the whole fleet instead of wiring one Publisher per peer.
type fanoutTransport struct {
	peers []Transport
}

// NewFanoutTransport returns a Transport that broadcasts every Send to
// each of peers. Send returns the first error encountered, after having
// attempted every peer, so one unreachable peer doesn't block delivery to
// the rest.
func NewFanoutTransport(peers []Transport) Transport {
	return &fanoutTransport{peers: append([]Transport(nil), peers...)}
}

func (f *fanoutTransport) Send(ctx context.Context, env envelope) error {
	var firstErr error
	for _, p := range f.peers {
		if err := p.Send(ctx, env); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *fanoutTransport) Recv(ctx context.Context) (envelope, error) {
	<-ctx.Done()
	return envelope{}, ctx.Err()
}
