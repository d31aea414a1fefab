package executor

import (
	"context"
	"fmt"
	"strings"

	"switchyard/internal/api"
)

// Transport delivers one request to one worker and returns its wire response.
// A response with IsError set is returned together with a non-nil error.
type Transport interface {
	Send(ctx context.Context, desc api.ServerDescriptor, req api.Request) (*api.Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, desc api.ServerDescriptor, req api.Request) (*api.Response, error)

func (f TransportFunc) Send(ctx context.Context, desc api.ServerDescriptor, req api.Request) (*api.Response, error) {
	return f(ctx, desc, req)
}

// Mux picks a transport by the worker's declared protocol.
type Mux struct {
	transports map[api.Protocol]Transport
}

// NewMux creates a Mux. Workers with an empty protocol use the JSON transport.
func NewMux(transports map[api.Protocol]Transport) *Mux {
	m := &Mux{transports: make(map[api.Protocol]Transport, len(transports))}
	for p, t := range transports {
		m.transports[p] = t
	}
	return m
}

// Send implements Transport.
func (m *Mux) Send(ctx context.Context, desc api.ServerDescriptor, req api.Request) (*api.Response, error) {
	protocol := desc.Protocol
	if protocol == "" {
		protocol = api.ProtocolJSON
	}
	t, ok := m.transports[protocol]
	if !ok {
		return nil, fmt.Errorf("no transport for protocol %q", protocol)
	}
	return t.Send(ctx, desc, req)
}

// Close closes every transport that holds connections.
func (m *Mux) Close() error {
	var errs []string
	for p, t := range m.transports {
		if c, ok := t.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", p, err))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing transports: %s", strings.Join(errs, "; "))
	}
	return nil
}

// WorkerURL builds the base URL of a worker from its endpoint and path.
func WorkerURL(desc api.ServerDescriptor) string {
	base := desc.Endpoint
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	base = strings.TrimRight(base, "/")
	path := desc.Path
	if path == "" {
		return base + "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
