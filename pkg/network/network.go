package network

import "context"

// Proxy routes traffic arriving on a local port to the same port on another
// node, so that links keep working wherever the target application lands.
type Proxy struct {
	IP   string
	Port int
}

// OpenPort is a firewall rule admitting external traffic to a local port.
type OpenPort struct {
	Port int
}

// Manager is the network capability the convergence core depends on:
// creating, deleting and enumerating proxies and open ports.
type Manager interface {
	CreateProxyTo(ctx context.Context, ip string, port int) (Proxy, error)
	DeleteProxy(ctx context.Context, proxy Proxy) error
	EnumerateProxies(ctx context.Context) ([]Proxy, error)

	OpenPort(ctx context.Context, port int) (OpenPort, error)
	DeleteOpenPort(ctx context.Context, openPort OpenPort) error
	EnumerateOpenPorts(ctx context.Context) ([]OpenPort, error)
}
