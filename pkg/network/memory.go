package network

import (
	"context"
	"sync"
)

// MemoryManager is an in-memory Manager implementation for tests.
type MemoryManager struct {
	mu        sync.Mutex
	proxies   map[Proxy]struct{}
	openPorts map[OpenPort]struct{}
}

// NewMemoryManager creates an empty in-memory network manager.
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{
		proxies:   make(map[Proxy]struct{}),
		openPorts: make(map[OpenPort]struct{}),
	}
}

func (m *MemoryManager) CreateProxyTo(ctx context.Context, ip string, port int) (Proxy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	proxy := Proxy{IP: ip, Port: port}
	m.proxies[proxy] = struct{}{}
	return proxy, nil
}

func (m *MemoryManager) DeleteProxy(ctx context.Context, proxy Proxy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.proxies, proxy)
	return nil
}

func (m *MemoryManager) EnumerateProxies(ctx context.Context) ([]Proxy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	proxies := make([]Proxy, 0, len(m.proxies))
	for proxy := range m.proxies {
		proxies = append(proxies, proxy)
	}
	return proxies, nil
}

func (m *MemoryManager) OpenPort(ctx context.Context, port int) (OpenPort, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	openPort := OpenPort{Port: port}
	m.openPorts[openPort] = struct{}{}
	return openPort, nil
}

func (m *MemoryManager) DeleteOpenPort(ctx context.Context, openPort OpenPort) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.openPorts, openPort)
	return nil
}

func (m *MemoryManager) EnumerateOpenPorts(ctx context.Context) ([]OpenPort, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	openPorts := make([]OpenPort, 0, len(m.openPorts))
	for openPort := range m.openPorts {
		openPorts = append(openPorts, openPort)
	}
	return openPorts, nil
}
