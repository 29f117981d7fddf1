package network

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
)

// IPTablesManager implements Manager using iptables DNAT and ACCEPT rules.
// Created rules are tracked in memory for enumeration and cleanup; the agent
// owns all rules it creates, so in-process tracking is authoritative for the
// lifetime of the process.
type IPTablesManager struct {
	mu        sync.Mutex
	proxies   map[Proxy]struct{}
	openPorts map[OpenPort]struct{}
}

// NewIPTablesManager creates an iptables-backed network manager.
func NewIPTablesManager() *IPTablesManager {
	return &IPTablesManager{
		proxies:   make(map[Proxy]struct{}),
		openPorts: make(map[OpenPort]struct{}),
	}
}

// CreateProxyTo adds DNAT and MASQUERADE rules forwarding the local port to
// the same port on the given IP.
func (m *IPTablesManager) CreateProxyTo(ctx context.Context, ip string, port int) (Proxy, error) {
	proxy := Proxy{IP: ip, Port: port}

	dnat := []string{
		"-t", "nat",
		"-A", "PREROUTING",
		"-p", "tcp",
		"--dport", fmt.Sprintf("%d", port),
		"-j", "DNAT",
		"--to-destination", fmt.Sprintf("%s:%d", ip, port),
	}
	if err := runIPTables(ctx, dnat); err != nil {
		return Proxy{}, fmt.Errorf("failed to add DNAT rule: %w", err)
	}

	masq := []string{
		"-t", "nat",
		"-A", "POSTROUTING",
		"-p", "tcp",
		"-d", ip,
		"--dport", fmt.Sprintf("%d", port),
		"-j", "MASQUERADE",
	}
	if err := runIPTables(ctx, masq); err != nil {
		m.removeProxyRules(ctx, proxy)
		return Proxy{}, fmt.Errorf("failed to add MASQUERADE rule: %w", err)
	}

	m.mu.Lock()
	m.proxies[proxy] = struct{}{}
	m.mu.Unlock()
	return proxy, nil
}

// DeleteProxy removes the proxy's iptables rules.
func (m *IPTablesManager) DeleteProxy(ctx context.Context, proxy Proxy) error {
	m.removeProxyRules(ctx, proxy)

	m.mu.Lock()
	delete(m.proxies, proxy)
	m.mu.Unlock()
	return nil
}

// EnumerateProxies returns the proxies created by this manager.
func (m *IPTablesManager) EnumerateProxies(ctx context.Context) ([]Proxy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	proxies := make([]Proxy, 0, len(m.proxies))
	for proxy := range m.proxies {
		proxies = append(proxies, proxy)
	}
	return proxies, nil
}

// OpenPort adds an ACCEPT rule for inbound traffic on the port.
func (m *IPTablesManager) OpenPort(ctx context.Context, port int) (OpenPort, error) {
	rule := []string{
		"-A", "INPUT",
		"-p", "tcp",
		"--dport", fmt.Sprintf("%d", port),
		"-j", "ACCEPT",
	}
	if err := runIPTables(ctx, rule); err != nil {
		return OpenPort{}, fmt.Errorf("failed to open port %d: %w", port, err)
	}

	openPort := OpenPort{Port: port}
	m.mu.Lock()
	m.openPorts[openPort] = struct{}{}
	m.mu.Unlock()
	return openPort, nil
}

// DeleteOpenPort removes the port's ACCEPT rule.
func (m *IPTablesManager) DeleteOpenPort(ctx context.Context, openPort OpenPort) error {
	rule := []string{
		"-D", "INPUT",
		"-p", "tcp",
		"--dport", fmt.Sprintf("%d", openPort.Port),
		"-j", "ACCEPT",
	}
	// Ignore errors on cleanup; the rule may already be gone.
	_ = runIPTables(ctx, rule)

	m.mu.Lock()
	delete(m.openPorts, openPort)
	m.mu.Unlock()
	return nil
}

// EnumerateOpenPorts returns the ports opened by this manager.
func (m *IPTablesManager) EnumerateOpenPorts(ctx context.Context) ([]OpenPort, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	openPorts := make([]OpenPort, 0, len(m.openPorts))
	for openPort := range m.openPorts {
		openPorts = append(openPorts, openPort)
	}
	return openPorts, nil
}

func (m *IPTablesManager) removeProxyRules(ctx context.Context, proxy Proxy) {
	dnat := []string{
		"-t", "nat",
		"-D", "PREROUTING",
		"-p", "tcp",
		"--dport", fmt.Sprintf("%d", proxy.Port),
		"-j", "DNAT",
		"--to-destination", fmt.Sprintf("%s:%d", proxy.IP, proxy.Port),
	}
	_ = runIPTables(ctx, dnat)

	masq := []string{
		"-t", "nat",
		"-D", "POSTROUTING",
		"-p", "tcp",
		"-d", proxy.IP,
		"--dport", fmt.Sprintf("%d", proxy.Port),
		"-j", "MASQUERADE",
	}
	_ = runIPTables(ctx, masq)
}

// runIPTables executes an iptables command.
func runIPTables(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, "iptables", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("iptables failed: %w (output: %s)", err, string(output))
	}
	return nil
}
