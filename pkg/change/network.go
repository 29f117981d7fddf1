package change

import (
	"context"

	"github.com/anchorhq/anchor/pkg/log"
	"github.com/anchorhq/anchor/pkg/network"
)

// SetProxies reconciles the network manager's proxies to exactly the given
// set: proxies not in the target set are removed, missing ones are created.
// Each individual failure is logged and collected; the remaining operations
// still execute.
type SetProxies struct {
	Ports []network.Proxy
}

func (c SetProxies) Run(ctx context.Context, target *Target) error {
	current, err := target.Network.EnumerateProxies(ctx)
	if err != nil {
		return err
	}

	desired := make(map[network.Proxy]struct{}, len(c.Ports))
	for _, proxy := range c.Ports {
		desired[proxy] = struct{}{}
	}
	existing := make(map[network.Proxy]struct{}, len(current))
	for _, proxy := range current {
		existing[proxy] = struct{}{}
	}

	var first error
	failures := 0
	logger := log.WithComponent("change")

	for _, proxy := range current {
		if _, wanted := desired[proxy]; wanted {
			continue
		}
		if err := target.Network.DeleteProxy(ctx, proxy); err != nil {
			failures++
			logger.Error().Err(err).Str("ip", proxy.IP).Int("port", proxy.Port).
				Msg("failed to delete proxy")
			if first == nil {
				first = err
			}
		}
	}
	for _, proxy := range c.Ports {
		if _, present := existing[proxy]; present {
			continue
		}
		if _, err := target.Network.CreateProxyTo(ctx, proxy.IP, proxy.Port); err != nil {
			failures++
			logger.Error().Err(err).Str("ip", proxy.IP).Int("port", proxy.Port).
				Msg("failed to create proxy")
			if first == nil {
				first = err
			}
		}
	}

	if first != nil {
		return &ParallelError{First: first, Failures: failures}
	}
	return nil
}

// OpenPorts reconciles the firewall's open ports to exactly the given set,
// with the same collect-and-continue failure handling as SetProxies.
type OpenPorts struct {
	Ports []network.OpenPort
}

func (c OpenPorts) Run(ctx context.Context, target *Target) error {
	current, err := target.Network.EnumerateOpenPorts(ctx)
	if err != nil {
		return err
	}

	desired := make(map[network.OpenPort]struct{}, len(c.Ports))
	for _, openPort := range c.Ports {
		desired[openPort] = struct{}{}
	}
	existing := make(map[network.OpenPort]struct{}, len(current))
	for _, openPort := range current {
		existing[openPort] = struct{}{}
	}

	var first error
	failures := 0
	logger := log.WithComponent("change")

	for _, openPort := range current {
		if _, wanted := desired[openPort]; wanted {
			continue
		}
		if err := target.Network.DeleteOpenPort(ctx, openPort); err != nil {
			failures++
			logger.Error().Err(err).Int("port", openPort.Port).Msg("failed to close port")
			if first == nil {
				first = err
			}
		}
	}
	for _, openPort := range c.Ports {
		if _, present := existing[openPort]; present {
			continue
		}
		if _, err := target.Network.OpenPort(ctx, openPort.Port); err != nil {
			failures++
			logger.Error().Err(err).Int("port", openPort.Port).Msg("failed to open port")
			if first == nil {
				first = err
			}
		}
	}

	if first != nil {
		return &ParallelError{First: first, Failures: failures}
	}
	return nil
}
