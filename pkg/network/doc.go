// Package network exposes the network capability: per-port proxies routing
// traffic to peer nodes and firewall open-port rules, with iptables-backed
// and in-memory implementations.
package network
