/*
Package runtime exposes the container runtime capability the convergence
core depends on: add, remove, exists and list of container units.

Two implementations are provided: ContainerdClient, which drives a real
containerd daemon in a dedicated namespace, and MemoryClient, an in-memory
fake used by tests. The core only ever sees the Client interface; low-level
container lifecycle details stay behind it.
*/
package runtime
