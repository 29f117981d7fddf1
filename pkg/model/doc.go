/*
Package model defines the core data structures shared by every Anchor
component: desired cluster configuration (Deployment, Node, Application,
Dataset, Manifestation) and observed cluster state (DeploymentState,
NodeState).

All types are value records. Nothing is ever mutated in place; the With*
helpers return modified copies, and every discovery or calculation cycle
produces fresh values that simply replace the previous cycle's. Equality is
structural.

The central subtlety is partial knowledge. Observed state distinguishes
"known to be empty" (non-nil, empty collection) from "unknown" (nil
collection). Convergence logic must never treat unknown as empty for the
local node, since that would produce destructive actions based on ignorance.
*/
package model
