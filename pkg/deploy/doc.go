/*
Package deploy contains the convergence calculation: deployers that discover
the local state of their domain (running applications, dataset
manifestations) and diff it against the desired cluster configuration into
trees of changes.

Two deployers cooperate. The dataset deployer moves data: it creates,
resizes, hands off and deletes local volumes. The application deployer
manages containers and network rules, and refuses to start an application
whose dataset has not arrived yet. Composite merges their partial state
fragments and orders dataset changes ahead of application changes.

Calculation is conservative about partial knowledge: aspects of node state
that were not discovered are nil, and a deployer that would have to act on
unknown state emits NoOp instead.
*/
package deploy
