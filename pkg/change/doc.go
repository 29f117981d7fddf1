/*
Package change defines the small algebra of convergence actions the
deployers emit and the convergence loop runs: application start/stop,
dataset create/delete/resize/handoff/push, proxy and open-port
reconciliation, the converged NoOp, and the Sequentially/InParallel
combinators.

Changes are values. Calculation builds trees of them without side effects;
Run performs the side effects against a Target. Sequential short-circuits on
failure; Parallel always lets every sibling finish and then reports the
first failure, so one broken action cannot prevent unrelated actions from
running.
*/
package change
