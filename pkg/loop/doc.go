/*
Package loop drives convergence. ConvergenceLoop is the per-node control
loop: discover local state, report it to the controller, calculate changes
against the latest desired configuration and run them, then repeat,
sleeping when converged. ClusterStatus tracks controller connectivity and
feeds the loop with status updates.

Both machines process one input at a time. The loop's mailbox keeps only
the newest input: fresh status updates supersede unprocessed ones, and a
stop takes effect at a cycle boundary rather than interrupting an in-flight
action. Failures inside a cycle are logged and counted, never fatal; the
loop keeps retrying every cycle until the underlying condition clears.
*/
package loop
