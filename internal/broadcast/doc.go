// Package broadcast fans one message out to many users.
//
// Delivery is a single best-effort pass: every recipient is attempted
// exactly once, failures are counted and logged, and one failure never
// stops the rest. A started broadcast runs to completion even if the
// caller goes away.
package broadcast
