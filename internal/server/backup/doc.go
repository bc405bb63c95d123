// Package backup exports the full conversation dataset to a remote archive
// on a timer or on demand, then rotates old snapshots.
//
// At most one export runs at a time across both entry points. Periodic
// triggers additionally require recent client activity; manual triggers do
// not. Failures are recorded in a bounded history and never stop the loop.
package backup
