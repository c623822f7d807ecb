// Package sync reconciles the local record stores with the remote sync server.
//
// One Syncer drives the cycle of one record type:
//
//   - push uploads PENDING records in sequential batches of at most batchSize. Each batch
//     is claimed IN_FLIGHT, sent, and settled: records the server rejected become INVALID
//     with their field errors, the rest become DONE. A failed batch stays IN_FLIGHT and
//     the remaining batches wait for the next cycle.
//   - pull walks the server's change stream with the persisted cursor, merging every page
//     before the cursor moves, and stops on the first short page.
//
// Push always runs before pull, and a failed push ends the cycle. Cycles of one record
// type never overlap; a cycle requested while another is running is skipped.
//
// Failures are reported as *Error values whose Kind tells a dead network from a broken
// server, a rejected payload or a local storage problem. The coordinator subpackage runs
// every registered Syncer concurrently and aggregates their results.
package sync
