// Package coordinator schedules the sync cycles of every record type.
//
// It sits on top of internal/sync, which knows how one record type pushes and pulls,
// and handles:
//
//   - The registry of record types built at process start
//   - Concurrent passes over all record types (SyncAll) and manual cycles (SyncNow)
//   - Background scheduling on a jittered ticker, honouring each record type's cadence class
//   - Coalesced pass requests from the host (login, facility switch, user action)
//   - Cycle status persistence through state.CycleStateService
//   - Graceful shutdown
//
// # Usage Example
//
//	stateSvc := state.NewFileStateService(status.NewFileStatusPersistence(dir))
//	coord := coordinator.New(stateSvc, cfg.Schedule)
//
//	for _, rt := range cfg.RecordTypes {
//	    syncer := sync.New(rt, stores.Store(rt.Name), client,
//	        sync.WithPhaseObserver(coord.ObservePhase))
//	    if err := coord.Register(syncer, rt); err != nil {
//	        return err
//	    }
//	}
//
//	go coord.Start(ctx)
//	defer coord.Stop()
//
// # Scheduling
//
// Every tick of the polling interval (±25% jitter) the coordinator syncs the record
// types whose cadence interval (FREQUENT, DAILY, ...) has elapsed since their last
// attempt. A failed cycle waits for its next cadence like a successful one; a pass
// requested through Trigger runs every record type regardless of cadence.
//
// # Error Handling
//
// A failing record type never stops the others. Failures are reported per record type
// in the AggregatedResult and in the persisted cycle status. Status persistence errors
// are logged but don't stop syncing.
package coordinator
