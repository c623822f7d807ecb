package app

import (
	"github.com/fieldsync/fieldsync/internal/service"
	"github.com/fieldsync/fieldsync/internal/storage"
	pkgsync "github.com/fieldsync/fieldsync/internal/sync"
	"github.com/fieldsync/fieldsync/internal/sync/coordinator"
	"github.com/fieldsync/fieldsync/internal/sync/state"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// SyncCoordinator schedules the cycles of every record type
	SyncCoordinator coordinator.Coordinator

	// SyncService is the operation surface used by the control API and the CLI
	SyncService service.SyncService

	// StateService persists the cycle status of every record type
	StateService state.CycleStateService

	// Storage hands out the record store of every record type
	Storage storage.Factory

	// Syncers are the per-record-type engines registered with the coordinator
	Syncers []pkgsync.Syncer
}
