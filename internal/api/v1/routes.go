// Package v1 provides the REST API handlers of the sync engine.
package v1

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fieldsync/fieldsync/internal/api/common"
	"github.com/fieldsync/fieldsync/internal/service"
	"github.com/fieldsync/fieldsync/internal/versions"
)

// StatusListResponse is the body of GET /v1/sync/status
type StatusListResponse struct {
	Approved    bool                        `json:"approved"`
	RecordTypes []*service.RecordTypeStatus `json:"recordTypes"`
}

// ApprovalRequest is the body of PUT /v1/approval
type ApprovalRequest struct {
	Approved *bool `json:"approved"`
}

// ApprovalResponse reports the position of the approved-user gate
type ApprovalResponse struct {
	Approved bool `json:"approved"`
	Changed  bool `json:"changed,omitempty"`
}

// Routes holds the handlers of the sync API
type Routes struct {
	service service.SyncService
}

// NewRoutes creates a new Routes instance with the provided service
func NewRoutes(svc service.SyncService) *Routes {
	return &Routes{service: svc}
}

// Router creates the router of the sync API
func Router(svc service.SyncService) http.Handler {
	routes := NewRoutes(svc)

	r := chi.NewRouter()
	r.Get("/sync/status", routes.listStatuses)
	r.Post("/sync", routes.syncAll)
	r.Post("/sync/{recordType}", routes.syncRecordType)
	r.Get("/sync/{recordType}/invalid", routes.listInvalidRecords)
	r.Get("/approval", routes.getApproval)
	r.Put("/approval", routes.setApproval)

	return r
}

// listStatuses handles GET /v1/sync/status
//
// @Summary		List sync status
// @Description	Get the cycle status and per-status record counts of every record type
// @Tags			sync
// @Produce		json
// @Success		200	{object}	StatusListResponse
// @Failure		500	{object}	map[string]string
// @Router			/v1/sync/status [get]
func (rr *Routes) listStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := rr.service.ListStatuses(r.Context())
	if err != nil {
		slog.Error("Failed to list sync statuses", "error", err)
		common.WriteErrorResponse(w, "Failed to list sync statuses", http.StatusInternalServerError)
		return
	}

	common.WriteJSONResponse(w, StatusListResponse{
		Approved:    rr.service.Approved(),
		RecordTypes: statuses,
	}, http.StatusOK)
}

// syncAll handles POST /v1/sync
//
// @Summary		Sync every record type
// @Description	Run one cycle of every record type and wait for all of them
// @Tags			sync
// @Produce		json
// @Success		200	{object}	coordinator.AggregatedResult
// @Router			/v1/sync [post]
func (rr *Routes) syncAll(w http.ResponseWriter, r *http.Request) {
	result, err := rr.service.SyncAll(r.Context())
	if err != nil {
		slog.Error("Sync pass failed", "error", err)
		common.WriteErrorResponse(w, "Sync pass failed", http.StatusInternalServerError)
		return
	}
	common.WriteJSONResponse(w, result, http.StatusOK)
}

// syncRecordType handles POST /v1/sync/{recordType}
//
// @Summary		Sync one record type
// @Tags			sync
// @Produce		json
// @Param			recordType	path		string	true	"Record type name"
// @Success		200			{object}	sync.Result
// @Failure		400			{object}	map[string]string
// @Failure		404			{object}	map[string]string
// @Router			/v1/sync/{recordType} [post]
func (rr *Routes) syncRecordType(w http.ResponseWriter, r *http.Request) {
	recordType, err := common.RecordTypeParam(r)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := rr.service.SyncRecordType(r.Context(), recordType)
	if err != nil {
		writeServiceError(w, err, "Failed to sync record type")
		return
	}
	common.WriteJSONResponse(w, result, http.StatusOK)
}

// listInvalidRecords handles GET /v1/sync/{recordType}/invalid
//
// @Summary		List rejected records
// @Description	List the records of a type the server rejected, with their field errors
// @Tags			sync
// @Produce		json
// @Param			recordType	path		string	true	"Record type name"
// @Param			cursor		query		string	false	"Pagination cursor"
// @Param			limit		query		int		false	"Page size"
// @Success		200			{object}	service.InvalidRecordPage
// @Failure		400			{object}	map[string]string
// @Failure		404			{object}	map[string]string
// @Router			/v1/sync/{recordType}/invalid [get]
func (rr *Routes) listInvalidRecords(w http.ResponseWriter, r *http.Request) {
	recordType, err := common.RecordTypeParam(r)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	var opts []service.Option
	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		opts = append(opts, service.WithCursor(cursor))
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 || limit > service.MaxListLimit {
			common.WriteErrorResponse(w, "limit must be between 1 and "+strconv.Itoa(service.MaxListLimit),
				http.StatusBadRequest)
			return
		}
		opts = append(opts, service.WithLimit(limit))
	}

	page, err := rr.service.ListInvalidRecords(r.Context(), recordType, opts...)
	if err != nil {
		writeServiceError(w, err, "Failed to list invalid records")
		return
	}
	common.WriteJSONResponse(w, page, http.StatusOK)
}

// getApproval handles GET /v1/approval
func (rr *Routes) getApproval(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, ApprovalResponse{Approved: rr.service.Approved()}, http.StatusOK)
}

// setApproval handles PUT /v1/approval
//
// @Summary		Set the approved-user gate
// @Description	Open or close the gate of record types that require an approved user. Opening it starts a sync pass.
// @Tags			sync
// @Accept			json
// @Produce		json
// @Param			body	body		ApprovalRequest	true	"Gate position"
// @Success		200		{object}	ApprovalResponse
// @Failure		400		{object}	map[string]string
// @Failure		409		{object}	map[string]string
// @Router			/v1/approval [put]
func (rr *Routes) setApproval(w http.ResponseWriter, r *http.Request) {
	var req ApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Approved == nil {
		common.WriteErrorResponse(w, `request body must be {"approved": true|false}`, http.StatusBadRequest)
		return
	}

	changed, err := rr.service.SetApproval(r.Context(), *req.Approved)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusConflict)
		return
	}
	common.WriteJSONResponse(w, ApprovalResponse{Approved: *req.Approved, Changed: changed}, http.StatusOK)
}

func writeServiceError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, service.ErrRecordTypeNotFound):
		common.WriteErrorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrInvalidCursor):
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error(message, "error", err)
		common.WriteErrorResponse(w, message, http.StatusInternalServerError)
	}
}

// HealthRouter creates a router for health check endpoints
func HealthRouter(svc service.SyncService) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(svc))
	r.Get("/version", versionHandler)

	return r
}

// healthHandler handles health check requests
//
// @Summary		Health check
// @Tags			system
// @Produce		json
// @Success		200	{object}	map[string]string
// @Router			/health [get]
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

// readinessHandler handles readiness check requests
//
// @Summary		Readiness check
// @Description	Check that the record store backend is reachable
// @Tags			system
// @Produce		json
// @Success		200	{object}	map[string]string
// @Failure		503	{object}	map[string]string
// @Router			/readiness [get]
func readinessHandler(svc service.SyncService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CheckReadiness(r.Context()); err != nil {
			common.WriteErrorResponse(w, "SyncService not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		common.WriteJSONResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
	}
}

// versionHandler handles version information requests
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}
