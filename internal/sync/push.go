package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/fieldsync/fieldsync/internal/otel"
	"github.com/fieldsync/fieldsync/internal/record"
	"github.com/fieldsync/fieldsync/internal/remote"
	"github.com/fieldsync/fieldsync/internal/status"
)

// PushResult summarizes the upload stage of one cycle
type PushResult struct {
	// Batches is the number of batches the server answered
	Batches int `json:"batches"`

	// Pushed is the number of records the server accepted
	Pushed int `json:"pushed"`

	// Rejected is the number of records marked INVALID
	Rejected int `json:"rejected"`
}

type pusher struct {
	recordType string
	batchSize  int
	store      record.Store
	client     remote.Client
	codec      record.Codec
	tracer     trace.Tracer
}

// push uploads every PENDING record, and every IN_FLIGHT record left by an earlier attempt,
// in sequential batches. The caller must hold the record type's cycle lock.
func (p *pusher) push(ctx context.Context) (*PushResult, *Error) {
	ctx, span := otel.StartSpan(ctx, p.tracer, "sync.Push", otel.RecordTypeAttributes(p.recordType, p.batchSize))
	defer span.End()

	result := &PushResult{}

	records, err := p.store.RecordsWithStatus(ctx, status.StatusPending, status.StatusInFlight)
	if err != nil {
		syncErr := newStorageError(StagePush, err, "failed to load pending %s records", p.recordType)
		otel.RecordError(span, syncErr)
		return result, syncErr
	}
	if len(records) == 0 {
		slog.Debug("Nothing to push", "record_type", p.recordType)
		return result, nil
	}

	batches := chunk(record.IDs(records), p.batchSize)
	slog.Info("Pushing records",
		"record_type", p.recordType,
		"records", len(records),
		"batches", len(batches))

	for i, ids := range batches {
		if err := ctx.Err(); err != nil {
			syncErr := newCancelledError(StagePush, err)
			otel.RecordError(span, syncErr)
			return result, syncErr
		}
		if syncErr := p.pushBatch(ctx, i, ids, result); syncErr != nil {
			slog.Error("Push batch failed, remaining batches deferred to the next cycle",
				"record_type", p.recordType,
				"batch", i,
				"remaining_batches", len(batches)-i-1,
				"kind", syncErr.Kind,
				"error", syncErr.Message)
			otel.RecordError(span, syncErr)
			return result, syncErr
		}
	}

	span.SetAttributes(otel.AttrResultCount.Int(result.Pushed), otel.AttrRejected.Int(result.Rejected))
	return result, nil
}

// pushBatch claims, sends and settles one batch. On a failed request the batch stays IN_FLIGHT.
func (p *pusher) pushBatch(ctx context.Context, index int, ids []uuid.UUID, result *PushResult) *Error {
	ctx, span := otel.StartSpan(ctx, p.tracer, "sync.PushBatch")
	defer span.End()
	span.SetAttributes(otel.AttrRecordType.String(p.recordType), otel.AttrBatchIndex.Int(index))

	if _, err := record.MarkPendingAsInFlight(ctx, p.store, ids); err != nil {
		return newStorageError(StagePush, err, "failed to claim %s batch %d", p.recordType, index)
	}

	// Payloads are encoded from the claimed rows so a record edited before the claim is
	// sent in its latest revision.
	sent := make([]uuid.UUID, 0, len(ids))
	payloads := make([]json.RawMessage, 0, len(ids))
	localRejects := make(map[uuid.UUID][]record.FieldError)
	for _, id := range ids {
		rec, err := p.store.Get(ctx, id)
		if errors.Is(err, record.ErrNotFound) {
			continue
		}
		if err != nil {
			return newStorageError(StagePush, err, "failed to read %s record %s", p.recordType, id)
		}
		if rec.Status != status.StatusInFlight {
			// edited again since the claim; it goes out with the next cycle
			continue
		}

		payload, err := p.codec.Encode(rec)
		if err != nil {
			slog.Warn("Record cannot be encoded, marking invalid",
				"record_type", p.recordType,
				"id", id,
				"kind", KindValidation,
				"error", err)
			localRejects[id] = []record.FieldError{{Field: "payload", Messages: []string{err.Error()}}}
			continue
		}
		sent = append(sent, id)
		payloads = append(payloads, payload)
	}

	if len(localRejects) > 0 {
		n, err := record.MarkInFlightAsInvalid(ctx, p.store, mapKeys(localRejects), localRejects)
		if err != nil {
			return newStorageError(StagePush, err, "failed to mark unencodable %s records invalid", p.recordType)
		}
		result.Rejected += n
	}
	if len(payloads) == 0 {
		return nil
	}

	resp, err := p.client.Push(ctx, p.recordType, payloads)
	if err != nil {
		return newRemoteError(StagePush, err, "failed to push %s batch %d", p.recordType, index)
	}

	accepted, rejected := p.settle(sent, resp)

	if len(rejected) > 0 {
		n, err := record.MarkInFlightAsInvalid(ctx, p.store, mapKeys(rejected), rejected)
		if err != nil {
			return newStorageError(StagePush, err, "failed to mark rejected %s records invalid", p.recordType)
		}
		result.Rejected += n
	}
	if len(accepted) > 0 {
		n, err := record.MarkInFlightAsDone(ctx, p.store, accepted)
		if err != nil {
			return newStorageError(StagePush, err, "failed to mark pushed %s records done", p.recordType)
		}
		result.Pushed += n
	}
	result.Batches++

	slog.Debug("Push batch settled",
		"record_type", p.recordType,
		"batch", index,
		"accepted", len(accepted),
		"rejected", len(rejected))
	return nil
}

// settle splits the sent ids into accepted ones and rejected ones with their field errors
func (p *pusher) settle(sent []uuid.UUID, resp *remote.PushResponse) ([]uuid.UUID, map[uuid.UUID][]record.FieldError) {
	byID := make(map[uuid.UUID][]record.FieldError)
	for rawID, fieldErrors := range resp.RejectedIDs() {
		id, err := uuid.Parse(rawID)
		if err != nil {
			slog.Warn("Server rejected a record with an unparseable id",
				"record_type", p.recordType,
				"id", rawID,
				"field_errors", fieldErrors)
			continue
		}
		byID[id] = fieldErrors
	}

	accepted := make([]uuid.UUID, 0, len(sent))
	rejected := make(map[uuid.UUID][]record.FieldError)
	for _, id := range sent {
		fieldErrors, ok := byID[id]
		if !ok {
			accepted = append(accepted, id)
			continue
		}
		if fieldErrors == nil {
			fieldErrors = []record.FieldError{}
		}
		rejected[id] = fieldErrors
		slog.Warn("Record rejected by server",
			"record_type", p.recordType,
			"id", id,
			"kind", KindValidation,
			"field_errors", formatFieldErrors(fieldErrors))
	}
	return accepted, rejected
}

func chunk(ids []uuid.UUID, size int) [][]uuid.UUID {
	if size <= 0 {
		size = len(ids)
	}
	var out [][]uuid.UUID
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}

func mapKeys(m map[uuid.UUID][]record.FieldError) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}

func formatFieldErrors(fieldErrors []record.FieldError) []string {
	out := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		out = append(out, fmt.Sprintf("%s: %v", fe.Field, fe.Messages))
	}
	return out
}
