package sync

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/fieldsync/fieldsync/internal/otel"
	"github.com/fieldsync/fieldsync/internal/record"
	"github.com/fieldsync/fieldsync/internal/remote"
)

// DefaultMaxPagesPerCycle bounds the pages one pull stage fetches
const DefaultMaxPagesPerCycle = 1000

// PullResult summarizes the download stage of one cycle
type PullResult struct {
	// Pages is the number of pages merged
	Pages int `json:"pages"`

	// Pulled is the number of records merged
	Pulled int `json:"pulled"`

	// Cursor is the cursor persisted at the end of the stage
	Cursor string `json:"cursor,omitempty"`

	// Truncated is set when the stage stopped at the page limit with more pages pending
	Truncated bool `json:"truncated,omitempty"`
}

type puller struct {
	recordType string
	batchSize  int
	maxPages   int
	store      record.Store
	client     remote.Client
	codec      record.Codec
	tracer     trace.Tracer
}

// pull merges remote changes page by page. The cursor of a page is persisted only after
// the page's merge committed, so a crash in between replays the page on the next cycle.
func (p *puller) pull(ctx context.Context) (*PullResult, *Error) {
	ctx, span := otel.StartSpan(ctx, p.tracer, "sync.Pull", otel.RecordTypeAttributes(p.recordType, p.batchSize))
	defer span.End()

	result := &PullResult{}

	cursor, hasCursor, err := p.store.GetCursor(ctx)
	if err != nil {
		syncErr := newStorageError(StagePull, err, "failed to load %s pull cursor", p.recordType)
		otel.RecordError(span, syncErr)
		return result, syncErr
	}
	result.Cursor = cursor
	span.SetAttributes(otel.AttrHasCursor.Bool(hasCursor))
	if !hasCursor {
		slog.Info("No pull cursor, starting full sync", "record_type", p.recordType)
	}

	for {
		if p.maxPages > 0 && result.Pages >= p.maxPages {
			result.Truncated = true
			slog.Warn("Pull page limit reached, continuing next cycle",
				"record_type", p.recordType,
				"pages", result.Pages,
				"cursor", cursor)
			break
		}

		page, syncErr := p.pullPage(ctx, result.Pages, cursor)
		if syncErr != nil {
			slog.Error("Pull stopped, cursor kept at last merged page",
				"record_type", p.recordType,
				"page", result.Pages,
				"cursor", cursor,
				"kind", syncErr.Kind,
				"error", syncErr.Message)
			otel.RecordError(span, syncErr)
			return result, syncErr
		}

		result.Pages++
		result.Pulled += len(page.Records)
		sent := cursor
		if page.NextCursor != "" {
			cursor = page.NextCursor
			result.Cursor = cursor
		}

		if !page.IsFull(p.batchSize) {
			break
		}
		if page.NextCursor == "" || page.NextCursor == sent {
			// asking again with the same cursor would return the same page
			stalled := fmt.Errorf("%w: full page %d did not advance cursor %q", remote.ErrServer, result.Pages-1, sent)
			syncErr := newRemoteError(StagePull, stalled, "%s pull made no progress", p.recordType)
			slog.Error("Pull stopped, server cursor did not advance",
				"record_type", p.recordType,
				"page", result.Pages-1,
				"cursor", sent)
			otel.RecordError(span, syncErr)
			return result, syncErr
		}
	}

	span.SetAttributes(otel.AttrResultCount.Int(result.Pulled))
	slog.Info("Pull completed",
		"record_type", p.recordType,
		"pages", result.Pages,
		"records", result.Pulled)
	return result, nil
}

// pullPage fetches, merges and checkpoints one page
func (p *puller) pullPage(ctx context.Context, index int, cursor string) (*remote.PullPage, *Error) {
	ctx, span := otel.StartSpan(ctx, p.tracer, "sync.PullPage")
	defer span.End()
	span.SetAttributes(otel.AttrRecordType.String(p.recordType), otel.AttrPageIndex.Int(index))

	if err := ctx.Err(); err != nil {
		return nil, newCancelledError(StagePull, err)
	}

	page, err := p.client.Pull(ctx, p.recordType, p.batchSize, cursor)
	if err != nil {
		return nil, newRemoteError(StagePull, err, "failed to fetch %s page %d", p.recordType, index)
	}

	records := make([]*record.Record, 0, len(page.Records))
	for i, payload := range page.Records {
		rec, err := p.codec.Decode(payload)
		if err != nil {
			malformed := fmt.Errorf("%w: record %d of page %d: %w", remote.ErrServer, i, index, err)
			return nil, newRemoteError(StagePull, malformed, "malformed %s pull page", p.recordType)
		}
		records = append(records, rec)
	}

	if len(records) > 0 {
		if err := p.store.Upsert(ctx, records); err != nil {
			return nil, newStorageError(StagePull, err, "failed to merge %s page %d", p.recordType, index)
		}
	}

	if page.NextCursor != "" && page.NextCursor != cursor {
		if err := p.store.SetCursor(ctx, page.NextCursor); err != nil {
			return nil, newStorageError(StagePull, err, "failed to persist %s pull cursor", p.recordType)
		}
	}

	span.SetAttributes(otel.AttrResultCount.Int(len(records)))
	slog.Debug("Pull page merged",
		"record_type", p.recordType,
		"page", index,
		"records", len(records),
		"cursor", page.NextCursor)
	return page, nil
}
