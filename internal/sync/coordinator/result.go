package coordinator

import (
	pkgsync "github.com/fieldsync/fieldsync/internal/sync"
)

// AggregatedResult collects the results of every record type synced in one pass,
// in registration order
type AggregatedResult struct {
	Results []*pkgsync.Result `json:"results"`
}

// Failed returns the results of record types whose cycle failed
func (a *AggregatedResult) Failed() []*pkgsync.Result {
	return a.filter(pkgsync.OutcomeFailed)
}

// Succeeded returns the results of record types that completed push and pull
func (a *AggregatedResult) Succeeded() []*pkgsync.Result {
	return a.filter(pkgsync.OutcomeSynced)
}

// Skipped returns the results of record types that did not run
func (a *AggregatedResult) Skipped() []*pkgsync.Result {
	return a.filter(pkgsync.OutcomeSkipped)
}

// OK reports whether no record type failed
func (a *AggregatedResult) OK() bool {
	return len(a.Failed()) == 0
}

// Get returns the result of one record type, or nil if it was not part of the pass
func (a *AggregatedResult) Get(recordType string) *pkgsync.Result {
	for _, r := range a.Results {
		if r.RecordType == recordType {
			return r
		}
	}
	return nil
}

func (a *AggregatedResult) filter(outcome pkgsync.Outcome) []*pkgsync.Result {
	var out []*pkgsync.Result
	for _, r := range a.Results {
		if r.Outcome == outcome {
			out = append(out, r)
		}
	}
	return out
}
