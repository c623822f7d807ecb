package common

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/fieldsync/fieldsync/internal/config"
)

// RecordTypeParamName is the route parameter naming a record type
const RecordTypeParamName = "recordType"

// RecordTypeParam returns the decoded {recordType} route parameter. Names that could
// not belong to a configured record type are rejected before any lookup happens.
func RecordTypeParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, RecordTypeParamName)
	name, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", RecordTypeParamName)
	}
	if name == "" {
		return "", fmt.Errorf("%s cannot be empty", RecordTypeParamName)
	}
	if !config.ValidRecordTypeName(name) {
		return "", fmt.Errorf("invalid %s %q", RecordTypeParamName, name)
	}
	return name, nil
}
