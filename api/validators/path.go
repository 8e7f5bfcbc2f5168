package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/shopsphere-backend/pkg/errors"
)

// ParseVendorID reads a positive sequential vendor id from the named route
// parameter.
func ParseVendorID(r *http.Request, param string) (int64, error) {
	return parsePositiveInt(strings.TrimSpace(chi.URLParam(r, param)), param)
}

// ParseQueryVendorID reads a required vendor id from the query string.
func ParseQueryVendorID(r *http.Request, key string) (int64, error) {
	return parsePositiveInt(strings.TrimSpace(r.URL.Query().Get(key)), key)
}

// ParseUUIDParam reads a uuid route parameter.
func ParseUUIDParam(r *http.Request, param string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid identifier").WithDetails(map[string]any{"field": param})
	}
	return id, nil
}

func parsePositiveInt(raw, field string) (int64, error) {
	if raw == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required").WithDetails(map[string]any{"field": field})
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "vendor id must be a positive integer").WithDetails(map[string]any{"field": field})
	}
	return value, nil
}
