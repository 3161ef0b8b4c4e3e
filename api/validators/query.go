package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
)

// ParseLimit reads the optional "limit" query parameter, bounded to [1, max].
func ParseLimit(r *http.Request, defaultVal, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "limit must be numeric").WithDetails(map[string]any{"field": "limit"})
	}
	if value < 1 || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "limit out of range").WithDetails(map[string]any{"field": "limit", "min": 1, "max": max})
	}
	return value, nil
}

// ParseUUIDParam reads a route parameter that must hold a UUID.
func ParseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name).WithDetails(map[string]any{"field": name})
	}
	return id, nil
}
