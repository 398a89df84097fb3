package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neonslash/neonvault/internal/domain"
	"github.com/neonslash/neonvault/internal/notify"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoSigner), errors.Is(err, domain.ErrUnsupported):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrExternal), errors.Is(err, domain.ErrTxReverted):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs err when it is not the caller's fault and renders it
// with the status from statusFor.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("error", err.Error()),
		)
	}
	writeError(w, status, notify.UserMessage(err))
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// parseListOpts extracts pagination and time-range parameters from the query
// string. Defaults: limit=50 (max 500), offset=0. since/until accept RFC 3339
// or unix seconds.
func parseListOpts(r *http.Request) (domain.ListOpts, error) {
	q := r.URL.Query()

	opts := domain.ListOpts{Limit: 50}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Limit = min(n, 500)
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			opts.Offset = n
		}
	}
	for name, dst := range map[string]**time.Time{"since": &opts.Since, "until": &opts.Until} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := parseTime(v)
		if err != nil {
			return domain.ListOpts{}, err
		}
		*dst = &t
	}
	return opts, nil
}

func parseTime(v string) (time.Time, error) {
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, errors.New("time must be RFC 3339 or unix seconds")
	}
	return t, nil
}

// marketIDParam parses the {id} path segment as a 1-based market ID.
func marketIDParam(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// addressParam returns the {address} path segment when it is a hex address.
func addressParam(r *http.Request) (string, bool) {
	addr := strings.TrimSpace(r.PathValue("address"))
	return addr, common.IsHexAddress(addr)
}
