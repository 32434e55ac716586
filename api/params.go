package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"signaltap/plcman"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// errRequest marks a malformed request. It maps to 400.
type errRequest struct {
	msg string
}

func (e *errRequest) Error() string {
	return e.msg
}

func badRequest(format string, args ...any) error {
	return &errRequest{msg: fmt.Sprintf(format, args...)}
}

// connectionFromQuery builds a ConnectionConfig from ipKey, slot, timeout and
// micro800 query parameters.
func (h *handlers) connectionFromQuery(q url.Values, ipKey string) (plcman.ConnectionConfig, error) {
	cfg := plcman.ConnectionConfig{Slot: h.defaultSlot}

	cfg.IP = strings.TrimSpace(q.Get(ipKey))
	if cfg.IP == "" {
		return cfg, badRequest("%s is required", ipKey)
	}

	slot, err := h.slot(q.Get("slot"))
	if err != nil {
		return cfg, err
	}
	cfg.Slot = slot

	if s := q.Get("timeout"); s != "" {
		secs, err := strconv.Atoi(s)
		if err != nil {
			return cfg, badRequest("timeout must be an integer number of seconds, got %q", s)
		}
		timeout, err := h.timeout(secs)
		if err != nil {
			return cfg, err
		}
		cfg.Timeout = timeout
	}

	if s := q.Get("micro800"); s != "" {
		micro, err := strconv.ParseBool(s)
		if err != nil {
			return cfg, badRequest("micro800 must be a boolean, got %q", s)
		}
		cfg.Micro800 = micro
	}

	return cfg, nil
}

// slot parses a slot parameter. Empty selects the configured default.
func (h *handlers) slot(s string) (int, error) {
	if s == "" {
		return h.defaultSlot, nil
	}
	slot, err := strconv.Atoi(s)
	if err != nil {
		return 0, badRequest("slot must be an integer, got %q", s)
	}
	return slot, validSlot(slot)
}

// timeout converts request seconds. Zero selects the manager default.
func (h *handlers) timeout(secs int) (time.Duration, error) {
	if secs < 0 {
		return 0, badRequest("timeout must not be negative")
	}
	d := time.Duration(secs) * time.Second
	if h.maxTimeout > 0 && d > h.maxTimeout {
		return 0, badRequest("timeout %ds exceeds the maximum of %ds", secs, int(h.maxTimeout/time.Second))
	}
	return d, nil
}

func validSlot(slot int) error {
	if slot < 0 || slot > 255 {
		return badRequest("slot must be between 0 and 255, got %d", slot)
	}
	return nil
}

// decodeBody decodes a JSON request body into v. Numbers in untyped
// positions stay json.Number so 64-bit integers reach the driver exactly.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is required")
		}
		return badRequest("invalid JSON: %v", err)
	}
	return nil
}

// writeValue extracts the value to write. The body is either {"value": v}
// or the bare JSON value.
func writeValue(w http.ResponseWriter, r *http.Request) (any, error) {
	var body any
	if err := decodeBody(w, r, &body); err != nil {
		return nil, err
	}
	if obj, ok := body.(map[string]any); ok {
		v, found := obj["value"]
		if found && len(obj) == 1 {
			body = v
		}
	}
	if body == nil {
		return nil, badRequest("value is required")
	}
	return body, nil
}
