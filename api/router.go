// Package api implements the PLC REST routes. Each request opens its own PLC
// session and closes it before the response is written.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"signaltap/driver"
	"signaltap/logging"
	"signaltap/plcman"
)

// ScanResponse is the JSON response for a full tag scan.
type ScanResponse struct {
	Success    bool         `json:"success"`
	Tags       []plcman.Tag `json:"tags"`
	TotalCount int          `json:"total_count"`
	Message    string       `json:"message,omitempty"`
}

// ReadRequest is the JSON request for a batch read.
type ReadRequest struct {
	Tags      []string `json:"tags"`
	IPAddress string   `json:"ip_address"`
	Slot      *int     `json:"slot"`
	Timeout   int      `json:"timeout"`
	Micro800  bool     `json:"micro800"`
}

// ReadResponse is the JSON response for a batch read. Tags that failed to
// read map to null.
type ReadResponse struct {
	Success bool           `json:"success"`
	Values  map[string]any `json:"values"`
	Message string         `json:"message,omitempty"`
}

// LiveReadRequest is the JSON request for a live read.
type LiveReadRequest struct {
	IP   string   `json:"ip"`
	Slot *int     `json:"slot"`
	Tags []string `json:"tags"`
}

// MessageResponse is the JSON response for writes and connection tests.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// InfoResponse is the JSON response for device information.
type InfoResponse struct {
	Success bool           `json:"success"`
	PLCInfo plcman.PLCInfo `json:"plc_info"`
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
	Kind   string `json:"kind"`
}

// KindBusy is reported when the per-PLC session limit could not be met.
const KindBusy = "Busy"

// Options configures the router.
type Options struct {
	Manager     *plcman.Manager
	DefaultSlot int
	MaxTimeout  time.Duration
	Logger      *slog.Logger
}

// handlers holds the API handler functions.
type handlers struct {
	manager     *plcman.Manager
	defaultSlot int
	maxTimeout  time.Duration
	log         *slog.Logger
}

// NewRouter creates the REST API router.
func NewRouter(opts Options) chi.Router {
	h := &handlers{
		manager:     opts.Manager,
		defaultSlot: opts.DefaultSlot,
		maxTimeout:  opts.MaxTimeout,
		log:         opts.Logger,
	}
	if h.log == nil {
		h.log = slog.Default()
	}

	r := chi.NewRouter()
	r.Get("/scan", h.handleScan)
	r.Get("/scan-simple", h.handleScanSimple)
	r.Post("/read", h.handleRead)
	r.Post("/read-tags", h.handleReadTags)
	r.Post("/write/{tag_name}", h.handleWrite)
	r.Get("/info", h.handleInfo)
	r.Get("/test-connection", h.handleTestConnection)
	return r
}

func (h *handlers) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (h *handlers) writeError(w http.ResponseWriter, status int, kind, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Detail: detail, Kind: kind})
}

// statusFor maps an error to its HTTP status. Connection failures are a
// client error only on routes that report them that way.
func statusFor(err error, connectIs400 bool) int {
	var reqErr *errRequest
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest
	}
	if errors.Is(err, plcman.ErrBusy) {
		return http.StatusServiceUnavailable
	}
	switch driver.KindOf(err) {
	case driver.KindInvalidRequest:
		return http.StatusBadRequest
	case driver.KindNotFound:
		return http.StatusNotFound
	case driver.KindConnectFailure, driver.KindTimeout:
		if connectIs400 {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func kindFor(err error) string {
	var reqErr *errRequest
	switch {
	case errors.As(err, &reqErr):
		return driver.KindInvalidRequest.String()
	case errors.Is(err, plcman.ErrBusy):
		return KindBusy
	}
	return driver.KindOf(err).String()
}

// isConnectError reports whether err came from opening the session.
func isConnectError(err error) bool {
	var de *driver.Error
	return errors.As(err, &de) && de.Op == "connect"
}

// fail writes the error response for err. action prefixes failures after
// the session opened.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, action, ip string, err error, connectIs400 bool) {
	status := statusFor(err, connectIs400)

	var reqErr *errRequest
	var detail string
	switch {
	case errors.As(err, &reqErr):
		detail = err.Error()
	case errors.Is(err, plcman.ErrBusy):
		detail = fmt.Sprintf("PLC at %s is busy: %v", ip, err)
	case isConnectError(err) && connectIs400:
		detail = fmt.Sprintf("PLC connection failed: %v", err)
	case isConnectError(err):
		detail = fmt.Sprintf("Failed to connect to PLC at %s: %v", ip, err)
	default:
		detail = fmt.Sprintf("%s: %v", action, err)
	}

	if status >= http.StatusInternalServerError {
		h.log.Error(action, "path", r.URL.Path, "plc", ip, "status", status, "error", err)
	} else {
		h.log.Warn(action, "path", r.URL.Path, "plc", ip, "status", status, "error", err)
	}
	logging.DebugLog("api", "%s %s -> %d: %s", r.Method, r.URL.Path, status, detail)
	h.writeError(w, status, kindFor(err), detail)
}

func (h *handlers) handleScan(w http.ResponseWriter, r *http.Request) {
	const action = "Error scanning PLC tags"
	cfg, err := h.connectionFromQuery(r.URL.Query(), "ip_address")
	if err != nil {
		h.fail(w, r, action, cfg.IP, err, false)
		return
	}

	var tags []plcman.Tag
	err = h.manager.WithSession(r.Context(), cfg, func(s *plcman.Session) error {
		var err error
		tags, err = s.Tags()
		return err
	})
	if err != nil {
		h.fail(w, r, action, cfg.IP, err, false)
		return
	}

	if tags == nil {
		tags = []plcman.Tag{}
	}
	h.writeJSON(w, ScanResponse{
		Success:    true,
		Tags:       tags,
		TotalCount: len(tags),
		Message:    fmt.Sprintf("Successfully scanned %d tags from PLC", len(tags)),
	})
}

func (h *handlers) handleScanSimple(w http.ResponseWriter, r *http.Request) {
	const action = "Error scanning PLC tags"
	q := r.URL.Query()
	ip := q.Get("ip")
	if ip == "" {
		h.fail(w, r, action, ip, badRequest("ip is required"), true)
		return
	}
	slot, err := h.slot(q.Get("slot"))
	if err != nil {
		h.fail(w, r, action, ip, err, true)
		return
	}

	tags, err := h.manager.ScanSimple(r.Context(), ip, slot)
	if err != nil {
		h.fail(w, r, action, ip, err, true)
		return
	}
	if tags == nil {
		tags = []plcman.SimpleTag{}
	}
	h.writeJSON(w, tags)
}

func (h *handlers) handleRead(w http.ResponseWriter, r *http.Request) {
	const action = "Error reading PLC tags"
	var req ReadRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, action, "", err, false)
		return
	}
	if req.IPAddress == "" {
		h.fail(w, r, action, "", badRequest("ip_address is required"), false)
		return
	}
	if req.Tags == nil {
		h.fail(w, r, action, req.IPAddress, badRequest("tags is required"), false)
		return
	}

	cfg := plcman.ConnectionConfig{IP: req.IPAddress, Slot: h.defaultSlot, Micro800: req.Micro800}
	if req.Slot != nil {
		cfg.Slot = *req.Slot
	}
	if err := validSlot(cfg.Slot); err != nil {
		h.fail(w, r, action, cfg.IP, err, false)
		return
	}
	timeout, err := h.timeout(req.Timeout)
	if err != nil {
		h.fail(w, r, action, cfg.IP, err, false)
		return
	}
	cfg.Timeout = timeout

	var values map[string]any
	err = h.manager.WithSession(r.Context(), cfg, func(s *plcman.Session) error {
		var err error
		values, err = s.ReadTags(req.Tags)
		return err
	})
	if err != nil {
		h.fail(w, r, action, cfg.IP, err, false)
		return
	}

	h.writeJSON(w, ReadResponse{
		Success: true,
		Values:  values,
		Message: fmt.Sprintf("Successfully read %d tags from PLC", len(req.Tags)),
	})
}

func (h *handlers) handleReadTags(w http.ResponseWriter, r *http.Request) {
	const action = "Error reading tags"
	var req LiveReadRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, action, "", err, true)
		return
	}
	if req.IP == "" {
		h.fail(w, r, action, "", badRequest("ip is required"), true)
		return
	}
	if req.Tags == nil {
		h.fail(w, r, action, req.IP, badRequest("tags is required"), true)
		return
	}
	slot := h.defaultSlot
	if req.Slot != nil {
		slot = *req.Slot
	}
	if err := validSlot(slot); err != nil {
		h.fail(w, r, action, req.IP, err, true)
		return
	}

	results, err := h.manager.ReadLive(r.Context(), req.IP, slot, req.Tags)
	if err != nil {
		h.fail(w, r, action, req.IP, err, true)
		return
	}
	if results == nil {
		results = []plcman.TagReadResult{}
	}
	h.writeJSON(w, results)
}

func (h *handlers) handleWrite(w http.ResponseWriter, r *http.Request) {
	const action = "Error writing to PLC tag"
	tagName, err := url.PathUnescape(chi.URLParam(r, "tag_name"))
	if err != nil || tagName == "" {
		h.fail(w, r, action, "", badRequest("invalid tag name"), false)
		return
	}

	cfg, err := h.connectionFromQuery(r.URL.Query(), "ip_address")
	if err != nil {
		h.fail(w, r, action, cfg.IP, err, false)
		return
	}
	value, err := writeValue(w, r)
	if err != nil {
		h.fail(w, r, action, cfg.IP, err, false)
		return
	}

	err = h.manager.WithSession(r.Context(), cfg, func(s *plcman.Session) error {
		return s.WriteTag(tagName, value)
	})
	if err != nil {
		h.fail(w, r, action, cfg.IP, err, false)
		return
	}

	h.writeJSON(w, MessageResponse{
		Success: true,
		Message: fmt.Sprintf("Successfully wrote %v to tag %s", value, tagName),
	})
}

func (h *handlers) handleInfo(w http.ResponseWriter, r *http.Request) {
	const action = "Error getting PLC info"
	cfg, err := h.connectionFromQuery(r.URL.Query(), "ip_address")
	if err != nil {
		h.fail(w, r, action, cfg.IP, err, false)
		return
	}

	var info plcman.PLCInfo
	err = h.manager.WithSession(r.Context(), cfg, func(s *plcman.Session) error {
		info = s.Info()
		return nil
	})
	if err != nil {
		h.fail(w, r, action, cfg.IP, err, false)
		return
	}

	h.writeJSON(w, InfoResponse{Success: true, PLCInfo: info})
}

func (h *handlers) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	const action = "Error testing PLC connection"
	cfg, err := h.connectionFromQuery(r.URL.Query(), "ip_address")
	if err != nil {
		h.fail(w, r, action, cfg.IP, err, false)
		return
	}

	if err := h.manager.Test(r.Context(), cfg); err != nil {
		h.fail(w, r, action, cfg.IP, err, false)
		return
	}

	h.writeJSON(w, MessageResponse{
		Success: true,
		Message: fmt.Sprintf("Successfully connected to PLC at %s", cfg.IP),
	})
}
