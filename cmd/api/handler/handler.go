package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"floodsync/internal/logging"
	"floodsync/internal/tracker"
)

const (
	defaultImportWindow = 24 * time.Hour
	maxImportLimit      = 500
	presignExpiry       = 15 * time.Minute
)

// ImportLister lists tracked feed imports.
type ImportLister interface {
	ListRecent(ctx context.Context, since time.Time, limit int) ([]tracker.ImportRecord, error)
}

// Presigner creates temporary download links.
type Presigner interface {
	PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}

// StationSyncer refreshes the thresholds of one station.
type StationSyncer interface {
	SyncStation(ctx context.Context, stationID int64) (string, error)
}

// RunStarter starts a paged threshold run.
type RunStarter interface {
	Start(ctx context.Context, input any) (string, error)
}

// Server holds the dependencies of the API handlers. Nil dependencies make
// their endpoints answer 503.
type Server struct {
	Imports   ImportLister
	Presigner Presigner
	Bucket    string
	Syncer    StationSyncer
	Runs      RunStarter
	Log       *zap.Logger
	Now       func() time.Time
}

// Routes registers every endpoint on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", HealthHandler)
	mux.HandleFunc("/imports", s.ImportsHandler)
	mux.HandleFunc("/thresholds/sync", s.SyncStationHandler)
	mux.HandleFunc("/thresholds/run", s.StartRunHandler)
}

func (s *Server) log() *zap.Logger { return logging.OrNop(s.Log) }

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// HealthHandler returns a basic OK response.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type importItem struct {
	tracker.ImportRecord
	URL string `json:"url,omitempty"`
}

type importsResponse struct {
	Since   string       `json:"since"`
	Count   int          `json:"count"`
	Imports []importItem `json:"imports"`
}

// ImportsHandler lists feed imports since `since` (RFC 3339, default the
// last 24 hours), at most `limit` of them. Each item links to its file.
func (s *Server) ImportsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.Imports == nil {
		writeError(w, http.StatusServiceUnavailable, "import tracker not configured")
		return
	}

	q := r.URL.Query()
	since := s.now().Add(-defaultImportWindow)
	if v := strings.TrimSpace(q.Get("since")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC 3339 time")
			return
		}
		since = t
	}
	limit := 100
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxImportLimit)
	}

	records, err := s.Imports.ListRecent(r.Context(), since, limit)
	if err != nil {
		s.log().Error("list imports failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "could not list imports")
		return
	}

	items := make([]importItem, len(records))
	for i, rec := range records {
		items[i] = importItem{ImportRecord: rec}
		if s.Presigner == nil || s.Bucket == "" {
			continue
		}
		u, err := s.Presigner.PresignGet(r.Context(), s.Bucket, rec.Key, presignExpiry)
		if err != nil {
			s.log().Warn("presign failed", zap.String("key", rec.Key), zap.Error(err))
			continue
		}
		items[i].URL = u
	}
	writeJSON(w, http.StatusOK, importsResponse{
		Since:   since.UTC().Format(time.RFC3339),
		Count:   len(items),
		Imports: items,
	})
}

func stationParam(r *http.Request) (int64, error) {
	v := strings.TrimSpace(r.URL.Query().Get("station"))
	if v == "" {
		return 0, errors.New("station is required")
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("station must be a positive RLOI id")
	}
	return id, nil
}

// SyncStationHandler refreshes the thresholds of ?station=<RLOI id>.
func (s *Server) SyncStationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.Syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}
	id, err := stationParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := s.Syncer.SyncStation(r.Context(), id)
	if err != nil {
		s.log().Error("station sync failed", zap.Int64("station", id), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"station": id, "outcome": outcome})
}

// StartRunHandler starts a paged threshold run at ?offset= (default 0).
func (s *Server) StartRunHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.Runs == nil {
		writeError(w, http.StatusServiceUnavailable, "STATE_MACHINE_ARN not configured")
		return
	}
	offset := 0
	if v := strings.TrimSpace(r.URL.Query().Get("offset")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = n
	}

	execArn, err := s.Runs.Start(r.Context(), map[string]int{"offset": offset})
	if err != nil {
		s.log().Error("start state machine failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "state machine start failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "execution started",
		"offset":        offset,
		"timestamp":     s.now().UTC().Format(time.RFC3339),
		"execution_arn": execArn,
	})
}
