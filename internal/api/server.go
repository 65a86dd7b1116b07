package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"signal-radar/internal/engagement"
	"signal-radar/internal/logging"
	"signal-radar/internal/model"
	"signal-radar/internal/monitor"
	"signal-radar/internal/scheduler"
	"signal-radar/internal/storage"

	"github.com/sirupsen/logrus"
)

// SignalStore 查询已记录的信号。
type SignalStore interface {
	ListSignals(ctx context.Context, q storage.SignalQuery) ([]model.SignalEvent, error)
}

// Scheduler 抽象调度接口。
type Scheduler interface {
	RunOnce(ctx context.Context) (scheduler.Report, error)
	State() scheduler.State
}

// Monitor 账户与档案管理。
type Monitor interface {
	CreateAccount(ctx context.Context, req monitor.AccountRequest) (model.Account, error)
	AddProfile(ctx context.Context, req monitor.ProfileRequest) (model.MonitoredProfile, error)
}

// Engagement 互动扫描接口。
type Engagement interface {
	Submit(ctx context.Context, req engagement.Request) (*model.EngagementScan, error)
	Get(ctx context.Context, id string) (*model.EngagementScan, error)
	Export(ctx context.Context, id string, w io.Writer) error
}

// Deps 汇总 Handler 依赖，Metrics 为空时不注册 /metrics。
type Deps struct {
	Signals    SignalStore
	Scheduler  Scheduler
	Monitor    Monitor
	Engagement Engagement
	Metrics    http.Handler
	Logger     logrus.FieldLogger
}

// NewHandler 构造 HTTP 多路复用器。
func NewHandler(d Deps) http.Handler {
	logger := logging.Component(d.Logger, "api")
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]string{"status": "ok"}
		if d.Scheduler != nil {
			resp["scheduler"] = d.Scheduler.State().String()
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("POST /api/refresh", func(w http.ResponseWriter, r *http.Request) {
		report, err := d.Scheduler.RunOnce(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	mux.HandleFunc("POST /api/accounts", func(w http.ResponseWriter, r *http.Request) {
		var req monitor.AccountRequest
		if !decode(w, r, &req) {
			return
		}
		acc, err := d.Monitor.CreateAccount(r.Context(), req)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, acc)
	})

	mux.HandleFunc("POST /api/profiles", func(w http.ResponseWriter, r *http.Request) {
		var req monitor.ProfileRequest
		if !decode(w, r, &req) {
			return
		}
		p, err := d.Monitor.AddProfile(r.Context(), req)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	})

	mux.HandleFunc("GET /api/signals", func(w http.ResponseWriter, r *http.Request) {
		q := storage.SignalQuery{Limit: 50}
		if l := r.URL.Query().Get("limit"); l != "" {
			if v, err := strconv.Atoi(l); err == nil && v > 0 {
				if v > 500 {
					v = 500
				}
				q.Limit = v
			}
		}
		if p := r.URL.Query().Get("profile_id"); p != "" {
			v, err := strconv.ParseUint(p, 10, 64)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid profile_id"})
				return
			}
			q.ProfileID = uint(v)
		}
		events, err := d.Signals.ListSignals(r.Context(), q)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	})

	mux.HandleFunc("POST /api/engagement-scans", func(w http.ResponseWriter, r *http.Request) {
		var req engagement.Request
		if !decode(w, r, &req) {
			return
		}
		scan, err := d.Engagement.Submit(r.Context(), req)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusAccepted, scan)
	})

	mux.HandleFunc("GET /api/engagement-scans/{id}", func(w http.ResponseWriter, r *http.Request) {
		scan, err := d.Engagement.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, scan)
	})

	mux.HandleFunc("GET /api/engagement-scans/{id}/export.csv", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		var buf bytes.Buffer
		if err := d.Engagement.Export(r.Context(), id, &buf); err != nil {
			writeError(w, logger, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="engagement-`+id+`.csv"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	})

	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}

	return mux
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, logger logrus.FieldLogger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, scheduler.ErrScanInProgress), errors.Is(err, engagement.ErrScanNotReady):
		status = http.StatusConflict
	case errors.Is(err, monitor.ErrInvalidInput), errors.Is(err, engagement.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, sql.ErrNoRows):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		logger.WithError(err).Error("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
