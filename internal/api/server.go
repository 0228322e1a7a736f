// Package api serves the live decision, the settings record and camera
// calibration sessions over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/greenwave/internal/calibration"
	"github.com/banshee-data/greenwave/internal/capture"
	"github.com/banshee-data/greenwave/internal/config"
	"github.com/banshee-data/greenwave/internal/db"
	"github.com/banshee-data/greenwave/internal/httputil"
	"github.com/banshee-data/greenwave/internal/monitoring"
	"github.com/banshee-data/greenwave/internal/phase"
	"github.com/banshee-data/greenwave/internal/timeutil"
	"github.com/banshee-data/greenwave/internal/trace"
	"github.com/banshee-data/greenwave/internal/version"
)

const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// SourceFactory opens the frame source for a new calibration session.
type SourceFactory func() (capture.Source, error)

// Options configures a Server. DB and NewSource are required.
type Options struct {
	DB        *db.DB
	Config    *config.TuningConfig
	Clock     timeutil.Clock
	NewSource SourceFactory
	Feedback  calibration.Feedback
}

type Server struct {
	ctx       context.Context
	db        *db.DB
	cfg       *config.TuningConfig
	clock     timeutil.Clock
	newSource SourceFactory
	feedback  calibration.Feedback

	mu       sync.Mutex
	session  *calibration.Session
	recorder *trace.Recorder
	outcome  *Outcome
	wg       sync.WaitGroup
}

// NewServer builds a server. Calibration sessions live until they finish
// or ctx is cancelled; they are not tied to the request that started them.
func NewServer(ctx context.Context, opts Options) *Server {
	if opts.Config == nil {
		opts.Config = config.EmptyTuningConfig()
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Server{
		ctx:       ctx,
		db:        opts.DB,
		cfg:       opts.Config,
		clock:     opts.Clock,
		newSource: opts.NewSource,
		feedback:  opts.Feedback,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	code := strconv.Itoa(statusCode)
	switch {
	case statusCode >= 400:
		return colorBoldRed + code + colorReset
	case statusCode >= 300:
		return colorYellow + code + colorReset
	case statusCode >= 200:
		return colorBoldGreen + code + colorReset
	default:
		return code
	}
}

// LoggingMiddleware logs method, path, status and duration of each request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/decision", s.showDecision)
	mux.HandleFunc("/api/light", s.showLight)
	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("/api/sync", s.syncNow)
	mux.HandleFunc("/api/reset", s.resetToDefaults)
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/api/calibration/start", s.startCalibration)
	mux.HandleFunc("/api/calibration/status", s.calibrationStatus)
	mux.HandleFunc("/api/calibration/cancel", s.cancelCalibration)
	mux.HandleFunc("/api/calibration/pause", s.pauseCalibration)
	mux.HandleFunc("/api/calibration/resume", s.resumeCalibration)
	mux.HandleFunc("/api/calibration/history", s.calibrationHistory)
	mux.HandleFunc("/api/calibration/trace", s.calibrationTrace)
	return mux
}

func (s *Server) margins() phase.Margins {
	return phase.Margins{EarlySeconds: s.cfg.GetEarlyMarginSeconds(), LateSeconds: s.cfg.GetLateMarginSeconds()}
}

// DecisionResponse is one evaluation of the decision engine.
type DecisionResponse struct {
	phase.Evaluation
	CountdownWarning bool    `json:"countdown_warning"`
	DescentSeconds   float64 `json:"descent_seconds"`
	Status           string  `json:"status"`
}

func (s *Server) showDecision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	st, err := s.db.Settings()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	in := st.Inputs(s.margins())
	if v := r.URL.Query().Get("descent"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil || d < 0 {
			httputil.BadRequest(w, "descent must be a non-negative number of seconds")
			return
		}
		in.DescentSeconds = d
	}

	ev := phase.Evaluate(in, s.clock.Now())
	httputil.WriteJSONOK(w, DecisionResponse{
		Evaluation:       ev,
		CountdownWarning: ev.Result.CountdownWarning(s.cfg.GetCountdownWarningSeconds()),
		DescentSeconds:   in.DescentSeconds,
		Status:           st.Status(),
	})
}

// LightResponse is the signal colour right now.
type LightResponse struct {
	At    time.Time        `json:"at"`
	Light phase.LightState `json:"light"`
}

func (s *Server) showLight(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	st, err := s.db.Settings()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	now := s.clock.Now()
	httputil.WriteJSONOK(w, LightResponse{At: now, Light: phase.Light(st.CycleParams(), now)})
}

// SettingsResponse is the stored record plus its status label.
type SettingsResponse struct {
	db.Settings
	Status string `json:"status"`
}

func settingsResponse(st db.Settings) SettingsResponse {
	return SettingsResponse{Settings: st, Status: st.Status()}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		st, err := s.db.Settings()
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, settingsResponse(st))
	case http.MethodPut, http.MethodPatch:
		var u db.SettingsUpdate
		if err := httputil.DecodeJSON(w, r, &u); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		st, err := s.db.UpdateSettings(u, s.clock.Now())
		var verr *db.ValidationError
		switch {
		case errors.As(err, &verr):
			httputil.BadRequest(w, verr.Error())
		case err != nil:
			httputil.InternalServerError(w, err.Error())
		default:
			httputil.WriteJSONOK(w, settingsResponse(st))
		}
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) syncNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	st, err := s.db.SyncNow(s.clock.Now())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	monitoring.Logf("manual sync at %s", st.SyncTimestamp.Format(time.RFC3339Nano))
	httputil.WriteJSONOK(w, settingsResponse(st))
}

func (s *Server) resetToDefaults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	st, err := s.db.ResetToDefaults(db.DefaultSettings(s.cfg), s.clock.Now())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, settingsResponse(st))
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, version.Current())
}
