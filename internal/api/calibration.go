package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/banshee-data/greenwave/internal/calibration"
	"github.com/banshee-data/greenwave/internal/db"
	"github.com/banshee-data/greenwave/internal/httputil"
	"github.com/banshee-data/greenwave/internal/monitoring"
	"github.com/banshee-data/greenwave/internal/trace"
)

// Outcome kinds reported once a session has ended.
const (
	OutcomeApplied            = "applied"
	OutcomeCancelled          = "cancelled"
	OutcomeIntervalOutOfRange = "interval-out-of-range"
	OutcomeCaptureUnavailable = "capture-unavailable"
	OutcomeFailed             = "failed"
)

// Outcome is what became of a finished session.
type Outcome struct {
	Kind   string              `json:"kind"`
	Result *calibration.Result `json:"result,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// CalibrationStatus describes the current or most recent session.
type CalibrationStatus struct {
	Active   bool                 `json:"active"`
	Progress calibration.Progress `json:"progress"`
	Outcome  *Outcome             `json:"outcome,omitempty"`
}

// HistoryResponse lists stored calibrations, newest first.
type HistoryResponse struct {
	Calibrations []db.CalibrationRecord `json:"calibrations"`
}

// activeLocked reports whether a session is still running or its outcome
// has not been recorded yet. s.mu must be held.
func (s *Server) activeLocked() bool {
	return s.session != nil && s.outcome == nil
}

func (s *Server) statusLocked() CalibrationStatus {
	return CalibrationStatus{
		Active:   s.activeLocked(),
		Progress: s.session.Progress(),
		Outcome:  s.outcome,
	}
}

func (s *Server) startCalibration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeLocked() {
		httputil.Conflict(w, "a calibration session is already running")
		return
	}

	src, err := s.newSource()
	if err != nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	rec := trace.NewRecorder(0, s.cfg.GetOnsetThresholdPercent())
	opts := calibration.OptionsFromConfig(s.cfg)
	opts.Clock = s.clock
	opts.Feedback = s.feedback
	opts.Observer = rec

	sess, err := calibration.Start(s.ctx, src, opts)
	if err != nil {
		var cerr *calibration.CaptureUnavailableError
		if errors.As(err, &cerr) {
			status := http.StatusServiceUnavailable
			if cerr.Reason == calibration.ReasonPermissionDenied {
				status = http.StatusForbidden
			}
			httputil.WriteJSON(w, status, map[string]string{"error": cerr.Error(), "reason": string(cerr.Reason)})
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}

	s.session, s.recorder, s.outcome = sess, rec, nil
	s.wg.Add(1)
	go s.finish(sess)
	httputil.WriteJSON(w, http.StatusAccepted, s.statusLocked())
}

// finish waits for sess and adopts its result.
func (s *Server) finish(sess *calibration.Session) {
	defer s.wg.Done()
	res, err := sess.Wait()

	out := &Outcome{}
	var (
		rangeErr   *calibration.IntervalOutOfRangeError
		captureErr *calibration.CaptureUnavailableError
	)
	switch {
	case err == nil:
		out.Result = &res
		if _, aerr := s.db.ApplyCalibration(sess.ID, res, s.clock.Now()); aerr != nil {
			out.Kind, out.Error = OutcomeFailed, aerr.Error()
			monitoring.Logf("calibration %s: storing result: %v", sess.ID, aerr)
		} else {
			out.Kind = OutcomeApplied
		}
	case errors.Is(err, calibration.ErrCancelled):
		out.Kind, out.Error = OutcomeCancelled, err.Error()
	case errors.As(err, &rangeErr):
		out.Kind, out.Error = OutcomeIntervalOutOfRange, err.Error()
	case errors.As(err, &captureErr):
		out.Kind, out.Error = OutcomeCaptureUnavailable, err.Error()
	default:
		out.Kind, out.Error = OutcomeFailed, err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == sess {
		s.outcome = out
	}
}

// Close cancels any running session and waits for it to be released.
func (s *Server) Close() {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess != nil {
		sess.Cancel()
	}
	s.wg.Wait()
}

func (s *Server) calibrationStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		httputil.NotFound(w, "no calibration session")
		return
	}
	httputil.WriteJSONOK(w, s.statusLocked())
}

// withActive runs fn on the running session, or answers 404.
func (s *Server) withActive(w http.ResponseWriter, r *http.Request, fn func(*calibration.Session)) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.activeLocked() {
		httputil.NotFound(w, "no calibration session is running")
		return
	}
	fn(s.session)
	httputil.WriteJSON(w, http.StatusAccepted, s.statusLocked())
}

func (s *Server) cancelCalibration(w http.ResponseWriter, r *http.Request) {
	s.withActive(w, r, func(sess *calibration.Session) { sess.Cancel() })
}

func (s *Server) pauseCalibration(w http.ResponseWriter, r *http.Request) {
	s.withActive(w, r, func(sess *calibration.Session) { sess.SetVisible(false) })
}

func (s *Server) resumeCalibration(w http.ResponseWriter, r *http.Request) {
	s.withActive(w, r, func(sess *calibration.Session) { sess.SetVisible(true) })
}

func (s *Server) calibrationHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	history, err := s.db.Calibrations(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if history == nil {
		history = []db.CalibrationRecord{}
	}
	httputil.WriteJSONOK(w, HistoryResponse{Calibrations: history})
}

func (s *Server) calibrationTrace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	s.mu.Lock()
	rec, sess := s.recorder, s.session
	s.mu.Unlock()
	if rec == nil {
		httputil.NotFound(w, "no calibration session")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := rec.RenderHTML(w, "session "+sess.ID.String()); err != nil {
		monitoring.Logf("rendering trace: %v", err)
	}
}
