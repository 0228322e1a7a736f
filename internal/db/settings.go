package db

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/greenwave/internal/calibration"
	"github.com/banshee-data/greenwave/internal/config"
	"github.com/banshee-data/greenwave/internal/phase"
)

// CalibrationMethod records how the current sync anchor was obtained.
type CalibrationMethod string

const (
	MethodNone         CalibrationMethod = "none"
	MethodManual       CalibrationMethod = "manual"
	MethodCameraTriple CalibrationMethod = "camera-triple"
)

// StatusLabel is the short label shown next to the decision.
func (m CalibrationMethod) StatusLabel() string {
	switch m {
	case MethodNone, "":
		return "NO SYNC"
	case MethodCameraTriple:
		return "CALIBRATED"
	default:
		return "BASIC SYNC"
	}
}

// Settings is the single persisted settings record.
type Settings struct {
	DescentSeconds       float64           `json:"descent_seconds"`
	CycleSeconds         float64           `json:"cycle_seconds"`
	GreenSeconds         float64           `json:"green_seconds"`
	YellowSeconds        float64           `json:"yellow_seconds"`
	SyncTimestamp        *time.Time        `json:"sync_timestamp,omitempty"`
	CalibrationMethod    CalibrationMethod `json:"calibration_method"`
	CalibrationQuality   int               `json:"calibration_quality"`
	CalibrationTimestamp *time.Time        `json:"calibration_timestamp,omitempty"`
	MeasuredCycleSeconds *float64          `json:"measured_cycle_seconds,omitempty"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// DefaultSettings is the unsynced record built from cfg's defaults.
func DefaultSettings(cfg *config.TuningConfig) Settings {
	return Settings{
		DescentSeconds:    cfg.GetDefaultDescentSeconds(),
		CycleSeconds:      cfg.GetDefaultCycleSeconds(),
		GreenSeconds:      cfg.GetDefaultGreenSeconds(),
		YellowSeconds:     cfg.GetDefaultYellowSeconds(),
		CalibrationMethod: MethodNone,
	}
}

// CycleParams converts the record into decision engine parameters. An
// unsynced record anchors at the Unix epoch.
func (s Settings) CycleParams() phase.Params {
	p := phase.Params{
		CycleSeconds:  s.CycleSeconds,
		GreenSeconds:  s.GreenSeconds,
		YellowSeconds: s.YellowSeconds,
	}
	if s.SyncTimestamp != nil {
		p.SyncTimestamp = *s.SyncTimestamp
	} else {
		p.SyncTimestamp = time.UnixMilli(0)
	}
	return p
}

// Status is the calibration status label for the record.
func (s Settings) Status() string { return s.CalibrationMethod.StatusLabel() }

// SettingsUpdate carries a partial edit. Nil fields are left unchanged.
type SettingsUpdate struct {
	DescentSeconds *float64 `json:"descent_seconds,omitempty"`
	CycleSeconds   *float64 `json:"cycle_seconds,omitempty"`
	GreenSeconds   *float64 `json:"green_seconds,omitempty"`
	YellowSeconds  *float64 `json:"yellow_seconds,omitempty"`
}

// ValidationError reports a rejected settings edit.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Apply returns s with u applied, or a *ValidationError if the result is
// not a usable signal.
func (u SettingsUpdate) Apply(s Settings) (Settings, error) {
	for _, f := range []struct {
		name string
		v    *float64
		dst  *float64
	}{
		{"descent_seconds", u.DescentSeconds, &s.DescentSeconds},
		{"cycle_seconds", u.CycleSeconds, &s.CycleSeconds},
		{"green_seconds", u.GreenSeconds, &s.GreenSeconds},
		{"yellow_seconds", u.YellowSeconds, &s.YellowSeconds},
	} {
		if f.v == nil {
			continue
		}
		if math.IsNaN(*f.v) || math.IsInf(*f.v, 0) || *f.v < 0 {
			return s, &ValidationError{Field: f.name, Reason: "must be a non-negative number"}
		}
		*f.dst = *f.v
	}
	switch {
	case s.CycleSeconds <= 0:
		return s, &ValidationError{Field: "cycle_seconds", Reason: "must be positive"}
	case s.GreenSeconds <= 0:
		return s, &ValidationError{Field: "green_seconds", Reason: "must be positive"}
	case s.GreenSeconds+s.YellowSeconds > s.CycleSeconds:
		return s, &ValidationError{Field: "green_seconds", Reason: "green plus yellow exceeds the cycle"}
	}
	return s, nil
}

const settingsColumns = `descent_seconds, cycle_seconds, green_seconds, yellow_seconds,
	sync_unix_ms, calibration_method, calibration_quality, calibration_unix_ms,
	measured_cycle_seconds, updated_unix_ms`

// Settings loads the settings record.
func (db *DB) Settings() (Settings, error) {
	var (
		s             Settings
		method        string
		syncMs, calMs sql.NullInt64
		measured      sql.NullFloat64
		updatedMs     int64
	)
	err := db.QueryRow(`SELECT `+settingsColumns+` FROM settings WHERE id = 1`).Scan(
		&s.DescentSeconds, &s.CycleSeconds, &s.GreenSeconds, &s.YellowSeconds,
		&syncMs, &method, &s.CalibrationQuality, &calMs,
		&measured, &updatedMs,
	)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	s.CalibrationMethod = CalibrationMethod(method)
	s.SyncTimestamp = fromNullMillis(syncMs)
	s.CalibrationTimestamp = fromNullMillis(calMs)
	if measured.Valid {
		v := measured.Float64
		s.MeasuredCycleSeconds = &v
	}
	if updatedMs != 0 {
		s.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	}
	return s, nil
}

// SaveSettings replaces the settings record. UpdatedAt is set to now.
func (db *DB) SaveSettings(s Settings, now time.Time) (Settings, error) {
	if s.CalibrationMethod == "" {
		s.CalibrationMethod = MethodNone
	}
	s.UpdatedAt = now.Truncate(time.Millisecond).UTC()
	var measured sql.NullFloat64
	if s.MeasuredCycleSeconds != nil {
		measured = sql.NullFloat64{Float64: *s.MeasuredCycleSeconds, Valid: true}
	}
	_, err := db.Exec(`INSERT OR REPLACE INTO settings (id, `+settingsColumns+`)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.DescentSeconds, s.CycleSeconds, s.GreenSeconds, s.YellowSeconds,
		toNullMillis(s.SyncTimestamp), string(s.CalibrationMethod), s.CalibrationQuality, toNullMillis(s.CalibrationTimestamp),
		measured, s.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return db.Settings()
}

// UpdateSettings applies a partial edit to the stored record.
func (db *DB) UpdateSettings(u SettingsUpdate, now time.Time) (Settings, error) {
	cur, err := db.Settings()
	if err != nil {
		return Settings{}, err
	}
	next, err := u.Apply(cur)
	if err != nil {
		return Settings{}, err
	}
	return db.SaveSettings(next, now)
}

// SyncNow anchors the cycle at now: the rider pressed sync as the light
// turned green.
func (db *DB) SyncNow(now time.Time) (Settings, error) {
	s, err := db.Settings()
	if err != nil {
		return Settings{}, err
	}
	t := now.Truncate(time.Millisecond).UTC()
	s.SyncTimestamp = &t
	s.CalibrationMethod = MethodManual
	s.CalibrationQuality = 0
	return db.SaveSettings(s, now)
}

// ResetToDefaults replaces the record with defaults anchored at now.
// Calibration history is kept.
func (db *DB) ResetToDefaults(defaults Settings, now time.Time) (Settings, error) {
	t := now.Truncate(time.Millisecond).UTC()
	s := defaults
	s.SyncTimestamp = &t
	s.CalibrationMethod = MethodNone
	s.CalibrationQuality = 0
	s.CalibrationTimestamp = nil
	s.MeasuredCycleSeconds = nil
	return db.SaveSettings(s, now)
}

// CalibrationRecord is one completed camera calibration.
type CalibrationRecord struct {
	ID        uuid.UUID          `json:"id"`
	Result    calibration.Result `json:"result"`
	CreatedAt time.Time          `json:"created_at"`
}

// ApplyCalibration adopts res as the current sync and timing and records it
// in the calibration history, atomically.
func (db *DB) ApplyCalibration(id uuid.UUID, res calibration.Result, now time.Time) (Settings, error) {
	if res.MeasuredCycleSeconds <= 0 {
		return Settings{}, errors.New("calibration has no cycle length")
	}
	s, err := db.Settings()
	if err != nil {
		return Settings{}, err
	}
	syncAt := res.SyncTimestamp.Truncate(time.Millisecond).UTC()
	calAt := now.Truncate(time.Millisecond).UTC()
	cycle := res.MeasuredCycleSeconds

	s.SyncTimestamp = &syncAt
	s.CalibrationMethod = MethodCameraTriple
	s.CalibrationQuality = res.QualityScore
	s.CalibrationTimestamp = &calAt
	s.MeasuredCycleSeconds = &cycle
	s.CycleSeconds = cycle
	s.GreenSeconds = res.MeasuredGreenSeconds
	if s.GreenSeconds+s.YellowSeconds > s.CycleSeconds {
		s.YellowSeconds = math.Max(0, s.CycleSeconds-s.GreenSeconds)
	}

	tx, err := db.Begin()
	if err != nil {
		return Settings{}, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO calibrations (
			calibration_id, sync_unix_ms, measured_cycle_seconds, measured_green_seconds,
			quality_score, green_measured, deviation_seconds, created_unix_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), syncAt.UnixMilli(), res.MeasuredCycleSeconds, res.MeasuredGreenSeconds,
		res.QualityScore, res.GreenMeasured, res.DeviationSeconds, calAt.UnixMilli(),
	)
	if err != nil {
		return Settings{}, fmt.Errorf("record calibration %s: %w", id, err)
	}
	_, err = tx.Exec(`UPDATE settings SET
			cycle_seconds = ?, green_seconds = ?, yellow_seconds = ?,
			sync_unix_ms = ?, calibration_method = ?, calibration_quality = ?,
			calibration_unix_ms = ?, measured_cycle_seconds = ?, updated_unix_ms = ?
		WHERE id = 1`,
		s.CycleSeconds, s.GreenSeconds, s.YellowSeconds,
		syncAt.UnixMilli(), string(s.CalibrationMethod), s.CalibrationQuality,
		calAt.UnixMilli(), cycle, calAt.UnixMilli(),
	)
	if err != nil {
		return Settings{}, fmt.Errorf("apply calibration %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return Settings{}, err
	}
	return db.Settings()
}

// Calibrations returns up to limit history records, newest first. A
// non-positive limit returns all of them.
func (db *DB) Calibrations(limit int) ([]CalibrationRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`SELECT calibration_id, sync_unix_ms, measured_cycle_seconds,
			measured_green_seconds, quality_score, green_measured, deviation_seconds, created_unix_ms
		FROM calibrations ORDER BY created_unix_ms DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query calibrations: %w", err)
	}
	defer rows.Close()

	var out []CalibrationRecord
	for rows.Next() {
		var (
			rec               CalibrationRecord
			id                string
			syncMs, createdMs int64
		)
		if err := rows.Scan(&id, &syncMs, &rec.Result.MeasuredCycleSeconds, &rec.Result.MeasuredGreenSeconds,
			&rec.Result.QualityScore, &rec.Result.GreenMeasured, &rec.Result.DeviationSeconds, &createdMs); err != nil {
			return nil, err
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("calibration id %q: %w", id, err)
		}
		rec.Result.SyncTimestamp = time.UnixMilli(syncMs).UTC()
		rec.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func toNullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

// Inputs is the decision engine snapshot for the record.
func (s Settings) Inputs(m phase.Margins) phase.Inputs {
	return phase.Inputs{DescentSeconds: s.DescentSeconds, Params: s.CycleParams(), Margins: m}
}
