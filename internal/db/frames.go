package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/tofgrid/internal/tof/flock"
	"github.com/banshee-data/tofgrid/internal/tof/results"
)

// ErrSessionNotFound is returned for an unknown session ID.
var ErrSessionNotFound = errors.New("session not found")

// Session is one Start..Stop run of a flock.
type Session struct {
	ID          string     `json:"session_id"`
	StartedAt   time.Time  `json:"started_at"`
	StoppedAt   *time.Time `json:"stopped_at,omitempty"`
	Sensors     int        `json:"sensors"`
	Layout      string     `json:"layout"`
	FrequencyHz int        `json:"frequency_hz"`
}

// Frame is one stored result.
type Frame struct {
	ID         int64                `json:"frame_id"`
	SessionID  string               `json:"session_id"`
	Sensor     int                  `json:"sensor"`
	CapturedAt time.Time            `json:"captured_at"`
	TempC      int                  `json:"temperature_c"`
	Summary    results.Summary      `json:"summary"`
	Data       *results.ResultsData `json:"data,omitempty"`
}

// StartSession records a new session and returns it with a fresh ID.
func (db *DB) StartSession(cfg flock.RangingConfig, sensors int, at time.Time) (*Session, error) {
	s := &Session{
		ID:          uuid.NewString(),
		StartedAt:   at,
		Sensors:     sensors,
		Layout:      cfg.Layout.String(),
		FrequencyHz: cfg.FrequencyHz,
	}
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, started_unix_nanos, sensors, layout, frequency_hz)
		 VALUES (?, ?, ?, ?, ?)`,
		s.ID, at.UnixNano(), s.Sensors, s.Layout, s.FrequencyHz,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return s, nil
}

// EndSession marks a session stopped.
func (db *DB) EndSession(id string, at time.Time) error {
	res, err := db.Exec(`UPDATE sessions SET stopped_unix_nanos = ? WHERE session_id = ?`, at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// ListSessions returns the most recent sessions first.
func (db *DB) ListSessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT session_id, started_unix_nanos, stopped_unix_nanos, sensors, layout, frequency_hz
		 FROM sessions ORDER BY started_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			s       Session
			started int64
			stopped sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &started, &stopped, &s.Sensors, &s.Layout, &s.FrequencyHz); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.StartedAt = time.Unix(0, started).UTC()
		if stopped.Valid {
			t := time.Unix(0, stopped.Int64).UTC()
			s.StoppedAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecordFrame stores one result with its summary and the decoded matrices
// as JSON.
func (db *DB) RecordFrame(sessionID string, r flock.Result) (int64, error) {
	sum := results.Summarize(r.Data)
	payload, err := json.Marshal(r.Data)
	if err != nil {
		return 0, fmt.Errorf("failed to encode frame: %w", err)
	}
	res, err := db.Exec(
		`INSERT INTO frames (
			session_id, sensor, captured_unix_nanos, temperature_c,
			zones, valid_zones, min_mm, max_mm, mean_mm, stddev_mm, payload_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, r.Sensor, r.At.UnixNano(), int(r.Temp),
		sum.Zones, sum.ValidZones, sum.MinMM, sum.MaxMM, sum.MeanMM, sum.StdDevMM, string(payload),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert frame: %w", err)
	}
	return res.LastInsertId()
}

// LatestFrames returns the newest frame of every sensor in a session,
// ordered by sensor index. Payloads are decoded only if withData is set.
func (db *DB) LatestFrames(sessionID string, withData bool) ([]Frame, error) {
	rows, err := db.Query(
		`SELECT f.frame_id, f.sensor, f.captured_unix_nanos, f.temperature_c,
		        f.zones, f.valid_zones, f.min_mm, f.max_mm, f.mean_mm, f.stddev_mm, f.payload_json
		 FROM frames f
		 JOIN (SELECT sensor, MAX(frame_id) AS frame_id FROM frames WHERE session_id = ? GROUP BY sensor) latest
		   ON f.frame_id = latest.frame_id
		 ORDER BY f.sensor`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	var out []Frame
	for rows.Next() {
		var (
			f        Frame
			captured int64
			payload  string
		)
		if err := rows.Scan(&f.ID, &f.Sensor, &captured, &f.TempC,
			&f.Summary.Zones, &f.Summary.ValidZones, &f.Summary.MinMM, &f.Summary.MaxMM,
			&f.Summary.MeanMM, &f.Summary.StdDevMM, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		f.SessionID = sessionID
		f.CapturedAt = time.Unix(0, captured).UTC()
		if withData {
			f.Data = &results.ResultsData{}
			if err := json.Unmarshal([]byte(payload), f.Data); err != nil {
				return nil, fmt.Errorf("failed to decode frame %d: %w", f.ID, err)
			}
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// CountFrames returns the number of frames per sensor in a session.
func (db *DB) CountFrames(sessionID string) (map[int]int, error) {
	rows, err := db.Query(`SELECT sensor, COUNT(*) FROM frames WHERE session_id = ? GROUP BY sensor`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count frames: %w", err)
	}
	defer rows.Close()
	out := make(map[int]int)
	for rows.Next() {
		var sensor, n int
		if err := rows.Scan(&sensor, &n); err != nil {
			return nil, err
		}
		out[sensor] = n
	}
	return out, rows.Err()
}
