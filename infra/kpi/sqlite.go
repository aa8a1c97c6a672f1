// Package kpi keeps daily lane keeping indicators in SQLite so tuning runs
// can be compared after the fact.
package kpi

import (
	"database/sql"
	"math"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ewolf/brain/core/messages"
	coremetrics "github.com/ewolf/brain/core/metrics"
)

// Record is the aggregate of one day of actuations.
type Record struct {
	Date       time.Time
	Actuations int
	Saturated  int
	// MeanAbsEY is the mean absolute cross-track error.
	MeanAbsEY float64
	// RMSEY is the root mean square cross-track error.
	RMSEY float64
}

// SQLiteStore persists KPI records in a SQLite database. It implements
// metrics.MetricsSink so it can sit behind the sink factory.
type SQLiteStore struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS tracking_kpi (
        day INTEGER PRIMARY KEY,
        actuations INTEGER,
        saturated INTEGER,
        sum_abs_ey REAL,
        sum_sq_ey REAL
    );
    CREATE TABLE IF NOT EXISTS mode_changes (
        at INTEGER,
        from_mode TEXT,
        to_mode TEXT
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Add folds one actuation into the record of its day.
func (s *SQLiteStore) Add(at time.Time, ey float64, saturated bool) error {
	sat := 0
	if saturated {
		sat = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO tracking_kpi (day, actuations, saturated, sum_abs_ey, sum_sq_ey)
        VALUES (?, 1, ?, ?, ?)
        ON CONFLICT(day) DO UPDATE SET
            actuations = actuations + 1,
            saturated = saturated + excluded.saturated,
            sum_abs_ey = sum_abs_ey + excluded.sum_abs_ey,
            sum_sq_ey = sum_sq_ey + excluded.sum_sq_ey`,
		Day(at).Unix(), sat, math.Abs(ey), ey*ey)
	return err
}

// Query returns records in the range [start,end].
func (s *SQLiteStore) Query(start, end time.Time) ([]Record, error) {
	rows, err := s.db.Query(`SELECT day, actuations, saturated, sum_abs_ey, sum_sq_ey
        FROM tracking_kpi WHERE day >= ? AND day <= ? ORDER BY day`,
		Day(start).Unix(), Day(end).Unix())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []Record
	for rows.Next() {
		var ts int64
		var n, sat int
		var sumAbs, sumSq float64
		if err := rows.Scan(&ts, &n, &sat, &sumAbs, &sumSq); err != nil {
			return nil, err
		}
		r := Record{Date: time.Unix(ts, 0).UTC(), Actuations: n, Saturated: sat}
		if n > 0 {
			r.MeanAbsEY = sumAbs / float64(n)
			r.RMSEY = math.Sqrt(sumSq / float64(n))
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// ModeChanges returns how many transitions into each mode were stored.
func (s *SQLiteStore) ModeChanges() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT to_mode, COUNT(*) FROM mode_changes GROUP BY to_mode`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string]int)
	for rows.Next() {
		var mode string
		var n int
		if err := rows.Scan(&mode, &n); err != nil {
			return nil, err
		}
		out[mode] = n
	}
	return out, rows.Err()
}

// RecordActuation stores the actuation in today's record.
func (s *SQLiteStore) RecordActuation(ev coremetrics.ActuationEvent) error {
	at := ev.Status.Time
	if at.IsZero() {
		at = s.now()
	}
	return s.Add(at, ev.Status.EY, ev.Status.Saturated)
}

// RecordModeChange appends the transition.
func (s *SQLiteStore) RecordModeChange(ev coremetrics.ModeChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO mode_changes (at, from_mode, to_mode) VALUES (?, ?, ?)`,
		ev.Time.Unix(), ev.From, ev.To)
	return err
}

func (s *SQLiteStore) RecordDelivery(coremetrics.DeliveryEvent) error { return nil }
func (s *SQLiteStore) RecordDrop(coremetrics.DropEvent) error         { return nil }
func (s *SQLiteStore) RecordDeadLetter(messages.Key) error            { return nil }
func (s *SQLiteStore) RecordCycle(string) error                       { return nil }

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
