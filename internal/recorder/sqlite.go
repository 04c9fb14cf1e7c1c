package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"netwatch/internal/models"
)

// SQLiteStore implements Recorder on a local SQLite database and adds
// the read side used for reporting.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens the database at path and ensures the schema.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite handles one writer at a time
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenInMemory creates a throwaway database, useful for tests.
func OpenInMemory() (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS incidents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT,
		duration_secs REAL,
		affected_targets TEXT NOT NULL,
		culprit_hop INTEGER,
		culprit_address TEXT,
		escalated_to INTEGER REFERENCES incidents(id),
		notes TEXT
	);

	CREATE TABLE IF NOT EXISTS traces (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		incident_id INTEGER REFERENCES incidents(id),
		timestamp TEXT NOT NULL,
		target TEXT NOT NULL,
		trigger TEXT NOT NULL,
		hops TEXT NOT NULL,
		reached INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS probe_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		target TEXT NOT NULL,
		target_name TEXT NOT NULL,
		latency_ms REAL,
		success INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_incidents_start_time ON incidents(start_time);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_traces_dedupe ON traces(incident_id, target, timestamp, trigger);
	CREATE INDEX IF NOT EXISTS idx_probe_log_timestamp ON probe_log(timestamp);
	CREATE INDEX IF NOT EXISTS idx_probe_log_target ON probe_log(target);
	`)
	if err != nil {
		return fmt.Errorf("initialise schema: %w", err)
	}
	return nil
}

// OpenIncident inserts an incident and returns its row id.
func (s *SQLiteStore) OpenIncident(ctx context.Context, incident *models.Incident) (int64, error) {
	affected, err := json.Marshal(incident.AffectedTargets)
	if err != nil {
		return 0, fmt.Errorf("encode affected targets: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO incidents (kind, start_time, end_time, duration_secs, affected_targets, culprit_hop, culprit_address, escalated_to, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(incident.Kind),
		incident.StartTime.UTC().Format(time.RFC3339Nano),
		nullTime(incident.EndTime),
		incident.DurationSecs,
		string(affected),
		incident.CulpritHop,
		nullString(incident.CulpritAddress),
		incident.EscalatedTo,
		nullString(incident.Notes),
	)
	if err != nil {
		return 0, fmt.Errorf("insert incident: %w", err)
	}
	return res.LastInsertId()
}

// CloseIncident records the end of an incident.
func (s *SQLiteStore) CloseIncident(ctx context.Context, id int64, end time.Time, durationSecs float64, notes string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE incidents SET end_time = ?, duration_secs = ?, notes = COALESCE(?, notes)
		WHERE id = ?`,
		end.UTC().Format(time.RFC3339Nano), durationSecs, nullString(notes), id)
	if err != nil {
		return fmt.Errorf("close incident %d: %w", id, err)
	}
	return nil
}

// MarkEscalated links a degraded episode to its outage.
func (s *SQLiteStore) MarkEscalated(ctx context.Context, id, outageID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE incidents SET escalated_to = ? WHERE id = ?`, outageID, id)
	if err != nil {
		return fmt.Errorf("mark incident %d escalated: %w", id, err)
	}
	return nil
}

// AttachTrace stores a trace snapshot. The dedupe index makes a retried
// attach after a reported failure a no-op instead of a duplicate row.
func (s *SQLiteStore) AttachTrace(ctx context.Context, incidentID int64, snapshot models.TraceSnapshot) error {
	hops, err := json.Marshal(snapshot.Hops)
	if err != nil {
		return fmt.Errorf("encode hops: %w", err)
	}

	var incident any
	if incidentID != 0 {
		incident = incidentID
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO traces (incident_id, timestamp, target, trigger, hops, reached)
		VALUES (?, ?, ?, ?, ?, ?)`,
		incident,
		snapshot.Timestamp.UTC().Format(time.RFC3339Nano),
		snapshot.Target,
		string(snapshot.Trigger),
		string(hops),
		boolToInt(snapshot.Reached),
	)
	if err != nil {
		return fmt.Errorf("insert trace: %w", err)
	}
	return nil
}

// SetCulprit records the identified culprit hop on an incident.
func (s *SQLiteStore) SetCulprit(ctx context.Context, incidentID int64, hop int, address string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE incidents SET culprit_hop = ?, culprit_address = ? WHERE id = ?`,
		hop, address, incidentID)
	if err != nil {
		return fmt.Errorf("set culprit on incident %d: %w", incidentID, err)
	}
	return nil
}

// RecordProbe appends a sampled probe result to the probe log.
func (s *SQLiteStore) RecordProbe(ctx context.Context, outcome models.ProbeOutcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO probe_log (timestamp, target, target_name, latency_ms, success)
		VALUES (?, ?, ?, ?, ?)`,
		outcome.Timestamp.UTC().Format(time.RFC3339Nano),
		outcome.Target,
		outcome.TargetName,
		outcome.LatencyMS,
		boolToInt(outcome.Success),
	)
	if err != nil {
		return fmt.Errorf("insert probe sample: %w", err)
	}
	return nil
}

// OngoingIncident returns the most recent incident without an end time.
func (s *SQLiteStore) OngoingIncident(ctx context.Context) (*models.Incident, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, start_time, end_time, duration_secs, affected_targets, culprit_hop, culprit_address, escalated_to, notes
		FROM incidents WHERE end_time IS NULL
		ORDER BY start_time DESC LIMIT 1`)

	incident, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return incident, err
}

// ListIncidents returns incidents whose start time falls in [since, until],
// newest first.
func (s *SQLiteStore) ListIncidents(ctx context.Context, since, until time.Time) ([]*models.Incident, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, start_time, end_time, duration_secs, affected_targets, culprit_hop, culprit_address, escalated_to, notes
		FROM incidents
		WHERE start_time >= ? AND start_time <= ?
		ORDER BY start_time DESC`,
		since.UTC().Format(time.RFC3339Nano), until.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var incidents []*models.Incident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, incident)
	}
	return incidents, rows.Err()
}

// TracesForIncident returns the snapshots attached to one incident, in
// insertion order.
func (s *SQLiteStore) TracesForIncident(ctx context.Context, incidentID int64) ([]models.TraceSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, target, trigger, hops, reached
		FROM traces WHERE incident_id = ? ORDER BY id`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("query traces: %w", err)
	}
	defer rows.Close()

	var snapshots []models.TraceSnapshot
	for rows.Next() {
		var (
			tsStr, target, trigger, hopsJSON string
			reached                          int
		)
		if err := rows.Scan(&tsStr, &target, &trigger, &hopsJSON, &reached); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		snapshot := models.TraceSnapshot{
			Target:  target,
			Trigger: models.TraceTrigger(trigger),
			Reached: reached != 0,
		}
		snapshot.Timestamp, _ = time.Parse(time.RFC3339Nano, tsStr)
		if err := json.Unmarshal([]byte(hopsJSON), &snapshot.Hops); err != nil {
			return nil, fmt.Errorf("decode hops: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, rows.Err()
}

// ProbeHistory returns probe samples since the cutoff, oldest first.
func (s *SQLiteStore) ProbeHistory(ctx context.Context, since time.Time) ([]models.ProbeOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, target, target_name, latency_ms, success
		FROM probe_log WHERE timestamp >= ? ORDER BY timestamp`,
		since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("query probe log: %w", err)
	}
	defer rows.Close()

	var outcomes []models.ProbeOutcome
	for rows.Next() {
		var (
			tsStr, target, name string
			latency             sql.NullFloat64
			success             int
		)
		if err := rows.Scan(&tsStr, &target, &name, &latency, &success); err != nil {
			return nil, fmt.Errorf("scan probe sample: %w", err)
		}
		outcome := models.ProbeOutcome{
			Target:     target,
			TargetName: name,
			Success:    success != 0,
		}
		outcome.Timestamp, _ = time.Parse(time.RFC3339Nano, tsStr)
		if latency.Valid {
			l := latency.Float64
			outcome.LatencyMS = &l
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, rows.Err()
}

// Cleanup deletes rows older than the retention window and returns how
// many were removed.
func (s *SQLiteStore) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(time.RFC3339Nano)

	var total int64
	for _, stmt := range []string{
		`DELETE FROM traces WHERE timestamp < ?`,
		`DELETE FROM probe_log WHERE timestamp < ?`,
		`DELETE FROM incidents WHERE start_time < ? AND end_time IS NOT NULL`,
	} {
		res, err := s.db.ExecContext(ctx, stmt, cutoff)
		if err != nil {
			return total, fmt.Errorf("cleanup: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*models.Incident, error) {
	var (
		incident     models.Incident
		kind         string
		startStr     string
		endStr       sql.NullString
		duration     sql.NullFloat64
		affectedJSON string
		culpritHop   sql.NullInt64
		culpritAddr  sql.NullString
		escalatedTo  sql.NullInt64
		notes        sql.NullString
	)
	err := row.Scan(&incident.ID, &kind, &startStr, &endStr, &duration,
		&affectedJSON, &culpritHop, &culpritAddr, &escalatedTo, &notes)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan incident: %w", err)
	}

	incident.Kind = models.IncidentKind(kind)
	incident.StartTime, _ = time.Parse(time.RFC3339Nano, startStr)
	if endStr.Valid {
		end, _ := time.Parse(time.RFC3339Nano, endStr.String)
		incident.EndTime = &end
	}
	if duration.Valid {
		d := duration.Float64
		incident.DurationSecs = &d
	}
	if err := json.Unmarshal([]byte(affectedJSON), &incident.AffectedTargets); err != nil {
		return nil, fmt.Errorf("decode affected targets: %w", err)
	}
	if culpritHop.Valid {
		h := int(culpritHop.Int64)
		incident.CulpritHop = &h
	}
	incident.CulpritAddress = culpritAddr.String
	if escalatedTo.Valid {
		e := escalatedTo.Int64
		incident.EscalatedTo = &e
	}
	incident.Notes = notes.String
	return &incident, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
