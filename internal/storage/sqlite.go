package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"netcheck/pkg/logx"
	"netcheck/pkg/speedtest"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS results (
	id                TEXT    NOT NULL UNIQUE,
	v                 INTEGER NOT NULL,
	ts                TEXT    NOT NULL,
	download_mbps     REAL,
	upload_mbps       REAL,
	latency_ms        REAL,
	jitter_ms         REAL,
	loaded_latency_ms REAL,
	ttfb_ms           REAL,
	dns_ms            REAL,
	quality_score     INTEGER,
	server_location   TEXT,
	server_ip         TEXT,
	client_ip         TEXT,
	isp               TEXT
);`

const resultColumns = `ts, download_mbps, upload_mbps, latency_ms, jitter_ms, loaded_latency_ms,
	ttfb_ms, dns_ms, quality_score, server_location, server_ip, client_ip, isp`

// sqliteStore keeps results in insertion (rowid) order.
type sqliteStore struct {
	db  *sql.DB
	max int
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return &sqliteStore{db: db, max: cfg.MaxRecords, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Append(ctx context.Context, r speedtest.Result) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO results(id, v, `+resultColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		uuid.NewString(), schemaVersion, r.Timestamp.Format(time.RFC3339Nano),
		nullFloat(r.DownloadMbps), nullFloat(r.UploadMbps), nullFloat(r.LatencyMs), nullFloat(r.JitterMs),
		nullFloat(r.LoadedLatencyMs), nullFloat(r.TTFBMs), nullFloat(r.DNSMs), nullInt(r.QualityScore),
		nullStr(r.ServerLocation), nullStr(r.ServerIP), nullStr(r.ClientIP), nullStr(r.ISP),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM results WHERE rowid NOT IN (SELECT rowid FROM results ORDER BY rowid DESC LIMIT ?)`,
		s.max,
	)
	if err != nil {
		return fmt.Errorf("trim results: %w", err)
	}
	return tx.Commit()
}

func (s *sqliteStore) Load(ctx context.Context) ([]speedtest.Result, error) {
	if s == nil || s.db == nil {
		return []speedtest.Result{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+resultColumns+` FROM results ORDER BY rowid`)
	if err != nil {
		s.log.Warn("history query failed; treating as empty", logx.Err(err))
		return []speedtest.Result{}, nil
	}
	defer rows.Close()

	out := make([]speedtest.Result, 0, s.max)
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			s.log.Warn("skipping unreadable history row", logx.Err(err))
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		s.log.Warn("history scan failed; treating as empty", logx.Err(err))
		return []speedtest.Result{}, nil
	}
	return out, nil
}

func (s *sqliteStore) Latest(ctx context.Context) (speedtest.Result, bool, error) {
	if s == nil || s.db == nil {
		return speedtest.Result{}, false, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM results ORDER BY rowid DESC LIMIT 1`)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return speedtest.Result{}, false, nil
	}
	if err != nil {
		s.log.Warn("latest result unreadable", logx.Err(err))
		return speedtest.Result{}, false, nil
	}
	return r, true, nil
}

func (s *sqliteStore) Clear(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM results`)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (speedtest.Result, error) {
	var (
		ts                                   string
		dl, ul, lat, jit, loaded, ttfb, dns  sql.NullFloat64
		score                                sql.NullInt64
		location, serverIP, clientIP, ispStr sql.NullString
	)
	if err := row.Scan(&ts, &dl, &ul, &lat, &jit, &loaded, &ttfb, &dns, &score, &location, &serverIP, &clientIP, &ispStr); err != nil {
		return speedtest.Result{}, err
	}
	t, err := speedtest.ParseTimestamp(ts)
	if err != nil {
		return speedtest.Result{}, err
	}
	r := speedtest.Result{
		Timestamp:       t,
		DownloadMbps:    fromNullFloat(dl),
		UploadMbps:      fromNullFloat(ul),
		LatencyMs:       fromNullFloat(lat),
		JitterMs:        fromNullFloat(jit),
		LoadedLatencyMs: fromNullFloat(loaded),
		TTFBMs:          fromNullFloat(ttfb),
		DNSMs:           fromNullFloat(dns),
		ServerLocation:  fromNullString(location),
		ServerIP:        fromNullString(serverIP),
		ClientIP:        fromNullString(clientIP),
		ISP:             fromNullString(ispStr),
	}
	if score.Valid {
		r.QualityScore = speedtest.Int(int(score.Int64))
	}
	return r, nil
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func nullStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func fromNullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return speedtest.Float(v.Float64)
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return speedtest.String(v.String)
}
