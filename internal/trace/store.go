// Package trace 把调度事件记到 SQLite 里，供事后分析。
package trace

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cdfmlr/sham"
	log "github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		boot     TEXT    NOT NULL,
		tick     INTEGER NOT NULL,
		kind     TEXT    NOT NULL,
		tid      INTEGER NOT NULL,
		name     TEXT    NOT NULL,
		priority INTEGER NOT NULL,
		other    INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_boot ON events(boot)`,
	`CREATE INDEX IF NOT EXISTS idx_events_boot_tid ON events(boot, tid)`,
}

// Store 是事件库
type Store struct {
	db  *sql.DB
	log *log.Entry
}

// Open 打开 path 处的事件库，不存在就新建
// path 为 ":memory:" 时用内存数据库，测试里用。
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// 内存库每个连接各是一份，只留一个连接
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}

	return &Store{
		db:  db,
		log: log.WithField("component", "trace"),
	}, nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate 建表
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Insert 在一个事务里写入一批事件
func (s *Store) Insert(ctx context.Context, events []sham.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (boot, tick, kind, tid, name, priority, other) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx,
			e.Boot, e.Tick, string(e.Kind), int(e.Tid), e.Name, e.Priority, int(e.Other),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return tx.Commit()
}

// Filter 选出要查的事件，零值字段不参与过滤
type Filter struct {
	Boot  string
	Kind  sham.EventKind
	Tid   sham.Tid
	Limit int
}

// Query 按写入顺序查事件
func (s *Store) Query(ctx context.Context, f Filter) ([]sham.Event, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Boot != "" {
		where = append(where, "boot = ?")
		args = append(args, f.Boot)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Tid != 0 {
		where = append(where, "tid = ?")
		args = append(args, int(f.Tid))
	}

	q := `SELECT boot, tick, kind, tid, name, priority, other FROM events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	s.log.WithField("query", q).Trace("[Trace] select events")
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []sham.Event
	for rows.Next() {
		var (
			e          sham.Event
			kind       string
			tid, other int
		)
		if err := rows.Scan(&e.Boot, &e.Tick, &kind, &tid, &e.Name, &e.Priority, &other); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = sham.EventKind(kind)
		e.Tid = sham.Tid(tid)
		e.Other = sham.Tid(other)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Boots 列出库里所有的启动，按第一次出现的顺序
func (s *Store) Boots(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT boot FROM events GROUP BY boot ORDER BY MIN(id)`)
	if err != nil {
		return nil, fmt.Errorf("query boots: %w", err)
	}
	defer rows.Close()

	var boots []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		boots = append(boots, b)
	}
	return boots, rows.Err()
}

// Summary 是一次启动里每个线程的事件计数
type Summary struct {
	Tid        sham.Tid
	Name       string
	Dispatches int
	Blocks     int
	Donations  int
}

// Summarize 统计一次启动里每个线程被派发、阻塞、受捐赠的次数
func (s *Store) Summarize(ctx context.Context, boot string) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tid, MIN(name),
			SUM(CASE WHEN kind = 'dispatch' THEN 1 ELSE 0 END),
			SUM(CASE WHEN kind = 'block' THEN 1 ELSE 0 END),
			SUM(CASE WHEN kind = 'donate' THEN 1 ELSE 0 END)
		FROM events WHERE boot = ? GROUP BY tid ORDER BY tid`, boot)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum Summary
			tid int
		)
		if err := rows.Scan(&tid, &sum.Name, &sum.Dispatches, &sum.Blocks, &sum.Donations); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sum.Tid = sham.Tid(tid)
		out = append(out, sum)
	}
	return out, rows.Err()
}
