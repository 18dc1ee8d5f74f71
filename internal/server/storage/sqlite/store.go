package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"gatewatch/internal/server/storage"
	"gatewatch/pkg/model"
)

// recentPathLimit 是单客户端详情里最近路径的条数上限。
const recentPathLimit = 20

type Store struct {
	db  *sql.DB
	ins *sql.Stmt
}

// NewStore 打开（或创建）记录库。server 与 agent 可能同时写同一个库文件，
// WAL 加 busy_timeout 让写冲突变成短暂等待而不是立刻报错。
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "./connections.db"
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 失败：%w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	ddl := `
CREATE TABLE IF NOT EXISTS connections (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp  TEXT NOT NULL,
	client_ip  TEXT NOT NULL,
	country    TEXT,
	method     TEXT,
	path       TEXT,
	host       TEXT,
	user_agent TEXT,
	referer    TEXT
);
CREATE INDEX IF NOT EXISTS idx_connections_timestamp ON connections(timestamp);
CREATE INDEX IF NOT EXISTS idx_connections_client_ip ON connections(client_ip);
CREATE INDEX IF NOT EXISTS idx_connections_country   ON connections(country);
CREATE INDEX IF NOT EXISTS idx_connections_host      ON connections(host);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("建表失败：%w", err)
	}
	stmt, err := s.db.Prepare(`
INSERT INTO connections (
	timestamp, client_ip, country, method, path, host, user_agent, referer
) VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`)
	if err != nil {
		return fmt.Errorf("准备插入语句失败：%w", err)
	}
	s.ins = stmt
	return nil
}

func (s *Store) Insert(ctx context.Context, conn *model.Connection) error {
	if conn == nil {
		return fmt.Errorf("conn 为空")
	}
	res, err := s.ins.ExecContext(ctx,
		conn.Timestamp,
		conn.ClientIP,
		conn.Country,
		conn.Method,
		conn.Path,
		conn.Host,
		conn.UserAgent,
		conn.Referer,
	)
	if err != nil {
		return fmt.Errorf("插入失败：%w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		conn.ID = id
	}
	return nil
}

func (s *Store) List(ctx context.Context, f storage.Filter) ([]model.Connection, error) {
	q := `
SELECT id, timestamp, client_ip, country, method, path, host, user_agent, referer
FROM connections
WHERE 1=1`
	args := make([]interface{}, 0, 6)
	if f.ClientIP != "" {
		q += " AND client_ip = ?"
		args = append(args, f.ClientIP)
	}
	if f.Country != "" {
		q += " AND country = ?"
		args = append(args, f.Country)
	}
	if f.Host != "" {
		q += " AND host LIKE ?"
		args = append(args, "%"+f.Host+"%")
	}
	if f.Since != "" {
		q += " AND timestamp >= ?"
		args = append(args, f.Since)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	q += " ORDER BY timestamp DESC LIMIT ? OFFSET ?;"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询失败：%w", err)
	}
	defer rows.Close()
	out := make([]model.Connection, 0, 64)
	for rows.Next() {
		var c model.Connection
		if err := rows.Scan(
			&c.ID,
			&c.Timestamp,
			&c.ClientIP,
			&c.Country,
			&c.Method,
			&c.Path,
			&c.Host,
			&c.UserAgent,
			&c.Referer,
		); err != nil {
			return nil, fmt.Errorf("读取行失败：%w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历结果失败：%w", err)
	}
	return out, nil
}

func (s *Store) TopClients(ctx context.Context, since string, limit int) ([]model.ClientStats, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `
SELECT client_ip, MAX(country) AS country, COUNT(*) AS hit_count,
       MIN(timestamp) AS first_seen, MAX(timestamp) AS last_seen
FROM connections`
	args := make([]interface{}, 0, 2)
	if since != "" {
		q += " WHERE timestamp >= ?"
		args = append(args, since)
	}
	q += `
GROUP BY client_ip
ORDER BY hit_count DESC
LIMIT ?;`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询失败：%w", err)
	}
	defer rows.Close()
	out := make([]model.ClientStats, 0, 16)
	for rows.Next() {
		var cs model.ClientStats
		if err := rows.Scan(&cs.ClientIP, &cs.Country, &cs.HitCount, &cs.FirstSeen, &cs.LastSeen); err != nil {
			return nil, fmt.Errorf("读取行失败：%w", err)
		}
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历结果失败：%w", err)
	}
	return out, nil
}

func (s *Store) Totals(ctx context.Context) (int, int, error) {
	var total, unique int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT client_ip) FROM connections;`,
	).Scan(&total, &unique)
	if err != nil {
		return 0, 0, fmt.Errorf("查询失败：%w", err)
	}
	return total, unique, nil
}

func (s *Store) TopHosts(ctx context.Context, limit int) (map[string]int, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT host, COUNT(*) AS hits
FROM connections
GROUP BY host
ORDER BY hits DESC
LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询失败：%w", err)
	}
	defer rows.Close()
	out := make(map[string]int, limit)
	for rows.Next() {
		var host string
		var hits int
		if err := rows.Scan(&host, &hits); err != nil {
			return nil, fmt.Errorf("读取行失败：%w", err)
		}
		out[host] = hits
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历结果失败：%w", err)
	}
	return out, nil
}

func (s *Store) ClientDetail(ctx context.Context, ip string) (*model.IPDetail, error) {
	var d model.IPDetail
	err := s.db.QueryRowContext(ctx, `
SELECT client_ip, MAX(country), COUNT(*), MIN(timestamp), MAX(timestamp)
FROM connections
WHERE client_ip = ?
GROUP BY client_ip;`, ip).Scan(
		&d.Stats.ClientIP,
		&d.Stats.Country,
		&d.Stats.HitCount,
		&d.Stats.FirstSeen,
		&d.Stats.LastSeen,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询失败：%w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT path, host
FROM connections
WHERE client_ip = ?
GROUP BY path, host
ORDER BY MAX(timestamp) DESC
LIMIT ?;`, ip, recentPathLimit)
	if err != nil {
		return nil, fmt.Errorf("查询失败：%w", err)
	}
	defer rows.Close()
	d.RecentPaths = make([]model.PathHost, 0, recentPathLimit)
	for rows.Next() {
		var ph model.PathHost
		if err := rows.Scan(&ph.Path, &ph.Host); err != nil {
			return nil, fmt.Errorf("读取行失败：%w", err)
		}
		d.RecentPaths = append(d.RecentPaths, ph)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历结果失败：%w", err)
	}
	return &d, nil
}

func (s *Store) Close() error {
	var firstErr error
	if s.ins != nil {
		if err := s.ins.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
