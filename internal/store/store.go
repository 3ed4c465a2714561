// 包 store: PostgreSQL 数据访问层，仅保存诊断请求的聚合计数；不记录任何请求内容或客户端地址
package store

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"whoami-api/internal/logger"
)

// Store: 数据库访问入口，持有连接池
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// IncrStats: 递增总计、当日与当日分路由计数
func (s *Store) IncrStats(ctx context.Context, route string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, "UPDATE _whoami_stats_total SET total_requests=total_requests+1 WHERE id=1"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO _whoami_stats_daily(day, requests) VALUES(current_date, 1)
        ON CONFLICT (day) DO UPDATE SET requests=_whoami_stats_daily.requests+1`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO _whoami_route_daily(day, route, requests) VALUES(current_date, $1, 1)
        ON CONFLICT (day, route) DO UPDATE SET requests=_whoami_route_daily.requests+1`, route); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.L().Debug("stats_incr", "route", route)
	return nil
}

// Totals: 累计与当日请求数，Routes 为当日分路由计数
type Totals struct {
	Total  int64            `json:"total"`
	Today  int64            `json:"today"`
	Routes map[string]int64 `json:"routes"`
}

// GetTotals: 读取统计；当日尚无记录时对应计数为 0
func (s *Store) GetTotals(ctx context.Context) (*Totals, error) {
	t := Totals{Routes: map[string]int64{}}
	if err := s.db.QueryRowContext(ctx, "SELECT total_requests FROM _whoami_stats_total WHERE id=1").Scan(&t.Total); err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT requests FROM _whoami_stats_daily WHERE day=current_date").Scan(&t.Today); err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT route, requests FROM _whoami_route_daily WHERE day=current_date")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var route string
		var n int64
		if err := rows.Scan(&route, &n); err != nil {
			return nil, err
		}
		t.Routes[route] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	logger.L().Debug("stats_totals", "total", t.Total, "today", t.Today)
	return &t, nil
}
