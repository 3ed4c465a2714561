package migrate

import (
	"database/sql"

	"whoami-api/internal/logger"
)

// 背景：首次运行自动创建统计表
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _whoami_stats_total (
            id INT PRIMARY KEY,
            total_requests BIGINT NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS _whoami_stats_daily (
            day DATE PRIMARY KEY,
            requests BIGINT NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS _whoami_route_daily (
            day DATE NOT NULL,
            route TEXT NOT NULL,
            requests BIGINT NOT NULL DEFAULT 0,
            PRIMARY KEY (day, route)
        )`,
		`INSERT INTO _whoami_stats_total(id, total_requests)
         VALUES(1, 0)
         ON CONFLICT (id) DO NOTHING`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			logger.L().Error("schema_stmt_error", "err", err)
			return err
		}
	}
	logger.L().Info("schema_ok", "tables", 3)
	return nil
}
