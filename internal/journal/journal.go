package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fiamma-chain/AITradeNews/internal/coordinator"
	"github.com/fiamma-chain/AITradeNews/internal/store"
)

// Service 将信号执行报告持久化到 SQLite，供监控接口查询。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化报告存储，创建所需表结构。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("journal: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS signal_reports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	signal_id TEXT NOT NULL,
	source TEXT NOT NULL,
	asset TEXT NOT NULL,
	accepted INTEGER NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signal_reports_asset ON signal_reports(asset);
CREATE INDEX IF NOT EXISTS idx_signal_reports_signal ON signal_reports(signal_id);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("journal: 初始化表失败: %w", err)
	}
	return nil
}

// RecordReport 写入单条执行报告。
func (s *Service) RecordReport(ctx context.Context, report coordinator.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("journal: 序列化报告失败: %w", err)
	}

	accepted := 0
	if report.Accepted {
		accepted = 1
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO signal_reports (signal_id, source, asset, accepted, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		report.SignalID, report.Source, report.Asset, accepted, string(payload), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("journal: 写入报告失败: %w", err)
	}
	return nil
}

// ListReports 按币种检索最近报告，asset 为空时返回全部。
func (s *Service) ListReports(ctx context.Context, asset string, limit int) ([]coordinator.Report, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT payload FROM signal_reports`
	args := make([]interface{}, 0, 2)
	if asset != "" {
		query += ` WHERE asset = ?`
		args = append(args, asset)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: 查询报告失败: %w", err)
	}
	defer rows.Close()

	reports := make([]coordinator.Report, 0, limit)
	for rows.Next() {
		var payload string
		if scanErr := rows.Scan(&payload); scanErr != nil {
			return nil, fmt.Errorf("journal: 解析报告失败: %w", scanErr)
		}

		var report coordinator.Report
		if err := json.Unmarshal([]byte(payload), &report); err != nil {
			s.logger.Warn("跳过无法解析的报告", zap.Error(err))
			continue
		}
		reports = append(reports, report)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: 读取报告失败: %w", err)
	}
	return reports, nil
}

var _ coordinator.Reporter = (*Service)(nil)
