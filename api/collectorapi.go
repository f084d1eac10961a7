// Package api cung cấp các API public để tương tác với bộ thu thập metric
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/thep200/github-metrics/cfg"
	"github.com/thep200/github-metrics/internal/collector"
	githubapi "github.com/thep200/github-metrics/internal/github_api"
	"github.com/thep200/github-metrics/internal/model"
	"github.com/thep200/github-metrics/pkg/db"
	"github.com/thep200/github-metrics/pkg/log"
)

// CollectStats chứa thống kê về lượt thu thập gần nhất
type CollectStats struct {
	IsRunning     bool      `json:"isRunning"`
	StartTime     time.Time `json:"startTime"`
	Duration      string    `json:"duration"`
	LastError     string    `json:"lastError"`
	LatestRelease string    `json:"latestRelease"`
}

// CollectorAPI cung cấp các API để tương tác với pipeline thu thập metric
type CollectorAPI struct {
	ctx          context.Context
	config       *cfg.Config
	logger       log.Logger
	mysql        *db.Mysql
	store        *model.Store
	collector    *collector.Collector
	caller       *githubapi.Caller
	collecting   bool
	collectStats *CollectStats
	statsMu      sync.RWMutex
}

// NewCollectorAPI tạo một instance mới của CollectorAPI
func NewCollectorAPI() *CollectorAPI {
	return &CollectorAPI{
		collectStats: &CollectStats{},
	}
}

// Initialize khởi tạo các thành phần cần thiết cho pipeline
func (a *CollectorAPI) Initialize(ctx context.Context) error {
	a.ctx = ctx

	var err error

	// Load configuration
	loader, _ := cfg.NewViperLoader()
	a.config, err = loader.Load()
	if err != nil {
		a.logger, _ = log.NewCslLogger()
		a.logger.Error(a.ctx, "Failed to load configuration: %v", err)
		return err
	}

	// Set up logger
	a.logger, err = log.NewCslLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	// Set up database
	a.mysql, err = db.NewMysql(a.config)
	if err != nil {
		a.logger.Error(a.ctx, "Failed to connect to database: %v", err)
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	a.store, err = model.NewStore(a.config, a.logger, a.mysql)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	a.collector, err = collector.NewCollector(a.logger, a.config, a.mysql)
	if err != nil {
		a.logger.Error(a.ctx, "Failed to create collector: %v", err)
		return err
	}

	a.caller = githubapi.NewCaller(a.logger, a.config)

	// Migrate database tables
	return a.store.Migrate(a.mysql)
}

// StartCollection bắt đầu một lượt thu thập mới nếu chưa có lượt nào đang chạy
func (a *CollectorAPI) StartCollection() (string, error) {
	a.statsMu.RLock()
	isCollecting := a.collecting
	a.statsMu.RUnlock()

	if isCollecting {
		return "Collection is already in progress", nil
	}

	if a.collector == nil {
		return "", errors.New("collector is not initialized")
	}

	a.statsMu.Lock()
	a.collecting = true
	a.collectStats = &CollectStats{
		IsRunning: true,
		StartTime: time.Now(),
	}
	a.statsMu.Unlock()

	go func() {
		err := a.collector.Collect(a.ctx)

		a.updateCollectStats(func(stats *CollectStats) {
			stats.IsRunning = false
			if err != nil {
				stats.LastError = err.Error()
			}
		})

		a.statsMu.Lock()
		a.collecting = false
		a.statsMu.Unlock()
	}()

	return "Started collection run", nil
}

// GetCollectStats trả về thống kê về lượt thu thập gần nhất
func (a *CollectorAPI) GetCollectStats() (*CollectStats, error) {
	a.statsMu.RLock()
	defer a.statsMu.RUnlock()

	if a.collectStats == nil {
		return &CollectStats{}, nil
	}

	stats := *a.collectStats
	if stats.IsRunning {
		stats.Duration = time.Since(stats.StartTime).String()
	}

	return &stats, nil
}

// updateCollectStats cập nhật thống kê thu thập một cách an toàn
func (a *CollectorAPI) updateCollectStats(updateFn func(*CollectStats)) {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()

	if a.collectStats == nil {
		a.collectStats = &CollectStats{}
	}

	updateFn(a.collectStats)
}

// CheckLatestRelease hỏi GitHub tag release mới nhất của một repo và giữ lại
// kết quả trong stats. Nhiều goroutine có thể gọi đồng thời.
func (a *CollectorAPI) CheckLatestRelease(fullName string) (string, error) {
	if a.caller == nil {
		return "", errors.New("api caller is not initialized")
	}

	tag, err := a.caller.LatestReleaseTag(a.ctx, fullName)
	if err != nil {
		return "", err
	}

	a.updateCollectStats(func(stats *CollectStats) {
		stats.LatestRelease = tag
	})
	return tag, nil
}

// MARK: đường đọc phục vụ tầng hiển thị

// GetRepoTotals trả về tổng hợp hiện tại của một repo, nil nếu chưa có dữ liệu
func (a *CollectorAPI) GetRepoTotals(name string) (*model.RepoTotals, error) {
	return a.store.Totals(a.ctx, name)
}

// GetAllTotals trả về tổng hợp của mọi repo chưa bị ẩn, xếp theo số sao
func (a *CollectorAPI) GetAllTotals() ([]model.RepoTotals, error) {
	return a.store.AllTotals(a.ctx)
}

// GetMetrics trả về chuỗi metric theo ngày của một repo
func (a *CollectorAPI) GetMetrics(name string) ([]model.RepoMetric, error) {
	return a.store.Metrics(a.ctx, name)
}

// GetStars trả về chuỗi tổng sao tích lũy theo ngày của một repo
func (a *CollectorAPI) GetStars(name string) ([]model.StarDay, error) {
	return a.store.Stars(a.ctx, name)
}

// GetPopularItems trả về bảng xếp hạng nguồn truy cập hoặc đường dẫn
func (a *CollectorAPI) GetPopularItems(name string, kind model.PopularKind, sort, direction string, periodDays int) ([]model.PopularItem, error) {
	return a.store.PopularItems(a.ctx, name, kind, sort, direction, periodDays)
}

// GetDatabaseStatus kiểm tra trạng thái kết nối cơ sở dữ liệu
func (a *CollectorAPI) GetDatabaseStatus() (string, error) {
	if a.mysql == nil {
		return "Database not initialized", nil
	}

	db, err := a.mysql.Db()
	if err != nil {
		return "Database error: " + err.Error(), err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return "Database error: " + err.Error(), err
	}

	if err := sqlDB.Ping(); err != nil {
		return "Database not connected: " + err.Error(), err
	}

	return "Database connected", nil
}
