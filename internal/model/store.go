package model

import (
	"context"
	"fmt"
	"time"

	"github.com/thep200/github-metrics/cfg"
	"github.com/thep200/github-metrics/pkg/db"
	"github.com/thep200/github-metrics/pkg/log"
)

// PopularKind chọn bảng xếp hạng: nguồn truy cập hoặc đường dẫn
type PopularKind string

const (
	PopularReferrers PopularKind = "referrer"
	PopularPaths     PopularKind = "path"
)

// Store gom các model thành một mặt tiếp xúc duy nhất cho pipeline thu thập
// (đường ghi) và tầng hiển thị (đường đọc)
type Store struct {
	Repo     *Repo
	Stat     *RepoStat
	Referrer *RepoReferrer
	Path     *RepoPopularPath
}

func NewStore(config *cfg.Config, logger log.Logger, mysql *db.Mysql) (*Store, error) {
	repoMd, err := NewRepo(config, logger, mysql)
	if err != nil {
		return nil, fmt.Errorf("failed to create repo model: %w", err)
	}

	statMd, err := NewRepoStat(config, logger, mysql)
	if err != nil {
		return nil, fmt.Errorf("failed to create repo stat model: %w", err)
	}

	referrerMd, err := NewRepoReferrer(config, logger, mysql)
	if err != nil {
		return nil, fmt.Errorf("failed to create referrer model: %w", err)
	}

	pathMd, err := NewRepoPopularPath(config, logger, mysql)
	if err != nil {
		return nil, fmt.Errorf("failed to create popular path model: %w", err)
	}

	return &Store{
		Repo:     repoMd,
		Stat:     statMd,
		Referrer: referrerMd,
		Path:     pathMd,
	}, nil
}

// Migrate tạo hoặc cập nhật schema, chỉ tiến không lùi
func (s *Store) Migrate(mysql *db.Mysql) error {
	return mysql.Migrate(s.Repo, s.Stat, s.Referrer, s.Path)
}

// MARK: đường ghi, chỉ pipeline thu thập sử dụng

func (s *Store) UpsertRepo(ctx context.Context, id int64, name, description string, archived, fork bool) error {
	return s.Repo.Upsert(ctx, id, name, description, archived, fork)
}

func (s *Store) RepoIds(ctx context.Context) ([]int64, error) {
	return s.Repo.Ids(ctx)
}

func (s *Store) MarkHidden(ctx context.Context, ids []int64) error {
	return s.Repo.MarkHidden(ctx, ids)
}

func (s *Store) MarkStarsSynced(ctx context.Context, id int64) error {
	return s.Repo.MarkStarsSynced(ctx, id)
}

func (s *Store) UpsertStats(ctx context.Context, repoId int64, date time.Time, stars, forks, watchers, issues, pulls int64) error {
	return s.Stat.UpsertStats(ctx, repoId, date, stars, forks, watchers, issues, pulls)
}

func (s *Store) UpsertViews(ctx context.Context, repoId int64, date time.Time, count, uniques int64) error {
	return s.Stat.UpsertViews(ctx, repoId, date, count, uniques)
}

func (s *Store) UpsertClones(ctx context.Context, repoId int64, date time.Time, count, uniques int64) error {
	return s.Stat.UpsertClones(ctx, repoId, date, count, uniques)
}

func (s *Store) UpsertReferrer(ctx context.Context, repoId int64, date time.Time, referrer string, count, uniques int64) error {
	return s.Referrer.UpsertSnapshot(ctx, repoId, date, referrer, count, uniques)
}

func (s *Store) UpsertPath(ctx context.Context, repoId int64, date time.Time, path, title string, count, uniques int64) error {
	return s.Path.UpsertSnapshot(ctx, repoId, date, path, title, count, uniques)
}

func (s *Store) InsertStarHistory(ctx context.Context, repoId int64, series []StarDay) error {
	return s.Stat.InsertStarHistory(ctx, repoId, series)
}

// UpdateDeltas tính lại delta cho cả hai bảng popularity từ toàn bộ lịch sử.
// Chạy một lần cho mỗi lượt thu thập, sau khi mọi repo đã được xử lý.
func (s *Store) UpdateDeltas(ctx context.Context) error {
	if err := s.Referrer.UpdateDeltas(ctx); err != nil {
		return err
	}
	return s.Path.UpdateDeltas(ctx)
}

// MARK: đường đọc cho tầng hiển thị

func (s *Store) Totals(ctx context.Context, name string) (*RepoTotals, error) {
	return s.Stat.Totals(ctx, name)
}

func (s *Store) AllTotals(ctx context.Context) ([]RepoTotals, error) {
	return s.Stat.AllTotals(ctx)
}

func (s *Store) Metrics(ctx context.Context, name string) ([]RepoMetric, error) {
	return s.Stat.Metrics(ctx, name)
}

func (s *Store) Stars(ctx context.Context, name string) ([]StarDay, error) {
	return s.Stat.StarSeries(ctx, name)
}

func (s *Store) PopularItems(ctx context.Context, name string, kind PopularKind, sort, direction string, periodDays int) ([]PopularItem, error) {
	switch kind {
	case PopularPaths:
		return s.Path.PopularItems(ctx, name, sort, direction, periodDays)
	default:
		return s.Referrer.PopularItems(ctx, name, sort, direction, periodDays)
	}
}

func (s *Store) ReposToSync(ctx context.Context) ([]Repo, error) {
	return s.Repo.ReposToSync(ctx)
}

func (s *Store) UpsertStatBatch(ctx context.Context, messages []StatMessage) error {
	return s.Stat.UpsertBatch(ctx, messages)
}
