package model

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thep200/github-metrics/cfg"
	"github.com/thep200/github-metrics/pkg/db"
	"github.com/thep200/github-metrics/pkg/log"
)

// RepoStat là một dòng cho mỗi (repo, ngày UTC). Các cột điểm-thời-gian
// (stars, forks, ...) và các cột traffic được ghi bởi những fetch độc lập,
// mỗi fetch chỉ chạm vào cột của riêng nó. Khi trùng khóa, mỗi cột được
// merge bằng GREATEST nên việc ingest lại hoặc ingest chồng chéo là idempotent.
type RepoStat struct {
	Model
	ID            int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	Date          time.Time `json:"date" gorm:"column:date;type:date;primaryKey"`
	Stars         int64     `json:"stars" gorm:"column:stars;not null;default:0"`
	Forks         int64     `json:"forks" gorm:"column:forks;not null;default:0"`
	Watchers      int64     `json:"watchers" gorm:"column:watchers;not null;default:0"`
	Issues        int64     `json:"issues" gorm:"column:issues;not null;default:0"`
	Pulls         int64     `json:"pulls" gorm:"column:pulls;not null;default:0"`
	ClonesCount   int64     `json:"clones_count" gorm:"column:clones_count;not null;default:0"`
	ClonesUniques int64     `json:"clones_uniques" gorm:"column:clones_uniques;not null;default:0"`
	ViewsCount    int64     `json:"views_count" gorm:"column:views_count;not null;default:0"`
	ViewsUniques  int64     `json:"views_uniques" gorm:"column:views_uniques;not null;default:0"`
}

func NewRepoStat(config *cfg.Config, logger log.Logger, db *db.Mysql) (*RepoStat, error) {
	stat := &RepoStat{
		Model: Model{
			Config: config,
			Logger: logger,
			Mysql:  db,
		},
	}
	return stat, nil
}

func (s *RepoStat) TableName() string {
	return "repo_stats"
}

// StarDay là một điểm của chuỗi star tích lũy
type StarDay struct {
	Date  time.Time `json:"date"`
	Total int64     `json:"total"`
}

// RepoMetric là một dòng của chuỗi metric hàng ngày trả cho tầng hiển thị
type RepoMetric struct {
	Date          time.Time `json:"date"`
	Stars         int64     `json:"stars"`
	Forks         int64     `json:"forks"`
	Watchers      int64     `json:"watchers"`
	Issues        int64     `json:"issues"`
	Pulls         int64     `json:"pulls"`
	ClonesCount   int64     `json:"clones_count"`
	ClonesUniques int64     `json:"clones_uniques"`
	ViewsCount    int64     `json:"views_count"`
	ViewsUniques  int64     `json:"views_uniques"`
}

// RepoTotals là tổng traffic toàn lịch sử cộng với các bộ đếm
// điểm-thời-gian của ngày gần nhất có dữ liệu
type RepoTotals struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Archived      bool      `json:"archived"`
	Fork          bool      `json:"fork"`
	Date          time.Time `json:"date"`
	Stars         int64     `json:"stars"`
	Forks         int64     `json:"forks"`
	Watchers      int64     `json:"watchers"`
	Issues        int64     `json:"issues"`
	Pulls         int64     `json:"pulls"`
	ClonesCount   int64     `json:"clones_count"`
	ClonesUniques int64     `json:"clones_uniques"`
	ViewsCount    int64     `json:"views_count"`
	ViewsUniques  int64     `json:"views_uniques"`
}

// upsert chèn một dòng và merge các cột được chỉ định bằng GREATEST khi
// trùng khóa (id, date). Cột không nằm trong danh sách giữ nguyên giá trị cũ.
func (s *RepoStat) upsert(ctx context.Context, row *RepoStat, mergeColumns []string) error {
	db, err := s.Mysql.Db()
	if err != nil {
		s.Logger.Error(ctx, "Failed to get database connection: %v", err)
		return err
	}

	assignments := make(map[string]interface{}, len(mergeColumns))
	for _, col := range mergeColumns {
		assignments[col] = gorm.Expr("GREATEST(" + col + ", VALUES(" + col + "))")
	}

	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(row).Error; err != nil {
		s.Logger.Error(ctx, "Failed to upsert repo_stats for repo %d: %v", row.ID, err)
		return err
	}

	return nil
}

// UpsertStats ghi các bộ đếm điểm-thời-gian của một ngày
func (s *RepoStat) UpsertStats(ctx context.Context, repoId int64, date time.Time, stars, forks, watchers, issues, pulls int64) error {
	row := &RepoStat{
		ID:       repoId,
		Date:     DayBucket(date),
		Stars:    stars,
		Forks:    forks,
		Watchers: watchers,
		Issues:   issues,
		Pulls:    pulls,
	}
	return s.upsert(ctx, row, []string{"stars", "forks", "watchers", "issues", "pulls"})
}

// UpsertViews ghi bộ đếm lượt xem của một ngày, không chạm cột khác
func (s *RepoStat) UpsertViews(ctx context.Context, repoId int64, date time.Time, count, uniques int64) error {
	row := &RepoStat{
		ID:           repoId,
		Date:         DayBucket(date),
		ViewsCount:   count,
		ViewsUniques: uniques,
	}
	return s.upsert(ctx, row, []string{"views_count", "views_uniques"})
}

// UpsertClones ghi bộ đếm lượt clone của một ngày, không chạm cột khác
func (s *RepoStat) UpsertClones(ctx context.Context, repoId int64, date time.Time, count, uniques int64) error {
	row := &RepoStat{
		ID:            repoId,
		Date:          DayBucket(date),
		ClonesCount:   count,
		ClonesUniques: uniques,
	}
	return s.upsert(ctx, row, []string{"clones_count", "clones_uniques"})
}

// InsertStarHistory merge chuỗi star tích lũy vào repo_stats.stars,
// cùng quy tắc merge đơn điệu với UpsertStats
func (s *RepoStat) InsertStarHistory(ctx context.Context, repoId int64, series []StarDay) error {
	for _, day := range series {
		row := &RepoStat{
			ID:    repoId,
			Date:  DayBucket(day.Date),
			Stars: day.Total,
		}
		if err := s.upsert(ctx, row, []string{"stars"}); err != nil {
			return err
		}
	}
	return nil
}

// Metrics trả về chuỗi metric hàng ngày của một repo, theo thứ tự ngày tăng dần
func (s *RepoStat) Metrics(ctx context.Context, name string) ([]RepoMetric, error) {
	db, err := s.Mysql.Db()
	if err != nil {
		return nil, err
	}

	var items []RepoMetric
	qs := `
	SELECT rs.date, rs.stars, rs.forks, rs.watchers, rs.issues, rs.pulls,
	       rs.clones_count, rs.clones_uniques, rs.views_count, rs.views_uniques
	FROM repo_stats rs
	INNER JOIN repos r ON r.id = rs.id
	WHERE r.name = ?
	ORDER BY rs.date ASC`
	if err := db.Raw(qs, name).Scan(&items).Error; err != nil {
		s.Logger.Error(ctx, "Failed to load metrics for %s: %v", name, err)
		return nil, err
	}
	return items, nil
}

// Stars trả về chuỗi star tích lũy của một repo sau khi vá các khoảng trống.
// Ngày chỉ thu được traffic sẽ có stars = 0, giá trị đó được forward-fill từ
// ngày trước để không vẽ ra một cú rơi về 0 giả tạo, rồi dòng vẫn không dương
// bị loại bỏ.
func (s *RepoStat) StarSeries(ctx context.Context, name string) ([]StarDay, error) {
	db, err := s.Mysql.Db()
	if err != nil {
		return nil, err
	}

	var raw []StarDay
	qs := `
	SELECT rs.date, rs.stars AS total
	FROM repo_stats rs
	INNER JOIN repos r ON r.id = rs.id
	WHERE r.name = ?
	ORDER BY rs.date ASC`
	if err := db.Raw(qs, name).Scan(&raw).Error; err != nil {
		s.Logger.Error(ctx, "Failed to load stars for %s: %v", name, err)
		return nil, err
	}

	return fillStarGaps(raw), nil
}

// Totals trả về tổng hợp của một repo. Repo không tồn tại không phải lỗi:
// trả về nil
func (s *RepoStat) Totals(ctx context.Context, name string) (*RepoTotals, error) {
	db, err := s.Mysql.Db()
	if err != nil {
		return nil, err
	}

	var items []RepoTotals
	qs := totalsQuery + ` AND r.name = ?`
	if err := db.Raw(qs, name).Scan(&items).Error; err != nil {
		s.Logger.Error(ctx, "Failed to load totals for %s: %v", name, err)
		return nil, err
	}

	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// AllTotals trả về tổng hợp của mọi repo chưa hidden, sắp theo stars giảm dần
func (s *RepoStat) AllTotals(ctx context.Context) ([]RepoTotals, error) {
	db, err := s.Mysql.Db()
	if err != nil {
		return nil, err
	}

	var items []RepoTotals
	qs := totalsQuery + ` ORDER BY latest.stars DESC`
	if err := db.Raw(qs).Scan(&items).Error; err != nil {
		s.Logger.Error(ctx, "Failed to load totals: %v", err)
		return nil, err
	}
	return items, nil
}

// Ngày "gần nhất" là MAX(date) của repo đó, không phải hôm nay
const totalsQuery = `
SELECT r.id, r.name, r.description, r.archived, r.fork,
       agg.clones_count, agg.clones_uniques, agg.views_count, agg.views_uniques,
       latest.date, latest.stars, latest.forks, latest.watchers, latest.issues, latest.pulls
FROM repos r
INNER JOIN (
	SELECT id,
	       SUM(clones_count) AS clones_count, SUM(clones_uniques) AS clones_uniques,
	       SUM(views_count) AS views_count, SUM(views_uniques) AS views_uniques,
	       MAX(date) AS max_date
	FROM repo_stats
	GROUP BY id
) agg ON agg.id = r.id
INNER JOIN repo_stats latest ON latest.id = r.id AND latest.date = agg.max_date
WHERE r.hidden = FALSE`

// fillStarGaps forward-fill các giá trị 0 sau dòng đầu tiên rồi loại bỏ
// các dòng vẫn không dương
func fillStarGaps(items []StarDay) []StarDay {
	prev := int64(0)
	for i := range items {
		if i == 0 {
			continue
		}
		if items[i].Total == 0 {
			items[i].Total = prev
		}
		prev = items[i].Total
	}

	out := make([]StarDay, 0, len(items))
	for _, item := range items {
		if item.Total > 0 {
			out = append(out, item)
		}
	}
	return out
}
