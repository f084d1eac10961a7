package model

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thep200/github-metrics/cfg"
	"github.com/thep200/github-metrics/pkg/db"
	"github.com/thep200/github-metrics/pkg/log"
)

// RepoReferrer là snapshot thô (count/uniques) của một nguồn truy cập vào
// một ngày, kèm delta ngày-qua-ngày được suy ra lại từ lịch sử snapshot.
// API không trả breakdown theo ngày cho referrer nên delta phải tự tính.
type RepoReferrer struct {
	Model
	ID           int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	Date         time.Time `json:"date" gorm:"column:date;type:date;primaryKey"`
	Referrer     string    `json:"referrer" gorm:"column:referrer;type:varchar(255);primaryKey"`
	Count        int64     `json:"count" gorm:"column:count;not null;default:0"`
	Uniques      int64     `json:"uniques" gorm:"column:uniques;not null;default:0"`
	CountDelta   int64     `json:"count_delta" gorm:"column:count_delta;not null;default:0"`
	UniquesDelta int64     `json:"uniques_delta" gorm:"column:uniques_delta;not null;default:0"`
}

func NewRepoReferrer(config *cfg.Config, logger log.Logger, db *db.Mysql) (*RepoReferrer, error) {
	referrer := &RepoReferrer{
		Model: Model{
			Config: config,
			Logger: logger,
			Mysql:  db,
		},
	}
	return referrer, nil
}

func (r *RepoReferrer) TableName() string {
	return "repo_referrers"
}

// RepoPopularPath giống RepoReferrer nhưng khóa là đường dẫn được truy cập
type RepoPopularPath struct {
	Model
	ID           int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	Date         time.Time `json:"date" gorm:"column:date;type:date;primaryKey"`
	Path         string    `json:"path" gorm:"column:path;type:varchar(255);primaryKey"`
	Title        string    `json:"title" gorm:"column:title;type:varchar(255)"`
	Count        int64     `json:"count" gorm:"column:count;not null;default:0"`
	Uniques      int64     `json:"uniques" gorm:"column:uniques;not null;default:0"`
	CountDelta   int64     `json:"count_delta" gorm:"column:count_delta;not null;default:0"`
	UniquesDelta int64     `json:"uniques_delta" gorm:"column:uniques_delta;not null;default:0"`
}

func NewRepoPopularPath(config *cfg.Config, logger log.Logger, db *db.Mysql) (*RepoPopularPath, error) {
	path := &RepoPopularPath{
		Model: Model{
			Config: config,
			Logger: logger,
			Mysql:  db,
		},
	}
	return path, nil
}

func (p *RepoPopularPath) TableName() string {
	return "repo_popular_paths"
}

// PopularItem là một dòng của bảng xếp hạng referrer / path
type PopularItem struct {
	Item    string `json:"item"`
	Count   int64  `json:"count"`
	Uniques int64  `json:"uniques"`
}

// UpsertSnapshot ghi snapshot thô của một referrer vào một ngày. Trùng khóa
// thì merge count/uniques bằng GREATEST, delta để cho UpdateDeltas tính lại.
func (r *RepoReferrer) UpsertSnapshot(ctx context.Context, repoId int64, date time.Time, referrer string, count, uniques int64) error {
	db, err := r.Mysql.Db()
	if err != nil {
		return err
	}

	row := &RepoReferrer{
		ID:       repoId,
		Date:     DayBucket(date),
		Referrer: TruncateString(referrer, 250),
		Count:    count,
		Uniques:  uniques,
	}

	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}, {Name: "date"}, {Name: "referrer"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count":   gorm.Expr("GREATEST(count, VALUES(count))"),
			"uniques": gorm.Expr("GREATEST(uniques, VALUES(uniques))"),
		}),
	}).Create(row).Error; err != nil {
		r.Logger.Error(ctx, "Failed to upsert referrer for repo %d: %v", repoId, err)
		return err
	}
	return nil
}

// UpsertSnapshot ghi snapshot thô của một path vào một ngày
func (p *RepoPopularPath) UpsertSnapshot(ctx context.Context, repoId int64, date time.Time, path, title string, count, uniques int64) error {
	db, err := p.Mysql.Db()
	if err != nil {
		return err
	}

	row := &RepoPopularPath{
		ID:      repoId,
		Date:    DayBucket(date),
		Path:    TruncateString(path, 250),
		Title:   TruncateString(title, 250),
		Count:   count,
		Uniques: uniques,
	}

	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}, {Name: "date"}, {Name: "path"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"title":   gorm.Expr("VALUES(title)"),
			"count":   gorm.Expr("GREATEST(count, VALUES(count))"),
			"uniques": gorm.Expr("GREATEST(uniques, VALUES(uniques))"),
		}),
	}).Create(row).Error; err != nil {
		p.Logger.Error(ctx, "Failed to upsert popular path for repo %d: %v", repoId, err)
		return err
	}
	return nil
}

// UpdateDeltas tính lại delta cho bảng referrer từ toàn bộ lịch sử snapshot
func (r *RepoReferrer) UpdateDeltas(ctx context.Context) error {
	db, err := r.Mysql.Db()
	if err != nil {
		return err
	}
	return updateDeltasFor(ctx, db, r.Logger, "repo_referrers", "referrer")
}

// UpdateDeltas tính lại delta cho bảng popular path từ toàn bộ lịch sử snapshot
func (p *RepoPopularPath) UpdateDeltas(ctx context.Context) error {
	db, err := p.Mysql.Db()
	if err != nil {
		return err
	}
	return updateDeltasFor(ctx, db, p.Logger, "repo_popular_paths", "path")
}

// PopularItems xếp hạng referrer theo tổng delta trong khoảng thời gian
func (r *RepoReferrer) PopularItems(ctx context.Context, name, sort, direction string, periodDays int) ([]PopularItem, error) {
	db, err := r.Mysql.Db()
	if err != nil {
		return nil, err
	}
	return popularItemsFor(ctx, db, r.Logger, "repo_referrers", "referrer", name, sort, direction, periodDays)
}

// PopularItems xếp hạng path theo tổng delta trong khoảng thời gian
func (p *RepoPopularPath) PopularItems(ctx context.Context, name, sort, direction string, periodDays int) ([]PopularItem, error) {
	db, err := p.Mysql.Db()
	if err != nil {
		return nil, err
	}
	return popularItemsFor(ctx, db, p.Logger, "repo_popular_paths", "path", name, sort, direction, periodDays)
}

// popRow là một snapshot khi quét lại lịch sử để tính delta
type popRow struct {
	ID           int64     `gorm:"column:id"`
	Date         time.Time `gorm:"column:date"`
	Item         string    `gorm:"column:item"`
	Count        int64     `gorm:"column:count"`
	Uniques      int64     `gorm:"column:uniques"`
	CountDelta   int64     `gorm:"column:count_delta"`
	UniquesDelta int64     `gorm:"column:uniques_delta"`
}

// updateDeltasFor quét từng chuỗi (repo, key) theo thứ tự ngày và ghi lại
// delta = max(0, cur - prev). Bộ đếm phía remote có thể reset bất kỳ lúc nào,
// delta âm bị đưa về 0 thay vì lan truyền giá trị hỏng. Đây là tính lại toàn
// bộ: delta lưu trữ luôn là hàm thuần của các snapshot thô.
func updateDeltasFor(ctx context.Context, db *gorm.DB, logger log.Logger, table, keyCol string) error {
	var rows []popRow
	qs := fmt.Sprintf(`
	SELECT id, date, %s AS item, count, uniques, count_delta, uniques_delta
	FROM %s
	ORDER BY id ASC, %s ASC, date ASC`, keyCol, table, keyCol)
	if err := db.Raw(qs).Scan(&rows).Error; err != nil {
		logger.Error(ctx, "Failed to load %s for delta recompute: %v", table, err)
		return err
	}

	update := fmt.Sprintf("UPDATE %s SET count_delta = ?, uniques_delta = ? WHERE id = ? AND date = ? AND %s = ?", table, keyCol)

	return db.Transaction(func(tx *gorm.DB) error {
		var prev *popRow
		for i := range rows {
			row := &rows[i]

			// Chuỗi mới bắt đầu thì coi như không có snapshot trước đó
			if prev != nil && (prev.ID != row.ID || prev.Item != row.Item) {
				prev = nil
			}

			countDelta, uniquesDelta := row.Count, row.Uniques
			if prev != nil {
				countDelta = clampDelta(row.Count, prev.Count)
				uniquesDelta = clampDelta(row.Uniques, prev.Uniques)
			}

			if countDelta != row.CountDelta || uniquesDelta != row.UniquesDelta {
				if err := tx.Exec(update, countDelta, uniquesDelta, row.ID, row.Date, row.Item).Error; err != nil {
					logger.Error(ctx, "Failed to update deltas in %s: %v", table, err)
					return err
				}
			}

			prev = row
		}
		return nil
	})
}

// clampDelta trả về mức tăng ngày-qua-ngày, chặn dưới tại 0
func clampDelta(cur, prev int64) int64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}

func popularItemsFor(ctx context.Context, db *gorm.DB, logger log.Logger, table, keyCol, name, sort, direction string, periodDays int) ([]PopularItem, error) {
	// sort và direction đi thẳng vào SQL nên phải whitelist
	if sort != "count" && sort != "uniques" {
		sort = "count"
	}
	if direction != "asc" && direction != "desc" {
		direction = "desc"
	}

	qs := fmt.Sprintf(`
	SELECT t.%s AS item, SUM(t.count_delta) AS count, SUM(t.uniques_delta) AS uniques
	FROM %s t
	INNER JOIN repos r ON r.id = t.id
	WHERE r.name = ?`, keyCol, table)

	args := []interface{}{name}
	if periodDays > 0 {
		qs += " AND t.date >= ?"
		args = append(args, DayBucket(time.Now()).AddDate(0, 0, -periodDays))
	}
	qs += fmt.Sprintf(" GROUP BY t.%s ORDER BY %s %s", keyCol, sort, direction)

	var items []PopularItem
	if err := db.Raw(qs, args...).Scan(&items).Error; err != nil {
		logger.Error(ctx, "Failed to load popular items from %s: %v", table, err)
		return nil, err
	}
	return items, nil
}
