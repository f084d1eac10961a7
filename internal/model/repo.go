package model

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/thep200/github-metrics/cfg"
	"github.com/thep200/github-metrics/pkg/db"
	"github.com/thep200/github-metrics/pkg/log"
)

// Repo là repository được theo dõi. Dòng không bao giờ bị xóa:
// repo biến mất khỏi listing chỉ bị đánh dấu hidden.
type Repo struct {
	Model
	ID          int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	Name        string    `json:"name" gorm:"column:name;type:varchar(255);not null;uniqueIndex"`
	Description string    `json:"description" gorm:"column:description;type:text"`
	Archived    bool      `json:"archived" gorm:"column:archived;default:false"`
	Fork        bool      `json:"fork" gorm:"column:fork;default:false"`
	Hidden      bool      `json:"hidden" gorm:"column:hidden;default:false"`
	StarsSynced bool      `json:"stars_synced" gorm:"column:stars_synced;default:false"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
}

func NewRepo(config *cfg.Config, logger log.Logger, db *db.Mysql) (*Repo, error) {
	repo := &Repo{
		Model: Model{
			Config: config,
			Logger: logger,
			Mysql:  db,
		},
	}
	return repo, nil
}

func (r *Repo) TableName() string {
	return "repos"
}

// Upsert tạo repo khi thấy lần đầu, cập nhật metadata khi thấy lại.
// Repo xuất hiện trong listing thì không còn hidden nữa.
func (r *Repo) Upsert(ctx context.Context, id int64, name, description string, archived, fork bool) error {
	newRepo := &Repo{}
	newRepo.ID = id
	newRepo.Name = TruncateString(name, 250)
	newRepo.Description = TruncateString(description, 65000)
	newRepo.Archived = archived
	newRepo.Fork = fork
	newRepo.CreatedAt = time.Now()
	newRepo.UpdatedAt = time.Now()

	db, err := r.Mysql.Db()
	if err != nil {
		r.Logger.Error(ctx, "Failed to get database connection: %v", err)
		return err
	}

	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "archived", "fork", "hidden", "updated_at"}),
	}).Create(newRepo).Error; err != nil {
		r.Logger.Error(ctx, "Failed to upsert repo %s: %v", name, err)
		return err
	}

	return nil
}

// Ids trả về id của tất cả repo đã từng thấy, kể cả hidden
func (r *Repo) Ids(ctx context.Context) ([]int64, error) {
	db, err := r.Mysql.Db()
	if err != nil {
		return nil, err
	}

	var ids []int64
	if err := db.Model(&Repo{}).Pluck("id", &ids).Error; err != nil {
		r.Logger.Error(ctx, "Failed to list repo ids: %v", err)
		return nil, err
	}
	return ids, nil
}

// MarkHidden đánh dấu các repo không còn xuất hiện trong listing
func (r *Repo) MarkHidden(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	db, err := r.Mysql.Db()
	if err != nil {
		return err
	}

	if err := db.Model(&Repo{}).Where("id IN ?", ids).Update("hidden", true).Error; err != nil {
		r.Logger.Error(ctx, "Failed to mark repos hidden: %v", err)
		return err
	}

	r.Logger.Info(ctx, "Marked %d repos as hidden", len(ids))
	return nil
}

// MarkStarsSynced đánh dấu repo đã đồng bộ xong lịch sử star
func (r *Repo) MarkStarsSynced(ctx context.Context, id int64) error {
	db, err := r.Mysql.Db()
	if err != nil {
		return err
	}

	if err := db.Model(&Repo{}).Where("id = ?", id).Update("stars_synced", true).Error; err != nil {
		r.Logger.Error(ctx, "Failed to mark repo %d stars synced: %v", id, err)
		return err
	}
	return nil
}

// ReposToSync trả về các repo chưa đồng bộ lịch sử star
func (r *Repo) ReposToSync(ctx context.Context) ([]Repo, error) {
	db, err := r.Mysql.Db()
	if err != nil {
		return nil, err
	}

	var repos []Repo
	if err := db.Where("stars_synced = ? AND hidden = ?", false, false).Order("id ASC").Find(&repos).Error; err != nil {
		r.Logger.Error(ctx, "Failed to list repos to sync: %v", err)
		return nil, err
	}
	return repos, nil
}
