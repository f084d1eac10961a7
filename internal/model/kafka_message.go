package model

import (
	"context"
	"time"
)

// StatMessage là dòng repo_stats của một ngày gửi tới Kafka. Consumer phát
// lại message vào store; merge đơn điệu nên phát lại bao nhiêu lần cũng được.
type StatMessage struct {
	RepoId        int64     `json:"repo_id"`
	FullName      string    `json:"full_name"`
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

// UpsertBatch phát lại một lô StatMessage vào repo_stats, mỗi dòng dùng cùng
// quy tắc merge với đường ingest chính
func (s *RepoStat) UpsertBatch(ctx context.Context, messages []StatMessage) error {
	for _, msg := range messages {
		row := &RepoStat{
			ID:            msg.RepoId,
			Date:          DayBucket(msg.Date),
			Stars:         msg.Stars,
			Forks:         msg.Forks,
			Watchers:      msg.Watchers,
			Issues:        msg.Issues,
			Pulls:         msg.Pulls,
			ClonesCount:   msg.ClonesCount,
			ClonesUniques: msg.ClonesUniques,
			ViewsCount:    msg.ViewsCount,
			ViewsUniques:  msg.ViewsUniques,
		}
		cols := []string{"stars", "forks", "watchers", "issues", "pulls", "clones_count", "clones_uniques", "views_count", "views_uniques"}
		if err := s.upsert(ctx, row, cols); err != nil {
			return err
		}
	}
	return nil
}
