package collector

import (
	"context"
	"sort"
	"time"

	githubapi "github.com/thep200/github-metrics/internal/github_api"
	"github.com/thep200/github-metrics/internal/model"
)

// SyncStars đồng bộ lịch sử star đầy đủ cho các repo chưa được đồng bộ.
// GitHub cấp 5000 request/giờ dùng chung, nên mỗi lượt chỉ tiêu tối đa
// StarPageBudget trang (mặc định 1000) để không vét hết quota của lượt
// thu thập chính; repo còn lại chờ lượt sau. Lỗi fetch của một repo dừng
// cả lượt đồng bộ: backfill dở dang chưa gắn cờ synced thì lượt sau thử lại
// vẫn an toàn.
func (c *Collector) SyncStars(ctx context.Context) error {
	budget := c.Config.Collector.StarPageBudget
	if budget <= 0 {
		budget = 1000
	}

	repos, err := c.Store.ReposToSync(ctx)
	if err != nil {
		return err
	}

	pagesCollected := 0
	for _, repo := range repos {
		startTime := time.Now()

		c.throttle()
		stars, err := c.Gateway.Stargazers(ctx, repo.Name)
		if err != nil {
			c.Logger.Warn(ctx, "Failed to get stars for %s, stopping sync: %v", repo.Name, err)
			break
		}

		series := buildStarSeries(stars)
		if err := c.Store.InsertStarHistory(ctx, repo.ID, series); err != nil {
			return err
		}
		if err := c.Store.MarkStarsSynced(ctx, repo.ID); err != nil {
			return err
		}

		c.Logger.Info(ctx, "SyncStars for %s done in %v, %d stars added", repo.Name, time.Since(startTime), len(stars))

		pagesCollected += (len(stars) + 99) / 100
		if pagesCollected > budget {
			c.Logger.Info(ctx, "SyncStars: %d pages collected, will continue next run", pagesCollected)
			break
		}
	}

	return nil
}

// buildStarSeries gom các thời điểm star theo ngày UTC rồi cộng dồn thành
// chuỗi tổng tích lũy, một điểm cho mỗi ngày có star mới
func buildStarSeries(stars []githubapi.StargazerResponse) []model.StarDay {
	perDay := make(map[time.Time]int64)
	for _, star := range stars {
		perDay[model.DayBucket(star.StarredAt)]++
	}

	days := make([]time.Time, 0, len(perDay))
	for day := range perDay {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	series := make([]model.StarDay, 0, len(days))
	total := int64(0)
	for _, day := range days {
		total += perDay[day]
		series = append(series, model.StarDay{Date: day, Total: total})
	}
	return series
}
