// Gói collector điều phối một lượt thu thập metric: liệt kê repository,
// lọc, lấy metric từng repo, ghi vào store rồi tính lại delta. Mỗi lượt do
// một cơ chế lập lịch bên ngoài kích hoạt (ví dụ mỗi giờ); collector không
// tự lập lịch. Chạy lại một lượt là an toàn vì store merge đơn điệu.

package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/thep200/github-metrics/cfg"
	"github.com/thep200/github-metrics/internal/filter"
	githubapi "github.com/thep200/github-metrics/internal/github_api"
	"github.com/thep200/github-metrics/internal/limiter"
	"github.com/thep200/github-metrics/internal/model"
	"github.com/thep200/github-metrics/pkg/db"
	"github.com/thep200/github-metrics/pkg/kafka"
	"github.com/thep200/github-metrics/pkg/log"
)

// Gateway là phần GitHub API mà collector cần
type Gateway interface {
	Repos(ctx context.Context) ([]githubapi.RepoResponse, error)
	OpenPullsCount(ctx context.Context, fullName string) (int64, error)
	TrafficViews(ctx context.Context, fullName string) (*githubapi.TrafficViewsResponse, error)
	TrafficClones(ctx context.Context, fullName string) (*githubapi.TrafficClonesResponse, error)
	PopularPaths(ctx context.Context, fullName string) ([]githubapi.PopularPathResponse, error)
	PopularReferrers(ctx context.Context, fullName string) ([]githubapi.ReferrerResponse, error)
	Stargazers(ctx context.Context, fullName string) ([]githubapi.StargazerResponse, error)
}

// Store là đường ghi của store mà collector cần
type Store interface {
	UpsertRepo(ctx context.Context, id int64, name, description string, archived, fork bool) error
	RepoIds(ctx context.Context) ([]int64, error)
	MarkHidden(ctx context.Context, ids []int64) error
	UpsertStats(ctx context.Context, repoId int64, date time.Time, stars, forks, watchers, issues, pulls int64) error
	UpsertViews(ctx context.Context, repoId int64, date time.Time, count, uniques int64) error
	UpsertClones(ctx context.Context, repoId int64, date time.Time, count, uniques int64) error
	UpsertReferrer(ctx context.Context, repoId int64, date time.Time, referrer string, count, uniques int64) error
	UpsertPath(ctx context.Context, repoId int64, date time.Time, path, title string, count, uniques int64) error
	UpdateDeltas(ctx context.Context) error
	ReposToSync(ctx context.Context) ([]model.Repo, error)
	InsertStarHistory(ctx context.Context, repoId int64, series []model.StarDay) error
	MarkStarsSynced(ctx context.Context, id int64) error
}

// Publisher là đường phát sự kiện stat, có thể vắng mặt
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

type Collector struct {
	Logger      log.Logger
	Config      *cfg.Config
	Gateway     Gateway
	Store       Store
	Filter      *filter.RepoFilter
	Publisher   Publisher
	rateLimiter *limiter.RateLimiter
}

func NewCollector(logger log.Logger, config *cfg.Config, mysql *db.Mysql) (*Collector, error) {
	store, err := model.NewStore(config, logger, mysql)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	var publisher Publisher
	if config.Kafka.Enabled {
		publisher = kafka.NewProducer(config, logger, config.Kafka.TopicStat)
	}

	return &Collector{
		Logger:      logger,
		Config:      config,
		Gateway:     githubapi.NewCaller(logger, config),
		Store:       store,
		Filter:      filter.NewRepoFilter(config.Collector.FilterRules),
		Publisher:   publisher,
		rateLimiter: limiter.NewRateLimiter(config.GithubApi.RequestsPerSecond),
	}, nil
}

// throttle chờ đến khi rate limiter cho phép request tiếp theo
func (c *Collector) throttle() {
	for !c.rateLimiter.Allow() {
		time.Sleep(time.Duration(c.Config.GithubApi.ThrottleDelay) * time.Millisecond)
	}
}

// Collect chạy một lượt thu thập đầy đủ. Lỗi của một repo chỉ bị log và bỏ
// qua, không làm hỏng cả lượt; lỗi liệt kê repo hoặc lỗi store là
// lỗi của cả lượt.
func (c *Collector) Collect(ctx context.Context) error {
	startTime := time.Now()
	date := model.DayBucket(startTime)

	repos, err := c.Gateway.Repos(ctx)
	if err != nil {
		c.Logger.Error(ctx, "Failed to list repositories: %v", err)
		return err
	}

	if err := c.reconcileHidden(ctx, repos); err != nil {
		return err
	}

	// Áp dụng bộ lọc include/exclude
	included := make([]githubapi.RepoResponse, 0, len(repos))
	for _, repo := range repos {
		if c.Filter.IsIncluded(repo.FullName, repo.Fork, repo.Archived) {
			included = append(included, repo)
		}
	}

	failed := 0
	for _, repo := range included {
		if err := c.collectRepo(ctx, &repo, date); err != nil {
			c.Logger.Warn(ctx, "Failed to update metrics for %s: %v", repo.FullName, err)
			failed++
			continue
		}
	}

	// Delta được suy ra lại từ toàn bộ lịch sử nên chỉ chạy một lần cho cả
	// lượt, không chạy theo từng repo
	if err := c.Store.UpdateDeltas(ctx); err != nil {
		c.Logger.Error(ctx, "Failed to update deltas: %v", err)
		return err
	}

	if err := c.SyncStars(ctx); err != nil {
		return err
	}

	c.Logger.Info(ctx, "Collect took %v for %d repos (%d failed)", time.Since(startTime), len(included), failed)
	return nil
}

// reconcileHidden đánh dấu hidden các repo đã biết nhưng không còn xuất hiện
// trong listing. Không bao giờ xóa: lịch sử là append-only.
func (c *Collector) reconcileHidden(ctx context.Context, repos []githubapi.RepoResponse) error {
	knownIds, err := c.Store.RepoIds(ctx)
	if err != nil {
		return err
	}

	nowIds := make(map[int64]bool, len(repos))
	for _, repo := range repos {
		nowIds[repo.Id] = true
	}

	hidden := make([]int64, 0)
	for _, id := range knownIds {
		if !nowIds[id] {
			hidden = append(hidden, id)
		}
	}

	return c.Store.MarkHidden(ctx, hidden)
}

// collectRepo lấy và ghi mọi metric của một repo cho ngày date
func (c *Collector) collectRepo(ctx context.Context, repo *githubapi.RepoResponse, date time.Time) error {
	c.throttle()
	pulls, err := c.Gateway.OpenPullsCount(ctx, repo.FullName)
	if err != nil {
		return err
	}

	c.throttle()
	views, err := c.Gateway.TrafficViews(ctx, repo.FullName)
	if err != nil {
		return err
	}

	c.throttle()
	clones, err := c.Gateway.TrafficClones(ctx, repo.FullName)
	if err != nil {
		return err
	}

	c.throttle()
	referrers, err := c.Gateway.PopularReferrers(ctx, repo.FullName)
	if err != nil {
		return err
	}

	c.throttle()
	paths, err := c.Gateway.PopularPaths(ctx, repo.FullName)
	if err != nil {
		return err
	}

	if err := c.Store.UpsertRepo(ctx, repo.Id, repo.FullName, repo.Description, repo.Archived, repo.Fork); err != nil {
		return err
	}

	// open_issues_count của GitHub đã gộp cả pull request
	issues := repo.OpenIssuesCount - pulls
	if issues < 0 {
		issues = 0
	}
	if err := c.Store.UpsertStats(ctx, repo.Id, date, repo.StargazersCount, repo.ForksCount, repo.WatchersCount, issues, pulls); err != nil {
		return err
	}

	for _, doc := range views.Views {
		if err := c.Store.UpsertViews(ctx, repo.Id, doc.Timestamp, doc.Count, doc.Uniques); err != nil {
			return err
		}
	}

	for _, doc := range clones.Clones {
		if err := c.Store.UpsertClones(ctx, repo.Id, doc.Timestamp, doc.Count, doc.Uniques); err != nil {
			return err
		}
	}

	for _, doc := range referrers {
		if err := c.Store.UpsertReferrer(ctx, repo.Id, date, doc.Referrer, doc.Count, doc.Uniques); err != nil {
			return err
		}
	}

	for _, doc := range paths {
		if err := c.Store.UpsertPath(ctx, repo.Id, date, doc.Path, doc.Title, doc.Count, doc.Uniques); err != nil {
			return err
		}
	}

	c.publishStat(ctx, repo, date, issues, pulls, views, clones)
	return nil
}

// publishStat phát dòng stat của ngày lên Kafka nếu được bật. Lỗi phát chỉ
// bị log: pipeline không phụ thuộc vào broker.
func (c *Collector) publishStat(ctx context.Context, repo *githubapi.RepoResponse, date time.Time, issues, pulls int64, views *githubapi.TrafficViewsResponse, clones *githubapi.TrafficClonesResponse) {
	if c.Publisher == nil {
		return
	}

	msg := model.StatMessage{
		RepoId:        repo.Id,
		FullName:      repo.FullName,
		Date:          date,
		Stars:         repo.StargazersCount,
		Forks:         repo.ForksCount,
		Watchers:      repo.WatchersCount,
		Issues:        issues,
		Pulls:         pulls,
		ViewsCount:    views.Count,
		ViewsUniques:  views.Uniques,
		ClonesCount:   clones.Count,
		ClonesUniques: clones.Uniques,
	}

	if err := c.Publisher.Publish(ctx, "stat", msg); err != nil {
		c.Logger.Warn(ctx, "Failed to publish stat for %s: %v", repo.FullName, err)
	}
}
