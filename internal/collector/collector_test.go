package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/thep200/github-metrics/cfg"
	"github.com/thep200/github-metrics/internal/filter"
	githubapi "github.com/thep200/github-metrics/internal/github_api"
	"github.com/thep200/github-metrics/internal/limiter"
	"github.com/thep200/github-metrics/internal/model"
	"github.com/thep200/github-metrics/pkg/log"
)

// mockGateway simulates the GitHub API without network calls.
type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Repos(ctx context.Context) ([]githubapi.RepoResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]githubapi.RepoResponse), args.Error(1)
}

func (m *mockGateway) OpenPullsCount(ctx context.Context, fullName string) (int64, error) {
	args := m.Called(ctx, fullName)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockGateway) TrafficViews(ctx context.Context, fullName string) (*githubapi.TrafficViewsResponse, error) {
	args := m.Called(ctx, fullName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*githubapi.TrafficViewsResponse), args.Error(1)
}

func (m *mockGateway) TrafficClones(ctx context.Context, fullName string) (*githubapi.TrafficClonesResponse, error) {
	args := m.Called(ctx, fullName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*githubapi.TrafficClonesResponse), args.Error(1)
}

func (m *mockGateway) PopularPaths(ctx context.Context, fullName string) ([]githubapi.PopularPathResponse, error) {
	args := m.Called(ctx, fullName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]githubapi.PopularPathResponse), args.Error(1)
}

func (m *mockGateway) PopularReferrers(ctx context.Context, fullName string) ([]githubapi.ReferrerResponse, error) {
	args := m.Called(ctx, fullName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]githubapi.ReferrerResponse), args.Error(1)
}

func (m *mockGateway) Stargazers(ctx context.Context, fullName string) ([]githubapi.StargazerResponse, error) {
	args := m.Called(ctx, fullName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]githubapi.StargazerResponse), args.Error(1)
}

// mockStore records store writes.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) UpsertRepo(ctx context.Context, id int64, name, description string, archived, fork bool) error {
	return m.Called(ctx, id, name, description, archived, fork).Error(0)
}

func (m *mockStore) RepoIds(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *mockStore) MarkHidden(ctx context.Context, ids []int64) error {
	return m.Called(ctx, ids).Error(0)
}

func (m *mockStore) UpsertStats(ctx context.Context, repoId int64, date time.Time, stars, forks, watchers, issues, pulls int64) error {
	return m.Called(ctx, repoId, date, stars, forks, watchers, issues, pulls).Error(0)
}

func (m *mockStore) UpsertViews(ctx context.Context, repoId int64, date time.Time, count, uniques int64) error {
	return m.Called(ctx, repoId, date, count, uniques).Error(0)
}

func (m *mockStore) UpsertClones(ctx context.Context, repoId int64, date time.Time, count, uniques int64) error {
	return m.Called(ctx, repoId, date, count, uniques).Error(0)
}

func (m *mockStore) UpsertReferrer(ctx context.Context, repoId int64, date time.Time, referrer string, count, uniques int64) error {
	return m.Called(ctx, repoId, date, referrer, count, uniques).Error(0)
}

func (m *mockStore) UpsertPath(ctx context.Context, repoId int64, date time.Time, path, title string, count, uniques int64) error {
	return m.Called(ctx, repoId, date, path, title, count, uniques).Error(0)
}

func (m *mockStore) UpdateDeltas(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) ReposToSync(ctx context.Context) ([]model.Repo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Repo), args.Error(1)
}

func (m *mockStore) InsertStarHistory(ctx context.Context, repoId int64, series []model.StarDay) error {
	return m.Called(ctx, repoId, series).Error(0)
}

func (m *mockStore) MarkStarsSynced(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func setupCollector(t *testing.T, gateway Gateway, store Store, rules string) *Collector {
	loader, err := cfg.NewMockLoader()
	require.NoError(t, err)
	conf, err := loader.Load()
	require.NoError(t, err)
	conf.GithubApi.ThrottleDelay = 0
	conf.Collector.FilterRules = rules

	logger, err := log.NewCslLogger()
	require.NoError(t, err)

	return &Collector{
		Logger:      logger,
		Config:      conf,
		Gateway:     gateway,
		Store:       store,
		Filter:      filter.NewRepoFilter(rules),
		rateLimiter: limiter.NewRateLimiter(1000),
	}
}

func emptyTraffic() (*githubapi.TrafficViewsResponse, *githubapi.TrafficClonesResponse) {
	views := &githubapi.TrafficViewsResponse{
		Count:   10,
		Uniques: 2,
		Views:   []githubapi.TrafficDaily{{Timestamp: time.Now().UTC(), Count: 10, Uniques: 2}},
	}
	clones := &githubapi.TrafficClonesResponse{
		Count:   4,
		Uniques: 1,
		Clones:  []githubapi.TrafficDaily{{Timestamp: time.Now().UTC(), Count: 4, Uniques: 1}},
	}
	return views, clones
}

// expectHappyRepo registers successful fetch and upsert expectations for one repo.
func expectHappyRepo(gateway *mockGateway, store *mockStore, id int64, name string) {
	views, clones := emptyTraffic()
	gateway.On("OpenPullsCount", mock.Anything, name).Return(int64(1), nil)
	gateway.On("TrafficViews", mock.Anything, name).Return(views, nil)
	gateway.On("TrafficClones", mock.Anything, name).Return(clones, nil)
	gateway.On("PopularReferrers", mock.Anything, name).Return([]githubapi.ReferrerResponse{{Referrer: "github.com", Count: 5, Uniques: 2}}, nil)
	gateway.On("PopularPaths", mock.Anything, name).Return([]githubapi.PopularPathResponse{{Path: "/" + name, Title: name, Count: 7, Uniques: 3}}, nil)

	store.On("UpsertRepo", mock.Anything, id, name, mock.Anything, false, false).Return(nil)
	store.On("UpsertStats", mock.Anything, id, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	store.On("UpsertViews", mock.Anything, id, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	store.On("UpsertClones", mock.Anything, id, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	store.On("UpsertReferrer", mock.Anything, id, mock.Anything, "github.com", mock.Anything, mock.Anything).Return(nil)
	store.On("UpsertPath", mock.Anything, id, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
}

func TestCollectPartialFailureIsolation(t *testing.T) {
	gateway := &mockGateway{}
	store := &mockStore{}

	repos := []githubapi.RepoResponse{
		{Id: 1, FullName: "foo/a", StargazersCount: 10, OpenIssuesCount: 3},
		{Id: 2, FullName: "foo/b", StargazersCount: 20},
		{Id: 3, FullName: "foo/c", StargazersCount: 30},
	}
	gateway.On("Repos", mock.Anything).Return(repos, nil)
	store.On("RepoIds", mock.Anything).Return([]int64{}, nil)
	store.On("MarkHidden", mock.Anything, mock.Anything).Return(nil)

	expectHappyRepo(gateway, store, 1, "foo/a")
	expectHappyRepo(gateway, store, 3, "foo/c")

	// repo 2 fails its traffic fetch and must not abort the others
	gateway.On("OpenPullsCount", mock.Anything, "foo/b").Return(int64(0), nil)
	gateway.On("TrafficViews", mock.Anything, "foo/b").Return(nil, errors.New("boom"))

	store.On("UpdateDeltas", mock.Anything).Return(nil)
	store.On("ReposToSync", mock.Anything).Return([]model.Repo{}, nil)

	collector := setupCollector(t, gateway, store, "")
	err := collector.Collect(context.Background())
	require.NoError(t, err)

	store.AssertCalled(t, "UpsertStats", mock.Anything, int64(1), mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	store.AssertCalled(t, "UpsertStats", mock.Anything, int64(3), mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "UpsertStats", mock.Anything, int64(2), mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "UpsertRepo", mock.Anything, int64(2), mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// deltas recomputed once, globally, even with a failed repo
	store.AssertNumberOfCalls(t, "UpdateDeltas", 1)
}

func TestCollectMarksDisappearedReposHidden(t *testing.T) {
	gateway := &mockGateway{}
	store := &mockStore{}

	repos := []githubapi.RepoResponse{{Id: 1, FullName: "foo/a"}}
	gateway.On("Repos", mock.Anything).Return(repos, nil)

	// repo 99 was known before but is gone from the listing
	store.On("RepoIds", mock.Anything).Return([]int64{1, 99}, nil)
	store.On("MarkHidden", mock.Anything, []int64{99}).Return(nil)

	expectHappyRepo(gateway, store, 1, "foo/a")
	store.On("UpdateDeltas", mock.Anything).Return(nil)
	store.On("ReposToSync", mock.Anything).Return([]model.Repo{}, nil)

	collector := setupCollector(t, gateway, store, "")
	require.NoError(t, collector.Collect(context.Background()))

	store.AssertCalled(t, "MarkHidden", mock.Anything, []int64{99})
}

func TestCollectAbortsWhenListingFails(t *testing.T) {
	gateway := &mockGateway{}
	store := &mockStore{}

	gateway.On("Repos", mock.Anything).Return(nil, errors.New("401 bad credentials"))

	collector := setupCollector(t, gateway, store, "")
	err := collector.Collect(context.Background())
	require.Error(t, err)

	store.AssertNotCalled(t, "UpdateDeltas", mock.Anything)
}

func TestCollectAppliesFilter(t *testing.T) {
	gateway := &mockGateway{}
	store := &mockStore{}

	repos := []githubapi.RepoResponse{
		{Id: 1, FullName: "foo/a"},
		{Id: 2, FullName: "foo/b", Fork: true}, // wildcard rules never match forks
		{Id: 3, FullName: "bar/c"},
	}
	gateway.On("Repos", mock.Anything).Return(repos, nil)
	store.On("RepoIds", mock.Anything).Return([]int64{}, nil)
	store.On("MarkHidden", mock.Anything, mock.Anything).Return(nil)

	expectHappyRepo(gateway, store, 1, "foo/a")
	store.On("UpdateDeltas", mock.Anything).Return(nil)
	store.On("ReposToSync", mock.Anything).Return([]model.Repo{}, nil)

	collector := setupCollector(t, gateway, store, "foo/*")
	require.NoError(t, collector.Collect(context.Background()))

	store.AssertNotCalled(t, "UpsertRepo", mock.Anything, int64(2), mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "UpsertRepo", mock.Anything, int64(3), mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	gateway.AssertNotCalled(t, "TrafficViews", mock.Anything, "bar/c")
}
