package model

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/thep200/github-metrics/cfg"
	"github.com/thep200/github-metrics/pkg/db"
	"github.com/thep200/github-metrics/pkg/log"
)

// setupStore builds the models over a sqlmock-backed gorm connection.
func setupStore(t *testing.T) (*db.Mysql, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	loader, err := cfg.NewMockLoader()
	require.NoError(t, err)
	conf, err := loader.Load()
	require.NoError(t, err)

	return db.NewMysqlFromGorm(conf, gdb), mock
}

func testLogger(t *testing.T) log.Logger {
	logger, err := log.NewCslLogger()
	require.NoError(t, err)
	return logger
}

func TestUpsertStatsUsesMonotonicMerge(t *testing.T) {
	mysqlDb, mock := setupStore(t)
	stat, err := NewRepoStat(mysqlDb.Config, testLogger(t), mysqlDb)
	require.NoError(t, err)

	// conflicting rows must merge per column with GREATEST, never overwrite
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `repo_stats`.*ON DUPLICATE KEY UPDATE.*GREATEST").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = stat.UpsertStats(context.Background(), 42, day("2024-05-01"), 10, 2, 3, 4, 1)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertViewsTouchesOnlyViewColumns(t *testing.T) {
	mysqlDb, mock := setupStore(t)
	stat, err := NewRepoStat(mysqlDb.Config, testLogger(t), mysqlDb)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `repo_stats`.*GREATEST\\(views_count, VALUES\\(views_count\\)\\)").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = stat.UpsertViews(context.Background(), 42, day("2024-05-01"), 20, 5)
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTotalsUnknownRepoIsNotAnError(t *testing.T) {
	mysqlDb, mock := setupStore(t)
	stat, err := NewRepoStat(mysqlDb.Config, testLogger(t), mysqlDb)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT r.id, r.name").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "stars"}))

	totals, err := stat.Totals(context.Background(), "foo/ghost")
	require.NoError(t, err)
	assert.Nil(t, totals)
}

func TestTotalsScansAggregates(t *testing.T) {
	mysqlDb, mock := setupStore(t)
	stat, err := NewRepoStat(mysqlDb.Config, testLogger(t), mysqlDb)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "name", "stars", "views_count", "clones_count"}).
		AddRow(42, "foo/bar", 100, 555, 77)
	mock.ExpectQuery("SELECT r.id, r.name").WillReturnRows(rows)

	totals, err := stat.Totals(context.Background(), "foo/bar")
	require.NoError(t, err)
	require.NotNil(t, totals)
	assert.Equal(t, int64(100), totals.Stars)
	assert.Equal(t, int64(555), totals.ViewsCount)
	assert.Equal(t, int64(77), totals.ClonesCount)
}

func TestMarkHidden(t *testing.T) {
	mysqlDb, mock := setupStore(t)
	repo, err := NewRepo(mysqlDb.Config, testLogger(t), mysqlDb)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `repos` SET `hidden`").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err = repo.MarkHidden(context.Background(), []int64{7, 9})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkHiddenNoIdsIsNoop(t *testing.T) {
	mysqlDb, mock := setupStore(t)
	repo, err := NewRepo(mysqlDb.Config, testLogger(t), mysqlDb)
	require.NoError(t, err)

	require.NoError(t, repo.MarkHidden(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReposToSyncSkipsHiddenAndSynced(t *testing.T) {
	mysqlDb, mock := setupStore(t)
	repo, err := NewRepo(mysqlDb.Config, testLogger(t), mysqlDb)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "name", "stars_synced", "hidden"}).
		AddRow(1, "foo/bar", false, false).
		AddRow(3, "foo/baz", false, false)
	mock.ExpectQuery("SELECT \\* FROM `repos` WHERE stars_synced = \\? AND hidden = \\?").
		WillReturnRows(rows)

	repos, err := repo.ReposToSync(context.Background())
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "foo/bar", repos[0].Name)
}

func TestUpdateDeltasRecomputesFromHistory(t *testing.T) {
	mysqlDb, mock := setupStore(t)
	referrer, err := NewRepoReferrer(mysqlDb.Config, testLogger(t), mysqlDb)
	require.NoError(t, err)

	// one key with a reset in the middle: stored deltas are stale zeros
	rows := sqlmock.NewRows([]string{"id", "date", "item", "count", "uniques", "count_delta", "uniques_delta"}).
		AddRow(42, day("2024-01-01"), "news.ycombinator.com", 50, 5, 0, 0).
		AddRow(42, day("2024-01-02"), "news.ycombinator.com", 80, 9, 0, 0).
		AddRow(42, day("2024-01-03"), "news.ycombinator.com", 60, 4, 0, 0).
		AddRow(42, day("2024-01-04"), "news.ycombinator.com", 90, 12, 0, 0)
	mock.ExpectQuery("SELECT id, date, referrer AS item").WillReturnRows(rows)

	mock.ExpectBegin()
	// day 1: 50 (missing predecessor = 0), already stored as 0 -> updated to 50
	mock.ExpectExec("UPDATE repo_referrers SET count_delta").
		WithArgs(int64(50), int64(5), int64(42), day("2024-01-01"), "news.ycombinator.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// day 2: +30
	mock.ExpectExec("UPDATE repo_referrers SET count_delta").
		WithArgs(int64(30), int64(4), int64(42), day("2024-01-02"), "news.ycombinator.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// day 3: counter reset, clamped to 0 -> stored value already 0 but uniques
	// delta is also 0, so no update expected for day 3
	// day 4: +30
	mock.ExpectExec("UPDATE repo_referrers SET count_delta").
		WithArgs(int64(30), int64(8), int64(42), day("2024-01-04"), "news.ycombinator.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = referrer.UpdateDeltas(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPopularItemsWhitelistsSort(t *testing.T) {
	mysqlDb, mock := setupStore(t)
	path, err := NewRepoPopularPath(mysqlDb.Config, testLogger(t), mysqlDb)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"item", "count", "uniques"}).
		AddRow("/readme", 120, 40).
		AddRow("/docs", 80, 30)
	mock.ExpectQuery("GROUP BY t.path ORDER BY count desc").WillReturnRows(rows)

	// bogus sort column falls back to count desc instead of reaching the SQL
	items, err := path.PopularItems(context.Background(), "foo/bar", "; DROP TABLE repos", "sideways", 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "/readme", items[0].Item)
	assert.Equal(t, int64(120), items[0].Count)
}
