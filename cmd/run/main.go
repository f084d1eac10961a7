package main

import (
	"context"

	"github.com/thep200/github-metrics/cfg"
	"github.com/thep200/github-metrics/internal/collector"
	"github.com/thep200/github-metrics/internal/model"
	"github.com/thep200/github-metrics/pkg/db"
	"github.com/thep200/github-metrics/pkg/log"
)

func main() {
	ctx := context.Background()
	// loader, _ := cfg.NewMockLoader()
	loader, _ := cfg.NewViperLoader()
	config, _ := loader.Load()
	mysql, _ := db.NewMysql(config)
	logger, _ := log.NewCslLogger()
	store, _ := model.NewStore(config, logger, mysql)
	clt, _ := collector.NewCollector(logger, config, mysql)

	// Migrate database
	if err := store.Migrate(mysql); err != nil {
		logger.Error(ctx, "Failed to migrate database: %v", err)
		return
	}

	//
	logger.Info(ctx, "Starting Github metrics collection")
	if err := clt.Collect(ctx); err != nil {
		logger.Error(ctx, "Failed: %v", err)
		return
	}
	logger.Info(ctx, "Successfully!")
}
