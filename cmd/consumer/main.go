package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thep200/github-metrics/cfg"
	"github.com/thep200/github-metrics/internal/model"
	"github.com/thep200/github-metrics/pkg/db"
	"github.com/thep200/github-metrics/pkg/kafka"
	"github.com/thep200/github-metrics/pkg/log"
)

func main() {
	// Load configuration
	loader, _ := cfg.NewViperLoader()
	config, err := loader.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, _ := log.NewCslLogger()

	// Setup database
	mysql, err := db.NewMysql(config)
	if err != nil {
		logger.Error(context.Background(), "Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := model.NewStore(config, logger, mysql)
	if err != nil {
		logger.Error(ctx, "Failed to create store: %v", err)
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	startStatConsumer(ctx, config, logger, store)

	// Wait for termination signal
	<-sigCh
	logger.Info(ctx, "Received shutdown signal, gracefully shutting down...")
	cancel()
}

// startStatConsumer đọc sự kiện stat từ Kafka và ghi lại vào store theo lô.
// Store merge đơn điệu nên replay một sự kiện cũ không làm số liệu đi lùi.
func startStatConsumer(ctx context.Context, config *cfg.Config, logger log.Logger, store *model.Store) {
	consumer := kafka.NewConsumer(config, logger, config.Kafka.TopicStat, "stat-consumer-group")

	batchSize := 100
	batchTimeout := 5 * time.Second

	// Channel to collect messages for batch processing
	messages := make(chan model.StatMessage, batchSize*2)

	// Batch processor
	go processBatchedStats(ctx, messages, batchSize, batchTimeout, logger, store)

	// Register handler for stat messages
	consumer.RegisterHandler("stat", func(data []byte) error {
		var statMsg model.StatMessage
		if err := json.Unmarshal(data, &statMsg); err != nil {
			return fmt.Errorf("failed to unmarshal stat message: %w", err)
		}

		select {
		case messages <- statMsg:
			// Message added to batch
		case <-ctx.Done():
			return ctx.Err()
		}

		return nil
	})

	// Start consumer in a goroutine
	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Error(ctx, "Stat consumer error: %v", err)
		}
	}()

	logger.Info(ctx, "Stat consumer started successfully")
}

func processBatchedStats(ctx context.Context, messages <-chan model.StatMessage, batchSize int,
	batchTimeout time.Duration, logger log.Logger, store *model.Store) {

	var batch []model.StatMessage
	timer := time.NewTimer(batchTimeout)

	for {
		select {
		case <-ctx.Done():
			// Process remaining messages before exiting
			if len(batch) > 0 {
				processSingleBatch(ctx, batch, logger, store)
			}
			return

		case msg := <-messages:
			batch = append(batch, msg)

			if len(batch) >= batchSize {
				processSingleBatch(ctx, batch, logger, store)
				batch = nil
				timer.Reset(batchTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				processSingleBatch(ctx, batch, logger, store)
				batch = nil
			}
			timer.Reset(batchTimeout)
		}
	}
}

func processSingleBatch(ctx context.Context, batch []model.StatMessage, logger log.Logger, store *model.Store) {
	if len(batch) == 0 {
		return
	}

	logger.Info(ctx, "Processing batch of %d stat events", len(batch))

	if err := store.UpsertStatBatch(ctx, batch); err != nil {
		logger.Error(ctx, "Failed to save batch of stat events: %v", err)
	} else {
		logger.Info(ctx, "Successfully saved batch of %d stat events", len(batch))
	}
}
