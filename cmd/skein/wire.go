package main

import (
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/jordanhubbard/skein/internal/config"
	"github.com/jordanhubbard/skein/internal/database"
	"github.com/jordanhubbard/skein/internal/queue"
	"github.com/jordanhubbard/skein/internal/store"
)

// stores bundles the persistence layer plus its cleanup.
type stores struct {
	experiences store.ExperienceStore
	insights    store.InsightStore
	close       func() error
}

func openStores(cfg *config.Config) (*stores, error) {
	switch cfg.Database.Type {
	case "memory":
		return &stores{
			experiences: store.NewMemoryExperienceStore(),
			insights:    store.NewMemoryInsightStore(),
			close:       func() error { return nil },
		}, nil
	case "sqlite":
		db, err := database.New(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return &stores{experiences: db, insights: db, close: db.Close}, nil
	case "postgres":
		db, err := database.NewPostgres(cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres database: %w", err)
		}
		return &stores{experiences: db, insights: db, close: db.Close}, nil
	default:
		return nil, fmt.Errorf("unknown database type %q", cfg.Database.Type)
	}
}

// queues bundles the two queues plus their cleanup.
type queues struct {
	tasks    queue.TaskQueue
	analysis queue.AnalysisQueue
	close    func() error
}

func openQueues(cfg *config.Config) (*queues, error) {
	switch cfg.Queue.Backend {
	case "memory":
		return &queues{
			tasks:    queue.NewMemoryTaskQueue(),
			analysis: queue.NewMemoryAnalysisQueue(),
			close:    func() error { return nil },
		}, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return &queues{
			tasks:    queue.NewRedisTaskQueue(rdb),
			analysis: queue.NewRedisAnalysisQueue(rdb),
			close:    rdb.Close,
		}, nil
	case "nats":
		aq, err := queue.NewNatsAnalysisQueue(queue.NatsConfig{URL: cfg.NATS.URL})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		// JetStream only carries the analysis side; sub-tasks stay on
		// the in-process queue until an executor service exists.
		log.Printf("[Skein] nats backend selected, task queue remains in-process")
		return &queues{
			tasks:    queue.NewMemoryTaskQueue(),
			analysis: aq,
			close:    aq.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
}
