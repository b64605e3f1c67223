/**
 * Worker pool: bounded, asynq-backed dispatch of ingest jobs onto the
 * Orchestrator, grounded on the queue consumer's Asynq client/server/mux
 * wiring and retry/error-handling conventions.
 */

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nexusdoc/docengine/internal/logging"
)

const taskTypeIngest = "ingest-document"

// PoolConfig configures the bounded worker pool.
type PoolConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.QueueName == "" {
		c.QueueName = "docengine"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}

// Pool dispatches submitted Jobs onto a bounded set of workers, each
// invoking the Orchestrator's Process entry point. Submission never blocks
// past the queue's own capacity: a full queue surfaces asynq's own error
// rather than deadlocking the submitter.
type Pool struct {
	client       *asynq.Client
	server       *asynq.Server
	mux          *asynq.ServeMux
	orchestrator *Orchestrator
	config       PoolConfig
	logger       *logging.Logger
}

// NewPool constructs a Pool bound to orchestrator for job execution.
func NewPool(cfg PoolConfig, orch *Orchestrator, logger *logging.Logger) (*Pool, error) {
	cfg = cfg.withDefaults()
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}
	if orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			cfg.QueueName: 10,
			"default":     1,
		},
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			delay := time.Duration(5*(1<<uint(n))) * time.Second
			if delay > 60*time.Second {
				delay = 60 * time.Second
			}
			return delay
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			if logger != nil {
				logger.Error("ingest task failed", "taskType", task.Type(), "error", err)
			}
		}),
	})

	mux := asynq.NewServeMux()
	pool := &Pool{client: client, server: server, mux: mux, orchestrator: orch, config: cfg, logger: logger}
	mux.HandleFunc(taskTypeIngest, pool.handleIngest)
	return pool, nil
}

// Submit enqueues job for asynchronous processing. It returns as soon as
// the task is durably queued; the caller does not wait for Process to run.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	task := asynq.NewTask(taskTypeIngest, payload)
	if _, err := p.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.DocumentID, err)
	}
	return nil
}

// Start runs the pool's workers in the background until Stop is called.
func (p *Pool) Start(ctx context.Context) error {
	if p.logger != nil {
		p.logger.Info("starting orchestrator worker pool", "concurrency", p.config.Concurrency, "queue", p.config.QueueName)
	}
	go func() {
		if err := p.server.Run(p.mux); err != nil && p.logger != nil {
			p.logger.Error("orchestrator worker pool stopped with error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the pool down gracefully, letting in-flight jobs finish.
func (p *Pool) Stop(ctx context.Context) error {
	if p.logger != nil {
		p.logger.Info("stopping orchestrator worker pool")
	}
	p.server.Shutdown()
	return p.client.Close()
}

func (p *Pool) handleIngest(ctx context.Context, task *asynq.Task) error {
	var job Job
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal ingest job: %w", err)
	}
	return p.orchestrator.Process(ctx, job)
}
