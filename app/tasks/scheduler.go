package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/feedrelay/feedrelay/app/cfg"
	"github.com/feedrelay/feedrelay/app/database"
	"github.com/feedrelay/feedrelay/app/delivery"
	"github.com/feedrelay/feedrelay/app/lock"
	"github.com/feedrelay/feedrelay/app/scheduling"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// Scheduler drives the tick loop: each tick it computes, per distinct refresh
// rate, the slot window covered by the tick and enqueues a ProcessFeedTask for
// every feed whose offset falls inside it. Maintenance tasks run on a slower
// cadence counted in ticks.
type Scheduler struct {
	feedRepo          database.FeedRepository
	articleRepo       database.ArticleRepository
	processingLock    lock.ProcessingLock
	rateResolver      *scheduling.RateResolver
	dispatcher        delivery.Dispatcher
	httpClient        *http.Client
	parser            *gofeed.Parser
	userAgent         string
	interval          time.Duration
	workerCount       int
	rateSyncTicks     int
	backfillBatchSize int
	maxFetchFailures  int
	tickCount         int
	ctx               context.Context
	cancel            context.CancelFunc
	wg                sync.WaitGroup
	taskQueue         chan TaskInterface
}

func NewScheduler(feedRepo database.FeedRepository, articleRepo database.ArticleRepository,
	processingLock lock.ProcessingLock, rateResolver *scheduling.RateResolver,
	dispatcher delivery.Dispatcher, httpClient *http.Client) TaskSchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		feedRepo:          feedRepo,
		articleRepo:       articleRepo,
		processingLock:    processingLock,
		rateResolver:      rateResolver,
		dispatcher:        dispatcher,
		httpClient:        httpClient,
		parser:            gofeed.NewParser(),
		userAgent:         cfg.UserAgent,
		interval:          time.Duration(cfg.TickInterval) * time.Second,
		workerCount:       cfg.WorkerCount,
		rateSyncTicks:     cfg.RateSyncTicks,
		backfillBatchSize: cfg.BackfillBatchSize,
		maxFetchFailures:  cfg.MaxFetchFailures,
		ctx:               ctx,
		cancel:            cancel,
		taskQueue:         make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.tick(time.Now().UTC())
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueStartupTasks() {
	backfillTask := NewBackfillSlotOffsetsTask(s.feedRepo, s.backfillBatchSize)
	if err := s.EnqueueTask(backfillTask); err != nil {
		slog.Warn("Failed to enqueue BackfillSlotOffsetsTask", "error", err)
	}

	syncTask := NewSyncFeedRatesTask(s.feedRepo, s.rateResolver)
	if err := s.EnqueueTask(syncTask); err != nil {
		slog.Warn("Failed to enqueue SyncFeedRatesTask", "error", err)
	}
}

// tick enqueues a ProcessFeedTask for every feed due in this tick's window.
// A failed database query skips the affected rate; those feeds are retried
// when their offset falls in a later tick's window.
func (s *Scheduler) tick(now time.Time) {
	s.tickCount++

	for _, rateSeconds := range s.activeRates() {
		window := scheduling.CurrentWindow(now, rateSeconds, s.interval)

		feeds, err := s.feedRepo.GetDueFeeds(s.ctx, rateSeconds, window)
		if err != nil {
			slog.Warn("Failed to query due feeds, skipping rate for this tick",
				"rate_seconds", rateSeconds, "error", err)
			continue
		}

		slog.Debug("Tick selection", "rate_seconds", rateSeconds,
			"window_start_ms", window.WindowStartMs, "window_end_ms", window.WindowEndMs,
			"wraps", window.WrapsAroundInterval, "due", len(feeds))

		for i := range feeds {
			task := NewProcessFeedTask(&feeds[i], s.feedRepo, s.articleRepo, s.processingLock,
				s.dispatcher, s.parser, s.httpClient, s.userAgent, s.maxFetchFailures)
			if err := s.EnqueueTask(task); err != nil {
				slog.Warn("Failed to enqueue ProcessFeedTask", "feed_id", feeds[i].ID, "error", err)
			}
		}
	}

	if s.rateSyncTicks > 0 && s.tickCount%s.rateSyncTicks == 0 {
		s.enqueueMaintenanceTasks()
	}
}

func (s *Scheduler) enqueueMaintenanceTasks() {
	syncTask := NewSyncFeedRatesTask(s.feedRepo, s.rateResolver)
	if err := s.EnqueueTask(syncTask); err != nil {
		slog.Warn("Failed to enqueue SyncFeedRatesTask", "error", err)
	}

	pruneTask := NewPruneArticleRecordsTask(s.articleRepo)
	if err := s.EnqueueTask(pruneTask); err != nil {
		slog.Warn("Failed to enqueue PruneArticleRecordsTask", "error", err)
	}
}

// activeRates merges the resolver's configured rates with the distinct
// user-overridden rates found in the database, so every effective rate in use
// gets window coverage.
func (s *Scheduler) activeRates() []int {
	rates := s.rateResolver.Rates()

	dbRates, err := s.feedRepo.GetEffectiveRates(s.ctx)
	if err != nil {
		slog.Warn("Failed to query effective rates, using configured rates only", "error", err)
		return rates
	}

	seen := make(map[int]bool, len(rates))
	for _, r := range rates {
		seen[r] = true
	}
	for _, r := range dbRates {
		if r > 0 && !seen[r] {
			seen[r] = true
			rates = append(rates, r)
		}
	}
	sort.Ints(rates)

	return rates
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "feed_id", task.GetFeedID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			go func() {
				time.Sleep(retryDelay)
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				default:
					if retryErr := s.EnqueueTask(task); retryErr != nil {
						slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
					}
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
	}
}
