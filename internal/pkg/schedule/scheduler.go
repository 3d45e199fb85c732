package schedule

import (
	"context"
	"os"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"

	"github.com/fleamarkt/fleamarkt/internal/pkg/billing"
	"github.com/fleamarkt/fleamarkt/internal/pkg/cache"
	"github.com/fleamarkt/fleamarkt/internal/pkg/database"
	"github.com/fleamarkt/fleamarkt/internal/pkg/listingcache"
	"github.com/fleamarkt/fleamarkt/internal/pkg/metrics/counter"
	"github.com/fleamarkt/fleamarkt/internal/pkg/subscription"

	"github.com/fleamarkt/fleamarkt/app/repository"
)

const (
	// DefaultReconcileCron runs the subscription batch scan every six hours.
	DefaultReconcileCron = "0 */6 * * *"
	// DefaultReapCron purges expired cached listings once an hour.
	DefaultReapCron = "30 * * * *"
	// DefaultCounterFlushCron drains pending view counters every five minutes.
	DefaultCounterFlushCron = "*/5 * * * *"

	scanTimeout = 10 * time.Minute
	reapTimeout = 2 * time.Minute
)

// Scheduler owns the background jobs: the periodic subscription scan and
// the listing cache reaper.
type Scheduler struct {
	cron *cron.Cron
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		cron: cron.New(),
	}
}

// Start registers the jobs and launches the cron loop. Schedules are
// overridable via RECONCILE_CRON and CACHE_REAP_CRON.
func (s *Scheduler) Start() error {
	reconcileSpec := envOr("RECONCILE_CRON", DefaultReconcileCron)
	reapSpec := envOr("CACHE_REAP_CRON", DefaultReapCron)
	flushSpec := envOr("COUNTER_FLUSH_CRON", DefaultCounterFlushCron)

	if _, err := s.cron.AddFunc(reconcileSpec, runBatchScan); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(reapSpec, runCacheReap); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(flushSpec, runCounterFlush); err != nil {
		return err
	}

	s.cron.Start()
	log.Infof("[Schedule] started: reconcile=%q reap=%q flush=%q", reconcileSpec, reapSpec, flushSpec)
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("[Schedule] stopped")
}

func runBatchScan() {
	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
	defer cancel()

	primary := subscription.NewDBStore(database.GetDB())
	mirror := subscription.NewCacheStore(cache.GetClient())
	users := repository.GetGlobalFactory().GetUserRepository()
	service := subscription.NewService(billing.NewStripeClientFromEnv(), users, primary, mirror)

	summary, err := subscription.NewBatchScanner(service, primary).Run(ctx)
	if err != nil {
		log.Errorf("[Schedule] subscription scan failed: %v", err)
		return
	}
	log.Infof("[Schedule] subscription scan done: total=%d fixed=%d errors=%d",
		summary.Total, summary.Fixed, summary.Errors)
}

func runCacheReap() {
	ctx, cancel := context.WithTimeout(context.Background(), reapTimeout)
	defer cancel()

	purged, err := listingcache.ReapExpired(ctx, cache.GetClient(), time.Now())
	if err != nil {
		log.Errorf("[Schedule] listing cache reap failed: %v", err)
		return
	}
	if purged > 0 {
		log.Infof("[Schedule] listing cache reap purged %d documents", purged)
	}
}

func runCounterFlush() {
	if err := counter.FlushAll(); err != nil {
		log.Errorf("[Schedule] counter flush failed: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
