package cron

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hudhaifi/murattal/pkg/logging"
)

// CatalogRefresher re-runs a catalog refresh function on a cron schedule.
// CDN listings and resolved stream URLs go stale, so the refresher keeps
// the cached catalog warm without blocking playback.
type CatalogRefresher struct {
	cron        *cron.Cron
	cronEntry   cron.EntryID
	refreshFunc func() error
	logger      logging.Logger
	mutex       sync.RWMutex
	isRunning   bool
	schedule    string
}

// NewCatalogRefresher creates a refresher with the default schedule
// (every 6 hours).
func NewCatalogRefresher(refreshFunc func() error, logger logging.Logger) *CatalogRefresher {
	return NewCatalogRefresherWithSchedule(refreshFunc, "0 0 */6 * * *", logger)
}

// NewCatalogRefresherWithSchedule creates a refresher with a custom cron
// schedule. The schedule uses six fields (seconds included).
func NewCatalogRefresherWithSchedule(refreshFunc func() error, schedule string, logger logging.Logger) *CatalogRefresher {
	if logger == nil {
		logger = logging.Null()
	}

	r := &CatalogRefresher{
		cron:        cron.New(cron.WithSeconds()),
		refreshFunc: refreshFunc,
		logger:      logger,
		schedule:    schedule,
	}

	r.cron.Start()

	entryID, err := r.cron.AddFunc(schedule, r.refresh)
	if err != nil {
		logger.Error("failed to schedule catalog refresh",
			logging.String("schedule", schedule),
			logging.Error(err))
	} else {
		r.cronEntry = entryID
		logger.Info("scheduled catalog refresh", logging.String("schedule", schedule))
	}

	return r
}

// refresh runs the refresh function, skipping if one is already in flight.
func (r *CatalogRefresher) refresh() {
	r.mutex.Lock()
	if r.isRunning {
		r.mutex.Unlock()
		r.logger.Debug("catalog refresh already in progress, skipping")
		return
	}
	r.isRunning = true
	r.mutex.Unlock()

	defer func() {
		r.mutex.Lock()
		r.isRunning = false
		r.mutex.Unlock()
	}()

	start := time.Now()

	if r.refreshFunc == nil {
		return
	}

	if err := r.refreshFunc(); err != nil {
		r.logger.Error("catalog refresh failed", logging.Error(err))
		return
	}

	r.logger.Info("catalog refresh completed",
		logging.Duration("elapsed", time.Since(start)))
}

// RefreshNow triggers an immediate refresh in the background.
func (r *CatalogRefresher) RefreshNow() {
	go r.refresh()
}

// Stop halts the scheduler. Any refresh already running finishes on its own.
func (r *CatalogRefresher) Stop() {
	if r.cron != nil {
		r.cron.Stop()
		r.logger.Info("catalog refresher stopped")
	}
}

// NextRun returns the next scheduled refresh time.
func (r *CatalogRefresher) NextRun() time.Time {
	if r.cron != nil {
		entries := r.cron.Entries()
		if len(entries) > 0 {
			return entries[0].Next
		}
	}
	return time.Time{}
}

// IsRunning reports whether a refresh is currently in progress.
func (r *CatalogRefresher) IsRunning() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.isRunning
}

// Schedule returns the configured cron schedule.
func (r *CatalogRefresher) Schedule() string {
	return r.schedule
}
