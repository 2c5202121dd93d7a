package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/finlegal/tenkdraft/config"
	"github.com/finlegal/tenkdraft/internal/edgar"
	"github.com/finlegal/tenkdraft/internal/filingstore"
	"github.com/finlegal/tenkdraft/internal/index"
	"github.com/finlegal/tenkdraft/internal/telemetry"
)

const refreshLockKey = "tenkdraft:refresh:lock"

// Refresher re-downloads the configured companies' filings on a cron schedule
// and rebuilds the retrieval index. A Redis SetNX lock keeps multiple
// instances from refreshing at once.
type Refresher struct {
	cfg     *config.Config
	edgar   *edgar.Client
	filings *filingstore.Store
	index   *index.Index
	rdb     *redis.Client
	stop    chan struct{}
	logger  *log.Logger
}

func NewRefresher(cfg *config.Config, client *edgar.Client, filings *filingstore.Store, ix *index.Index, rdb *redis.Client) (*Refresher, error) {
	if _, err := parseSchedule(cfg.Server.RefreshCron); err != nil {
		return nil, fmt.Errorf("invalid refresh_cron %q: %w", cfg.Server.RefreshCron, err)
	}
	return &Refresher{
		cfg:     cfg,
		edgar:   client,
		filings: filings,
		index:   ix,
		rdb:     rdb,
		stop:    make(chan struct{}),
		logger:  log.New(log.Writer(), "[REFRESH] ", log.LstdFlags),
	}, nil
}

// parseSchedule supports "@daily", "@hourly", and 5-field cron expressions.
func parseSchedule(spec string) (*cronexpr.Expression, error) {
	switch spec {
	case "@daily":
		return cronexpr.Parse("0 0 * * *")
	case "@hourly":
		return cronexpr.Parse("0 * * * *")
	default:
		return cronexpr.Parse(spec)
	}
}

func (r *Refresher) Start() {
	expr, _ := parseSchedule(r.cfg.Server.RefreshCron)
	go func() {
		for {
			next := expr.Next(time.Now())
			if next.IsZero() {
				r.logger.Printf("schedule %q yields no future runs, stopping", r.cfg.Server.RefreshCron)
				return
			}
			select {
			case <-r.stop:
				return
			case <-time.After(time.Until(next)):
				r.runOnce()
			}
		}
	}()
	r.logger.Printf("filing refresh scheduled (%s)", r.cfg.Server.RefreshCron)
}

func (r *Refresher) Stop() { close(r.stop) }

func (r *Refresher) runOnce() {
	ctx := context.Background()

	if r.rdb != nil {
		ok, err := r.rdb.SetNX(ctx, refreshLockKey, "1", 30*time.Minute).Result()
		if err != nil {
			r.logger.Printf("refresh lock: %v", err)
			return
		}
		if !ok {
			r.logger.Printf("another instance holds the refresh lock, skipping")
			return
		}
		defer r.rdb.Del(ctx, refreshLockKey)
	}

	var failed int
	for _, company := range r.cfg.Companies {
		filing, err := r.edgar.Download(ctx, company)
		if err != nil {
			r.logger.Printf("downloading %s: %v", company.Ticker, err)
			failed++
			continue
		}
		if err := r.filings.Save(filing); err != nil {
			r.logger.Printf("saving %s: %v", company.Ticker, err)
			failed++
			continue
		}
		if err := r.index.AddFiling(ctx, filing); err != nil {
			r.logger.Printf("indexing %s: %v", company.Ticker, err)
			failed++
		}
	}

	status := "ok"
	if failed > 0 {
		status = "partial"
	}
	if failed == len(r.cfg.Companies) {
		status = "failed"
	}
	telemetry.RefreshRuns.WithLabelValues(status).Inc()
	r.logger.Printf("refresh complete: %d companies, %d failures", len(r.cfg.Companies), failed)
}
