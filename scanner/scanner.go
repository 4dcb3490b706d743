// Package scanner drives the periodic market scan: refresh candle data
// for every tracked pair, run the signal pipeline over it, and retire
// signals that outlived their TTL.
package scanner

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"gorm.io/gorm"

	"coinsignals/metrics"
	"coinsignals/models"
	"coinsignals/services/analysis"
	"coinsignals/services/cache"
	"coinsignals/services/exchange"
	"coinsignals/services/marketdata"
	"coinsignals/services/signals"
)

const (
	// scanTimeframe is the candle interval fed to the indicator pipeline.
	scanTimeframe = "1m"
	// fetchLimit leaves headroom over the minimum the generator accepts.
	fetchLimit = 100
)

// MarketKey is the cache key for a pair's latest candle window
func MarketKey(exchangeName, pair string) string {
	return fmt.Sprintf("market:%s:%s", exchangeName, pair)
}

// Config carries the scan cadence and bounds
type Config struct {
	ScanInterval    time.Duration
	MarketRefresh   time.Duration
	MarketDataTTL   time.Duration
	ExpirySweep     time.Duration
	MaxPairsPerTick int
	ScanConcurrency int
	ExchangeTimeout time.Duration
}

// Scanner owns the scheduled jobs and their worker pool
type Scanner struct {
	cron      *gocron.Scheduler
	db        *gorm.DB
	store     cache.Store
	registry  *exchange.Registry
	generator *signals.Generator
	archive   *marketdata.Archive
	metrics   *metrics.Metrics
	cfg       Config

	sem chan struct{}
	wg  sync.WaitGroup
}

// New creates a scanner; Start schedules its jobs
func New(db *gorm.DB, store cache.Store, registry *exchange.Registry, generator *signals.Generator, archive *marketdata.Archive, m *metrics.Metrics, cfg Config) *Scanner {
	if cfg.ScanConcurrency < 1 {
		cfg.ScanConcurrency = 1
	}
	return &Scanner{
		cron:      gocron.NewScheduler(time.UTC),
		db:        db,
		store:     store,
		registry:  registry,
		generator: generator,
		archive:   archive,
		metrics:   m,
		cfg:       cfg,
		sem:       make(chan struct{}, cfg.ScanConcurrency),
	}
}

// Start schedules the three jobs and runs them asynchronously
func (s *Scanner) Start() {
	log.Println("[scanner] starting scheduled jobs")

	s.cron.Every(s.cfg.MarketRefresh).Do(func() {
		s.supervised("market refresh", s.refreshMarketData)
	})
	s.cron.Every(s.cfg.ScanInterval).Do(func() {
		s.supervised("signal scan", s.scanForSignals)
	})
	s.cron.Every(s.cfg.ExpirySweep).Do(func() {
		s.supervised("expiry sweep", s.sweepExpired)
	})

	s.cron.StartAsync()
	log.Printf("[scanner] started: refresh=%s scan=%s sweep=%s concurrency=%d",
		s.cfg.MarketRefresh, s.cfg.ScanInterval, s.cfg.ExpirySweep, s.cfg.ScanConcurrency)
}

// Stop halts scheduling and waits for in-flight work to drain
func (s *Scanner) Stop() {
	s.cron.Stop()
	s.wg.Wait()
	log.Println("[scanner] stopped")
}

// supervised runs one job, keeping panics from taking the process down
// with it. The scheduler will fire the job again on its next tick.
func (s *Scanner) supervised(name string, job func()) {
	s.wg.Add(1)
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[scanner] %s panicked: %v", name, r)
		}
	}()
	job()
}

// refreshMarketData fetches the latest candle window for every tracked
// pair and caches it for the short refresh horizon.
func (s *Scanner) refreshMarketData() {
	pairs, err := models.ActiveExchangePairs(s.db, s.cfg.MaxPairsPerTick)
	if err != nil {
		log.Printf("[scanner] load tracked pairs: %v", err)
		return
	}

	var wg sync.WaitGroup
	for _, p := range pairs {
		p := p
		wg.Add(1)
		s.sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-s.sem }()
			if _, err := s.refreshPair(p.Exchange, p.Pair); err != nil {
				s.metrics.PairScanErrors.Inc()
				log.Printf("[scanner] refresh %s %s: %v", p.Exchange, p.Pair, err)
			}
		}()
	}
	wg.Wait()
}

// refreshPair fetches, caches and archives one pair's candles
func (s *Scanner) refreshPair(exchangeName, pair string) ([]exchange.Candle, error) {
	client, err := s.registry.Get(exchangeName)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ExchangeTimeout)
	defer cancel()

	candles, err := client.FetchOHLCV(ctx, pair, scanTimeframe, fetchLimit)
	if err != nil {
		return nil, err
	}

	if err := cache.SetJSON(ctx, s.store, MarketKey(exchangeName, pair), candles, s.cfg.MarketDataTTL); err != nil {
		log.Printf("[scanner] cache candles %s %s: %v", exchangeName, pair, err)
	}
	if err := s.archive.StoreCandles(ctx, exchangeName, pair, candles); err != nil {
		log.Printf("[scanner] archive candles %s %s: %v", exchangeName, pair, err)
	}
	return candles, nil
}

// scanForSignals runs the signal pipeline over every tracked pair,
// bounded by the worker pool.
func (s *Scanner) scanForSignals() {
	s.metrics.ScanTicks.Inc()

	pairs, err := models.ActiveExchangePairs(s.db, s.cfg.MaxPairsPerTick)
	if err != nil {
		log.Printf("[scanner] load tracked pairs: %v", err)
		return
	}

	var wg sync.WaitGroup
	for _, p := range pairs {
		p := p
		wg.Add(1)
		s.sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-s.sem }()
			if err := s.scanPair(p.Exchange, p.Pair); err != nil {
				s.metrics.PairScanErrors.Inc()
				log.Printf("[scanner] scan %s %s: %v", p.Exchange, p.Pair, err)
			}
		}()
	}
	wg.Wait()
}

// scanPair evaluates one pair, skipping it while a live signal exists
func (s *Scanner) scanPair(exchangeName, pair string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ExchangeTimeout)
	defer cancel()

	live, err := s.hasLiveSignal(ctx, exchangeName, pair)
	if err != nil {
		return err
	}
	if live {
		return nil
	}

	series, err := s.loadSeries(ctx, exchangeName, pair)
	if err != nil {
		return err
	}

	_, err = s.generator.Generate(ctx, exchangeName, pair, series)
	return err
}

// hasLiveSignal checks the cache first, then the database. The cache
// holds the fast path; the database catches signals cached elsewhere or
// evicted early.
func (s *Scanner) hasLiveSignal(ctx context.Context, exchangeName, pair string) (bool, error) {
	var cached models.Signal
	err := cache.GetJSON(ctx, s.store, signals.CacheKey(exchangeName, pair), &cached)
	switch {
	case err == nil:
		s.metrics.CacheHits.Inc()
		if cached.IsLive(time.Now()) {
			return true, nil
		}
	case err == cache.ErrCacheMiss:
		s.metrics.CacheMisses.Inc()
	default:
		return false, fmt.Errorf("read cached signal: %w", err)
	}

	var count int64
	err = s.db.Model(&models.Signal{}).
		Where("exchange = ? AND pair = ? AND is_active = ? AND expires_at > ?",
			exchangeName, pair, true, time.Now()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count live signals: %w", err)
	}
	return count > 0, nil
}

// loadSeries reads cached candles when fresh, falling back to the venue
func (s *Scanner) loadSeries(ctx context.Context, exchangeName, pair string) (analysis.PriceSeries, error) {
	var candles []exchange.Candle
	err := cache.GetJSON(ctx, s.store, MarketKey(exchangeName, pair), &candles)
	if err == cache.ErrCacheMiss {
		candles, err = s.refreshPair(exchangeName, pair)
	}
	if err != nil {
		return analysis.PriceSeries{}, err
	}
	return seriesFromCandles(candles), nil
}

// seriesFromCandles projects OHLCV bars into the indicator input
func seriesFromCandles(candles []exchange.Candle) analysis.PriceSeries {
	series := analysis.PriceSeries{
		Closes:  make([]float64, len(candles)),
		Volumes: make([]float64, len(candles)),
		Highs:   make([]float64, len(candles)),
		Lows:    make([]float64, len(candles)),
	}
	for i, c := range candles {
		series.Closes[i] = c.Close
		series.Volumes[i] = c.Volume
		series.Highs[i] = c.High
		series.Lows[i] = c.Low
	}
	return series
}

// sweepExpired deactivates signals whose TTL has elapsed
func (s *Scanner) sweepExpired() {
	res := s.db.Model(&models.Signal{}).
		Where("is_active = ? AND expires_at <= ?", true, time.Now()).
		Update("is_active", false)
	if res.Error != nil {
		log.Printf("[scanner] expiry sweep: %v", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		s.metrics.SignalsExpired.Add(float64(res.RowsAffected))
		log.Printf("[scanner] expired %d signals", res.RowsAffected)
	}
}
