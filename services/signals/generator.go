// Package signals turns indicator agreement on a price series into
// persisted, time-boxed trading signals.
package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"coinsignals/metrics"
	"coinsignals/models"
	"coinsignals/services/analysis"
	"coinsignals/services/cache"
	"coinsignals/services/notify"
)

// MinSeriesLength is the minimum number of closes the generator will
// evaluate; shorter series never produce a signal.
const MinSeriesLength = 50

// voteThreshold is the number of agreeing conditions a direction needs
const voteThreshold = 3

// Config carries the generator's tunables
type Config struct {
	SignalTTL     time.Duration
	MinConfidence int
	StopLossPct   float64
	TakeProfitPct float64
}

// Generator produces at most one signal per invocation. It is stateless
// with respect to existing signals; the scanner's pre-check is what
// prevents duplicates for a pair.
type Generator struct {
	db       *gorm.DB
	store    cache.Store
	notifier notify.Notifier
	metrics  *metrics.Metrics
	cfg      Config
}

// NewGenerator creates a signal generator
func NewGenerator(db *gorm.DB, store cache.Store, notifier notify.Notifier, m *metrics.Metrics, cfg Config) *Generator {
	return &Generator{db: db, store: store, notifier: notifier, metrics: m, cfg: cfg}
}

// CacheKey is the cache location of the live signal for (exchange, pair)
func CacheKey(exchange, pair string) string {
	return fmt.Sprintf("signal:%s:%s", exchange, pair)
}

// Generate evaluates the series and, when enough conditions agree,
// persists an active signal, caches it for its validity window, and
// notifies subscribers. Returns (nil, nil) when no signal is warranted.
func (g *Generator) Generate(ctx context.Context, exchange, pair string, series analysis.PriceSeries) (*models.Signal, error) {
	if len(series.Closes) < MinSeriesLength {
		return nil, nil
	}

	ind := analysis.Compute(series)
	buyVotes, sellVotes := countVotes(ind)
	direction := chooseDirection(buyVotes, sellVotes)
	if direction == "" {
		return nil, nil
	}

	confidence := analysis.ConfidenceScore(ind, direction)
	if confidence < g.cfg.MinConfidence {
		return nil, nil
	}

	entry := decimal.NewFromFloat(series.LastClose())
	stopLoss, takeProfit := g.exits(entry, direction)

	snapshot, err := json.Marshal(ind)
	if err != nil {
		return nil, fmt.Errorf("marshal indicator snapshot: %w", err)
	}

	now := time.Now()
	signal := &models.Signal{
		Exchange:   exchange,
		Pair:       pair,
		Direction:  direction,
		EntryPrice: entry,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Confidence: confidence,
		Indicators: string(snapshot),
		IsActive:   true,
		CreatedAt:  now,
		ExpiresAt:  now.Add(g.cfg.SignalTTL),
	}

	if err := g.db.Create(signal).Error; err != nil {
		return nil, fmt.Errorf("persist signal: %w", err)
	}
	g.metrics.SignalsTotal.WithLabelValues(direction).Inc()

	// Cache TTL matches the expiry window so a cached hit is always a
	// live signal.
	if err := cache.SetJSON(ctx, g.store, CacheKey(exchange, pair), signal, g.cfg.SignalTTL); err != nil {
		log.Printf("[signals] cache write for %s %s failed: %v", exchange, pair, err)
	}

	// Notification is best effort and never rolls back the signal.
	g.notifySubscribers(ctx, signal)

	return signal, nil
}

// countVotes evaluates the two independent 5-condition vote sets. Absent
// indicators simply do not vote.
func countVotes(ind analysis.IndicatorSet) (buy, sell int) {
	if ind.RSI != nil {
		if *ind.RSI < 30 {
			buy++
		}
		if *ind.RSI > 70 {
			sell++
		}
	}
	if ind.MACD != nil {
		if ind.MACD.Histogram > 0 {
			buy++
		}
		if ind.MACD.Histogram < 0 {
			sell++
		}
	}
	if ind.EMAFast != nil && ind.EMASlow != nil {
		if *ind.EMAFast > *ind.EMASlow {
			buy++
		}
		if *ind.EMAFast < *ind.EMASlow {
			sell++
		}
	}
	if ind.Volume != nil && ind.Volume.IsHigh {
		buy++
		sell++
	}
	if ind.Trend == analysis.TrendUp {
		buy++
	}
	if ind.Trend == analysis.TrendDown {
		sell++
	}
	return buy, sell
}

// chooseDirection picks the winning vote set. BUY is checked first, so
// when both sets reach the threshold with equal counts BUY wins.
func chooseDirection(buyVotes, sellVotes int) string {
	if buyVotes >= voteThreshold && buyVotes >= sellVotes {
		return models.DirectionBuy
	}
	if sellVotes >= voteThreshold {
		return models.DirectionSell
	}
	return ""
}

// exits computes stop-loss and take-profit as percentage offsets from
// entry, flipped for SELL.
func (g *Generator) exits(entry decimal.Decimal, direction string) (stopLoss, takeProfit decimal.Decimal) {
	sl := decimal.NewFromFloat(g.cfg.StopLossPct / 100)
	tp := decimal.NewFromFloat(g.cfg.TakeProfitPct / 100)
	one := decimal.NewFromInt(1)

	if direction == models.DirectionBuy {
		return entry.Mul(one.Sub(sl)), entry.Mul(one.Add(tp))
	}
	return entry.Mul(one.Add(sl)), entry.Mul(one.Sub(tp))
}

func (g *Generator) notifySubscribers(ctx context.Context, signal *models.Signal) {
	tokens, err := models.TokensForPair(g.db, signal.Exchange, signal.Pair)
	if err != nil {
		log.Printf("[signals] load tokens for %s %s: %v", signal.Exchange, signal.Pair, err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	title := fmt.Sprintf("%s %s", signal.Direction, signal.Pair)
	body := fmt.Sprintf("Entry %s, SL %s, TP %s (confidence %d%%)",
		signal.EntryPrice.StringFixed(4),
		signal.StopLoss.StringFixed(4),
		signal.TakeProfit.StringFixed(4),
		signal.Confidence,
	)
	data := map[string]string{
		"signal_id": fmt.Sprintf("%d", signal.ID),
		"exchange":  signal.Exchange,
		"pair":      signal.Pair,
		"direction": signal.Direction,
	}

	results, err := g.notifier.Send(ctx, tokens, title, body, data)
	if err != nil {
		g.metrics.NotifyFailed.Add(float64(len(tokens)))
		log.Printf("[signals] notify %s %s: %v", signal.Exchange, signal.Pair, err)
		return
	}
	for _, res := range results {
		if res.OK {
			g.metrics.NotifySent.Inc()
		} else {
			g.metrics.NotifyFailed.Inc()
			log.Printf("[signals] delivery to %s failed: %s", res.Token, res.Error)
		}
	}
}
