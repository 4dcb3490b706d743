// Package marketdata persists scanned OHLCV history to MongoDB for
// offline analysis. The archive is optional: a nil *Archive is a valid
// no-op receiver, so callers never branch on whether it is configured.
package marketdata

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"coinsignals/services/exchange"
)

const (
	databaseName      = "coinsignals"
	candlesCollection = "candles"

	connectTimeout = 10 * time.Second
)

// CandleDocument is one per-pair archive document, replaced wholesale on
// every refresh so the archive always reflects the latest scan window.
type CandleDocument struct {
	ID        string            `bson:"_id"` // "exchange:pair"
	Exchange  string            `bson:"exchange"`
	Pair      string            `bson:"pair"`
	UpdatedAt time.Time         `bson:"updated_at"`
	Count     int               `bson:"count"`
	Candles   []exchange.Candle `bson:"candles"`
}

// Archive writes candle snapshots to MongoDB
type Archive struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewArchive connects to MongoDB at uri. An empty uri disables archiving
// and returns a nil archive, which every method tolerates.
func NewArchive(ctx context.Context, uri string) (*Archive, error) {
	if uri == "" {
		log.Println("[marketdata] mongo uri not set, candle archive disabled")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	log.Println("[marketdata] candle archive connected")
	return &Archive{
		client:     client,
		collection: client.Database(databaseName).Collection(candlesCollection),
	}, nil
}

// StoreCandles upserts the latest candle window for one pair
func (a *Archive) StoreCandles(ctx context.Context, exchangeName, pair string, candles []exchange.Candle) error {
	if a == nil {
		return nil
	}

	doc := CandleDocument{
		ID:        exchangeName + ":" + pair,
		Exchange:  exchangeName,
		Pair:      pair,
		UpdatedAt: time.Now(),
		Count:     len(candles),
		Candles:   candles,
	}

	_, err := a.collection.ReplaceOne(ctx,
		bson.M{"_id": doc.ID},
		doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("archive candles for %s: %w", doc.ID, err)
	}
	return nil
}

// Close disconnects from MongoDB
func (a *Archive) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	return a.client.Disconnect(ctx)
}
