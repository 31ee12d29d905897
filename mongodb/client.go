// Package mongodb implements the domain repositories on MongoDB. One logical
// collection per aggregate; every cross-instance atomicity requirement rides
// on single-document operations.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

const connectTimeout = 10 * time.Second

// Connect opens an instrumented MongoDB connection and verifies it with a
// primary ping. The returned close function disconnects the client.
func Connect(ctx context.Context, uri, dbName string) (*mongo.Database, func(context.Context) error, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(connectTimeout).
		SetMonitor(otelmongo.NewMonitor())

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("ping mongodb primary: %w", err)
	}
	log.Info().Str("database", dbName).Msg("mongodb connected")
	return client.Database(dbName), client.Disconnect, nil
}
