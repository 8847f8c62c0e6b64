package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/lextale/config"
)

var ErrNoURI = errors.New("database.mongodb_uri is empty")

// Store is the session database: one connection pool and the database the
// session collection lives in.
type Store struct {
	client   *mongo.Client
	Database *mongo.Database
	logger   *zap.Logger
}

func clientOptions(cfg config.DatabaseConfig) *options.ClientOptions {
	opts := options.Client().
		ApplyURI(cfg.MongoURI).
		SetAppName("lextale").
		SetMinPoolSize(1).
		SetMaxConnIdleTime(30 * time.Minute)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout).
			SetServerSelectionTimeout(cfg.ConnectTimeout)
	}
	return opts
}

// Connect opens the pool described by cfg and pings the primary before
// handing it out. Sessions must not start against a database that is down.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Store, error) {
	if cfg.MongoURI == "" {
		return nil, ErrNoURI
	}
	name := cfg.Name
	if name == "" {
		name = "lextale"
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect session store: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping session store: %w", err)
	}

	logger.Info("Session store connected", zap.String("database", name))
	return &Store{
		client:   client,
		Database: client.Database(name),
		logger:   logger,
	}, nil
}

// Sessions returns the session repository backed by this store
func (s *Store) Sessions() *SessionRepository {
	return NewSessionRepository(s.Database, s.logger)
}

// Close drains the pool
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		s.logger.Error("Failed to disconnect session store", zap.Error(err))
		return err
	}
	s.logger.Info("Session store disconnected")
	return nil
}
