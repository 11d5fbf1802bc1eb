package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/jonathan/contract-signer/internal/config"
	"github.com/jonathan/contract-signer/internal/db"
	"github.com/jonathan/contract-signer/internal/document"
	"github.com/jonathan/contract-signer/internal/events"
	"github.com/jonathan/contract-signer/internal/lock"
	"github.com/jonathan/contract-signer/internal/logging"
	"github.com/jonathan/contract-signer/internal/pdf"
	"github.com/jonathan/contract-signer/internal/signature"
	"github.com/jonathan/contract-signer/internal/signing"
	"github.com/jonathan/contract-signer/internal/storage"
	"github.com/jonathan/contract-signer/internal/templates"
	"go.uber.org/zap"
)

// contractStore is what both the Postgres and in-memory stores provide.
type contractStore interface {
	signing.ContractStore
	templates.Store
}

// app holds the collaborators built from a Config. close releases them in reverse order.
type app struct {
	cfg       *config.Config
	log       *zap.SugaredLogger
	store     contractStore
	pipeline  *document.Pipeline
	archive   storage.Archive
	locker    lock.Locker
	publisher events.Publisher
	closers   []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.log.Sync()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.SugaredLogger, error) {
	isJSON := cfg.LogFormat == "json"
	log, err := logging.NewLogger(cfg.LogLevel, isJSON, isJSON, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return log, nil
}

// templateFiles returns the built-in templates, or TemplatesDir when it is set.
func templateFiles(cfg *config.Config) fs.FS {
	if cfg.TemplatesDir != "" {
		return os.DirFS(cfg.TemplatesDir)
	}
	return templates.BuiltinFS()
}

// newPipeline builds the document pipeline around store. store may be nil.
func newPipeline(cfg *config.Config, store templates.Store, log *zap.SugaredLogger) *document.Pipeline {
	resolver := templates.NewResolver(store, templateFiles(cfg), log)
	renderer := pdf.NewChromeRenderer(pdf.ChromeConfig{
		RemoteURL: cfg.ChromeURL,
		ExecPath:  cfg.ChromePath,
		Timeout:   time.Duration(cfg.RenderTimeoutSeconds) * time.Second,
	}, log)
	return document.NewPipeline(resolver, signature.NewComposer(), renderer, log,
		document.WithClauseStart(cfg.ClauseNumber()))
}

// buildApp connects every configured backend. Unconfigured backends fall back to their
// in-process versions: memory store, memory archive, local lock and log publisher.
func buildApp(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*app, error) {
	a := &app{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, database.Close)
		if err := database.Migrate(ctx); err != nil {
			return nil, err
		}
		a.store = database
	} else {
		log.Warn("DATABASE_URL not set, contracts are kept in memory")
		a.store = db.NewMemoryStore()
	}

	if cfg.Minio.Endpoint != "" {
		archive, err := storage.NewMinioArchive(storage.MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		a.archive = archive
	} else {
		a.archive = storage.NewMemoryArchive()
	}

	if cfg.RedisURL != "" {
		client, err := lock.Connect(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.locker = lock.NewRedis(client, 0, 0)
	} else {
		a.locker = lock.NewLocal()
	}

	if len(cfg.Kafka.Brokers) > 0 {
		topics := make(map[events.Type]string, len(cfg.Kafka.Topics))
		for t, topic := range cfg.Kafka.Topics {
			topics[events.Type(t)] = topic
		}
		publisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, topics)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = publisher.Close() })
		a.publisher = publisher
	} else {
		a.publisher = events.NewLogPublisher(log)
	}

	a.pipeline = newPipeline(cfg, a.store, log)
	ok = true
	return a, nil
}
