// Package server wires the storage core together: configuration,
// logging, the metadata repositories, the blob backend, the compression
// and versioning engines, and the file manager on top. It also owns
// graceful shutdown and the session cleanup sweeper.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mbelovs/contractvault/internal/logging"
	"github.com/mbelovs/contractvault/internal/server/blobstore"
	"github.com/mbelovs/contractvault/internal/server/compression"
	"github.com/mbelovs/contractvault/internal/server/config"
	"github.com/mbelovs/contractvault/internal/server/filemanager"
	"github.com/mbelovs/contractvault/internal/server/repositories/repomanager"
	"github.com/mbelovs/contractvault/internal/server/versioning"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	repos   repomanager.RepositoryManager
	manager *filemanager.Manager
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	repos, err := repomanager.NewPostgresRepositoryManager(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	blobs, err := newBlobStore(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	engine, err := compression.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("compression init error: %w", err)
	}

	vs := versioning.NewService(repos.Versions(), repos.Branches(), blobs, logger, c.MaxVersionsPerFile)
	manager := filemanager.NewManager(repos.Files(), vs, blobs, engine, filemanager.OwnerPermissions{}, logger, filemanager.Options{
		MaxFileSize:         c.MaxFileSize,
		DefaultChunkSize:    c.DefaultChunkSize,
		ChunkSessionTimeout: c.ChunkSessionTimeout,
	})

	return &App{config: c, logger: logger, repos: repos, manager: manager}, nil
}

// Manager exposes the file manager to the embedding API layer.
func (app *App) Manager() *filemanager.Manager {
	return app.manager
}

func newBlobStore(ctx context.Context, c *config.Config) (blobstore.Store, error) {
	switch c.StorageBackend {
	case "s3":
		return blobstore.NewS3(ctx, blobstore.S3Config{
			User:         c.S3RootUser,
			Password:     c.S3RootPassword,
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
		})
	case "local", "":
		return blobstore.NewLocal(c.BasePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.manager.StartCleanup(ctx, app.config.CleanupInterval)
	}()

	wg.Wait()

	if err := app.repos.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
