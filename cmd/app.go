package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/camden-git/faceattend/config"
	"github.com/camden-git/faceattend/database"
	"github.com/camden-git/faceattend/media"
	"github.com/camden-git/faceattend/recognition"
	"github.com/camden-git/faceattend/services"
	"github.com/camden-git/faceattend/utils"
)

// app holds what every command needs: configuration, storage and the
// dataset directory.
type app struct {
	cfg       config.Config
	db        *database.DB
	store     *services.Store
	snapshots *utils.SnapshotStore
}

func openApp() (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.DatabaseDriver == database.DriverSQLite && cfg.DatabaseURL == "" {
		if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
	}

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseDSN(), database.GormOptions{LogLevel: cfg.GormLogLevel})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	snapshots, err := utils.NewSnapshotStore(cfg.DatasetPath)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{cfg: cfg, db: db, store: services.NewStore(db.Gorm), snapshots: snapshots}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		log.Printf("Warning: failed to close database: %v", err)
	}
}

func (a *app) loadGallery(ctx context.Context) (*recognition.Gallery, error) {
	gallery, err := recognition.LoadGallery(ctx, a.store)
	if err != nil {
		return nil, fmt.Errorf("failed to load enrolled students: %w", err)
	}
	return gallery, nil
}

func (a *app) students(gallery *recognition.Gallery) *services.StudentService {
	return &services.StudentService{Store: a.store, Gallery: gallery, Snapshots: a.snapshots}
}

func (a *app) enrollment(gallery *recognition.Gallery, extractor recognition.Extractor) *services.EnrollmentService {
	return &services.EnrollmentService{
		Gallery:   gallery,
		Extractor: extractor,
		Decode:    media.Decoder,
		Store:     a.store,
		Snapshots: a.snapshots,
	}
}
