// Package bootstrap собирает компоненты сайта из конфигурации. Используется
// сервером и ccsactl.
package bootstrap

import (
	"context"
	"fmt"

	"ccsa/internal/backup"
	"ccsa/internal/clock"
	"ccsa/internal/config"
	"ccsa/internal/contact"
	"ccsa/internal/kernel"
	"ccsa/internal/mailer"
	"ccsa/internal/repo"
	"ccsa/internal/resources"
	"ccsa/internal/service"
	"ccsa/internal/storage"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App — собранные компоненты.
type App struct {
	DB      *gorm.DB
	Kernel  *kernel.Kernel
	Users   *service.UserService
	Site    *service.Site
	Mailer  mailer.Sender
	Contact *contact.Pipeline
	Backups *backup.Service
}

// Open открывает БД, регистрирует каталог ресурсов (миграция таблиц)
// и собирает сервисы. cleanup закрывает соединение с БД.
func Open(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *zap.SugaredLogger) (*App, func() error, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if clk == nil {
		clk = clock.System{}
	}

	db, err := repo.InitDB(cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error { return repo.Close(db) }
	fail := func(err error) (*App, func() error, error) {
		_ = cleanup()
		return nil, nil, err
	}

	root, err := storage.New(cfg.MediaRoot, logger)
	if err != nil {
		return fail(fmt.Errorf("media root: %w", err))
	}
	k := kernel.New(repo.NewRecordStore(db), root, clk, logger, cfg.MaxUploadSize)
	if err := resources.Register(ctx, k, clk); err != nil {
		return fail(fmt.Errorf("register resources: %w", err))
	}

	sender, err := mailer.New(cfg, logger)
	if err != nil {
		return fail(err)
	}

	pipeline := contact.NewPipeline(sender, contact.KernelRecipients{K: k}, nil, contact.Options{
		PrimaryEmail: cfg.ContactPrimaryEmail,
		PLUiEmail:    cfg.PLUiRecipientEmail,
		NoReplyEmail: cfg.DefaultFromEmail,
		Testing:      cfg.Testing,
	}, clk, logger)

	backups, err := backup.New(backup.Options{
		DatabasePath: cfg.DatabasePath,
		MediaRoot:    cfg.MediaRoot,
		BackupRoot:   cfg.BackupRoot,
		Retention:    cfg.BackupRetention,
		From:         cfg.DefaultFromEmail,
	}, repo.Freeze(db), sender, backup.KernelSettings{K: k}, clk, logger)
	if err != nil {
		return fail(fmt.Errorf("backup service: %w", err))
	}

	return &App{
		DB:      db,
		Kernel:  k,
		Users:   service.NewUserService(repo.NewUserRepository(db), clk),
		Site:    service.NewSite(k, clk, logger),
		Mailer:  sender,
		Contact: pipeline,
		Backups: backups,
	}, cleanup, nil
}
