// Package backup — снимки БД и media в ZIP, хранение с ротацией,
// уведомления и расписание.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"ccsa/internal/clock"
	"ccsa/internal/mailer"
	"ccsa/internal/storage"
	"ccsa/internal/validate"

	"go.uber.org/zap"
)

const (
	storedPrefix   = "backup_"
	downloadPrefix = "backup_ccsa_"

	DefaultRetention = 4
)

var (
	// ErrAlreadyRunning — плановый снимок уже выполняется.
	ErrAlreadyRunning = errors.New("backup: scheduled run already in progress")
	// ErrNotFound — архива с таким именем нет.
	ErrNotFound = errors.New("backup: archive not found")
	// ErrInvalidName — имя не похоже на архив резервной копии.
	ErrInvalidName = errors.New("backup: invalid archive name")
)

// FailedError — сбой плановой копии; уведомление об ошибке уже отправлено.
type FailedError struct {
	Cause error
}

func (e *FailedError) Error() string { return "backup failed: " + e.Cause.Error() }
func (e *FailedError) Unwrap() error { return e.Cause }

// Archive — сохранённый архив.
type Archive struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	SizeHuman string    `json:"size_human"`
	CreatedAt time.Time `json:"created_at"`
}

// Freezer выполняет fn, пока запись в БД невозможна.
type Freezer func(ctx context.Context, fn func() error) error

// SettingsSource отдаёт адрес для уведомлений (пустой — не уведомлять).
type SettingsSource interface {
	NotificationEmail(ctx context.Context) (string, error)
}

// Options — пути и параметры сервиса.
type Options struct {
	DatabasePath string
	MediaRoot    string
	BackupRoot   string
	Retention    int
	From         string
}

// Service — резервное копирование.
type Service struct {
	opts     Options
	media    *storage.Root
	store    *storage.Root
	freeze   Freezer
	sender   mailer.Sender
	settings SettingsSource
	clock    clock.Clock
	logger   *zap.SugaredLogger

	// running держит плановый запуск; TryLock отсекает наложение
	running sync.Mutex
}

func New(opts Options, freeze Freezer, sender mailer.Sender, settings SettingsSource, clk clock.Clock, logger *zap.SugaredLogger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if clk == nil {
		clk = clock.System{}
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	media, err := storage.New(opts.MediaRoot, logger)
	if err != nil {
		return nil, err
	}
	store, err := storage.New(opts.BackupRoot, logger)
	if err != nil {
		return nil, err
	}
	return &Service{
		opts:     opts,
		media:    media,
		store:    store,
		freeze:   freeze,
		sender:   sender,
		settings: settings,
		clock:    clk,
		logger:   logger,
	}, nil
}

// Dir — каталог хранимых архивов.
func (s *Service) Dir() string { return s.store.Dir() }

// SnapshotToPath собирает архив в path. При ошибке файл удаляется.
func (s *Service) SnapshotToPath(ctx context.Context, path string) (*Manifest, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	m := newManifest(s.clock.Now())
	err = s.compose(ctx, f, m)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return m, nil
}

func (s *Service) compose(ctx context.Context, f *os.File, m *Manifest) error {
	run := func() error {
		return writeArchive(ctx, f, s.opts.DatabasePath, s.media, m)
	}
	if s.freeze == nil {
		return run()
	}
	return s.freeze(ctx, run)
}

// Store создаёт backup_<ts>.zip в каталоге архивов: сначала .part, потом rename.
func (s *Service) Store(ctx context.Context) (string, error) {
	tmp, err := os.CreateTemp(s.store.Dir(), ".backup-*.part")
	if err != nil {
		return "", fmt.Errorf("create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()

	m, err := s.SnapshotToPath(ctx, tmpPath)
	if err != nil {
		return "", err
	}
	name := storedPrefix + m.Timestamp + ".zip"
	if err := os.Rename(tmpPath, filepath.Join(s.store.Dir(), name)); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("publish archive: %w", err)
	}
	s.logger.Infow("Backup: archive stored", "name", name)
	return name, nil
}

// SnapshotTemp собирает архив «скачать сейчас» во временный файл.
// Вызывающий удаляет файл после отдачи.
func (s *Service) SnapshotTemp(ctx context.Context) (path, filename string, err error) {
	tmp, err := os.CreateTemp("", "ccsa-backup-*.zip")
	if err != nil {
		return "", "", fmt.Errorf("create temp archive: %w", err)
	}
	path = tmp.Name()
	_ = tmp.Close()

	m, err := s.SnapshotToPath(ctx, path)
	if err != nil {
		return "", "", err
	}
	return path, downloadPrefix + m.Timestamp + ".zip", nil
}

// ListStored — архивы от новых к старым по mtime.
func (s *Service) ListStored() ([]Archive, error) {
	entries, err := os.ReadDir(s.store.Dir())
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}
	var out []Archive
	for _, e := range entries {
		if e.IsDir() || !isArchiveName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Archive{
			Name:      e.Name(),
			Size:      info.Size(),
			SizeHuman: validate.HumanSize(info.Size()),
			CreatedAt: info.ModTime(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

// PruneOldest оставляет n самых свежих архивов и возвращает имена удалённых.
func (s *Service) PruneOldest(n int) ([]string, error) {
	if n < 0 {
		n = 0
	}
	archives, err := s.ListStored()
	if err != nil {
		return nil, err
	}
	if len(archives) <= n {
		return nil, nil
	}
	var deleted []string
	for _, a := range archives[n:] {
		if _, err := s.store.Remove(a.Name); err != nil {
			return deleted, fmt.Errorf("remove %s: %w", a.Name, err)
		}
		deleted = append(deleted, a.Name)
	}
	s.logger.Infow("Backup: old archives pruned", "deleted", deleted)
	return deleted, nil
}

// Open открывает сохранённый архив по имени.
func (s *Service) Open(name string) (*os.File, error) {
	if !isArchiveName(name) {
		return nil, ErrInvalidName
	}
	f, err := s.store.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Remove удаляет сохранённый архив по имени.
func (s *Service) Remove(name string) error {
	if !isArchiveName(name) {
		return ErrInvalidName
	}
	outcome, err := s.store.Remove(name)
	if err != nil {
		return err
	}
	if outcome == storage.AlreadyAbsent {
		return ErrNotFound
	}
	s.logger.Infow("Backup: archive deleted", "name", name)
	return nil
}

// RunResult — итог планового запуска.
type RunResult struct {
	Name    string
	Deleted []string
}

// RunScheduled: архив → ротация → уведомление. При ошибке отправляет
// уведомление о сбое и возвращает *FailedError.
func (s *Service) RunScheduled(ctx context.Context) (*RunResult, error) {
	if !s.running.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer s.running.Unlock()

	start := time.Now()
	res, err := s.run(ctx)
	backupDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		backupRunsTotal.WithLabelValues(resultFailure).Inc()
		s.logger.Errorw("Backup: scheduled run failed", "error", err)
		s.notify(ctx, false, "", err)
		return nil, &FailedError{Cause: err}
	}
	backupRunsTotal.WithLabelValues(resultSuccess).Inc()
	backupLastSuccess.Set(float64(s.clock.Now().Unix()))
	s.logger.Infow("Backup: scheduled run finished", "name", res.Name, "pruned", len(res.Deleted))
	s.notify(ctx, true, res.Name, nil)
	return res, nil
}

func (s *Service) run(ctx context.Context) (*RunResult, error) {
	name, err := s.Store(ctx)
	if err != nil {
		return nil, err
	}
	deleted, err := s.PruneOldest(s.opts.Retention)
	if err != nil {
		return nil, err
	}
	return &RunResult{Name: name, Deleted: deleted}, nil
}
