package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"ccsa/internal/model"

	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// InitDB открывает файл SQLite (pure-Go драйвер modernc) и мигрирует
// учётные записи. Одно соединение: запись сериализуется, а транзакция
// блокирует остальных внутри процесса.
func InitDB(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// журнал остаётся rollback (не WAL): снимок копирует один файл db.sqlite3
	dial := gormsqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path + "?_pragma=busy_timeout(5000)",
	}
	db, err := gorm.Open(dial, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&model.User{}); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return db, nil
}

// Close закрывает пул соединений.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Freeze выполняет fn внутри транзакции. Пока fn работает, другие
// запросы процесса ждут единственного соединения, и файл БД не меняется.
func Freeze(db *gorm.DB) func(ctx context.Context, fn func() error) error {
	return func(ctx context.Context, fn func() error) error {
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// транзакция в SQLite ленивая: берём SHARED-блокировку чтением
			var n int64
			if err := tx.Raw("SELECT count(*) FROM sqlite_master").Scan(&n).Error; err != nil {
				return err
			}
			return fn()
		})
	}
}
