// Package commands — операционные команды ccsactl.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"ccsa/internal/bootstrap"
	"ccsa/internal/clock"
	"ccsa/internal/config"

	"go.uber.org/zap"
)

// ErrUsage — неверные аргументы; Dispatch печатает Usage и возвращает 2.
var ErrUsage = errors.New("usage")

// Command — подкоманда ccsactl (create_backup, grant, scan_orphans...).
type Command interface {
	Name() string
	// Description — строка для общей справки, по-французски.
	Description() string
	Usage() string
	// Run получает аргументы после имени команды.
	Run(ctx context.Context, cfg *config.Config, args []string) error
}

var registry = map[string]Command{}

// Out — куда команды пишут результат; тесты подменяют на буфер.
var Out io.Writer = os.Stdout

// Logger передаётся собираемым компонентам; main подставляет свой.
var Logger = zap.NewNop().Sugar()

// Clock — часы компонентов; тесты подставляют clock.Fixed.
var Clock clock.Clock = clock.System{}

// RegisterCmd регистрирует команду; вызывается из init() файла команды.
func RegisterCmd(cmd Command) {
	registry[cmd.Name()] = cmd
}

func Get(name string) (Command, bool) {
	c, ok := registry[name]
	return c, ok
}

// List — команды по алфавиту.
func List() []Command {
	list := make([]Command, 0, len(registry))
	for _, c := range registry {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// FormatGlobalUsage — общая справка ccsactl.
func FormatGlobalUsage() string {
	lines := []string{
		"CCSA — outils d'exploitation",
		"",
		"Usage:",
		"  ccsactl [-data <dir>] <command> [args]",
		"",
		"Commands:",
	}
	for _, c := range List() {
		lines = append(lines, fmt.Sprintf("  %-40s %s", c.Usage(), c.Description()))
	}
	return strings.Join(lines, "\n") + "\n"
}

// withApp открывает компоненты сайта на время fn.
func withApp(ctx context.Context, cfg *config.Config, fn func(app *bootstrap.App) error) error {
	app, done, err := bootstrap.Open(ctx, cfg, Clock, Logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := done(); cerr != nil {
			Logger.Warnw("CLI: database close failed", "error", cerr)
		}
	}()
	return fn(app)
}
