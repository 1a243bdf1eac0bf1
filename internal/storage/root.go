// Package storage — корень медиафайлов (StorageRoot) и безопасные операции
// над файлами вложений. Ни одна операция не выходит за пределы корня.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrPathTraversal — путь после нормализации указывает за пределы корня.
	ErrPathTraversal = errors.New("path outside storage root")
	// ErrTooLarge — содержимое превысило допустимый размер при записи.
	ErrTooLarge = errors.New("file too large")
)

// RemoveOutcome — результат безопасного удаления.
type RemoveOutcome int

const (
	Removed RemoveOutcome = iota
	AlreadyAbsent
	Refused
)

func (o RemoveOutcome) String() string {
	switch o {
	case Removed:
		return "removed"
	case AlreadyAbsent:
		return "already-absent"
	default:
		return "refused"
	}
}

// Root — типизированный дескриптор каталога media.
type Root struct {
	// dir — канонический абсолютный путь (symlinks раскрыты)
	dir    string
	logger *zap.SugaredLogger
}

// New создаёт каталог при необходимости и нормализует его путь.
func New(dir string, logger *zap.SugaredLogger) (*Root, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", dir, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("abs storage root: %w", err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	return &Root{dir: canon, logger: logger}, nil
}

// Dir возвращает канонический путь корня.
func (r *Root) Dir() string { return r.dir }

// canonical раскрывает symlinks самого глубокого существующего предка,
// чтобы путь к ещё не созданному файлу тоже можно было проверить.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	parent := filepath.Dir(abs)
	if parent == abs {
		return abs, nil
	}
	cp, err := canonical(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(cp, filepath.Base(abs)), nil
}

// Resolve превращает путь (относительный к корню или абсолютный) в
// канонический абсолютный. Путь вне корня, как и сам корень, отклоняется.
func (r *Root) Resolve(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrPathTraversal)
	}
	candidate := p
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(r.dir, candidate)
	}
	canon, err := canonical(candidate)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	if !r.contains(canon) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, p)
	}
	return canon, nil
}

func (r *Root) contains(canon string) bool {
	rel, err := filepath.Rel(r.dir, canon)
	if err != nil || rel == "." {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return false
	}
	return true
}

// Rel возвращает путь относительно корня в формате с прямыми слэшами.
func (r *Root) Rel(canon string) (string, error) {
	rel, err := filepath.Rel(r.dir, canon)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Save записывает поток в subdir под сгенерированным уникальным именем.
// Паттерн: temp файл → запись → fsync → атомарный rename. Возвращает
// путь относительно корня и число записанных байт.
func (r *Root) Save(subdir, originalName string, src io.Reader, maxSize int64) (string, int64, error) {
	dir, err := r.Resolve(subdir)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", 0, fmt.Errorf("create dir %s: %w", subdir, err)
	}

	fullPath := filepath.Join(dir, generateStorageName(originalName))
	tmp, err := os.CreateTemp(dir, ".upload-*.tmp")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	reader := src
	if maxSize > 0 {
		reader = io.LimitReader(src, maxSize+1)
	}
	size, err := io.Copy(tmp, reader)
	if err == nil && maxSize > 0 && size > maxSize {
		err = ErrTooLarge
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, fmt.Errorf("write %s: %w", originalName, err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, fmt.Errorf("rename upload: %w", err)
	}

	rel, err := r.Rel(fullPath)
	if err != nil {
		return "", 0, err
	}
	return rel, size, nil
}

// Remove удаляет файл, только если его канонический путь лежит внутри корня.
// Отказ логируется и возвращается как ErrPathTraversal вместе с Refused;
// отсутствующий файл — AlreadyAbsent без ошибки.
func (r *Root) Remove(p string) (RemoveOutcome, error) {
	canon, err := r.Resolve(p)
	if err != nil {
		if errors.Is(err, ErrPathTraversal) {
			r.logger.Errorw("Storage: refused removal outside root", "path", p, "root", r.dir)
			return Refused, err
		}
		return Refused, err
	}

	info, err := os.Lstat(canon)
	if errors.Is(err, fs.ErrNotExist) {
		return AlreadyAbsent, nil
	}
	if err != nil {
		return Refused, fmt.Errorf("stat %s: %w", p, err)
	}
	if info.IsDir() {
		r.logger.Errorw("Storage: refused removal of directory", "path", p)
		return Refused, fmt.Errorf("%s is a directory", p)
	}

	if err := os.Remove(canon); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return AlreadyAbsent, nil
		}
		return Refused, fmt.Errorf("remove %s: %w", p, err)
	}
	return Removed, nil
}

// Exists сообщает, существует ли файл внутри корня.
func (r *Root) Exists(p string) bool {
	canon, err := r.Resolve(p)
	if err != nil {
		return false
	}
	info, err := os.Stat(canon)
	return err == nil && !info.IsDir()
}

// Open открывает файл вложения для чтения.
func (r *Root) Open(p string) (*os.File, error) {
	canon, err := r.Resolve(p)
	if err != nil {
		return nil, err
	}
	return os.Open(canon)
}

// Walk обходит все обычные файлы под корнем. rel передаётся со слэшами.
// Временные файлы незавершённых загрузок пропускаются.
func (r *Root) Walk(fn func(rel string, info fs.FileInfo) error) error {
	return filepath.WalkDir(r.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := r.Rel(path)
		if err != nil {
			return err
		}
		return fn(rel, info)
	})
}

// generateStorageName генерирует имя файла для хранения на диске.
// Формат: {name}_{uuid8}{ext}, например portrait_a1b2c3d4.jpg
func generateStorageName(originalName string) string {
	base := filepath.Base(filepath.ToSlash(originalName))
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	ext := strings.ToLower(filepath.Ext(base))
	name := sanitize(strings.TrimSuffix(base, filepath.Ext(base)))
	if len(name) > 50 {
		name = name[:50]
	}
	if name == "" {
		name = "file"
	}
	ext = sanitize(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return name + "_" + uuid.New().String()[:8] + ext
}

// sanitize оставляет только ASCII буквы, цифры, '-', '_' и '.'.
func sanitize(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch {
		case c < unicode.MaxASCII && (unicode.IsLetter(c) || unicode.IsDigit(c)):
			b.WriteRune(c)
		case c == '-' || c == '_' || c == '.':
			b.WriteRune(c)
		case c == ' ':
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), ".")
}
