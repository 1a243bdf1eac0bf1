package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ccsa/internal/storage"

	"github.com/klauspost/compress/zip"
)

// Члены архива.
const (
	dbMember       = "db/db.sqlite3"
	mediaPrefix    = "media/"
	manifestMember = "manifest.json"

	TimestampLayout = "20060102_150405"
)

// Manifest — описание снимка внутри архива.
type Manifest struct {
	CreatedAt string `json:"created_at"`
	Timestamp string `json:"timestamp"`
	Database  string `json:"database"`
	MediaPath string `json:"media_path"`
}

func newManifest(now time.Time) *Manifest {
	now = now.UTC()
	return &Manifest{
		CreatedAt: now.Format(time.RFC3339Nano),
		Timestamp: now.Format(TimestampLayout),
		Database:  "db.sqlite3",
		MediaPath: mediaPrefix,
	}
}

// writeArchive пишет БД, media и манифест в w.
func writeArchive(ctx context.Context, w io.Writer, dbPath string, media *storage.Root, m *Manifest) error {
	zw := zip.NewWriter(w)

	if info, err := os.Stat(dbPath); err == nil && info.Mode().IsRegular() {
		if err := addFile(zw, dbMember, dbPath, info); err != nil {
			return err
		}
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat database: %w", err)
	}

	if media != nil {
		err := media.Walk(func(rel string, info fs.FileInfo) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return addFile(zw, mediaPrefix+rel, filepath.Join(media.Dir(), filepath.FromSlash(rel)), info)
		})
		if err != nil {
			return fmt.Errorf("archive media: %w", err)
		}
	}

	body, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	created, _ := time.Parse(time.RFC3339Nano, m.CreatedAt)
	mw, err := zw.CreateHeader(&zip.FileHeader{Name: manifestMember, Method: zip.Deflate, Modified: created})
	if err != nil {
		return err
	}
	if _, err := mw.Write(body); err != nil {
		return err
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, name, path string, info fs.FileInfo) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("compress %s: %w", name, err)
	}
	return nil
}

// Restore распаковывает архив в dest (db/, media/, manifest.json).
// Члены с путями за пределами dest отклоняются целиком.
func Restore(archivePath, dest string) (*Manifest, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	root, err := storage.New(dest, nil)
	if err != nil {
		return nil, err
	}

	var manifest *Manifest
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		target, err := root.Resolve(filepath.FromSlash(f.Name))
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", f.Name, err)
		}
		if err := extract(f, target); err != nil {
			return nil, err
		}
		if f.Name == manifestMember {
			manifest, err = readManifest(target)
			if err != nil {
				return nil, err
			}
		}
	}
	if manifest == nil {
		return nil, errors.New("archive has no manifest.json")
	}
	return manifest, nil
}

func extract(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("open member %s: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return dst.Close()
}

func readManifest(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// isArchiveName: только имя файла backup_*.zip, без каталогов.
func isArchiveName(name string) bool {
	return name != "" &&
		name == filepath.Base(name) &&
		!strings.ContainsAny(name, `/\`) &&
		strings.HasPrefix(name, storedPrefix) &&
		strings.HasSuffix(name, ".zip")
}
