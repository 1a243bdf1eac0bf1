package handlers

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"ccsa/internal/backup"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const msgBackupFailed = "La sauvegarde a échoué. Consultez les journaux du serveur."

// BackupHandler — управление резервными копиями (только staff).
type BackupHandler struct {
	backups *backup.Service
	logger  *zap.SugaredLogger
}

func NewBackupHandler(b *backup.Service, logger *zap.SugaredLogger) *BackupHandler {
	return &BackupHandler{backups: b, logger: logger}
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	archives, err := h.backups.ListStored()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if archives == nil {
		archives = []backup.Archive{}
	}
	writeJSON(w, http.StatusOK, archives)
}

// Store — ручной запуск: архив, ротация и уведомление, как у планировщика.
func (h *BackupHandler) Store(w http.ResponseWriter, r *http.Request) {
	res, err := h.backups.RunScheduled(r.Context())
	var failed *backup.FailedError
	switch {
	case err == nil:
		deleted := res.Deleted
		if deleted == nil {
			deleted = []string{}
		}
		writeJSON(w, http.StatusCreated, map[string]any{"name": res.Name, "deleted": deleted})
	case errors.Is(err, backup.ErrAlreadyRunning):
		writeMessage(w, http.StatusConflict, "Une sauvegarde est déjà en cours.")
	case errors.As(err, &failed):
		writeMessage(w, http.StatusInternalServerError, msgBackupFailed)
	default:
		writeError(w, r, h.logger, err)
	}
}

// DownloadNow собирает архив во временный файл, отдаёт и удаляет его.
func (h *BackupHandler) DownloadNow(w http.ResponseWriter, r *http.Request) {
	path, filename, err := h.backups.SnapshotTemp(r.Context())
	if err != nil {
		h.logger.Errorw("Backup: download-now failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, msgBackupFailed)
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			h.logger.Warnw("Backup: temp archive not removed", "path", path, "error", err)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer f.Close()
	h.sendArchive(w, f, filename)
}

func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	f, err := h.backups.Open(name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer f.Close()
	h.sendArchive(w, f, name)
}

func (h *BackupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.backups.Remove(chi.URLParam(r, "name")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BackupHandler) sendArchive(w http.ResponseWriter, f *os.File, filename string) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if info, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warnw("Backup: archive transfer interrupted", "name", filename, "error", err)
	}
}
