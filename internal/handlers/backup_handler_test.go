package handlers_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackups_StaffOnly(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodGet, "/api/admin/backups", nil, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestBackups_Lifecycle(t *testing.T) {
	e := newTestEnv(t)
	e.seedCommune(t, "Fourmies")

	rr := e.do(t, http.MethodGet, "/api/admin/backups", nil, "", e.admin)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = e.do(t, http.MethodPost, "/api/admin/backups", nil, "", e.admin)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	stored := decode[struct {
		Name string `json:"name"`
	}](t, rr)
	assert.Equal(t, "backup_20250310_120000.zip", stored.Name)

	out := e.mem.Outbox()
	require.Len(t, out, 1)
	assert.Equal(t, "[CCSA] Sauvegarde automatique réussie", out[0].Subject)

	rr = e.do(t, http.MethodGet, "/api/admin/backups", nil, "", e.admin)
	list := decode[[]struct {
		Name      string `json:"name"`
		SizeHuman string `json:"size_human"`
	}](t, rr)
	require.Len(t, list, 1)
	assert.Equal(t, stored.Name, list[0].Name)

	rr = e.do(t, http.MethodGet, "/api/admin/backups/"+stored.Name, nil, "", e.admin)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/zip", rr.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "PK"))

	rr = e.do(t, http.MethodDelete, "/api/admin/backups/"+stored.Name, nil, "", e.admin)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = e.do(t, http.MethodDelete, "/api/admin/backups/"+stored.Name, nil, "", e.admin)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = e.do(t, http.MethodGet, "/api/admin/backups/db.sqlite3", nil, "", e.admin)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBackups_DownloadNow(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodGet, "/api/admin/backups/download-now", nil, "", e.admin)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `attachment; filename="backup_ccsa_20250310_120000.zip"`, rr.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "PK"))

	left, err := e.backups.ListStored()
	require.NoError(t, err)
	assert.Empty(t, left)
	assert.Empty(t, e.mem.Outbox(), "download-now does not notify")
}
