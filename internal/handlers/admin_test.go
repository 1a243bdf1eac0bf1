package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ccsa/internal/middleware"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mutation struct {
	Record struct {
		ID          int64             `json:"id"`
		Fields      map[string]any    `json:"fields"`
		Attachments map[string]string `json:"attachments"`
	} `json:"record"`
	MissingFiles []string `json:"missing_files"`
}

func TestAdmin_Access(t *testing.T) {
	e := newTestEnv(t)
	viewer := e.staff(t, "lecteur@cc-sudavesnois.fr", "commune.view")
	plain := e.staff(t, "agent@cc-sudavesnois.fr")

	rr := e.do(t, http.MethodGet, "/api/admin/commune", nil, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/admin/commune", nil, "", plain)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/admin/commune", nil, "", viewer)
	assert.Equal(t, http.StatusOK, rr.Code)

	body, ct := multipartBody(t, communeValues("Anor"), map[string][2]string{"image": {"anor.png", "png"}})
	rr = e.do(t, http.MethodPost, "/api/admin/commune", body, ct, viewer)
	assert.Equal(t, http.StatusForbidden, rr.Code, "view does not grant add")

	rr = e.do(t, http.MethodGet, "/api/admin/resources", nil, "", viewer)
	require.Equal(t, http.StatusOK, rr.Code)
	types := decode[[]struct {
		Name    string   `json:"name"`
		Actions []string `json:"actions"`
	}](t, rr)
	require.Len(t, types, 1)
	assert.Equal(t, "commune", types[0].Name)
	assert.Equal(t, []string{"view"}, types[0].Actions)

	rr = e.do(t, http.MethodGet, "/api/admin/inconnu", nil, "", e.admin)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAdmin_CommuneLifecycle(t *testing.T) {
	e := newTestEnv(t)

	body, ct := multipartBody(t, communeValues("Anor"), map[string][2]string{"image": {"anor.png", "png-1"}})
	rr := e.do(t, http.MethodPost, "/api/admin/commune", body, ct, e.admin)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[mutation](t, rr)
	assert.Equal(t, "anor", created.Record.Fields["slug"])
	oldImage := created.Record.Attachments["image"]
	require.NotEmpty(t, oldImage)
	assert.FileExists(t, filepath.Join(e.cfg.MediaRoot, filepath.FromSlash(oldImage)))
	id := itoa(created.Record.ID)

	// тот же город — нарушение уникальности
	body, ct = multipartBody(t, communeValues("Anor"), map[string][2]string{"image": {"anor2.png", "png"}})
	rr = e.do(t, http.MethodPost, "/api/admin/commune", body, ct, e.admin)
	assert.Equal(t, http.StatusConflict, rr.Code)

	// недопустимое расширение
	body, ct = multipartBody(t, communeValues("Féron"), map[string][2]string{"image": {"feron.exe", "MZ"}})
	rr = e.do(t, http.MethodPost, "/api/admin/commune", body, ct, e.admin)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `"image"`)

	rr = e.doJSON(t, http.MethodPut, "/api/admin/commune/"+id, map[string]any{"nb_habitants": 3300}, e.admin)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[mutation](t, rr)
	assert.EqualValues(t, 3300, updated.Record.Fields["nb_habitants"])
	assert.Equal(t, oldImage, updated.Record.Attachments["image"])

	// замена изображения удаляет старый файл
	body, ct = multipartBody(t, nil, map[string][2]string{"image": {"anor-new.png", "png-2"}})
	rr = e.do(t, http.MethodPost, "/api/admin/commune/"+id, body, ct, e.admin)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	replaced := decode[mutation](t, rr)
	assert.NotEqual(t, oldImage, replaced.Record.Attachments["image"])
	_, err := os.Stat(filepath.Join(e.cfg.MediaRoot, filepath.FromSlash(oldImage)))
	assert.True(t, os.IsNotExist(err))

	form := url.Values{"nb_habitants": {"-4"}}
	rr = e.do(t, http.MethodPut, "/api/admin/commune/"+id, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", e.admin)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/admin/commune/"+id, nil, "", e.admin)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, http.MethodDelete, "/api/admin/commune/"+id, nil, "", e.admin)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NoFileExists(t, filepath.Join(e.cfg.MediaRoot, filepath.FromSlash(replaced.Record.Attachments["image"])))

	rr = e.do(t, http.MethodGet, "/api/admin/commune/"+id, nil, "", e.admin)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = e.do(t, http.MethodDelete, "/api/admin/commune/"+id, nil, "", e.admin)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = e.do(t, http.MethodGet, "/api/admin/commune/abc", nil, "", e.admin)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAdmin_SingletonAndRecipients(t *testing.T) {
	e := newTestEnv(t)

	rr := e.doJSON(t, http.MethodPost, "/api/admin/contact_recipient", map[string]any{
		"email": "equipe@cc-sudavesnois.fr", "is_active": true,
	}, e.admin)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = e.doJSON(t, http.MethodPost, "/api/contact", contactJSON(), nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	out := e.mem.Outbox()
	require.NotEmpty(t, out)
	assert.Equal(t, []string{"contact@cc-sudavesnois.fr", "equipe@cc-sudavesnois.fr"}, out[0].To)

	for _, email := range []string{"a@cc-sudavesnois.fr", "b@cc-sudavesnois.fr"} {
		rr = e.doJSON(t, http.MethodPost, "/api/admin/backup_settings", map[string]any{"notification_email": email}, e.admin)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}
	rr = e.do(t, http.MethodGet, "/api/admin/backup_settings", nil, "", e.admin)
	page := decode[struct {
		Total int64 `json:"total"`
	}](t, rr)
	assert.Equal(t, int64(1), page.Total, "singleton keeps one record")
}

func TestAdmin_Councils(t *testing.T) {
	e := newTestEnv(t)
	for _, d := range []string{"2025-03-01", "2025-03-10", "2025-04-02"} {
		rr := e.doJSON(t, http.MethodPost, "/api/admin/council", map[string]any{
			"date": d, "hour": "18:30", "place": "Salle des fêtes",
		}, e.admin)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}
	rr := e.do(t, http.MethodGet, "/api/admin/conseils", nil, "", e.admin)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[struct {
		Upcoming int64 `json:"upcoming_count"`
		Page     struct {
			Total int64 `json:"total"`
		} `json:"page"`
	}](t, rr)
	assert.Equal(t, int64(3), resp.Page.Total)
	assert.Equal(t, int64(2), resp.Upcoming)

	rr = e.do(t, http.MethodGet, "/api/conseils", nil, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	pub := decode[struct {
		Upcoming []any `json:"upcoming"`
	}](t, rr)
	assert.Len(t, pub.Upcoming, 1, "only councils from tomorrow on")
}

func TestAdmin_SessionMutationsRequireCSRFToken(t *testing.T) {
	e := newTestEnv(t)
	rec := e.seedCommune(t, "Fourmies")
	path := "/api/admin/commune/" + itoa(rec.ID)

	req := httptest.NewRequest(http.MethodDelete, path, nil)
	addAuthCookie(t, req, e.admin.ID, testSecret)
	rr := serve(e, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	req = httptest.NewRequest(http.MethodDelete, path, nil)
	addAuthCookie(t, req, e.admin.ID, testSecret)
	addCSRF(req)
	req.Header.Set(middleware.CSRFHeader, "autre-jeton")
	rr = serve(e, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = e.do(t, http.MethodGet, path, nil, "", e.admin)
	require.Equal(t, http.StatusOK, rr.Code, "record must survive rejected deletes")

	rr = e.do(t, http.MethodDelete, path, nil, "", e.admin)
	assert.Equal(t, http.StatusOK, rr.Code)
}
