package handlers_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublic_HomeAndCommune(t *testing.T) {
	e := newTestEnv(t)
	e.seedCommune(t, "Fourmies")
	e.seedCommune(t, "Anor")

	rr := e.do(t, http.MethodGet, "/api/home", nil, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	home := decode[struct {
		Communes    int   `json:"nb_communes"`
		Inhabitants int64 `json:"nb_habitants"`
	}](t, rr)
	assert.Equal(t, 2, home.Communes)
	assert.Equal(t, int64(2400), home.Inhabitants)

	rr = e.do(t, http.MethodGet, "/api/communes/fourmies", nil, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[struct {
		Commune struct {
			Fields map[string]any `json:"fields"`
		} `json:"commune"`
		LocalAct any `json:"local_act"`
	}](t, rr)
	assert.Equal(t, "Fourmies", page.Commune.Fields["city_name"])
	assert.Nil(t, page.LocalAct)

	rr = e.do(t, http.MethodGet, "/api/communes/lille", nil, "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "Page introuvable.")
}

func TestPublic_JournalPageClamped(t *testing.T) {
	e := newTestEnv(t)
	for _, q := range []string{"", "?page=abc", "?page=99"} {
		rr := e.do(t, http.MethodGet, "/api/journal"+q, nil, "", nil)
		require.Equal(t, http.StatusOK, rr.Code, q)
		page := decode[struct {
			Number   int `json:"number"`
			NumPages int `json:"num_pages"`
		}](t, rr)
		assert.Equal(t, 1, page.Number, q)
		assert.Equal(t, 1, page.NumPages, q)
	}
}

func TestPublic_CalendarMissing(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodGet, "/api/calendrier", nil, "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPublic_Sitemap(t *testing.T) {
	e := newTestEnv(t)
	e.seedCommune(t, "Fourmies")

	rr := e.do(t, http.MethodGet, "/sitemap.xml", nil, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "application/xml"))
	body := rr.Body.String()
	assert.Contains(t, body, "<loc>https://www.cc-sudavesnois.fr/</loc>")
	assert.Contains(t, body, "<loc>https://www.cc-sudavesnois.fr/fourmies/</loc>")
	assert.Contains(t, body, "<priority>0.7</priority>")
}

func TestPublic_DisallowedHost(t *testing.T) {
	e := newTestEnv(t)
	req, _ := http.NewRequest(http.MethodGet, "http://evil.test/api/home", nil)
	rr := serve(e, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPublic_UnknownRoute(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodGet, "/api/inconnu/x/y", nil, "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPublic_MediaOnlyInDebug(t *testing.T) {
	e := newTestEnv(t)
	rec := e.seedCommune(t, "Fourmies")
	rr := e.do(t, http.MethodGet, "/media/"+rec.Attachment("image"), nil, "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetrics_RequiresStaffOrScrapeToken(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodGet, "/metrics", nil, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer mauvais-jeton")
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)

	req, _ = http.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer "+testMetricsToken)
	rr = serve(e, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "# TYPE")

	rr = e.do(t, http.MethodGet, "/metrics", nil, "", e.admin)
	assert.Equal(t, http.StatusOK, rr.Code)
}
