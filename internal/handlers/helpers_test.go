package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"ccsa/internal/authz"
	"ccsa/internal/backup"
	"ccsa/internal/clock"
	"ccsa/internal/config"
	"ccsa/internal/contact"
	"ccsa/internal/handlers"
	"ccsa/internal/kernel"
	"ccsa/internal/mailer"
	"ccsa/internal/middleware"
	"ccsa/internal/model"
	"ccsa/internal/repo"
	"ccsa/internal/resources"
	"ccsa/internal/service"
	"ccsa/internal/storage"

	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "test-secret"
	testPassword = "Sauvegarde-Vesle-42"

	testMetricsToken = "scrape-token"
)

type testEnv struct {
	router  http.Handler
	cfg     *config.Config
	k       *kernel.Kernel
	users   *service.UserService
	mem     *mailer.Memory
	clk     *clock.Fixed
	backups *backup.Service
	admin   *model.User
}

// newTestEnv собирает сервер целиком на временном каталоге.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		SiteURL:             "https://www.cc-sudavesnois.fr",
		SecretKey:           testSecret,
		AllowedHosts:        []string{"example.com"},
		DefaultFromEmail:    "CCSA <no-reply@cc-sudavesnois.fr>",
		ContactPrimaryEmail: "contact@cc-sudavesnois.fr",
		PLUiRecipientEmail:  "plui@cc-sudavesnois.fr",
		MaxUploadSize:       config.DefaultMaxUploadSize,
		BackupRetention:     4,
		DatabasePath:        filepath.Join(dir, "db.sqlite3"),
		MediaRoot:           filepath.Join(dir, "media"),
		BackupRoot:          filepath.Join(dir, "backups"),
		MetricsToken:        testMetricsToken,
	}

	db, err := repo.InitDB(cfg.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close(db) })

	clk := &clock.Fixed{T: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	root, err := storage.New(cfg.MediaRoot, nil)
	require.NoError(t, err)
	k := kernel.New(repo.NewRecordStore(db), root, clk, nil, cfg.MaxUploadSize)
	require.NoError(t, resources.Register(context.Background(), k, clk))

	users := service.NewUserService(repo.NewUserRepository(db), clk)
	mem := mailer.NewMemory()
	pipeline := contact.NewPipeline(mem, contact.KernelRecipients{K: k}, nil, contact.Options{
		PrimaryEmail: cfg.ContactPrimaryEmail,
		PLUiEmail:    cfg.PLUiRecipientEmail,
		NoReplyEmail: cfg.DefaultFromEmail,
	}, clk, nil)
	backups, err := backup.New(backup.Options{
		DatabasePath: cfg.DatabasePath,
		MediaRoot:    cfg.MediaRoot,
		BackupRoot:   cfg.BackupRoot,
		Retention:    cfg.BackupRetention,
		From:         cfg.DefaultFromEmail,
	}, repo.Freeze(db), mem, backup.KernelSettings{K: k}, clk, nil)
	require.NoError(t, err)

	admin, err := users.CreateSuperuser(context.Background(), "admin@cc-sudavesnois.fr", "admin", testPassword)
	require.NoError(t, err)

	h := handlers.NewHandler(handlers.Services{
		Users:   users,
		Site:    service.NewSite(k, clk, nil),
		Kernel:  k,
		Contact: pipeline,
		Backups: backups,
	}, nil, cfg)

	return &testEnv{router: h.Router, cfg: cfg, k: k, users: users, mem: mem, clk: clk, backups: backups, admin: admin}
}

// staff создаёт сотрудника с указанными правами.
func (e *testEnv) staff(t *testing.T, email string, caps ...string) *model.User {
	t.Helper()
	ctx := context.Background()
	actor := service.PrincipalOf(e.admin)
	u, err := e.users.CreateUser(ctx, actor, email, "", testPassword, true)
	require.NoError(t, err)
	if len(caps) > 0 {
		u, err = e.users.Grant(ctx, email, caps...)
		require.NoError(t, err)
	}
	return u
}

func addAuthCookie(t *testing.T, req *http.Request, userID int64, secret string) {
	t.Helper()
	rr := httptest.NewRecorder()
	require.NoError(t, middleware.SetLoginCookie(rr, userID, secret))
	for _, c := range rr.Result().Cookies() {
		req.AddCookie(c)
	}
}

const testCSRFToken = "csrf-token-for-tests"

// addCSRF повторяет CSRF-токен в cookie и заголовке, как клиентский JS.
func addCSRF(req *http.Request) {
	req.AddCookie(&http.Cookie{Name: middleware.CSRFCookieName, Value: testCSRFToken})
	req.Header.Set(middleware.CSRFHeader, testCSRFToken)
}

// do выполняет запрос; user == nil — аноним.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string, user *model.User) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if user != nil {
		addAuthCookie(t, req, user.ID, testSecret)
		addCSRF(req)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) doJSON(t *testing.T, method, path string, v any, user *model.User) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return e.do(t, method, path, bytes.NewReader(b), "application/json", user)
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

// multipartBody: values — поля, files — слот → (имя файла, содержимое).
func multipartBody(t *testing.T, values map[string]string, files map[string][2]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range values {
		require.NoError(t, mw.WriteField(k, v))
	}
	for slot, f := range files {
		w, err := mw.CreateFormFile(slot, f[0])
		require.NoError(t, err)
		_, err = w.Write([]byte(f[1]))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func communeValues(name string) map[string]string {
	return map[string]string{
		"city_name": name, "mayor_first_name": "Jean", "mayor_last_name": "Dubois",
		"address": "Place de la Mairie", "postal_code": "59610", "phone_number": "0327000000",
		"nb_habitants": "1200",
	}
}

// seedCommune создаёт коммуну напрямую через ядро.
func (e *testEnv) seedCommune(t *testing.T, name string) *kernel.Record {
	t.Helper()
	in := kernel.Input{
		Values: communeValues(name),
		Files:  map[string]kernel.Upload{"image": {Filename: "c.png", Size: 3, Content: bytes.NewReader([]byte("png"))}},
	}
	m, err := e.k.Create(context.Background(), authz.Principal{UserID: e.admin.ID, Authenticated: true, Superuser: true}, resources.Commune, in)
	require.NoError(t, err)
	return m.Record
}

func serve(e *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
