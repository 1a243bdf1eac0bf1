package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hasAuthCookie(rr interface{ Result() *http.Response }) bool {
	for _, c := range rr.Result().Cookies() {
		if c.Name == "auth_token" && c.Value != "" {
			return true
		}
	}
	return false
}

func TestUser_RegisterClosedOnceUsersExist(t *testing.T) {
	e := newTestEnv(t)
	rr := e.doJSON(t, http.MethodPost, "/api/user/register", map[string]string{
		"email": "nouveau@example.org", "password": testPassword,
	}, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "Les inscriptions sont fermées.")
}

func TestUser_Login(t *testing.T) {
	e := newTestEnv(t)

	t.Run("ok", func(t *testing.T) {
		rr := e.doJSON(t, http.MethodPost, "/api/user/login", map[string]string{
			"email": "ADMIN@cc-sudavesnois.fr", "password": testPassword,
		}, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.True(t, hasAuthCookie(rr), "Set-Cookie auth_token expected")
		assert.NotContains(t, rr.Body.String(), "password")
	})

	t.Run("unauthorized", func(t *testing.T) {
		rr := e.doJSON(t, http.MethodPost, "/api/user/login", map[string]string{
			"email": "admin@cc-sudavesnois.fr", "password": "mauvais",
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.False(t, hasAuthCookie(rr))
	})

	t.Run("bad json", func(t *testing.T) {
		rr := e.do(t, http.MethodPost, "/api/user/login", nil, "application/json", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestUser_Me(t *testing.T) {
	e := newTestEnv(t)

	t.Run("anonymous", func(t *testing.T) {
		rr := e.do(t, http.MethodGet, "/api/user/me", nil, "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		body := decode[struct {
			Authenticated bool `json:"authenticated"`
		}](t, rr)
		assert.False(t, body.Authenticated)
	})

	t.Run("authorized", func(t *testing.T) {
		rr := e.do(t, http.MethodGet, "/api/user/me", nil, "", e.admin)
		require.Equal(t, http.StatusOK, rr.Code)
		body := decode[struct {
			Authenticated bool   `json:"authenticated"`
			Email         string `json:"email"`
			Superuser     bool   `json:"is_superuser"`
		}](t, rr)
		assert.True(t, body.Authenticated)
		assert.Equal(t, "admin@cc-sudavesnois.fr", body.Email)
		assert.True(t, body.Superuser)
	})

	t.Run("deactivated user is anonymous", func(t *testing.T) {
		u := e.staff(t, "parti@cc-sudavesnois.fr")
		rr := e.do(t, http.MethodPost, "/api/admin/users/"+itoa(u.ID)+"/deactivate", nil, "", e.admin)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = e.do(t, http.MethodGet, "/api/user/me", nil, "", u)
		body := decode[struct {
			Authenticated bool `json:"authenticated"`
		}](t, rr)
		assert.False(t, body.Authenticated)
	})
}

func TestUser_Logout(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodPost, "/api/user/logout", nil, "", e.admin)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	for _, c := range rr.Result().Cookies() {
		if c.Name == "auth_token" {
			assert.Less(t, c.MaxAge, 0)
		}
	}
}

func TestUser_AdminAccounts(t *testing.T) {
	e := newTestEnv(t)
	staff := e.staff(t, "agent@cc-sudavesnois.fr")

	rr := e.do(t, http.MethodGet, "/api/admin/users", nil, "", staff)
	assert.Equal(t, http.StatusForbidden, rr.Code, "staff cannot manage accounts")

	rr = e.do(t, http.MethodGet, "/api/admin/users", nil, "", e.admin)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[[]struct {
		Email string `json:"email"`
	}](t, rr)
	require.Len(t, list, 2)
	assert.Equal(t, "admin@cc-sudavesnois.fr", list[0].Email)

	rr = e.doJSON(t, http.MethodPost, "/api/admin/users", map[string]any{
		"email": "secretariat@cc-sudavesnois.fr", "password": "1234", "is_staff": true,
	}, e.admin)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `"password"`)

	rr = e.doJSON(t, http.MethodPost, "/api/admin/users", map[string]any{
		"email": "agent@cc-sudavesnois.fr", "password": testPassword,
	}, e.admin)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = e.do(t, http.MethodDelete, "/api/admin/users/"+itoa(e.admin.ID), nil, "", e.admin)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = e.do(t, http.MethodDelete, "/api/admin/users/"+itoa(staff.ID), nil, "", e.admin)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = e.do(t, http.MethodDelete, "/api/admin/users/"+itoa(staff.ID), nil, "", e.admin)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
