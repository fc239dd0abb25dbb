package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestRegisterRejectsBadInput(t *testing.T) {
	h := NewHandler(nil)

	cases := map[string]string{
		"missing email":  `{"password":"longenough1"}`,
		"not an email":   `{"email":"nobody","password":"longenough1"}`,
		"short password": `{"email":"a@b.c","password":"short"}`,
		"unknown field":  `{"email":"a@b.c","password":"longenough1","role":"admin"}`,
		"malformed body": `{`,
	}
	for name, body := range cases {
		rec := postJSON(t, h.Register, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestLoginRejectsEmptyCredentials(t *testing.T) {
	h := NewHandler(nil)

	rec := postJSON(t, h.Login, `{"email":"","password":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h.Login, `{"email":"  ","password":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCredentialsValidateNormalizesEmail(t *testing.T) {
	req := credentialsRequest{Email: "  Alice@Example.COM ", Password: "longenough1"}
	assert.Empty(t, req.validate())
	assert.Equal(t, "alice@example.com", req.Email)
}
