package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func sign(t *testing.T, claims jwt.MapClaims, key []byte) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func newRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", mw, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": UserID(c)})
	})
	return r
}

func call(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"user_id claim", "Bearer " + sign(t, jwt.MapClaims{"user_id": "u1", "exp": exp}, secret), 200, `{"user":"u1"}`},
		{"sub claim", "Bearer " + sign(t, jwt.MapClaims{"sub": "u2", "exp": exp}, secret), 200, `{"user":"u2"}`},
		{"missing", "", 401, `{"error":"Authentication required"}`},
		{"not bearer", "Basic abc", 401, `{"error":"Authentication required"}`},
		{"wrong key", "Bearer " + sign(t, jwt.MapClaims{"user_id": "u1", "exp": exp}, []byte("other")), 401, `{"error":"Invalid or expired token"}`},
		{"expired", "Bearer " + sign(t, jwt.MapClaims{"user_id": "u1", "exp": time.Now().Add(-time.Hour).Unix()}, secret), 401, `{"error":"Invalid or expired token"}`},
		{"no subject", "Bearer " + sign(t, jwt.MapClaims{"exp": exp}, secret), 401, `{"error":"Invalid or expired token"}`},
	}
	r := newRouter(AuthMiddleware(secret))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(r, tt.header)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestOptionalAuthMiddleware(t *testing.T) {
	r := newRouter(OptionalAuthMiddleware(secret))

	w := call(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":""}`, w.Body.String())

	w = call(r, "Bearer garbage")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":""}`, w.Body.String())

	w = call(r, "Bearer "+sign(t, jwt.MapClaims{"user_id": "u9"}, secret))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"u9"}`, w.Body.String())
}

func TestRejectsNoneAlgorithm(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	w := call(newRouter(AuthMiddleware(secret)), "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
