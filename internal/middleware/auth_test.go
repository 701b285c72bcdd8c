package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"online_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "middleware-test-secret-0123456789"

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/", AuthMiddleware(secret))
	api.GET("/me", func(c *gin.Context) {
		util.Success(c, util.GetUserFromContext(c).UserID)
	})
	api.GET("/admin", AdminMiddleware(), func(c *gin.Context) {
		util.Success(c, "ok")
	})
	return r
}

func token(t *testing.T, admin bool) string {
	tok, err := util.GenerateJWT(5, "13800138000", admin, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter()

	cases := []struct {
		name   string
		target string
		header string
		status int
	}{
		{"missing token", "/me", "", http.StatusUnauthorized},
		{"bad token", "/me", "Bearer garbage", http.StatusUnauthorized},
		{"bearer header", "/me", "Bearer " + token(t, false), http.StatusOK},
		{"query token", "/me?token=" + token(t, false), "", http.StatusOK},
		{"admin forbidden", "/admin", "Bearer " + token(t, false), http.StatusForbidden},
		{"admin allowed", "/admin", "Bearer " + token(t, true), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestBearerToken(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?token=fromquery", nil)
	assert.Equal(t, "fromquery", BearerToken(c))

	c.Request.Header.Set("Authorization", "Bearer  abc ")
	assert.Equal(t, "abc", BearerToken(c))
}
