package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AtRiskMedia/funnelgate-go/internal/application/container"
	"github.com/AtRiskMedia/funnelgate-go/internal/application/services"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/persistence/journal"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func sysopRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	settings := testSettings()
	settings.SysopPasswordHash = string(hash)
	settings.JWTSecret = "test-secret"

	logger := testLogger()
	jrn, err := journal.New(filepath.Join(t.TempDir(), "journal.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { jrn.Close() })

	c := &container.Container{
		Settings:    settings,
		Logger:      logger,
		Perf:        testPerf(),
		Journal:     jrn,
		AuthService: services.NewAuthService(settings, logger),
	}
	h := NewSysOpHandlers(c)

	r := gin.New()
	sysopAPI := r.Group("/api/sysop")
	sysopAPI.POST("/login", h.Login)
	sysopAPI.Use(h.SysOpAuthMiddleware())
	{
		sysopAPI.GET("/health", h.GetHealth)
		sysopAPI.GET("/journal", h.GetJournal)
		sysopAPI.GET("/logs/levels", h.GetLogLevels)
	}
	return r
}

func sysopLogin(t *testing.T, r *gin.Engine, password string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sysop/login",
		strings.NewReader(`{"password":"`+password+`"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestSysopLoginRejectsWrongPassword(t *testing.T) {
	r := sysopRouter(t)
	w := sysopLogin(t, r, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSysopLoginIssuesUsableToken(t *testing.T) {
	r := sysopRouter(t)

	w := sysopLogin(t, r, "hunter2")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/sysop/journal", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)
}

func TestSysopEndpointsRequireToken(t *testing.T) {
	r := sysopRouter(t)

	for _, path := range []string{"/api/sysop/health", "/api/sysop/journal", "/api/sysop/logs/levels"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestSysopHealthReportsStatus(t *testing.T) {
	r := sysopRouter(t)

	var resp struct {
		Token string `json:"token"`
	}
	login := sysopLogin(t, r, "hunter2")
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &resp))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/sysop/health", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status"`)
}
