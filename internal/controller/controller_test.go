package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"online_exam_backend/internal/config"
	"online_exam_backend/internal/middleware"
	"online_exam_backend/internal/model"
	"online_exam_backend/internal/repository"
	"online_exam_backend/internal/service"
	"online_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "controller-test-secret-0123456789"

type mapSource map[string]string

func (m mapSource) Get(ctx context.Context, key string) ([]byte, error) {
	raw, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", service.ErrObjectNotFound, key)
	}
	return []byte(raw), nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.User{}, &model.ExamRecord{}, &model.WrongQuestion{}, &model.UserStats{}))
	return db
}

func newTestServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)
	db := setupTestDB(t)

	cfg := &config.Config{
		JWT:  config.JWTConfig{Secret: testSecret, ExpireTime: time.Hour},
		Auth: config.AuthConfig{AdminPhone: "19900000000", AdminPassword: "admin-pass"},
	}
	settings := config.NewExamSettings(config.ExamConfig{
		SingleCount:             2,
		TimeLimitMinutes:        90,
		PassPercentage:          60,
		PercentageBase:          config.PercentageBaseFixed,
		BasicBank:               "basic.md",
		AppliedBank:             "applied.md",
		SessionRetentionMinutes: 30,
	})

	source := mapSource{"basic.md": "## 单选题\n1. 第一题\nA. 甲\nB. 乙\n答案：A\n2. 第二题\nA. 甲\nB. 乙\n答案：A\n"}
	bank := service.NewQuestionBankService(source, nil, settings, 0)
	bank.NewRand = func() *rand.Rand { return rand.New(rand.NewSource(1)) }

	exams := service.NewExamService(repository.NewExamRepository(db), settings)
	sessions := service.NewExamSessionManager(bank, exams, settings)
	t.Cleanup(sessions.Shutdown)
	storage := &service.StorageService{Store: &service.LocalStore{Root: t.TempDir()}}
	auth := NewAuthController(service.NewAuthService(repository.NewUserRepository(db), cfg))
	exam := NewExamController(bank, sessions, exams, service.NewExportService(exams, storage))

	r := gin.New()
	r.POST("/api/auth/register", auth.Register)
	r.POST("/api/auth/login", auth.Login)
	api := r.Group("/api", middleware.AuthMiddleware(testSecret))
	api.GET("/auth/verify", auth.Verify)
	api.GET("/auth/admin/users/count", middleware.AdminMiddleware(), auth.CountUsers)
	api.POST("/exam/papers", exam.GeneratePaper)
	api.POST("/exam/sessions", exam.StartSession)
	api.GET("/exam/sessions/:id", exam.GetSession)
	api.POST("/exam/sessions/:id/answers", exam.SubmitAnswer)
	api.POST("/exam/sessions/:id/navigate", exam.Navigate)
	api.POST("/exam/sessions/:id/complete", exam.CompleteSession)
	api.POST("/exam/submit", exam.SubmitResult)
	api.GET("/exam/wrong-questions", exam.ListWrongQuestions)
	api.GET("/exam/wrong-questions/export", exam.DownloadWrongQuestions)
	api.POST("/exam/wrong-questions/export", exam.PublishWrongQuestions)
	api.GET("/exam/stats", exam.GetStats)
	api.GET("/exam/history", exam.ListHistory)

	return &testServer{t: t, router: r}
}

func (s *testServer) do(method, target, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func registerUser(t *testing.T, s *testServer, phone string) string {
	w := s.do(http.MethodPost, "/api/auth/register", "", gin.H{"phone": phone, "password": "secret123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var result service.AuthResult
	decode(t, w, &result)
	return result.Token
}

func TestAuthEndpoints(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "13800138000")

	w := s.do(http.MethodPost, "/api/auth/register", "", gin.H{"phone": "13800138000", "password": "x"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/api/auth/register", "", gin.H{"phone": "123", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"phone": "13800138000", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"phone": "13800138000", "password": "secret123"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/auth/verify", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var verified struct {
		User service.AuthUser `json:"user"`
	}
	decode(t, w, &verified)
	assert.Equal(t, "13800138000", verified.User.Phone)

	w = s.do(http.MethodGet, "/api/auth/admin/users/count", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"phone": "19900000000", "password": "admin-pass"})
	require.Equal(t, http.StatusOK, w.Code)
	var admin service.AuthResult
	decode(t, w, &admin)
	assert.True(t, admin.User.IsAdmin)

	w = s.do(http.MethodGet, "/api/auth/admin/users/count", admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var count struct {
		Count int64 `json:"count"`
	}
	decode(t, w, &count)
	assert.Equal(t, int64(1), count.Count)
}

func TestGeneratePaper(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "13800138000")

	w := s.do(http.MethodPost, "/api/exam/papers", token, gin.H{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var paper model.ExamPaper
	decode(t, w, &paper)
	require.Len(t, paper.Questions, 2)
	assert.Equal(t, "A", paper.Questions[0].CorrectAnswer)

	w = s.do(http.MethodPost, "/api/exam/papers", token, gin.H{"difficulty": "expert"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 应用题库不存在
	w = s.do(http.MethodPost, "/api/exam/papers", token, gin.H{"difficulty": "applied"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestExamSessionFlow(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "13800138000")
	other, err := util.GenerateJWT(999, "13900000000", false, testSecret, time.Hour)
	require.NoError(t, err)

	w := s.do(http.MethodPost, "/api/exam/sessions", token, gin.H{})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var view SessionView
	decode(t, w, &view)
	require.Len(t, view.Paper.Questions, 2)
	assert.Equal(t, model.ExamInProgress, view.State.Status)
	assert.Empty(t, view.Paper.Questions[0].CorrectAnswer)
	assert.Nil(t, view.Result)

	base := "/api/exam/sessions/" + view.SessionID
	first := view.Paper.Questions[0].ID

	w = s.do(http.MethodPost, base+"/answers", token, gin.H{"questionId": first, "userAnswer": "A"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, base+"/answers", token, gin.H{"questionId": "missing", "userAnswer": "A"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, base+"/navigate", token, gin.H{"index": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(http.MethodPost, base+"/navigate", token, gin.H{"index": 1})
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, base, other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(http.MethodGet, "/api/exam/sessions/unknown", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, base, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &view)
	assert.Equal(t, 1, view.State.CurrentQuestion)
	assert.False(t, view.State.Answers[first].IsCorrect)

	w = s.do(http.MethodPost, base+"/complete", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var done SessionView
	decode(t, w, &done)
	require.NotNil(t, done.Result)
	require.NotNil(t, done.Persisted)
	assert.True(t, *done.Persisted)
	assert.Equal(t, 1.0, done.Result.ExamState.Score.Total)
	assert.Equal(t, 1.0, done.Result.Percentage)
	assert.False(t, done.Result.Passed)
	assert.Equal(t, "A", done.Paper.Questions[0].CorrectAnswer)

	// 重复交卷返回同一成绩
	w = s.do(http.MethodPost, base+"/complete", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, base+"/answers", token, gin.H{"questionId": first, "userAnswer": "B"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, "/api/exam/history", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history util.PageResponse
	decode(t, w, &history)
	assert.Equal(t, int64(1), history.Total)

	w = s.do(http.MethodGet, "/api/exam/wrong-questions?type=single", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var wrongs util.PageResponse
	decode(t, w, &wrongs)
	assert.Equal(t, int64(1), wrongs.Total)

	w = s.do(http.MethodGet, "/api/exam/stats", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSubmitResult(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "13800138000")
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	w := s.do(http.MethodPost, "/api/exam/submit", token, gin.H{
		"examId":     "exam_1",
		"score":      45,
		"totalScore": 60,
		"startTime":  start,
		"endTime":    start.Add(30 * time.Minute),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp service.SubmitExamResponse
	decode(t, w, &resp)
	assert.Equal(t, 75.0, resp.Percentage)
	assert.True(t, resp.Passed)

	w = s.do(http.MethodPost, "/api/exam/submit", token, gin.H{
		"examId":     "exam_2",
		"score":      10,
		"totalScore": 0,
		"startTime":  start,
		"endTime":    start,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/exam/submit", token, gin.H{"examId": "exam_3"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportWrongQuestions(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "13800138000")

	w := s.do(http.MethodGet, "/api/exam/wrong-questions/export", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api/exam/sessions", token, gin.H{})
	require.Equal(t, http.StatusCreated, w.Code)
	var view SessionView
	decode(t, w, &view)
	w = s.do(http.MethodPost, "/api/exam/sessions/"+view.SessionID+"/complete", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/exam/wrong-questions/export", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, w.Body.String(), "共 2 道错题")
	assert.Contains(t, w.Body.String(), "你的答案: 未作答")

	w = s.do(http.MethodPost, "/api/exam/wrong-questions/export", token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var doc service.ExportDocument
	decode(t, w, &doc)
	assert.True(t, strings.HasPrefix(doc.URL, util.UploadsRoute+"/"+util.ExportsPrefix+"/"), doc.URL)
}
