package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"course_portal_backend/internal/config"
	"course_portal_backend/internal/controller"
	"course_portal_backend/internal/model"
	"course_portal_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quizOnlyService struct {
	controller.AttemptService
}

func (quizOnlyService) GetQuiz(ctx context.Context, quizID uint) (*model.Quiz, error) {
	return &model.Quiz{BaseModel: model.BaseModel{ID: quizID}}, nil
}

func TestRegisterRoutes_RateLimitIsPerStudent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}
	cfg.JWT.Secret = "router-test-secret"
	cfg.RateLimit.MaxRequests = 1
	cfg.RateLimit.WindowMinutes = 60

	router := gin.New()
	a := &App{}
	a.registerRoutes(router, &controllers{attempt: controller.NewAttemptController(quizOnlyService{})}, cfg)

	token := func(userID uint) string {
		tok, err := util.GenerateJWT(userID, model.Student, "s@example.com", cfg.JWT.Secret, time.Hour)
		require.NoError(t, err)
		return tok
	}
	get := func(tok string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/quizzes/1", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	alice, bob := token(1), token(2)
	assert.Equal(t, http.StatusOK, get(alice))
	assert.Equal(t, http.StatusTooManyRequests, get(alice))
	// same client IP, different student
	assert.Equal(t, http.StatusOK, get(bob))
}

func TestRegisterRoutes_UnauthenticatedRequestsDoNotSpendBudget(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}
	cfg.JWT.Secret = "router-test-secret"
	cfg.RateLimit.MaxRequests = 1
	cfg.RateLimit.WindowMinutes = 60

	router := gin.New()
	a := &App{}
	a.registerRoutes(router, &controllers{attempt: controller.NewAttemptController(quizOnlyService{})}, cfg)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/quizzes/1", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	tok, err := util.GenerateJWT(1, model.Student, "s@example.com", cfg.JWT.Secret, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/quizzes/1", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
