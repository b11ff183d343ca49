package service

import (
	"context"
	"testing"

	"course_portal_backend/internal/config"
	"course_portal_backend/internal/model"
	"course_portal_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStorageService_FallsBackToLocal(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Type: "local", LocalPath: t.TempDir()}}
	s := NewStorageService(cfg)
	_, ok := s.Provider.(*LocalStorageProvider)
	assert.True(t, ok)
}

func TestNewStorageService_SelectsProviderByType(t *testing.T) {
	tests := []struct {
		name        string
		storageType string
	}{
		{"explicit local", util.StorageLocal},
		{"unset", ""},
		{"unknown", "s3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Storage: config.StorageConfig{Type: tt.storageType, LocalPath: t.TempDir()}}
			s := NewStorageService(cfg)
			_, ok := s.Provider.(*LocalStorageProvider)
			require.True(t, ok)

			url, err := s.Put(context.Background(), "receipts/a.json", []byte("{}"), util.MimeJSON)
			require.NoError(t, err)
			assert.Equal(t, "/uploads/receipts/a.json", url)
		})
	}
}

func TestReceiptService_ArchiveAndLoad(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Type: "local", LocalPath: t.TempDir()}}
	receipts := NewReceiptService(NewStorageService(cfg))

	correct := true
	graded := &model.GradedAttempt{
		Attempt: model.Attempt{
			BaseModel: model.BaseModel{ID: 42},
			QuizID:    3,
			Status:    model.AttemptSubmitted,
			Grade:     2,
		},
		Results: []model.GradedQuestion{{QuestionID: 1, IsCorrect: &correct}},
	}

	receipts.Archive(graded)
	receipts.Wait()

	loaded, err := receipts.Load(context.Background(), 3, 42)
	require.NoError(t, err)
	assert.Equal(t, uint(42), loaded.ID)
	assert.Equal(t, 2.0, loaded.Grade)
	require.Len(t, loaded.Results, 1)
	assert.True(t, *loaded.Results[0].IsCorrect)
}

func TestReceiptKey(t *testing.T) {
	assert.Equal(t, "receipts/quiz-3/attempt-42.json", ReceiptKey(3, 42))
}

func TestGradeAttempt_EmptyEssayIsUnanswered(t *testing.T) {
	quiz := &model.Quiz{Questions: []model.Question{
		{BaseModel: model.BaseModel{ID: 1}, Type: model.Essay, Points: 5},
	}}
	attempt := &model.Attempt{Answers: []model.AttemptAnswer{{QuestionID: 1}}}

	gradeAttempt(attempt, quiz)
	assert.Equal(t, 1, attempt.UnansweredQuestions)
	assert.Equal(t, 0, attempt.PendingReview)
	assert.True(t, attempt.IsPassed, "zero pass score is always met")
}
