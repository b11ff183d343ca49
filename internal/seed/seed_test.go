package seed

import (
	"context"
	"errors"
	"testing"

	"course_portal_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
quizzes:
  - id: 1
    title: Capitals
    timeLimitMinutes: 1
    minPassScore: 2
    maxAttempts: 3
    questions:
      - type: SINGLE_CHOICE
        content: Capital of France?
        points: 1
        answers:
          - content: Paris
            isCorrect: true
          - content: Rome
      - type: ESSAY
        content: Describe Paris.
        points: 2
chapterItems:
  - id: 5
    chapterId: 2
    quizId: 1
    title: Week 1 quiz
`

type recordingWriter struct {
	quizzes []model.Quiz
	items   []model.ChapterItem
	failOn  uint
}

func (w *recordingWriter) SaveQuiz(_ context.Context, quiz *model.Quiz) error {
	if quiz.ID == w.failOn {
		return errors.New("db down")
	}
	w.quizzes = append(w.quizzes, *quiz)
	return nil
}

func (w *recordingWriter) SaveChapterItem(_ context.Context, item *model.ChapterItem) error {
	w.items = append(w.items, *item)
	return nil
}

func TestParseAndApply(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	w := &recordingWriter{}
	require.NoError(t, Apply(context.Background(), w, f))

	require.Len(t, w.quizzes, 1)
	quiz := w.quizzes[0]
	assert.Equal(t, uint(1), quiz.ID)
	assert.Equal(t, 1, quiz.TimeLimitMinutes)
	require.NotNil(t, quiz.MaxAttempts)
	assert.Equal(t, 3, *quiz.MaxAttempts)
	require.Len(t, quiz.Questions, 2)
	assert.Equal(t, 1, quiz.Questions[0].Position)
	assert.Equal(t, 2, quiz.Questions[1].Position)
	assert.True(t, quiz.Questions[0].Answers[0].IsCorrect)
	assert.Equal(t, 2, quiz.Questions[0].Answers[1].Position)

	require.Len(t, w.items, 1)
	assert.Equal(t, uint(5), w.items[0].ID)
	assert.Equal(t, uint(1), w.items[0].QuizID)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing id", "quizzes:\n  - title: x\n"},
		{"bad type", "quizzes:\n  - id: 1\n    questions:\n      - type: TRUE_FALSE\n"},
		{"essay with options", "quizzes:\n  - id: 1\n    questions:\n      - type: ESSAY\n        answers:\n          - content: a\n"},
		{"choice without options", "quizzes:\n  - id: 1\n    questions:\n      - type: MULTIPLE_CHOICE\n"},
		{"zero max attempts", "quizzes:\n  - id: 1\n    maxAttempts: 0\n"},
		{"unknown quiz", "quizzes:\n  - id: 1\nchapterItems:\n  - id: 2\n    quizId: 9\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestApply_StopsOnError(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	w := &recordingWriter{failOn: 1}
	err = Apply(context.Background(), w, f)
	require.Error(t, err)
	assert.Empty(t, w.items)
}
