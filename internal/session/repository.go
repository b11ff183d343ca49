package session

import (
	"context"
	"course_portal_backend/internal/model"
)

// AttemptRepository is the backend the session talks to. GetCurrentAttempt
// returns util.ErrNoOpenAttempt when the student has no open attempt for the
// chapter item; every other error is a real failure. SaveAnswer returns the
// answer the backend holds after the call, which differs from the payload when
// the save was older than the stored one.
type AttemptRepository interface {
	StartAttempt(ctx context.Context, quizID, chapterItemID uint) (*model.Attempt, error)
	GetCurrentAttempt(ctx context.Context, chapterItemID uint) (*model.Attempt, error)
	SaveAnswer(ctx context.Context, attemptID, questionID uint, payload model.AnswerPayload) (*model.AttemptAnswer, error)
	SubmitAttempt(ctx context.Context, attemptID uint) (*model.GradedAttempt, error)
	GetAttemptDetail(ctx context.Context, attemptID uint) (*model.GradedAttempt, error)
	GetAttemptsHistory(ctx context.Context, chapterItemID uint) ([]model.GradedAttempt, error)
}
