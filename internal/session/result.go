package session

import (
	"context"
	"course_portal_backend/internal/model"
	"fmt"
	"time"
)

// ReviewItem pairs one question with what the student recorded for it.
type ReviewItem struct {
	QuestionID      uint
	Position        int
	Type            model.QuestionType
	Content         string
	Points          float64
	SelectedAnswers []string
	TextAnswer      string
	Answered        bool
	IsCorrect       *bool
}

// PendingReview reports an answered essay that has no verdict yet.
func (r ReviewItem) PendingReview() bool {
	return r.Answered && r.IsCorrect == nil
}

type Result struct {
	AttemptID     uint
	QuizID        uint
	EndReason     string
	StartTime     time.Time
	CompletedAt   time.Time
	Elapsed       time.Duration
	Grade         float64
	MaxGrade      float64
	IsPassed      bool
	Correct       int
	Incorrect     int
	Unanswered    int
	PendingReview int
	Review        []ReviewItem
}

// ResultAggregator loads a graded attempt for display. It never retries on
// its own; the caller offers a manual retry.
type ResultAggregator struct {
	repo AttemptRepository
}

func NewResultAggregator(repo AttemptRepository) *ResultAggregator {
	return &ResultAggregator{repo: repo}
}

func (r *ResultAggregator) Load(ctx context.Context, attemptID uint) (*Result, error) {
	graded, err := r.repo.GetAttemptDetail(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResultUnavailable, err)
	}
	if graded.Status != model.AttemptSubmitted {
		return nil, fmt.Errorf("%w: attempt %d is %s", ErrResultUnavailable, attemptID, graded.Status)
	}
	return Summarize(graded), nil
}

// Summarize derives display values from a graded attempt. Counts come from
// the server as-is.
func Summarize(graded *model.GradedAttempt) *Result {
	res := &Result{
		AttemptID:     graded.ID,
		QuizID:        graded.QuizID,
		EndReason:     graded.EndReason,
		StartTime:     graded.StartTime,
		Grade:         graded.Grade,
		MaxGrade:      graded.MaxGrade,
		IsPassed:      graded.IsPassed,
		Correct:       graded.CorrectAnswers,
		Incorrect:     graded.IncorrectAnswers,
		Unanswered:    graded.UnansweredQuestions,
		PendingReview: graded.PendingReview,
		Review:        make([]ReviewItem, 0, len(graded.Results)),
	}
	if graded.CompletedAt != nil {
		res.CompletedAt = *graded.CompletedAt
		if d := graded.CompletedAt.Sub(graded.StartTime); d > 0 {
			res.Elapsed = d
		}
	}

	for _, q := range graded.Results {
		item := ReviewItem{
			QuestionID: q.QuestionID,
			Position:   q.Position,
			Type:       q.Type,
			Content:    q.Content,
			Points:     q.Points,
			TextAnswer: q.TextAnswer,
			Answered:   len(q.SelectedAnswerIDs) > 0 || q.TextAnswer != "",
			IsCorrect:  q.IsCorrect,
		}
		for _, opt := range q.Answers {
			if q.SelectedAnswerIDs.Contains(opt.ID) {
				item.SelectedAnswers = append(item.SelectedAnswers, opt.Content)
			}
		}
		res.Review = append(res.Review, item)
	}
	return res
}
