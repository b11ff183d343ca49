package session

import (
	"context"
	"course_portal_backend/internal/model"
	"course_portal_backend/internal/util"
	"sync"
	"time"
)

func testQuestions() []model.Question {
	return []model.Question{
		{BaseModel: model.BaseModel{ID: 3}, Type: model.Essay, Position: 3, Points: 2},
		{BaseModel: model.BaseModel{ID: 1}, Type: model.SingleChoice, Position: 1, Points: 1, Answers: []model.Answer{
			{BaseModel: model.BaseModel{ID: 11}, Content: "Paris"},
			{BaseModel: model.BaseModel{ID: 12}, Content: "Rome"},
		}},
		{BaseModel: model.BaseModel{ID: 2}, Type: model.MultipleChoice, Position: 2, Points: 1, Answers: []model.Answer{
			{BaseModel: model.BaseModel{ID: 21}, Content: "2"},
			{BaseModel: model.BaseModel{ID: 22}, Content: "3"},
			{BaseModel: model.BaseModel{ID: 23}, Content: "4"},
		}},
	}
}

type saveCall struct {
	questionID uint
	payload    model.AnswerPayload
}

// fakeRepo behaves like the backend: one open attempt per chapter item,
// answers applied only when their seq is newer.
type fakeRepo struct {
	mu sync.Mutex

	timeLimitMinutes int
	remaining        *int
	open             *model.Attempt
	stored           map[uint]model.AttemptAnswer
	submitted        bool

	startErr   error
	currentErr error
	submitErr  error
	detailErr  error
	saveHook   func(questionID uint, payload model.AnswerPayload) error
	submitGate chan struct{}

	startCalls   int
	currentCalls int
	submitCalls  int
	saves        []saveCall
}

func newFakeRepo(timeLimitMinutes int) *fakeRepo {
	r := &fakeRepo{timeLimitMinutes: timeLimitMinutes, stored: map[uint]model.AttemptAnswer{}}
	if timeLimitMinutes > 0 {
		secs := timeLimitMinutes * 60
		r.remaining = &secs
	}
	return r
}

func (r *fakeRepo) attemptLocked() *model.Attempt {
	a := *r.open
	a.Questions = testQuestions()
	a.Answers = nil
	for _, ans := range r.stored {
		a.Answers = append(a.Answers, ans)
	}
	if r.remaining != nil {
		secs := *r.remaining
		a.RemainingTimeSeconds = &secs
	}
	return &a
}

func (r *fakeRepo) StartAttempt(ctx context.Context, quizID, chapterItemID uint) (*model.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startCalls++
	if r.startErr != nil {
		return nil, r.startErr
	}
	if r.open == nil {
		r.open = &model.Attempt{
			BaseModel:        model.BaseModel{ID: 100},
			QuizID:           quizID,
			ChapterItemID:    chapterItemID,
			StartTime:        time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			Status:           model.AttemptInProgress,
			TimeLimitMinutes: r.timeLimitMinutes,
		}
	}
	return r.attemptLocked(), nil
}

func (r *fakeRepo) GetCurrentAttempt(ctx context.Context, chapterItemID uint) (*model.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentCalls++
	if r.currentErr != nil {
		return nil, r.currentErr
	}
	if r.open == nil || r.submitted {
		return nil, util.ErrNoOpenAttempt
	}
	return r.attemptLocked(), nil
}

func (r *fakeRepo) SaveAnswer(ctx context.Context, attemptID, questionID uint, payload model.AnswerPayload) (*model.AttemptAnswer, error) {
	r.mu.Lock()
	r.saves = append(r.saves, saveCall{questionID, payload})
	hook := r.saveHook
	r.mu.Unlock()

	if hook != nil {
		if err := hook(questionID, payload); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.submitted {
		return nil, util.ErrAttemptNotInProgress
	}
	if prev, ok := r.stored[questionID]; ok && payload.Seq <= prev.ClientSeq {
		return &prev, nil
	}
	stored := model.AttemptAnswer{
		AttemptID:         attemptID,
		QuestionID:        questionID,
		SelectedAnswerIDs: payload.SelectedAnswerIDs,
		TextAnswer:        payload.TextAnswer,
		ClientSeq:         payload.Seq,
	}
	r.stored[questionID] = stored
	return &stored, nil
}

func (r *fakeRepo) SubmitAttempt(ctx context.Context, attemptID uint) (*model.GradedAttempt, error) {
	r.mu.Lock()
	r.submitCalls++
	gate := r.submitGate
	r.mu.Unlock()

	if gate != nil {
		<-gate
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.submitErr != nil {
		return nil, r.submitErr
	}
	r.submitted = true
	done := r.open.StartTime.Add(42 * time.Second)
	graded := &model.GradedAttempt{Attempt: *r.attemptLocked()}
	graded.Status = model.AttemptSubmitted
	graded.CompletedAt = &done
	return graded, nil
}

func (r *fakeRepo) GetAttemptDetail(ctx context.Context, attemptID uint) (*model.GradedAttempt, error) {
	return nil, r.detailErr
}

func (r *fakeRepo) GetAttemptsHistory(ctx context.Context, chapterItemID uint) ([]model.GradedAttempt, error) {
	return nil, nil
}

func (r *fakeRepo) counts() (start, current, submit int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startCalls, r.currentCalls, r.submitCalls
}

func (r *fakeRepo) storedAnswer(questionID uint) (model.AttemptAnswer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.stored[questionID]
	return a, ok
}

// manualTicker lets a test deliver ticks one at a time.
type manualTicker struct {
	ch chan time.Time
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               {}

type tickerBox struct {
	created chan *manualTicker
}

func newTickerBox() *tickerBox {
	return &tickerBox{created: make(chan *manualTicker, 1)}
}

func (b *tickerBox) factory(time.Duration) Ticker {
	t := &manualTicker{ch: make(chan time.Time)}
	b.created <- t
	return t
}

func fastRetry() RetryPolicy {
	return RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, MaxElapsedTime: 30 * time.Millisecond}
}
