package session

import (
	"context"
	"course_portal_backend/internal/model"
	"course_portal_backend/internal/util"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type EventType string

const (
	EventPhase      EventType = "phase"
	EventTick       EventType = "tick"
	EventSaveStatus EventType = "save_status"
	EventFinalized  EventType = "finalized"
	EventError      EventType = "error"
)

// Event is delivered to the listener. Listeners run on the goroutine that
// produced the event and must not block.
type Event struct {
	Type       EventType
	Phase      Phase
	QuestionID uint
	Remaining  int
	SaveStatus SaveStatus
	Err        error
}

type Option func(*Controller)

func WithListener(fn func(Event)) Option {
	return func(c *Controller) { c.listener = fn }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Controller) { c.log = log }
}

func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) { c.tickInterval = d }
}

func WithTickerFactory(f TickerFactory) Option {
	return func(c *Controller) { c.newTicker = f }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Controller) { c.retry = p }
}

// WithFlushTimeout bounds how long submit waits for pending saves.
func WithFlushTimeout(d time.Duration) Option {
	return func(c *Controller) { c.flushTimeout = d }
}

// Controller drives one visit to the assessment screen:
// RESOLVING -> IN_PROGRESS -> SUBMITTING | EXPIRED_SUBMITTING -> SUBMITTED,
// or RESOLVING -> ERROR.
type Controller struct {
	repo         AttemptRepository
	log          *zap.Logger
	listener     func(Event)
	tickInterval time.Duration
	newTicker    TickerFactory
	retry        RetryPolicy
	flushTimeout time.Duration

	mu         sync.Mutex
	state      *SessionState
	clock      *CountdownClock
	sync       *AnswerSyncChannel
	resolving  bool
	submitting bool
	closed     bool
	graded     *model.GradedAttempt
}

func NewController(repo AttemptRepository, opts ...Option) *Controller {
	c := &Controller{
		repo:         repo,
		log:          zap.NewNop(),
		tickInterval: time.Second,
		newTicker:    NewRealTicker,
		retry:        DefaultRetryPolicy(),
		flushTimeout: 5 * time.Second,
		state:        NewSessionState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) emit(e Event) {
	if c.listener != nil {
		c.listener(e)
	}
}

// ResolveOrStart resumes the student's open attempt for the chapter item or,
// only when the backend says there is none, starts a new one.
func (c *Controller) ResolveOrStart(ctx context.Context, quizID, chapterItemID uint) (uint, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrSessionClosed
	}
	if c.resolving {
		c.mu.Unlock()
		return 0, ErrResolveInFlight
	}
	if c.state.Attempt != nil {
		id := c.state.Attempt.ID
		c.mu.Unlock()
		return id, nil
	}
	c.resolving = true
	c.state.Phase = PhaseResolving
	c.mu.Unlock()

	attempt, err := c.repo.GetCurrentAttempt(ctx, chapterItemID)
	if errors.Is(err, util.ErrNoOpenAttempt) {
		attempt, err = c.repo.StartAttempt(ctx, quizID, chapterItemID)
	}
	if err == nil && attempt == nil {
		err = errors.New("backend returned no attempt")
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrResolveFailed, err)
		c.mu.Lock()
		c.resolving = false
		c.state.Phase = PhaseError
		c.state.LastError = err
		c.mu.Unlock()
		c.log.Error("Failed to resolve attempt",
			zap.Uint("quizID", quizID),
			zap.Uint("chapterItemID", chapterItemID),
			zap.Error(err))
		c.emit(Event{Type: EventPhase, Phase: PhaseError, Err: err})
		return 0, err
	}

	c.mu.Lock()
	c.resolving = false
	seqs := c.state.Hydrate(attempt)
	c.sync = NewAnswerSyncChannel(c.repo, attempt.ID, c.retry, c.log, c.onSaveStatus)
	for qid, seq := range seqs {
		c.sync.Seed(qid, seq)
	}
	var seed *int
	if attempt.TimeLimitMinutes > 0 {
		seed = attempt.RemainingTimeSeconds
	}
	c.clock = NewCountdownClock(seed, c.tickInterval, c.newTicker, c.onTick, c.onExpire)
	c.state.Phase = PhaseInProgress
	clock := c.clock
	c.mu.Unlock()

	c.log.Info("Attempt resolved",
		zap.Uint("attemptID", attempt.ID),
		zap.Int("answers", len(attempt.Answers)),
		zap.Any("remainingSeconds", attempt.RemainingTimeSeconds))
	c.emit(Event{Type: EventPhase, Phase: PhaseInProgress})
	clock.Start()
	return attempt.ID, nil
}

func (c *Controller) onTick(remaining int) {
	c.emit(Event{Type: EventTick, Remaining: remaining})
}

func (c *Controller) onExpire() {
	c.log.Info("Time is up, submitting attempt")
	go func() {
		if _, err := c.Submit(context.Background(), false); err != nil && !errors.Is(err, ErrSubmitInFlight) {
			c.log.Error("Auto submit failed", zap.Error(err))
		}
	}()
}

func (c *Controller) onSaveStatus(questionID uint, status SaveStatus) {
	c.emit(Event{Type: EventSaveStatus, QuestionID: questionID, SaveStatus: status})
}

// editableLocked checks that answers may still change. Caller holds c.mu.
func (c *Controller) editableLocked() error {
	switch {
	case c.closed || c.state.Phase == PhaseSubmitted:
		return ErrSessionClosed
	case c.state.Phase != PhaseInProgress:
		return ErrNotInProgress
	case c.clock.Expired():
		return ErrTimeExpired
	}
	return nil
}

// SelectAnswer picks an option. Single choice replaces the selection,
// multiple choice toggles the option. The cache updates at once and the save
// runs in the background.
func (c *Controller) SelectAnswer(questionID, answerID uint) (AnswerState, error) {
	c.mu.Lock()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return AnswerState{}, err
	}
	q, ok := c.state.Question(questionID)
	if !ok {
		c.mu.Unlock()
		return AnswerState{}, ErrUnknownQuestion
	}
	if !q.Type.IsChoice() {
		c.mu.Unlock()
		return AnswerState{}, ErrWrongQuestionType
	}
	if !q.HasAnswer(answerID) {
		c.mu.Unlock()
		return AnswerState{}, ErrUnknownAnswer
	}
	updated := c.state.ApplySelection(q, answerID)
	c.sync.Save(questionID, updated.payload())
	c.mu.Unlock()
	return updated, nil
}

// SetEssayText replaces the text of an essay question.
func (c *Controller) SetEssayText(questionID uint, text string) error {
	c.mu.Lock()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	q, ok := c.state.Question(questionID)
	if !ok {
		c.mu.Unlock()
		return ErrUnknownQuestion
	}
	if q.Type != model.Essay {
		c.mu.Unlock()
		return ErrWrongQuestionType
	}
	updated := c.state.SetText(questionID, text)
	c.sync.Save(questionID, updated.payload())
	c.mu.Unlock()
	return nil
}

// ToggleFlag marks a question for review. Flags stay on this device only.
func (c *Controller) ToggleFlag(questionID uint) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state.Attempt == nil {
		return false, ErrSessionClosed
	}
	if _, ok := c.state.Question(questionID); !ok {
		return false, ErrUnknownQuestion
	}
	return c.state.ToggleFlag(questionID), nil
}

func (c *Controller) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Index < len(c.state.Questions)-1 {
		c.state.Index++
	}
	return c.state.Index
}

func (c *Controller) Previous() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Index > 0 {
		c.state.Index--
	}
	return c.state.Index
}

func (c *Controller) JumpTo(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.JumpTo(index)
}

func (c *Controller) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	sum := c.state.Summary()
	if c.sync != nil {
		sum.Unsaved = len(c.sync.DirtyQuestions())
	}
	return sum
}

// Submit finalizes the attempt. userConfirmed is true when the student
// confirmed the summary dialog; false is the time-up path. Only one submit
// runs at a time, and once submitted further calls return the attempt id
// without contacting the backend.
func (c *Controller) Submit(ctx context.Context, userConfirmed bool) (uint, error) {
	c.mu.Lock()
	if c.state.Phase == PhaseSubmitted {
		id := c.state.Attempt.ID
		c.mu.Unlock()
		return id, nil
	}
	if c.submitting {
		c.mu.Unlock()
		return 0, ErrSubmitInFlight
	}
	if c.closed {
		c.mu.Unlock()
		return 0, ErrSessionClosed
	}
	if c.state.Phase != PhaseInProgress {
		c.mu.Unlock()
		return 0, ErrNotInProgress
	}
	expired := !userConfirmed || c.clock.Expired()
	phase := PhaseSubmitting
	if expired {
		phase = PhaseExpiredSubmitting
	}
	c.submitting = true
	c.state.Phase = phase
	attemptID := c.state.Attempt.ID
	syncCh := c.sync
	c.mu.Unlock()
	c.emit(Event{Type: EventPhase, Phase: phase})

	flushCtx, cancel := context.WithTimeout(ctx, c.flushTimeout)
	flushErr := syncCh.Flush(flushCtx)
	cancel()
	if flushErr != nil {
		if !expired && !syncCh.ServerClosed() {
			return 0, c.revert(fmt.Errorf("submit attempt %d: %w", attemptID, flushErr))
		}
		c.log.Warn("Submitting with unsaved answers",
			zap.Uint("attemptID", attemptID),
			zap.Any("questions", syncCh.DirtyQuestions()))
	}

	graded, err := c.repo.SubmitAttempt(ctx, attemptID)
	if err != nil {
		c.log.Error("Submit failed", zap.Uint("attemptID", attemptID), zap.Error(err))
		return 0, c.revert(fmt.Errorf("submit attempt %d: %w", attemptID, err))
	}

	c.mu.Lock()
	c.submitting = false
	c.graded = graded
	c.state.Phase = PhaseSubmitted
	c.state.LastError = nil
	c.clock.Stop()
	syncCh.Close()
	c.mu.Unlock()

	c.log.Info("Attempt submitted",
		zap.Uint("attemptID", attemptID),
		zap.Bool("expired", expired),
		zap.Float64("grade", graded.Grade))
	c.emit(Event{Type: EventPhase, Phase: PhaseSubmitted})
	c.emit(Event{Type: EventFinalized})
	return attemptID, nil
}

func (c *Controller) revert(err error) error {
	c.mu.Lock()
	c.submitting = false
	c.state.Phase = PhaseInProgress
	c.state.LastError = err
	c.mu.Unlock()
	c.emit(Event{Type: EventError, Phase: PhaseInProgress, Err: err})
	return err
}

// Graded returns the result the backend returned on submit.
func (c *Controller) Graded() *model.GradedAttempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graded
}

// Snapshot is a copy of the session for rendering.
type Snapshot struct {
	Phase      Phase
	AttemptID  uint
	QuizID     uint
	Index      int
	Questions  []model.Question
	Answers    map[uint]AnswerState
	Flags      map[uint]bool
	Remaining  *int
	SaveStatus map[uint]SaveStatus
	LastError  error
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		Phase:     c.state.Phase,
		Index:     c.state.Index,
		Questions: append([]model.Question(nil), c.state.Questions...),
		Answers:   c.state.copyAnswers(),
		Flags:     c.state.copyFlags(),
		LastError: c.state.LastError,
	}
	if c.state.Attempt != nil {
		snap.AttemptID = c.state.Attempt.ID
		snap.QuizID = c.state.Attempt.QuizID
	}
	if c.clock != nil {
		if secs, ok := c.clock.Remaining(); ok {
			snap.Remaining = &secs
		}
	}
	if c.sync != nil {
		snap.SaveStatus = c.sync.Statuses()
	} else {
		snap.SaveStatus = map[uint]SaveStatus{}
	}
	return snap
}

// Close ends the visit. The clock stops and pending saves are abandoned;
// requests already sent complete unobserved.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.clock != nil {
		c.clock.Stop()
	}
	if c.sync != nil {
		c.sync.Close()
	}
}
