package session

import (
	"context"
	"course_portal_backend/internal/model"
	"course_portal_backend/internal/util"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

type SaveStatus string

const (
	SaveStatusSaved    SaveStatus = "saved"
	SaveStatusSaving   SaveStatus = "saving"
	SaveStatusRetrying SaveStatus = "retrying"
	SaveStatusFailed   SaveStatus = "failed"
)

// RetryPolicy bounds the backoff used for failed answer saves.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     8 * time.Second,
		MaxElapsedTime:  time.Minute,
	}
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = p.MaxElapsedTime
	return b
}

var errSuperseded = errors.New("superseded by a newer save")

// rejections that retrying cannot fix
var permanentSaveErrors = []error{
	util.ErrAttemptNotInProgress,
	util.ErrAttemptDeadlinePassed,
	util.ErrAttemptNotFound,
	util.ErrPermissionDenied,
	util.ErrQuestionNotFound,
	util.ErrInvalidAnswer,
	util.ErrQuestionTypeNotAllowed,
}

func isPermanentSaveError(err error) bool {
	for _, p := range permanentSaveErrors {
		if errors.Is(err, p) {
			return true
		}
	}
	return false
}

type questionSync struct {
	seq      uint64
	dirty    bool
	status   SaveStatus
	inflight int
	last     model.AnswerPayload
}

// AnswerSyncChannel persists answer edits in the background. Every save for a
// question carries a higher sequence number than the one before; only the
// outcome of the latest save decides whether the question is still dirty.
type AnswerSyncChannel struct {
	repo      AttemptRepository
	attemptID uint
	retry     RetryPolicy
	log       *zap.Logger
	onStatus  func(questionID uint, status SaveStatus)

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	questions    map[uint]*questionSync
	inflight     int
	idle         chan struct{}
	closed       bool
	serverClosed bool
}

func NewAnswerSyncChannel(repo AttemptRepository, attemptID uint, retry RetryPolicy, log *zap.Logger, onStatus func(uint, SaveStatus)) *AnswerSyncChannel {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &AnswerSyncChannel{
		repo:      repo,
		attemptID: attemptID,
		retry:     retry,
		log:       log,
		onStatus:  onStatus,
		ctx:       ctx,
		cancel:    cancel,
		questions: make(map[uint]*questionSync),
		idle:      idle,
	}
}

// Seed records the sequence number already persisted for a question so new
// saves continue above it.
func (s *AnswerSyncChannel) Seed(questionID uint, persistedSeq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.question(questionID).seq = persistedSeq
}

func (s *AnswerSyncChannel) question(questionID uint) *questionSync {
	q, ok := s.questions[questionID]
	if !ok {
		q = &questionSync{status: SaveStatusSaved}
		s.questions[questionID] = q
	}
	return q
}

// Save queues the payload and returns at once. It reports false when the
// channel is already closed.
func (s *AnswerSyncChannel) Save(questionID uint, payload model.AnswerPayload) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.dispatchLocked(questionID, payload)
	return true
}

func (s *AnswerSyncChannel) dispatchLocked(questionID uint, payload model.AnswerPayload) {
	q := s.question(questionID)
	q.seq++
	payload.Seq = q.seq
	q.last = payload
	q.dirty = true
	q.status = SaveStatusSaving
	q.inflight++
	if s.inflight == 0 {
		s.idle = make(chan struct{})
	}
	s.inflight++
	go s.run(questionID, payload)
}

func (s *AnswerSyncChannel) run(questionID uint, payload model.AnswerPayload) {
	s.setStatus(questionID, payload.Seq, SaveStatusSaving)
	attempt := 0
	var stored *model.AttemptAnswer
	op := func() error {
		if !s.isLatest(questionID, payload.Seq) {
			return backoff.Permanent(errSuperseded)
		}
		attempt++
		// 请求不随会话关闭而取消，只停止后续重试
		var err error
		stored, err = s.repo.SaveAnswer(context.Background(), s.attemptID, questionID, payload)
		if err == nil {
			return nil
		}
		if isPermanentSaveError(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		s.log.Warn("Answer save failed, retrying",
			zap.Uint("attemptID", s.attemptID),
			zap.Uint("questionID", questionID),
			zap.Uint64("seq", payload.Seq),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
		s.setStatus(questionID, payload.Seq, SaveStatusRetrying)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(s.retry.backOff(), s.ctx), notify)
	s.complete(questionID, payload, stored, err)
}

func (s *AnswerSyncChannel) isLatest(questionID uint, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.question(questionID).seq == seq
}

func (s *AnswerSyncChannel) setStatus(questionID uint, seq uint64, status SaveStatus) {
	s.mu.Lock()
	q := s.question(questionID)
	if q.seq != seq {
		s.mu.Unlock()
		return
	}
	q.status = status
	s.mu.Unlock()
	s.emit(questionID, status)
}

// complete settles one save. When the backend kept a different answer under
// an equal or higher seq (a save from an earlier visit reached it first), the
// latest edit is sent again above the stored seq instead of being reported
// as saved.
func (s *AnswerSyncChannel) complete(questionID uint, payload model.AnswerPayload, stored *model.AttemptAnswer, err error) {
	seq := payload.Seq
	s.mu.Lock()
	q := s.question(questionID)

	latest := q.seq == seq
	resent := false
	var status SaveStatus
	if latest {
		switch {
		case err == nil && stored != nil && stored.ClientSeq >= seq && !sameAnswer(stored, q.last):
			q.seq = stored.ClientSeq
			if s.closed {
				status = SaveStatusFailed
				break
			}
			s.log.Info("Answer save overtaken by an older save, resending",
				zap.Uint("attemptID", s.attemptID),
				zap.Uint("questionID", questionID),
				zap.Uint64("seq", seq),
				zap.Uint64("storedSeq", stored.ClientSeq))
			// 先派发再扣减计数，Flush 等待的 idle 不会提前关闭
			s.dispatchLocked(questionID, q.last)
			resent = true
		case err == nil:
			if stored != nil && stored.ClientSeq > q.seq {
				q.seq = stored.ClientSeq
			}
			q.dirty = false
			status = SaveStatusSaved
		default:
			status = SaveStatusFailed
			if errors.Is(err, util.ErrAttemptNotInProgress) || errors.Is(err, util.ErrAttemptDeadlinePassed) {
				s.serverClosed = true
			}
		}
		if !resent {
			q.status = status
		}
	}

	q.inflight--
	s.inflight--
	if s.inflight == 0 {
		close(s.idle)
	}
	s.mu.Unlock()

	if err != nil && !errors.Is(err, errSuperseded) {
		s.log.Warn("Answer save abandoned",
			zap.Uint("attemptID", s.attemptID),
			zap.Uint("questionID", questionID),
			zap.Uint64("seq", seq),
			zap.Bool("latest", latest),
			zap.Error(err))
	}
	if latest && !resent {
		s.emit(questionID, status)
	}
}

// sameAnswer compares the stored answer with a payload ignoring option order.
func sameAnswer(stored *model.AttemptAnswer, payload model.AnswerPayload) bool {
	return stored.TextAnswer == payload.TextAnswer && stored.SelectedAnswerIDs.SameSet(payload.SelectedAnswerIDs)
}

func (s *AnswerSyncChannel) emit(questionID uint, status SaveStatus) {
	if s.onStatus != nil {
		s.onStatus(questionID, status)
	}
}

// Flush resends answers whose last save failed, waits for in-flight saves and
// reports ErrUnsavedAnswers if any question is still dirty when they settle
// or ctx ends.
func (s *AnswerSyncChannel) Flush(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed && !s.serverClosed {
		for id, q := range s.questions {
			if q.dirty && q.inflight == 0 {
				s.dispatchLocked(id, q.last)
			}
		}
	}
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
	case <-ctx.Done():
	}

	if n := len(s.DirtyQuestions()); n > 0 {
		return ErrUnsavedAnswers
	}
	return nil
}

// DirtyQuestions lists questions whose latest edit is not confirmed saved.
func (s *AnswerSyncChannel) DirtyQuestions() []uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint
	for id, q := range s.questions {
		if q.dirty {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *AnswerSyncChannel) Statuses() map[uint]SaveStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint]SaveStatus, len(s.questions))
	for id, q := range s.questions {
		out[id] = q.status
	}
	return out
}

// ServerClosed reports whether the backend has refused a save because the
// attempt is over.
func (s *AnswerSyncChannel) ServerClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverClosed
}

// Close stops accepting saves and abandons pending retries. Requests already
// on the wire finish in the background.
func (s *AnswerSyncChannel) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}
