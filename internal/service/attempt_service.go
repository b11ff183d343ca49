package service

import (
	"context"
	"course_portal_backend/internal/config"
	"course_portal_backend/internal/model"
	"course_portal_backend/internal/util"
	"course_portal_backend/pkg/logger"
	"course_portal_backend/pkg/monitoring"
	"course_portal_backend/pkg/tracing"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// QuizStore 测验只读访问
type QuizStore interface {
	FindQuizByID(ctx context.Context, id uint) (*model.Quiz, error)
	FindChapterItemByID(ctx context.Context, id uint) (*model.ChapterItem, error)
}

// AttemptStore 尝试与答案的持久化
type AttemptStore interface {
	Create(ctx context.Context, attempt *model.Attempt) error
	FindByID(ctx context.Context, id uint) (*model.Attempt, error)
	FindOpen(ctx context.Context, studentID, chapterItemID uint) (*model.Attempt, error)
	CountSubmitted(ctx context.Context, studentID, chapterItemID uint) (int64, error)
	ListByStudentAndItem(ctx context.Context, studentID, chapterItemID uint) ([]model.Attempt, error)
	ListExpiredOpen(ctx context.Context, before time.Time, limit int) ([]model.Attempt, error)
	UpsertAnswer(ctx context.Context, answer *model.AttemptAnswer) (*model.AttemptAnswer, bool, error)
	Finalize(ctx context.Context, attempt *model.Attempt) (bool, error)
}

// ReceiptArchiver 异步归档已完成尝试
type ReceiptArchiver interface {
	Archive(graded *model.GradedAttempt)
}

const sweepBatchSize = 100

type AttemptService struct {
	Quizzes  QuizStore
	Attempts AttemptStore
	Locker   AttemptLocker
	Receipts ReceiptArchiver

	mu  sync.RWMutex
	cfg config.AssessmentConfig
	now func() time.Time
}

func NewAttemptService(quizzes QuizStore, attempts AttemptStore, locker AttemptLocker, receipts ReceiptArchiver, cfg config.AssessmentConfig) *AttemptService {
	return &AttemptService{
		Quizzes:  quizzes,
		Attempts: attempts,
		Locker:   locker,
		Receipts: receipts,
		cfg:      cfg,
		now:      time.Now,
	}
}

// UpdateConfig 配置热更新
func (s *AttemptService) UpdateConfig(cfg config.AssessmentConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

func (s *AttemptService) config() config.AssessmentConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func attemptLockKey(attemptID uint) string {
	return fmt.Sprintf("lock:attempt:%d", attemptID)
}

func startLockKey(studentID, chapterItemID uint) string {
	return fmt.Sprintf("lock:attempt-start:%d:%d", studentID, chapterItemID)
}

// GetQuiz 返回学生可见的测验（不含正确答案标记）
func (s *AttemptService) GetQuiz(ctx context.Context, quizID uint) (*model.Quiz, error) {
	return s.Quizzes.FindQuizByID(ctx, quizID)
}

// StartAttempt 创建新的尝试；已有进行中的尝试时直接返回它
func (s *AttemptService) StartAttempt(ctx context.Context, studentID, quizID, chapterItemID uint) (attempt *model.Attempt, err error) {
	ctx, span := tracing.StartSpan(ctx, "attempt.start",
		attribute.Int64("student.id", int64(studentID)),
		attribute.Int64("chapter_item.id", int64(chapterItemID)))
	defer func() { tracing.EndSpan(span, err) }()

	item, err := s.Quizzes.FindChapterItemByID(ctx, chapterItemID)
	if err != nil {
		return nil, err
	}
	if item.QuizID != quizID {
		return nil, fmt.Errorf("chapter item %d does not reference quiz %d: %w", chapterItemID, quizID, util.ErrChapterItemNotFound)
	}
	quiz, err := s.Quizzes.FindQuizByID(ctx, quizID)
	if err != nil {
		return nil, err
	}

	release, err := s.Locker.Acquire(ctx, startLockKey(studentID, chapterItemID))
	if err != nil {
		return nil, err
	}
	defer release()

	open, err := s.Attempts.FindOpen(ctx, studentID, chapterItemID)
	if err == nil {
		return s.present(open, quiz), nil
	}
	if !errors.Is(err, util.ErrNoOpenAttempt) {
		return nil, err
	}

	now := s.now()
	if quiz.AvailableFrom != nil && now.Before(*quiz.AvailableFrom) {
		return nil, util.ErrQuizNotYetAvailable
	}
	if quiz.AvailableUntil != nil && now.After(*quiz.AvailableUntil) {
		return nil, util.ErrQuizNoLongerAvailable
	}

	if quiz.MaxAttempts != nil {
		used, err := s.Attempts.CountSubmitted(ctx, studentID, chapterItemID)
		if err != nil {
			return nil, err
		}
		if used >= int64(*quiz.MaxAttempts) {
			return nil, util.ErrAttemptsExhausted
		}
	}

	openKey := model.OpenKeyFor(studentID, chapterItemID)
	attempt = &model.Attempt{
		QuizID:        quizID,
		ChapterItemID: chapterItemID,
		StudentID:     studentID,
		StartTime:     now,
		Status:        model.AttemptInProgress,
		OpenKey:       &openKey,
		Answers:       []model.AttemptAnswer{},
	}
	if limit := quiz.TimeLimit(); limit > 0 {
		deadline := now.Add(limit)
		attempt.Deadline = &deadline
	}

	if err := s.Attempts.Create(ctx, attempt); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// 其他实例抢先创建，返回那一个
			open, findErr := s.Attempts.FindOpen(ctx, studentID, chapterItemID)
			if findErr != nil {
				return nil, findErr
			}
			return s.present(open, quiz), nil
		}
		return nil, err
	}

	monitoring.AttemptsStarted.Inc()
	logger.Log.Info("Attempt started",
		zap.Uint("attemptID", attempt.ID),
		zap.Uint("studentID", studentID),
		zap.Uint("quizID", quizID),
		zap.Uint("chapterItemID", chapterItemID))

	return s.present(attempt, quiz), nil
}

// GetCurrentAttempt 返回进行中的尝试；没有时返回 util.ErrNoOpenAttempt。
// 已过截止时间但尚未被清理的尝试照常返回，剩余时间为 0，由客户端立即触发提交。
func (s *AttemptService) GetCurrentAttempt(ctx context.Context, studentID, chapterItemID uint) (*model.Attempt, error) {
	open, err := s.Attempts.FindOpen(ctx, studentID, chapterItemID)
	if err != nil {
		return nil, err
	}
	quiz, err := s.Quizzes.FindQuizByID(ctx, open.QuizID)
	if err != nil {
		return nil, err
	}
	return s.present(open, quiz), nil
}

// SaveAnswer 覆盖写入单题答案，返回服务端当前存储的答案
func (s *AttemptService) SaveAnswer(ctx context.Context, studentID, attemptID, questionID uint, payload model.AnswerPayload) (*model.AttemptAnswer, error) {
	stored, err := s.saveAnswer(ctx, studentID, attemptID, questionID, payload)
	if err != nil {
		monitoring.AnswerSaves.WithLabelValues("rejected").Inc()
		return nil, err
	}
	return stored, nil
}

func (s *AttemptService) saveAnswer(ctx context.Context, studentID, attemptID, questionID uint, payload model.AnswerPayload) (*model.AttemptAnswer, error) {
	release, err := s.Locker.Acquire(ctx, attemptLockKey(attemptID))
	if err != nil {
		return nil, err
	}
	defer release()

	attempt, err := s.ownedAttempt(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if !attempt.IsOpen() {
		return nil, util.ErrAttemptNotInProgress
	}
	if attempt.DeadlinePassed(s.now(), s.config().DeadlineGrace()) {
		return nil, util.ErrAttemptDeadlinePassed
	}

	quiz, err := s.Quizzes.FindQuizByID(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}
	question := findQuestion(quiz, questionID)
	if question == nil {
		return nil, util.ErrQuestionNotFound
	}
	selected, err := validateAnswer(question, payload)
	if err != nil {
		return nil, err
	}

	stored, applied, err := s.Attempts.UpsertAnswer(ctx, &model.AttemptAnswer{
		AttemptID:         attemptID,
		QuestionID:        questionID,
		SelectedAnswerIDs: selected,
		TextAnswer:        payload.TextAnswer,
		ClientSeq:         payload.Seq,
	})
	if err != nil {
		return nil, err
	}

	if applied {
		monitoring.AnswerSaves.WithLabelValues("applied").Inc()
	} else {
		monitoring.AnswerSaves.WithLabelValues("stale").Inc()
		logger.Log.Debug("Stale answer save ignored",
			zap.Uint("attemptID", attemptID),
			zap.Uint("questionID", questionID),
			zap.Uint64("seq", payload.Seq),
			zap.Uint64("storedSeq", stored.ClientSeq))
	}
	return stored, nil
}

// SubmitAttempt 提交并评分。已提交的尝试直接返回存储的成绩，不重新评分。
func (s *AttemptService) SubmitAttempt(ctx context.Context, studentID, attemptID uint) (graded *model.GradedAttempt, err error) {
	ctx, span := tracing.StartSpan(ctx, "attempt.submit", attribute.Int64("attempt.id", int64(attemptID)))
	defer func() { tracing.EndSpan(span, err) }()

	release, err := s.Locker.Acquire(ctx, attemptLockKey(attemptID))
	if err != nil {
		return nil, err
	}
	defer release()

	attempt, err := s.ownedAttempt(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	quiz, err := s.Quizzes.FindQuizByID(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}
	if !attempt.IsOpen() {
		return buildGradedAttempt(attempt, quiz), nil
	}

	reason := model.EndReasonManual
	if attempt.DeadlinePassed(s.now(), 0) {
		reason = model.EndReasonTimeout
	}
	return s.finalize(ctx, attempt, quiz, reason)
}

// GetAttemptDetail 已提交尝试的成绩详情
func (s *AttemptService) GetAttemptDetail(ctx context.Context, studentID, attemptID uint) (*model.GradedAttempt, error) {
	attempt, err := s.ownedAttempt(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.IsOpen() {
		return nil, util.ErrAttemptNotSubmitted
	}
	quiz, err := s.Quizzes.FindQuizByID(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}
	return buildGradedAttempt(attempt, quiz), nil
}

// GetAttemptsHistory 章节项下已提交的尝试，按开始时间倒序
func (s *AttemptService) GetAttemptsHistory(ctx context.Context, studentID, chapterItemID uint) ([]model.GradedAttempt, error) {
	attempts, err := s.Attempts.ListByStudentAndItem(ctx, studentID, chapterItemID)
	if err != nil {
		return nil, err
	}

	quizzes := make(map[uint]*model.Quiz)
	history := make([]model.GradedAttempt, 0, len(attempts))
	for i := range attempts {
		a := &attempts[i]
		if a.IsOpen() {
			continue
		}
		quiz, ok := quizzes[a.QuizID]
		if !ok {
			quiz, err = s.Quizzes.FindQuizByID(ctx, a.QuizID)
			if err != nil {
				return nil, err
			}
			quizzes[a.QuizID] = quiz
		}
		history = append(history, *buildGradedAttempt(a, quiz))
	}
	return history, nil
}

// SweepExpired 关闭截止时间（含宽限）已过的进行中尝试，返回本轮关闭数量
func (s *AttemptService) SweepExpired(ctx context.Context) (int, error) {
	now := s.now()
	grace := s.config().DeadlineGrace()
	expired, err := s.Attempts.ListExpiredOpen(ctx, now.Add(-grace), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	closed := 0
	for i := range expired {
		ok, err := s.sweepOne(ctx, expired[i].ID, now, grace)
		if err != nil {
			logger.Log.Warn("Failed to finalize expired attempt", zap.Uint("attemptID", expired[i].ID), zap.Error(err))
			continue
		}
		if ok {
			closed++
		}
	}
	return closed, nil
}

func (s *AttemptService) sweepOne(ctx context.Context, attemptID uint, now time.Time, grace time.Duration) (bool, error) {
	release, err := s.Locker.Acquire(ctx, attemptLockKey(attemptID))
	if err != nil {
		return false, err
	}
	defer release()

	attempt, err := s.Attempts.FindByID(ctx, attemptID)
	if err != nil {
		return false, err
	}
	if !attempt.IsOpen() || !attempt.DeadlinePassed(now, grace) {
		return false, nil
	}
	quiz, err := s.Quizzes.FindQuizByID(ctx, attempt.QuizID)
	if err != nil {
		return false, err
	}
	if _, err := s.finalize(ctx, attempt, quiz, model.EndReasonTimeout); err != nil {
		return false, err
	}
	return true, nil
}

func (s *AttemptService) finalize(ctx context.Context, attempt *model.Attempt, quiz *model.Quiz, reason string) (*model.GradedAttempt, error) {
	completedAt := s.now()
	attempt.CompletedAt = &completedAt
	attempt.EndReason = reason
	gradeAttempt(attempt, quiz)

	finalized, err := s.Attempts.Finalize(ctx, attempt)
	if err != nil {
		return nil, err
	}
	if !finalized {
		current, err := s.Attempts.FindByID(ctx, attempt.ID)
		if err != nil {
			return nil, err
		}
		return buildGradedAttempt(current, quiz), nil
	}

	attempt.Status = model.AttemptSubmitted
	attempt.OpenKey = nil
	monitoring.AttemptsFinalized.WithLabelValues(reason).Inc()
	logger.Log.Info("Attempt finalized",
		zap.Uint("attemptID", attempt.ID),
		zap.Uint("studentID", attempt.StudentID),
		zap.String("reason", reason),
		zap.Float64("grade", attempt.Grade),
		zap.Bool("passed", attempt.IsPassed))

	graded := buildGradedAttempt(attempt, quiz)
	if s.Receipts != nil {
		s.Receipts.Archive(graded)
	}
	return graded, nil
}

func (s *AttemptService) ownedAttempt(ctx context.Context, studentID, attemptID uint) (*model.Attempt, error) {
	attempt, err := s.Attempts.FindByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.StudentID != studentID {
		return nil, util.ErrPermissionDenied
	}
	return attempt, nil
}

// present 填充响应所需的瞬时字段
func (s *AttemptService) present(attempt *model.Attempt, quiz *model.Quiz) *model.Attempt {
	attempt.RemainingTimeSeconds = attempt.RemainingAt(s.now())
	attempt.TimeLimitMinutes = quiz.TimeLimitMinutes
	attempt.Questions = quiz.Questions
	if attempt.Answers == nil {
		attempt.Answers = []model.AttemptAnswer{}
	}
	return attempt
}

func findQuestion(quiz *model.Quiz, questionID uint) *model.Question {
	for i := range quiz.Questions {
		if quiz.Questions[i].ID == questionID {
			return &quiz.Questions[i]
		}
	}
	return nil
}

// validateAnswer 校验答案形态，返回规范化后的选项集合
func validateAnswer(q *model.Question, payload model.AnswerPayload) (model.AnswerIDs, error) {
	if q.Type == model.Essay {
		if len(payload.SelectedAnswerIDs) > 0 {
			return nil, util.ErrQuestionTypeNotAllowed
		}
		return model.AnswerIDs{}, nil
	}

	if payload.TextAnswer != "" {
		return nil, util.ErrQuestionTypeNotAllowed
	}
	selected := payload.SelectedAnswerIDs.Normalized()
	if q.Type == model.SingleChoice && len(selected) > 1 {
		return nil, fmt.Errorf("single choice question %d accepts one option: %w", q.ID, util.ErrInvalidAnswer)
	}
	for _, id := range selected {
		if !q.HasAnswer(id) {
			return nil, fmt.Errorf("option %d does not belong to question %d: %w", id, q.ID, util.ErrInvalidAnswer)
		}
	}
	return selected, nil
}
