package repository

import (
	"context"
	"course_portal_backend/internal/model"
	"course_portal_backend/internal/util"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

// Create 插入新的进行中尝试。OpenKey 唯一索引冲突时返回 gorm.ErrDuplicatedKey
func (r *AttemptRepository) Create(ctx context.Context, attempt *model.Attempt) error {
	return r.DB.WithContext(ctx).Omit("Answers").Create(attempt).Error
}

func (r *AttemptRepository) FindByID(ctx context.Context, id uint) (*model.Attempt, error) {
	var a model.Attempt
	err := r.DB.WithContext(ctx).Preload("Answers").First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindOpen 查找学生在该章节项下进行中的尝试，没有时返回 util.ErrNoOpenAttempt
func (r *AttemptRepository) FindOpen(ctx context.Context, studentID, chapterItemID uint) (*model.Attempt, error) {
	var a model.Attempt
	err := r.DB.WithContext(ctx).
		Preload("Answers").
		Where("student_id = ? AND chapter_item_id = ? AND status = ?", studentID, chapterItemID, model.AttemptInProgress).
		Order("id DESC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrNoOpenAttempt
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AttemptRepository) CountSubmitted(ctx context.Context, studentID, chapterItemID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Attempt{}).
		Where("student_id = ? AND chapter_item_id = ? AND status = ?", studentID, chapterItemID, model.AttemptSubmitted).
		Count(&count).Error
	return count, err
}

func (r *AttemptRepository) ListByStudentAndItem(ctx context.Context, studentID, chapterItemID uint) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.DB.WithContext(ctx).
		Preload("Answers").
		Where("student_id = ? AND chapter_item_id = ?", studentID, chapterItemID).
		Order("start_time DESC, id DESC").
		Find(&attempts).Error
	return attempts, err
}

// ListExpiredOpen 返回截止时间早于 before 的进行中尝试
func (r *AttemptRepository) ListExpiredOpen(ctx context.Context, before time.Time, limit int) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.DB.WithContext(ctx).
		Where("status = ? AND deadline IS NOT NULL AND deadline < ?", model.AttemptInProgress, before).
		Order("deadline ASC").
		Limit(limit).
		Find(&attempts).Error
	return attempts, err
}

// UpsertAnswer 在行锁保护下写入单题答案。
// seq 不大于已存储的 ClientSeq 时不覆盖（seq 为 0 视为无序号，总是覆盖），返回当前存储值与是否生效。
func (r *AttemptRepository) UpsertAnswer(ctx context.Context, answer *model.AttemptAnswer) (*model.AttemptAnswer, bool, error) {
	var stored model.AttemptAnswer
	applied := false

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var attempt model.Attempt
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "status").
			First(&attempt, answer.AttemptID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.ErrAttemptNotFound
			}
			return err
		}
		if !attempt.IsOpen() {
			return util.ErrAttemptNotInProgress
		}

		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("attempt_id = ? AND question_id = ?", answer.AttemptID, answer.QuestionID).
			First(&stored).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			stored = *answer
			applied = true
			return tx.Create(&stored).Error
		}
		if err != nil {
			return err
		}

		if answer.ClientSeq != 0 && answer.ClientSeq <= stored.ClientSeq {
			return nil
		}
		stored.SelectedAnswerIDs = answer.SelectedAnswerIDs
		stored.TextAnswer = answer.TextAnswer
		stored.ClientSeq = answer.ClientSeq
		applied = true
		return tx.Model(&stored).Select("SelectedAnswerIDs", "TextAnswer", "ClientSeq").Updates(&stored).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &stored, applied, nil
}

// Finalize 条件更新：仅当尝试仍为 IN_PROGRESS 时写入成绩并关闭，返回是否由本次调用完成
func (r *AttemptRepository) Finalize(ctx context.Context, attempt *model.Attempt) (bool, error) {
	finalized := false
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Attempt{}).
			Where("id = ? AND status = ?", attempt.ID, model.AttemptInProgress).
			Updates(map[string]interface{}{
				"status":               model.AttemptSubmitted,
				"open_key":             nil,
				"completed_at":         attempt.CompletedAt,
				"end_reason":           attempt.EndReason,
				"grade":                attempt.Grade,
				"max_grade":            attempt.MaxGrade,
				"is_passed":            attempt.IsPassed,
				"correct_answers":      attempt.CorrectAnswers,
				"incorrect_answers":    attempt.IncorrectAnswers,
				"unanswered_questions": attempt.UnansweredQuestions,
				"pending_review":       attempt.PendingReview,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		finalized = true

		for i := range attempt.Answers {
			ans := &attempt.Answers[i]
			if ans.ID == 0 {
				continue
			}
			if err := tx.Model(&model.AttemptAnswer{}).
				Where("id = ?", ans.ID).
				Update("is_correct", ans.IsCorrect).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return finalized, err
}
