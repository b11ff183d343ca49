package repository

import (
	"context"
	"course_portal_backend/internal/model"
	"course_portal_backend/internal/util"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuizRepository struct {
	DB *gorm.DB
}

func NewQuizRepository(db *gorm.DB) *QuizRepository {
	return &QuizRepository{DB: db}
}

// FindQuizByID 加载测验及其按 position 排序的题目和选项
func (r *QuizRepository) FindQuizByID(ctx context.Context, id uint) (*model.Quiz, error) {
	var quiz model.Quiz
	err := r.DB.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		Preload("Questions.Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		First(&quiz, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrQuizNotFound
	}
	if err != nil {
		return nil, err
	}
	return &quiz, nil
}

func (r *QuizRepository) FindChapterItemByID(ctx context.Context, id uint) (*model.ChapterItem, error) {
	var item model.ChapterItem
	err := r.DB.WithContext(ctx).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrChapterItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// SaveQuiz 按 ID 创建或整体覆盖测验（题目与选项一起），供种子脚本使用
func (r *QuizRepository) SaveQuiz(ctx context.Context, quiz *model.Quiz) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if quiz.ID != 0 {
			var questionIDs []uint
			if err := tx.Model(&model.Question{}).Where("quiz_id = ?", quiz.ID).Pluck("id", &questionIDs).Error; err != nil {
				return err
			}
			if len(questionIDs) > 0 {
				if err := tx.Unscoped().Where("question_id IN ?", questionIDs).Delete(&model.Answer{}).Error; err != nil {
					return err
				}
				if err := tx.Unscoped().Where("quiz_id = ?", quiz.ID).Delete(&model.Question{}).Error; err != nil {
					return err
				}
			}
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(quiz).Error
	})
}

func (r *QuizRepository) SaveChapterItem(ctx context.Context, item *model.ChapterItem) error {
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(item).Error
}
