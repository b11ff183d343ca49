// Package seed imports quizzes and chapter placements from a yaml file.
package seed

import (
	"context"
	"course_portal_backend/internal/model"
	"course_portal_backend/pkg/logger"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type QuizFixture struct {
	ID         uint `yaml:"id"`
	model.Quiz `yaml:",inline"`
}

type ChapterItemFixture struct {
	ID                uint `yaml:"id"`
	model.ChapterItem `yaml:",inline"`
}

type Fixture struct {
	Quizzes      []QuizFixture        `yaml:"quizzes"`
	ChapterItems []ChapterItemFixture `yaml:"chapterItems"`
}

type QuizWriter interface {
	SaveQuiz(ctx context.Context, quiz *model.Quiz) error
	SaveChapterItem(ctx context.Context, item *model.ChapterItem) error
}

func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func LoadFile(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func (f *Fixture) validate() error {
	quizIDs := make(map[uint]bool, len(f.Quizzes))
	for i, q := range f.Quizzes {
		if q.ID == 0 {
			return fmt.Errorf("quizzes[%d]: id is required", i)
		}
		if q.TimeLimitMinutes < 0 {
			return fmt.Errorf("quiz %d: timeLimitMinutes must not be negative", q.ID)
		}
		if q.MaxAttempts != nil && *q.MaxAttempts < 1 {
			return fmt.Errorf("quiz %d: maxAttempts must be at least 1", q.ID)
		}
		for j, question := range q.Questions {
			if !question.Type.Valid() {
				return fmt.Errorf("quiz %d question %d: unknown type %q", q.ID, j, question.Type)
			}
			if question.Type == model.Essay && len(question.Answers) > 0 {
				return fmt.Errorf("quiz %d question %d: essay must not have options", q.ID, j)
			}
			if question.Type.IsChoice() && len(question.Answers) == 0 {
				return fmt.Errorf("quiz %d question %d: choice question needs options", q.ID, j)
			}
		}
		quizIDs[q.ID] = true
	}
	for i, item := range f.ChapterItems {
		if item.ID == 0 {
			return fmt.Errorf("chapterItems[%d]: id is required", i)
		}
		if !quizIDs[item.QuizID] {
			return fmt.Errorf("chapter item %d: unknown quiz %d", item.ID, item.QuizID)
		}
	}
	return nil
}

// Apply 按 id 覆盖写入，重复执行结果一致
func Apply(ctx context.Context, w QuizWriter, f *Fixture) error {
	for i := range f.Quizzes {
		quiz := f.Quizzes[i].Quiz
		quiz.ID = f.Quizzes[i].ID
		for j := range quiz.Questions {
			if quiz.Questions[j].Position == 0 {
				quiz.Questions[j].Position = j + 1
			}
			for k := range quiz.Questions[j].Answers {
				if quiz.Questions[j].Answers[k].Position == 0 {
					quiz.Questions[j].Answers[k].Position = k + 1
				}
			}
		}
		if err := w.SaveQuiz(ctx, &quiz); err != nil {
			return fmt.Errorf("save quiz %d: %w", quiz.ID, err)
		}
		logger.Log.Info("quiz seeded", zap.Uint("quizId", quiz.ID), zap.Int("questions", len(quiz.Questions)))
	}
	for i := range f.ChapterItems {
		item := f.ChapterItems[i].ChapterItem
		item.ID = f.ChapterItems[i].ID
		if err := w.SaveChapterItem(ctx, &item); err != nil {
			return fmt.Errorf("save chapter item %d: %w", item.ID, err)
		}
	}
	return nil
}
