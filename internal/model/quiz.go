package model

import "time"

type QuestionType string

const (
	SingleChoice   QuestionType = "SINGLE_CHOICE"
	MultipleChoice QuestionType = "MULTIPLE_CHOICE"
	Essay          QuestionType = "ESSAY"
)

func (t QuestionType) IsChoice() bool {
	return t == SingleChoice || t == MultipleChoice
}

func (t QuestionType) Valid() bool {
	return t.IsChoice() || t == Essay
}

// swagger:model Quiz
type Quiz struct {
	BaseModel
	Title            string     `gorm:"size:255;not null" json:"title" yaml:"title"`
	Description      string     `gorm:"type:text" json:"description" yaml:"description"`
	TimeLimitMinutes int        `gorm:"default:0" json:"timeLimitMinutes" yaml:"timeLimitMinutes"` // 0 表示不限时
	MinPassScore     float64    `gorm:"default:0" json:"minPassScore" yaml:"minPassScore"`
	MaxAttempts      *int       `json:"maxAttempts" yaml:"maxAttempts"` // nil 表示不限次数
	AvailableFrom    *time.Time `json:"availableFrom,omitempty" yaml:"availableFrom"`
	AvailableUntil   *time.Time `json:"availableUntil,omitempty" yaml:"availableUntil"`
	Questions        []Question `gorm:"foreignKey:QuizID" json:"questions,omitempty" yaml:"questions"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// TimeLimit returns zero for untimed quizzes.
func (q *Quiz) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitMinutes) * time.Minute
}

// ChapterItem 章节中的一个位置，同一测验可被多个章节引用
type ChapterItem struct {
	BaseModel
	ChapterID uint   `gorm:"index;type:bigint unsigned" json:"chapterId" yaml:"chapterId"`
	QuizID    uint   `gorm:"index;type:bigint unsigned" json:"quizId" yaml:"quizId"`
	Position  int    `gorm:"default:0" json:"position" yaml:"position"`
	Title     string `gorm:"size:255" json:"title" yaml:"title"`
}

func (ChapterItem) TableName() string {
	return "chapter_items"
}

// swagger:model Question
type Question struct {
	BaseModel
	QuizID   uint         `gorm:"index;type:bigint unsigned" json:"quizId" yaml:"-"`
	Type     QuestionType `gorm:"size:32;not null" json:"type" yaml:"type"`
	Content  string       `gorm:"type:text;not null" json:"content" yaml:"content"`
	Points   float64      `gorm:"default:1" json:"points" yaml:"points"`
	Position int          `gorm:"default:0" json:"position" yaml:"position"`
	Answers  []Answer     `gorm:"foreignKey:QuestionID" json:"answers,omitempty" yaml:"answers"`
}

func (Question) TableName() string {
	return "questions"
}

// HasAnswer reports whether answerID is one of the question's options.
func (q *Question) HasAnswer(answerID uint) bool {
	for _, a := range q.Answers {
		if a.ID == answerID {
			return true
		}
	}
	return false
}

// CorrectAnswerIDs 仅服务端评分使用
func (q *Question) CorrectAnswerIDs() AnswerIDs {
	ids := make(AnswerIDs, 0, len(q.Answers))
	for _, a := range q.Answers {
		if a.IsCorrect {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// Answer 选择题选项。IsCorrect 不会序列化给学生。
type Answer struct {
	BaseModel
	QuestionID uint   `gorm:"index;type:bigint unsigned" json:"questionId" yaml:"-"`
	Content    string `gorm:"type:text;not null" json:"content" yaml:"content"`
	Position   int    `gorm:"default:0" json:"position" yaml:"position"`
	IsCorrect  bool   `gorm:"default:false" json:"-" yaml:"isCorrect"`
}

func (Answer) TableName() string {
	return "answers"
}
