package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "IN_PROGRESS"
	AttemptSubmitted  AttemptStatus = "SUBMITTED"
)

const (
	EndReasonManual  = "manual"
	EndReasonTimeout = "timeout"
)

// swagger:model Attempt
type Attempt struct {
	BaseModel
	QuizID        uint          `gorm:"index;type:bigint unsigned" json:"quizId"`
	ChapterItemID uint          `gorm:"index:idx_attempt_student_item;type:bigint unsigned" json:"chapterItemId"`
	StudentID     uint          `gorm:"index:idx_attempt_student_item;type:bigint unsigned" json:"studentId"`
	StartTime     time.Time     `json:"startTime"`
	Deadline      *time.Time    `json:"deadline,omitempty"` // 不限时测验为 nil
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`
	Status        AttemptStatus `gorm:"size:20;default:'IN_PROGRESS';index" json:"status"`
	EndReason     string        `gorm:"size:20" json:"endReason,omitempty"`
	// OpenKey 仅在 IN_PROGRESS 时非空，唯一索引保证每个 (学生, 章节项) 最多一个进行中的尝试
	OpenKey *string `gorm:"size:64;uniqueIndex" json:"-"`

	Grade               float64 `gorm:"default:0" json:"grade"`
	MaxGrade            float64 `gorm:"default:0" json:"maxGrade"`
	IsPassed            bool    `gorm:"default:false" json:"isPassed"`
	CorrectAnswers      int     `gorm:"default:0" json:"correctAnswers"`
	IncorrectAnswers    int     `gorm:"default:0" json:"incorrectAnswers"`
	UnansweredQuestions int     `gorm:"default:0" json:"unansweredQuestions"`
	PendingReview       int     `gorm:"default:0" json:"pendingReview"`

	Answers []AttemptAnswer `gorm:"foreignKey:AttemptID" json:"answers"`

	RemainingTimeSeconds *int       `gorm:"-" json:"remainingTimeSeconds"`
	TimeLimitMinutes     int        `gorm:"-" json:"timeLimitMinutes"`
	Questions            []Question `gorm:"-" json:"questions,omitempty"`
}

func (Attempt) TableName() string {
	return "attempts"
}

func OpenKeyFor(studentID, chapterItemID uint) string {
	return fmt.Sprintf("%d:%d", studentID, chapterItemID)
}

func (a *Attempt) IsOpen() bool {
	return a.Status == AttemptInProgress
}

// RemainingAt 计算 now 时刻剩余秒数，不限时返回 nil
func (a *Attempt) RemainingAt(now time.Time) *int {
	if a.Deadline == nil {
		return nil
	}
	secs := int(a.Deadline.Sub(now).Seconds())
	if secs < 0 {
		secs = 0
	}
	return &secs
}

// DeadlinePassed reports whether now is after the deadline plus grace.
func (a *Attempt) DeadlinePassed(now time.Time, grace time.Duration) bool {
	return a.Deadline != nil && now.After(a.Deadline.Add(grace))
}

// AttemptAnswer 每个 (attempt, question) 只有一条，原地更新
type AttemptAnswer struct {
	BaseModel
	AttemptID         uint      `gorm:"uniqueIndex:idx_attempt_question;type:bigint unsigned" json:"attemptId"`
	QuestionID        uint      `gorm:"uniqueIndex:idx_attempt_question;type:bigint unsigned" json:"questionId"`
	SelectedAnswerIDs AnswerIDs `gorm:"type:json" json:"selectedAnswerIds"`
	TextAnswer        string    `gorm:"type:text" json:"textAnswer"`
	ClientSeq         uint64    `gorm:"default:0" json:"seq"`
	IsCorrect         *bool     `json:"isCorrect,omitempty"`
}

func (AttemptAnswer) TableName() string {
	return "attempt_answers"
}

// IsEmpty reports whether the student has not given any answer.
func (a *AttemptAnswer) IsEmpty() bool {
	return a == nil || (len(a.SelectedAnswerIDs) == 0 && a.TextAnswer == "")
}

// AnswerPayload 保存单题答案的请求体
type AnswerPayload struct {
	SelectedAnswerIDs AnswerIDs `json:"selectedAnswerIds"`
	TextAnswer        string    `json:"textAnswer"`
	Seq               uint64    `json:"seq"`
}

// AnswerIDs 以 JSON 数组存储的选项 ID 集合
type AnswerIDs []uint

func (ids AnswerIDs) Value() (driver.Value, error) {
	if ids == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]uint(ids))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (ids *AnswerIDs) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*ids = AnswerIDs{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported AnswerIDs source %T", value)
	}
	var out []uint
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return err
		}
	}
	*ids = AnswerIDs(out)
	return nil
}

func (ids AnswerIDs) Contains(id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Normalized returns a sorted copy without duplicates.
func (ids AnswerIDs) Normalized() AnswerIDs {
	seen := make(map[uint]bool, len(ids))
	out := make(AnswerIDs, 0, len(ids))
	for _, v := range ids {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SameSet compares two id lists ignoring order and duplicates.
func (ids AnswerIDs) SameSet(other AnswerIDs) bool {
	a, b := ids.Normalized(), other.Normalized()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// GradedQuestion 单题批改结果
type GradedQuestion struct {
	QuestionID        uint         `json:"questionId"`
	Position          int          `json:"position"`
	Type              QuestionType `json:"type"`
	Content           string       `json:"content"`
	Points            float64      `json:"points"`
	Answers           []Answer     `json:"answers,omitempty"`
	SelectedAnswerIDs AnswerIDs    `json:"selectedAnswerIds"`
	TextAnswer        string       `json:"textAnswer,omitempty"`
	IsCorrect         *bool        `json:"isCorrect"` // nil 表示未作答或待人工批改
}

// swagger:model GradedAttempt
type GradedAttempt struct {
	Attempt
	Results []GradedQuestion `json:"results"`
}
