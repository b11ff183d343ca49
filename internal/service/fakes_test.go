package service

import (
	"context"
	"course_portal_backend/internal/model"
	"course_portal_backend/internal/util"
	"sync"
	"time"

	"gorm.io/gorm"
)

type memQuizStore struct {
	quizzes map[uint]*model.Quiz
	items   map[uint]*model.ChapterItem
}

func (s *memQuizStore) FindQuizByID(ctx context.Context, id uint) (*model.Quiz, error) {
	q, ok := s.quizzes[id]
	if !ok {
		return nil, util.ErrQuizNotFound
	}
	return q, nil
}

func (s *memQuizStore) FindChapterItemByID(ctx context.Context, id uint) (*model.ChapterItem, error) {
	it, ok := s.items[id]
	if !ok {
		return nil, util.ErrChapterItemNotFound
	}
	return it, nil
}

type memAttemptStore struct {
	mu       sync.Mutex
	nextID   uint
	attempts map[uint]*model.Attempt
	answers  map[uint][]model.AttemptAnswer
	creates  int
	finalize int
}

func newMemAttemptStore() *memAttemptStore {
	return &memAttemptStore{attempts: map[uint]*model.Attempt{}, answers: map[uint][]model.AttemptAnswer{}}
}

func (s *memAttemptStore) copyOf(a *model.Attempt) *model.Attempt {
	c := *a
	c.Answers = append([]model.AttemptAnswer{}, s.answers[a.ID]...)
	return &c
}

func (s *memAttemptStore) Create(ctx context.Context, attempt *model.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.OpenKey != nil && attempt.OpenKey != nil && *a.OpenKey == *attempt.OpenKey {
			return gorm.ErrDuplicatedKey
		}
	}
	s.nextID++
	s.creates++
	attempt.ID = s.nextID
	c := *attempt
	c.Answers = nil
	s.attempts[attempt.ID] = &c
	return nil
}

func (s *memAttemptStore) FindByID(ctx context.Context, id uint) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, util.ErrAttemptNotFound
	}
	return s.copyOf(a), nil
}

func (s *memAttemptStore) FindOpen(ctx context.Context, studentID, chapterItemID uint) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.StudentID == studentID && a.ChapterItemID == chapterItemID && a.IsOpen() {
			return s.copyOf(a), nil
		}
	}
	return nil, util.ErrNoOpenAttempt
}

func (s *memAttemptStore) CountSubmitted(ctx context.Context, studentID, chapterItemID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, a := range s.attempts {
		if a.StudentID == studentID && a.ChapterItemID == chapterItemID && !a.IsOpen() {
			n++
		}
	}
	return n, nil
}

func (s *memAttemptStore) ListByStudentAndItem(ctx context.Context, studentID, chapterItemID uint) ([]model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Attempt
	for id := s.nextID; id > 0; id-- {
		a, ok := s.attempts[id]
		if ok && a.StudentID == studentID && a.ChapterItemID == chapterItemID {
			out = append(out, *s.copyOf(a))
		}
	}
	return out, nil
}

func (s *memAttemptStore) ListExpiredOpen(ctx context.Context, before time.Time, limit int) ([]model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Attempt
	for _, a := range s.attempts {
		if a.IsOpen() && a.Deadline != nil && a.Deadline.Before(before) {
			out = append(out, *s.copyOf(a))
		}
	}
	return out, nil
}

func (s *memAttemptStore) UpsertAnswer(ctx context.Context, answer *model.AttemptAnswer) (*model.AttemptAnswer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[answer.AttemptID]
	if !ok {
		return nil, false, util.ErrAttemptNotFound
	}
	if !a.IsOpen() {
		return nil, false, util.ErrAttemptNotInProgress
	}
	list := s.answers[answer.AttemptID]
	for i := range list {
		if list[i].QuestionID != answer.QuestionID {
			continue
		}
		if answer.ClientSeq != 0 && answer.ClientSeq <= list[i].ClientSeq {
			stored := list[i]
			return &stored, false, nil
		}
		list[i].SelectedAnswerIDs = answer.SelectedAnswerIDs
		list[i].TextAnswer = answer.TextAnswer
		list[i].ClientSeq = answer.ClientSeq
		stored := list[i]
		return &stored, true, nil
	}
	stored := *answer
	stored.ID = uint(len(list) + 1000*int(answer.AttemptID))
	s.answers[answer.AttemptID] = append(list, stored)
	return &stored, true, nil
}

func (s *memAttemptStore) Finalize(ctx context.Context, attempt *model.Attempt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attempt.ID]
	if !ok || !a.IsOpen() {
		return false, nil
	}
	s.finalize++
	c := *attempt
	c.Status = model.AttemptSubmitted
	c.OpenKey = nil
	c.Answers = nil
	s.attempts[attempt.ID] = &c
	s.answers[attempt.ID] = append([]model.AttemptAnswer{}, attempt.Answers...)
	return true, nil
}

// seedSubmitted inserts a finished attempt for history and limit checks.
func (s *memAttemptStore) seedSubmitted(studentID, quizID, chapterItemID uint, start time.Time) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	done := start.Add(time.Minute)
	s.attempts[s.nextID] = &model.Attempt{
		BaseModel:     model.BaseModel{ID: s.nextID},
		QuizID:        quizID,
		ChapterItemID: chapterItemID,
		StudentID:     studentID,
		StartTime:     start,
		CompletedAt:   &done,
		Status:        model.AttemptSubmitted,
		EndReason:     model.EndReasonManual,
	}
	return s.nextID
}

type memLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *memLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*sync.Mutex{}
	}
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock, nil
}

type recordingArchiver struct {
	mu       sync.Mutex
	archived []uint
}

func (r *recordingArchiver) Archive(graded *model.GradedAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archived = append(r.archived, graded.ID)
}
