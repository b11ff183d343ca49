package session

import (
	"course_portal_backend/internal/model"
	"sort"
)

type Phase string

const (
	PhaseResolving         Phase = "RESOLVING"
	PhaseInProgress        Phase = "IN_PROGRESS"
	PhaseSubmitting        Phase = "SUBMITTING"
	PhaseExpiredSubmitting Phase = "EXPIRED_SUBMITTING"
	PhaseSubmitted         Phase = "SUBMITTED"
	PhaseError             Phase = "ERROR"
)

// AnswerState is the locally cached answer for one question.
type AnswerState struct {
	SelectedAnswerIDs model.AnswerIDs
	TextAnswer        string
}

func (a AnswerState) Answered() bool {
	return len(a.SelectedAnswerIDs) > 0 || a.TextAnswer != ""
}

func (a AnswerState) payload() model.AnswerPayload {
	return model.AnswerPayload{
		SelectedAnswerIDs: append(model.AnswerIDs{}, a.SelectedAnswerIDs...),
		TextAnswer:        a.TextAnswer,
	}
}

// SessionState holds everything one visit to the assessment screen knows.
// It is created per visit and never shared between visits; flags and the
// current index live only here and are gone after a reload.
type SessionState struct {
	Phase     Phase
	Attempt   *model.Attempt
	Questions []model.Question
	Answers   map[uint]AnswerState
	Flags     map[uint]bool
	Index     int
	LastError error
}

func NewSessionState() *SessionState {
	return &SessionState{
		Phase:   PhaseResolving,
		Answers: make(map[uint]AnswerState),
		Flags:   make(map[uint]bool),
	}
}

// Hydrate loads a resolved attempt: its questions in position order and every
// persisted answer. It returns the last persisted sequence number per question.
func (s *SessionState) Hydrate(attempt *model.Attempt) map[uint]uint64 {
	s.Attempt = attempt
	s.Questions = append([]model.Question(nil), attempt.Questions...)
	sort.SliceStable(s.Questions, func(i, j int) bool {
		return s.Questions[i].Position < s.Questions[j].Position
	})
	s.Answers = make(map[uint]AnswerState, len(attempt.Answers))
	s.Flags = make(map[uint]bool)
	s.Index = 0

	seqs := make(map[uint]uint64, len(attempt.Answers))
	for _, a := range attempt.Answers {
		s.Answers[a.QuestionID] = AnswerState{
			SelectedAnswerIDs: append(model.AnswerIDs{}, a.SelectedAnswerIDs...),
			TextAnswer:        a.TextAnswer,
		}
		seqs[a.QuestionID] = a.ClientSeq
	}
	return seqs
}

func (s *SessionState) Question(questionID uint) (*model.Question, bool) {
	for i := range s.Questions {
		if s.Questions[i].ID == questionID {
			return &s.Questions[i], true
		}
	}
	return nil, false
}

// ApplySelection updates the cached selection for a choice question.
// Single choice replaces the set; multiple choice toggles membership.
func (s *SessionState) ApplySelection(q *model.Question, answerID uint) AnswerState {
	current := s.Answers[q.ID]
	var next model.AnswerIDs
	switch q.Type {
	case model.SingleChoice:
		next = model.AnswerIDs{answerID}
	default:
		if current.SelectedAnswerIDs.Contains(answerID) {
			next = make(model.AnswerIDs, 0, len(current.SelectedAnswerIDs))
			for _, id := range current.SelectedAnswerIDs {
				if id != answerID {
					next = append(next, id)
				}
			}
		} else {
			next = append(append(model.AnswerIDs{}, current.SelectedAnswerIDs...), answerID)
		}
	}
	updated := AnswerState{SelectedAnswerIDs: next}
	s.Answers[q.ID] = updated
	return updated
}

func (s *SessionState) SetText(questionID uint, text string) AnswerState {
	updated := AnswerState{TextAnswer: text}
	s.Answers[questionID] = updated
	return updated
}

func (s *SessionState) ToggleFlag(questionID uint) bool {
	if s.Flags[questionID] {
		delete(s.Flags, questionID)
		return false
	}
	s.Flags[questionID] = true
	return true
}

func (s *SessionState) JumpTo(index int) error {
	if index < 0 || index >= len(s.Questions) {
		return ErrQuestionIndexOutOfRange
	}
	s.Index = index
	return nil
}

// Summary counts shown in the submit confirmation dialog.
type Summary struct {
	Total      int
	Answered   int
	Unanswered int
	Flagged    int
	Unsaved    int
}

func (s *SessionState) Summary() Summary {
	sum := Summary{Total: len(s.Questions), Flagged: len(s.Flags)}
	for _, q := range s.Questions {
		if s.Answers[q.ID].Answered() {
			sum.Answered++
		}
	}
	sum.Unanswered = sum.Total - sum.Answered
	return sum
}

func (s *SessionState) copyAnswers() map[uint]AnswerState {
	out := make(map[uint]AnswerState, len(s.Answers))
	for k, v := range s.Answers {
		out[k] = AnswerState{
			SelectedAnswerIDs: append(model.AnswerIDs{}, v.SelectedAnswerIDs...),
			TextAnswer:        v.TextAnswer,
		}
	}
	return out
}

func (s *SessionState) copyFlags() map[uint]bool {
	out := make(map[uint]bool, len(s.Flags))
	for k, v := range s.Flags {
		out[k] = v
	}
	return out
}
