package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"course_portal_backend/internal/model"
	"course_portal_backend/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUI struct {
	snap     session.Snapshot
	selected [][2]uint
	texts    map[uint]string
	submits  int
	graded   *model.GradedAttempt
}

func newStubUI() *stubUI {
	return &stubUI{
		snap: session.Snapshot{
			Phase: session.PhaseInProgress,
			Questions: []model.Question{
				{BaseModel: model.BaseModel{ID: 1}, Type: model.SingleChoice, Content: "Capital of France?", Points: 1,
					Answers: []model.Answer{{BaseModel: model.BaseModel{ID: 11}, Content: "Paris"}, {BaseModel: model.BaseModel{ID: 12}, Content: "Rome"}}},
				{BaseModel: model.BaseModel{ID: 3}, Type: model.Essay, Content: "Describe Paris.", Points: 3},
			},
			Answers: map[uint]session.AnswerState{},
			Flags:   map[uint]bool{},
		},
		texts: map[uint]string{},
	}
}

func (s *stubUI) Snapshot() session.Snapshot { return s.snap }
func (s *stubUI) Summary() session.Summary {
	return session.Summary{Total: len(s.snap.Questions), Answered: len(s.selected) + len(s.texts)}
}
func (s *stubUI) Next() int {
	if s.snap.Index < len(s.snap.Questions)-1 {
		s.snap.Index++
	}
	return s.snap.Index
}
func (s *stubUI) Previous() int {
	if s.snap.Index > 0 {
		s.snap.Index--
	}
	return s.snap.Index
}
func (s *stubUI) JumpTo(index int) error {
	if index < 0 || index >= len(s.snap.Questions) {
		return session.ErrQuestionIndexOutOfRange
	}
	s.snap.Index = index
	return nil
}
func (s *stubUI) SelectAnswer(questionID, answerID uint) (session.AnswerState, error) {
	s.selected = append(s.selected, [2]uint{questionID, answerID})
	return session.AnswerState{SelectedAnswerIDs: model.AnswerIDs{answerID}}, nil
}
func (s *stubUI) SetEssayText(questionID uint, text string) error {
	s.texts[questionID] = text
	return nil
}
func (s *stubUI) ToggleFlag(questionID uint) (bool, error) {
	s.snap.Flags[questionID] = !s.snap.Flags[questionID]
	return s.snap.Flags[questionID], nil
}
func (s *stubUI) Submit(ctx context.Context, userConfirmed bool) (uint, error) {
	s.submits++
	return 1, nil
}
func (s *stubUI) Graded() *model.GradedAttempt { return s.graded }

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want command
	}{
		{"n", command{kind: cmdNext}},
		{" p ", command{kind: cmdPrev}},
		{"j 2", command{kind: cmdJump, n: 2}},
		{"s 1", command{kind: cmdSelect, n: 1}},
		{"e Paris is the capital", command{kind: cmdEssay, text: "Paris is the capital"}},
		{"submit", command{kind: cmdSubmit}},
		{"q", command{kind: cmdQuit}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "x", "j", "j 0", "s abc"} {
		_, err := parseCommand(bad)
		assert.Error(t, err, bad)
	}
}

func TestTerminal_EditsGoThroughController(t *testing.T) {
	ui := newStubUI()
	var out bytes.Buffer
	term := newTerminal(ui, strings.NewReader(""), &out)

	assert.False(t, term.handleLine(context.Background(), "s 2"))
	assert.Equal(t, [][2]uint{{1, 12}}, ui.selected)

	assert.False(t, term.handleLine(context.Background(), "s 3"))
	assert.Contains(t, out.String(), "question has 2 options")

	term.handleLine(context.Background(), "n")
	term.handleLine(context.Background(), "e Paris is old")
	assert.Equal(t, "Paris is old", ui.texts[3])

	term.handleLine(context.Background(), "f")
	assert.True(t, ui.snap.Flags[3])

	term.handleLine(context.Background(), "j 9")
	assert.Contains(t, out.String(), "error:")
}

func TestTerminal_SubmitNeedsConfirmation(t *testing.T) {
	ui := newStubUI()
	var out bytes.Buffer
	term := newTerminal(ui, strings.NewReader(""), &out)

	term.handleLine(context.Background(), "submit")
	assert.Equal(t, 0, ui.submits)
	assert.Contains(t, out.String(), "type submit again")

	// any other command cancels the pending confirmation
	term.handleLine(context.Background(), "n")
	term.handleLine(context.Background(), "submit")
	assert.Equal(t, 0, ui.submits)

	term.handleLine(context.Background(), "submit")
	assert.Equal(t, 1, ui.submits)
}

func TestTerminal_FinalizedEventRendersResult(t *testing.T) {
	ui := newStubUI()
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	done := start.Add(45 * time.Second)
	correct := true
	ui.graded = &model.GradedAttempt{
		Attempt: model.Attempt{
			BaseModel: model.BaseModel{ID: 1}, StartTime: start, CompletedAt: &done,
			Status: model.AttemptSubmitted, EndReason: model.EndReasonManual,
			Grade: 1, MaxGrade: 4, CorrectAnswers: 1, PendingReview: 1,
		},
		Results: []model.GradedQuestion{
			{QuestionID: 1, Position: 1, Type: model.SingleChoice, Content: "Capital of France?",
				Answers: []model.Answer{{BaseModel: model.BaseModel{ID: 11}, Content: "Paris"}}, SelectedAnswerIDs: model.AnswerIDs{11}, IsCorrect: &correct},
			{QuestionID: 3, Position: 2, Type: model.Essay, Content: "Describe Paris.", TextAnswer: "old"},
		},
	}

	var out bytes.Buffer
	term := newTerminal(ui, strings.NewReader(""), &out)
	assert.True(t, term.handleEvent(session.Event{Type: session.EventFinalized}))

	text := out.String()
	assert.Contains(t, text, "attempt 1: 1/4 (not passed)")
	assert.Contains(t, text, "45s")
	assert.Contains(t, text, "[correct] Paris")
	assert.Contains(t, text, "[pending review] old")
}

func TestTerminal_RunStopsOnQuit(t *testing.T) {
	ui := newStubUI()
	var out bytes.Buffer
	term := newTerminal(ui, strings.NewReader("s 1\nq\n"), &out)

	require.NoError(t, term.run(context.Background(), make(chan session.Event)))
	assert.Len(t, ui.selected, 1)
	assert.Contains(t, out.String(), "attempt stays open")
}

func TestRenderHistory(t *testing.T) {
	var out bytes.Buffer
	renderHistory(&out, nil)
	assert.Contains(t, out.String(), "no submitted attempts")
}
