package main

import (
	"bufio"
	"context"
	"course_portal_backend/internal/model"
	"course_portal_backend/internal/session"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// sessionUI is the part of session.Controller the terminal drives.
type sessionUI interface {
	Snapshot() session.Snapshot
	Summary() session.Summary
	Next() int
	Previous() int
	JumpTo(index int) error
	SelectAnswer(questionID, answerID uint) (session.AnswerState, error)
	SetEssayText(questionID uint, text string) error
	ToggleFlag(questionID uint) (bool, error)
	Submit(ctx context.Context, userConfirmed bool) (uint, error)
	Graded() *model.GradedAttempt
}

type commandKind int

const (
	cmdNext commandKind = iota
	cmdPrev
	cmdJump
	cmdSelect
	cmdEssay
	cmdFlag
	cmdSummary
	cmdSubmit
	cmdQuit
	cmdHelp
)

type command struct {
	kind commandKind
	n    int
	text string
}

var errUnknownCommand = errors.New("unknown command, type ? for help")

func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, errUnknownCommand
	}
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	number := func() (int, error) {
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			return 0, fmt.Errorf("%s expects a number starting at 1", name)
		}
		return n, nil
	}

	switch name {
	case "n":
		return command{kind: cmdNext}, nil
	case "p":
		return command{kind: cmdPrev}, nil
	case "j":
		n, err := number()
		return command{kind: cmdJump, n: n}, err
	case "s":
		n, err := number()
		return command{kind: cmdSelect, n: n}, err
	case "e":
		return command{kind: cmdEssay, text: rest}, nil
	case "f":
		return command{kind: cmdFlag}, nil
	case "sum":
		return command{kind: cmdSummary}, nil
	case "submit":
		return command{kind: cmdSubmit}, nil
	case "q", "quit":
		return command{kind: cmdQuit}, nil
	case "?", "help":
		return command{kind: cmdHelp}, nil
	}
	return command{}, errUnknownCommand
}

const helpText = `commands:
  n / p        next / previous question
  j N          jump to question N
  s N          toggle option N (single choice replaces)
  e TEXT       set essay answer
  f            flag / unflag current question
  sum          show summary
  submit       submit (asks for confirmation)
  q            leave; the attempt stays open and can be resumed`

type terminal struct {
	ctrl      sessionUI
	in        io.Reader
	out       io.Writer
	confirm   bool
	lastShown int
}

func newTerminal(ctrl sessionUI, in io.Reader, out io.Writer) *terminal {
	return &terminal{ctrl: ctrl, in: in, out: out, lastShown: -1}
}

func (t *terminal) run(ctx context.Context, events <-chan session.Event) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(t.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	t.renderQuestion()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(t.out, "interrupted; the attempt stays open and can be resumed")
			return nil
		case e := <-events:
			if t.handleEvent(e) {
				return nil
			}
		case line, ok := <-lines:
			if !ok {
				return t.drain(ctx, events)
			}
			if t.handleLine(ctx, line) {
				return nil
			}
		}
	}
}

// drain waits for an in-flight auto submit after stdin closes.
func (t *terminal) drain(ctx context.Context, events <-chan session.Event) error {
	snap := t.ctrl.Snapshot()
	if snap.Phase != session.PhaseSubmitting && snap.Phase != session.PhaseExpiredSubmitting {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			if t.handleEvent(e) {
				return nil
			}
		}
	}
}

// handleEvent returns true once the attempt is finalized.
func (t *terminal) handleEvent(e session.Event) bool {
	switch e.Type {
	case session.EventTick:
		if e.Remaining <= 10 || e.Remaining%30 == 0 {
			fmt.Fprintf(t.out, "[time left %s]\n", formatSeconds(e.Remaining))
		}
	case session.EventPhase:
		if e.Phase == session.PhaseExpiredSubmitting {
			fmt.Fprintln(t.out, "time is up, submitting...")
		}
	case session.EventSaveStatus:
		if e.SaveStatus == session.SaveStatusFailed {
			fmt.Fprintf(t.out, "[answer for question %d not saved yet, will resend on submit]\n", e.QuestionID)
		}
	case session.EventError:
		fmt.Fprintf(t.out, "error: %v\n", e.Err)
	case session.EventFinalized:
		if graded := t.ctrl.Graded(); graded != nil {
			renderResult(t.out, session.Summarize(graded))
		}
		return true
	}
	return false
}

// handleLine returns true when the user leaves.
func (t *terminal) handleLine(ctx context.Context, line string) bool {
	cmd, err := parseCommand(line)
	if err != nil {
		fmt.Fprintln(t.out, err)
		return false
	}
	if cmd.kind != cmdSubmit {
		t.confirm = false
	}

	snap := t.ctrl.Snapshot()
	var current *model.Question
	if snap.Index >= 0 && snap.Index < len(snap.Questions) {
		current = &snap.Questions[snap.Index]
	}

	switch cmd.kind {
	case cmdNext:
		t.ctrl.Next()
	case cmdPrev:
		t.ctrl.Previous()
	case cmdJump:
		err = t.ctrl.JumpTo(cmd.n - 1)
	case cmdSelect:
		if current == nil {
			return false
		}
		if cmd.n > len(current.Answers) {
			err = fmt.Errorf("question has %d options", len(current.Answers))
			break
		}
		_, err = t.ctrl.SelectAnswer(current.ID, current.Answers[cmd.n-1].ID)
	case cmdEssay:
		if current == nil {
			return false
		}
		err = t.ctrl.SetEssayText(current.ID, cmd.text)
	case cmdFlag:
		if current == nil {
			return false
		}
		_, err = t.ctrl.ToggleFlag(current.ID)
	case cmdSummary:
		t.renderSummary()
		return false
	case cmdHelp:
		fmt.Fprintln(t.out, helpText)
		return false
	case cmdQuit:
		fmt.Fprintln(t.out, "leaving; the attempt stays open and can be resumed")
		return true
	case cmdSubmit:
		if !t.confirm {
			t.renderSummary()
			fmt.Fprintln(t.out, "type submit again to confirm")
			t.confirm = true
			return false
		}
		t.confirm = false
		if _, err := t.ctrl.Submit(ctx, true); err != nil {
			switch {
			case errors.Is(err, session.ErrSubmitInFlight):
				fmt.Fprintln(t.out, "submit already in progress")
			case errors.Is(err, session.ErrUnsavedAnswers):
				fmt.Fprintln(t.out, "some answers are not saved yet, try submit again")
			default:
				fmt.Fprintf(t.out, "submit failed: %v\n", err)
			}
		}
		return false
	}

	if err != nil {
		fmt.Fprintf(t.out, "error: %v\n", err)
		return false
	}
	t.renderQuestion()
	return false
}

func (t *terminal) renderSummary() {
	s := t.ctrl.Summary()
	fmt.Fprintf(t.out, "answered %d/%d, unanswered %d, flagged %d, unsaved %d\n",
		s.Answered, s.Total, s.Unanswered, s.Flagged, s.Unsaved)
}

func (t *terminal) renderQuestion() {
	snap := t.ctrl.Snapshot()
	if len(snap.Questions) == 0 {
		fmt.Fprintln(t.out, "this quiz has no questions; type submit twice to finish")
		return
	}
	q := snap.Questions[snap.Index]
	ans := snap.Answers[q.ID]

	header := fmt.Sprintf("Question %d/%d (%s, %g pts)", snap.Index+1, len(snap.Questions), q.Type, q.Points)
	if snap.Flags[q.ID] {
		header += " [flagged]"
	}
	if snap.Remaining != nil {
		header += " time left " + formatSeconds(*snap.Remaining)
	}
	fmt.Fprintln(t.out, header)
	fmt.Fprintln(t.out, q.Content)

	if q.Type == model.Essay {
		if ans.TextAnswer != "" {
			fmt.Fprintf(t.out, "  your answer: %s\n", ans.TextAnswer)
		}
		return
	}
	for i, opt := range q.Answers {
		mark := " "
		if ans.SelectedAnswerIDs.Contains(opt.ID) {
			mark = "x"
		}
		fmt.Fprintf(t.out, "  [%s] %d. %s\n", mark, i+1, opt.Content)
	}
}

func formatSeconds(secs int) string {
	return (time.Duration(secs) * time.Second).String()
}

func renderResult(w io.Writer, res *session.Result) {
	verdict := "not passed"
	if res.IsPassed {
		verdict = "passed"
	}
	fmt.Fprintf(w, "attempt %d: %g/%g (%s), ended by %s in %s\n",
		res.AttemptID, res.Grade, res.MaxGrade, verdict, res.EndReason, res.Elapsed.Round(time.Second))
	fmt.Fprintf(w, "correct %d, incorrect %d, unanswered %d, pending review %d\n",
		res.Correct, res.Incorrect, res.Unanswered, res.PendingReview)
	for _, item := range res.Review {
		status := "unanswered"
		switch {
		case item.PendingReview():
			status = "pending review"
		case item.IsCorrect != nil && *item.IsCorrect:
			status = "correct"
		case item.IsCorrect != nil:
			status = "incorrect"
		}
		answer := item.TextAnswer
		if item.Type != model.Essay {
			answer = strings.Join(item.SelectedAnswers, ", ")
		}
		fmt.Fprintf(w, "  %d. %s  [%s] %s\n", item.Position, item.Content, status, answer)
	}
}

func renderHistory(w io.Writer, history []model.GradedAttempt) {
	if len(history) == 0 {
		fmt.Fprintln(w, "no submitted attempts")
		return
	}
	for _, a := range history {
		completed := "-"
		if a.CompletedAt != nil {
			completed = a.CompletedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "#%d  %s  %g/%g  passed=%t  %s\n", a.ID, completed, a.Grade, a.MaxGrade, a.IsPassed, a.EndReason)
	}
}
