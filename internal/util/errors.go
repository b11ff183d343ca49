package util

import (
	"errors"
	"net/http"
)

var (
	ErrPermissionDenied       = errors.New("permission denied")
	ErrQuizNotFound           = errors.New("quiz not found")
	ErrChapterItemNotFound    = errors.New("chapter item not found")
	ErrQuestionNotFound       = errors.New("question not found in quiz")
	ErrQuizNotYetAvailable    = errors.New("quiz not yet available")
	ErrQuizNoLongerAvailable  = errors.New("quiz no longer available")
	ErrAttemptsExhausted      = errors.New("maximum number of attempts reached")
	ErrAttemptNotFound        = errors.New("attempt not found")
	ErrNoOpenAttempt          = errors.New("no open attempt")
	ErrAttemptNotInProgress   = errors.New("attempt is not in progress")
	ErrAttemptNotSubmitted    = errors.New("attempt has not been submitted")
	ErrAttemptDeadlinePassed  = errors.New("attempt deadline has passed")
	ErrAttemptBusy            = errors.New("attempt is being modified by another request")
	ErrInvalidAnswer          = errors.New("invalid answer for question")
	ErrQuestionTypeNotAllowed = errors.New("answer shape does not match question type")
)

// domainError 将领域错误映射为 HTTP 状态码与稳定的 reason 编码，客户端据此还原错误
type domainError struct {
	err    error
	status int
	reason string
}

var domainErrors = []domainError{
	{ErrPermissionDenied, http.StatusForbidden, "permission_denied"},
	{ErrQuizNotFound, http.StatusNotFound, "quiz_not_found"},
	{ErrChapterItemNotFound, http.StatusNotFound, "chapter_item_not_found"},
	{ErrQuestionNotFound, http.StatusNotFound, "question_not_found"},
	{ErrQuizNotYetAvailable, http.StatusForbidden, "quiz_not_yet_available"},
	{ErrQuizNoLongerAvailable, http.StatusForbidden, "quiz_no_longer_available"},
	{ErrAttemptsExhausted, http.StatusConflict, "attempts_exhausted"},
	{ErrAttemptNotFound, http.StatusNotFound, "attempt_not_found"},
	{ErrNoOpenAttempt, http.StatusNotFound, "no_open_attempt"},
	{ErrAttemptNotInProgress, http.StatusConflict, "attempt_not_in_progress"},
	{ErrAttemptNotSubmitted, http.StatusConflict, "attempt_not_submitted"},
	{ErrAttemptDeadlinePassed, http.StatusConflict, "deadline_passed"},
	{ErrAttemptBusy, http.StatusConflict, "attempt_busy"},
	{ErrInvalidAnswer, http.StatusBadRequest, "invalid_answer"},
	{ErrQuestionTypeNotAllowed, http.StatusBadRequest, "question_type_mismatch"},
}

// StatusAndReason returns the HTTP status and reason code for err.
// Unknown errors map to 500 with an empty reason.
func StatusAndReason(err error) (int, string) {
	for _, d := range domainErrors {
		if errors.Is(err, d.err) {
			return d.status, d.reason
		}
	}
	return http.StatusInternalServerError, ""
}

// ErrorForReason 客户端使用：根据 reason 编码还原哨兵错误
func ErrorForReason(reason string) error {
	for _, d := range domainErrors {
		if d.reason == reason {
			return d.err
		}
	}
	return nil
}
