package session

import "errors"

var (
	ErrResolveFailed           = errors.New("could not start or resume the attempt")
	ErrResolveInFlight         = errors.New("attempt resolution already in progress")
	ErrSubmitInFlight          = errors.New("submission already in progress")
	ErrUnsavedAnswers          = errors.New("some answers are not saved yet")
	ErrSessionClosed           = errors.New("session is closed")
	ErrNotInProgress           = errors.New("attempt is not in progress")
	ErrTimeExpired             = errors.New("time is up")
	ErrUnknownQuestion         = errors.New("unknown question")
	ErrUnknownAnswer           = errors.New("answer does not belong to question")
	ErrWrongQuestionType       = errors.New("operation not valid for this question type")
	ErrQuestionIndexOutOfRange = errors.New("question index out of range")
	ErrResultUnavailable       = errors.New("result unavailable")
)
