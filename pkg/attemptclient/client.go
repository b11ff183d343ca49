// Package attemptclient talks to the course portal assessment API over HTTP.
package attemptclient

import (
	"bytes"
	"context"
	"course_portal_backend/internal/model"
	"course_portal_backend/internal/util"
	"course_portal_backend/pkg/tracing"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIError is a non-2xx response without a known reason code.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// ErrEmptyResponse is returned when a call that must yield a resource got
// a success envelope without data.
var ErrEmptyResponse = errors.New("empty response data")

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Reason  string          `json:"reason"`
	Data    json.RawMessage `json:"data"`
}

// do sends the request and decodes data into out. It returns false when the
// response carried no data.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) (bool, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return false, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", util.MimeJSON)
	if body != nil {
		req.Header.Set("Content-Type", util.MimeJSON)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	tracing.InjectHeaders(ctx, req.Header)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return false, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}

	if resp.StatusCode >= 300 {
		if sentinel := util.ErrorForReason(env.Reason); sentinel != nil {
			return false, fmt.Errorf("%s %s: %w", method, path, sentinel)
		}
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return false, &APIError{Status: resp.StatusCode, Message: msg}
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return false, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return true, nil
}

func (c *Client) GetQuiz(ctx context.Context, quizID uint) (*model.Quiz, error) {
	var quiz model.Quiz
	if _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/quizzes/%d", quizID), nil, &quiz); err != nil {
		return nil, err
	}
	return &quiz, nil
}

func (c *Client) StartAttempt(ctx context.Context, quizID, chapterItemID uint) (*model.Attempt, error) {
	var attempt model.Attempt
	path := fmt.Sprintf("/quizzes/%d/chapter-items/%d/attempts", quizID, chapterItemID)
	found, err := c.do(ctx, http.MethodPost, path, nil, &attempt)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("POST %s: %w", path, ErrEmptyResponse)
	}
	return &attempt, nil
}

// GetCurrentAttempt returns util.ErrNoOpenAttempt when the server reports none.
func (c *Client) GetCurrentAttempt(ctx context.Context, chapterItemID uint) (*model.Attempt, error) {
	var attempt model.Attempt
	found, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/chapter-items/%d/attempts/current", chapterItemID), nil, &attempt)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, util.ErrNoOpenAttempt
	}
	return &attempt, nil
}

// SaveAnswer returns the answer the server holds after the call, which is the
// previously stored one when payload.Seq was stale.
func (c *Client) SaveAnswer(ctx context.Context, attemptID, questionID uint, payload model.AnswerPayload) (*model.AttemptAnswer, error) {
	if payload.SelectedAnswerIDs == nil {
		payload.SelectedAnswerIDs = model.AnswerIDs{}
	}
	var stored model.AttemptAnswer
	path := fmt.Sprintf("/attempts/%d/answers/%d", attemptID, questionID)
	found, err := c.do(ctx, http.MethodPut, path, payload, &stored)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("PUT %s: %w", path, ErrEmptyResponse)
	}
	return &stored, nil
}

func (c *Client) SubmitAttempt(ctx context.Context, attemptID uint) (*model.GradedAttempt, error) {
	var graded model.GradedAttempt
	path := fmt.Sprintf("/attempts/%d/submit", attemptID)
	found, err := c.do(ctx, http.MethodPost, path, nil, &graded)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("POST %s: %w", path, ErrEmptyResponse)
	}
	return &graded, nil
}

func (c *Client) GetAttemptDetail(ctx context.Context, attemptID uint) (*model.GradedAttempt, error) {
	var graded model.GradedAttempt
	path := fmt.Sprintf("/attempts/%d", attemptID)
	found, err := c.do(ctx, http.MethodGet, path, nil, &graded)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("GET %s: %w", path, ErrEmptyResponse)
	}
	return &graded, nil
}

func (c *Client) GetAttemptsHistory(ctx context.Context, chapterItemID uint) ([]model.GradedAttempt, error) {
	history := []model.GradedAttempt{}
	if _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/chapter-items/%d/attempts", chapterItemID), nil, &history); err != nil {
		return nil, err
	}
	return history, nil
}
