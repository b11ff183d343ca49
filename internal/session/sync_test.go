package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"course_portal_backend/internal/model"
	"course_portal_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerSyncChannel_SeqContinuesFromPersisted(t *testing.T) {
	repo := newFakeRepo(0)
	ch := NewAnswerSyncChannel(repo, 100, fastRetry(), nil, nil)
	ch.Seed(1, 7)

	require.True(t, ch.Save(1, model.AnswerPayload{SelectedAnswerIDs: model.AnswerIDs{11}}))
	require.NoError(t, ch.Flush(context.Background()))

	stored, ok := repo.storedAnswer(1)
	require.True(t, ok)
	assert.Equal(t, uint64(8), stored.ClientSeq)
	assert.Equal(t, SaveStatusSaved, ch.Statuses()[1])
}

func TestAnswerSyncChannel_LateResponseDoesNotOverrideNewerEdit(t *testing.T) {
	repo := newFakeRepo(0)
	releaseFirst := make(chan struct{})
	repo.saveHook = func(questionID uint, p model.AnswerPayload) error {
		if p.Seq == 1 {
			<-releaseFirst
		}
		return nil
	}
	ch := NewAnswerSyncChannel(repo, 100, fastRetry(), nil, nil)

	ch.Save(2, model.AnswerPayload{SelectedAnswerIDs: model.AnswerIDs{21}})
	ch.Save(2, model.AnswerPayload{SelectedAnswerIDs: model.AnswerIDs{21, 22}})

	// the second save lands first
	require.Eventually(t, func() bool {
		a, ok := repo.storedAnswer(2)
		return ok && a.ClientSeq == 2
	}, time.Second, time.Millisecond)

	close(releaseFirst)
	require.NoError(t, ch.Flush(context.Background()))

	stored, _ := repo.storedAnswer(2)
	assert.Equal(t, model.AnswerIDs{21, 22}, stored.SelectedAnswerIDs)
	assert.Empty(t, ch.DirtyQuestions())
}

func TestAnswerSyncChannel_RetriesTransientFailures(t *testing.T) {
	repo := newFakeRepo(0)
	var mu sync.Mutex
	failures := 2
	repo.saveHook = func(uint, model.AnswerPayload) error {
		mu.Lock()
		defer mu.Unlock()
		if failures > 0 {
			failures--
			return errors.New("connection reset")
		}
		return nil
	}
	var statuses []SaveStatus
	var smu sync.Mutex
	ch := NewAnswerSyncChannel(repo, 100, fastRetry(), nil, func(_ uint, s SaveStatus) {
		smu.Lock()
		statuses = append(statuses, s)
		smu.Unlock()
	})

	ch.Save(1, model.AnswerPayload{SelectedAnswerIDs: model.AnswerIDs{12}})
	require.NoError(t, ch.Flush(context.Background()))

	_, ok := repo.storedAnswer(1)
	assert.True(t, ok)
	smu.Lock()
	defer smu.Unlock()
	assert.Contains(t, statuses, SaveStatusRetrying)
	assert.Equal(t, SaveStatusSaved, statuses[len(statuses)-1])
}

func TestAnswerSyncChannel_ExhaustedRetriesStayDirty(t *testing.T) {
	repo := newFakeRepo(0)
	repo.saveHook = func(uint, model.AnswerPayload) error { return errors.New("offline") }
	ch := NewAnswerSyncChannel(repo, 100, fastRetry(), nil, nil)

	ch.Save(3, model.AnswerPayload{TextAnswer: "draft"})
	err := ch.Flush(context.Background())
	assert.ErrorIs(t, err, ErrUnsavedAnswers)
	assert.Equal(t, []uint{3}, ch.DirtyQuestions())
	assert.Equal(t, SaveStatusFailed, ch.Statuses()[3])

	// connectivity is back; flush resends the last payload
	repo.mu.Lock()
	repo.saveHook = nil
	repo.mu.Unlock()
	require.NoError(t, ch.Flush(context.Background()))
	stored, ok := repo.storedAnswer(3)
	require.True(t, ok)
	assert.Equal(t, "draft", stored.TextAnswer)
}

func TestAnswerSyncChannel_PermanentRejectionIsNotRetried(t *testing.T) {
	repo := newFakeRepo(0)
	repo.saveHook = func(uint, model.AnswerPayload) error { return util.ErrAttemptDeadlinePassed }
	ch := NewAnswerSyncChannel(repo, 100, RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxElapsedTime: time.Minute}, nil, nil)

	ch.Save(1, model.AnswerPayload{SelectedAnswerIDs: model.AnswerIDs{11}})
	assert.ErrorIs(t, ch.Flush(context.Background()), ErrUnsavedAnswers)
	assert.True(t, ch.ServerClosed())

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Len(t, repo.saves, 1)
}

func TestAnswerSyncChannel_FlushHonoursContext(t *testing.T) {
	repo := newFakeRepo(0)
	block := make(chan struct{})
	defer close(block)
	repo.saveHook = func(uint, model.AnswerPayload) error {
		<-block
		return nil
	}
	ch := NewAnswerSyncChannel(repo, 100, fastRetry(), nil, nil)
	ch.Save(1, model.AnswerPayload{SelectedAnswerIDs: model.AnswerIDs{11}})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, ch.Flush(ctx), ErrUnsavedAnswers)
}

func TestAnswerSyncChannel_CloseRejectsSaves(t *testing.T) {
	ch := NewAnswerSyncChannel(newFakeRepo(0), 100, fastRetry(), nil, nil)
	ch.Close()
	assert.False(t, ch.Save(1, model.AnswerPayload{}))
}

func TestAnswerSyncChannel_StaleReplyWithSameAnswerRaisesSeq(t *testing.T) {
	repo := newFakeRepo(0)
	repo.stored[1] = model.AttemptAnswer{QuestionID: 1, SelectedAnswerIDs: model.AnswerIDs{11}, ClientSeq: 5}
	ch := NewAnswerSyncChannel(repo, 100, fastRetry(), nil, nil)

	ch.Save(1, model.AnswerPayload{SelectedAnswerIDs: model.AnswerIDs{11}})
	require.NoError(t, ch.Flush(context.Background()))
	assert.Equal(t, SaveStatusSaved, ch.Statuses()[1])

	ch.Save(1, model.AnswerPayload{SelectedAnswerIDs: model.AnswerIDs{12}})
	require.NoError(t, ch.Flush(context.Background()))

	stored, _ := repo.storedAnswer(1)
	assert.Equal(t, model.AnswerIDs{12}, stored.SelectedAnswerIDs)
	assert.Equal(t, uint64(6), stored.ClientSeq)
	assert.Len(t, repo.saves, 2)
}

func TestAnswerSyncChannel_StaleReplyWithDifferentAnswerResends(t *testing.T) {
	repo := newFakeRepo(0)
	repo.stored[1] = model.AttemptAnswer{QuestionID: 1, SelectedAnswerIDs: model.AnswerIDs{11}, ClientSeq: 3}
	ch := NewAnswerSyncChannel(repo, 100, fastRetry(), nil, nil)
	ch.Seed(1, 2)

	ch.Save(1, model.AnswerPayload{SelectedAnswerIDs: model.AnswerIDs{12}})
	require.NoError(t, ch.Flush(context.Background()))

	stored, _ := repo.storedAnswer(1)
	assert.Equal(t, model.AnswerIDs{12}, stored.SelectedAnswerIDs)
	assert.Equal(t, uint64(4), stored.ClientSeq)
	assert.Empty(t, ch.DirtyQuestions())
	assert.Equal(t, SaveStatusSaved, ch.Statuses()[1])
}
