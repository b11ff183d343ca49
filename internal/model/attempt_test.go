package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerIDs_ScanAcceptsBytesStringAndNull(t *testing.T) {
	var ids AnswerIDs
	require.NoError(t, ids.Scan([]byte(`[3,1]`)))
	assert.Equal(t, AnswerIDs{3, 1}, ids)

	require.NoError(t, ids.Scan(`[7]`))
	assert.Equal(t, AnswerIDs{7}, ids)

	require.NoError(t, ids.Scan(nil))
	assert.Empty(t, ids)

	assert.Error(t, ids.Scan(42))
}

func TestAnswerIDs_ValueOfNilIsEmptyArray(t *testing.T) {
	v, err := AnswerIDs(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}

func TestAnswerIDs_SameSet(t *testing.T) {
	assert.True(t, AnswerIDs{2, 1, 2}.SameSet(AnswerIDs{1, 2}))
	assert.False(t, AnswerIDs{1}.SameSet(AnswerIDs{1, 2}))
	assert.True(t, AnswerIDs{}.SameSet(nil))
}

func TestAttempt_RemainingAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	untimed := Attempt{}
	assert.Nil(t, untimed.RemainingAt(now))

	deadline := now.Add(45 * time.Second)
	timed := Attempt{Deadline: &deadline}
	require.NotNil(t, timed.RemainingAt(now))
	assert.Equal(t, 45, *timed.RemainingAt(now))
	assert.Equal(t, 0, *timed.RemainingAt(now.Add(time.Hour)))
}

func TestAttempt_DeadlinePassedHonoursGrace(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	deadline := now.Add(-3 * time.Second)
	a := Attempt{Deadline: &deadline}

	assert.False(t, a.DeadlinePassed(now, 5*time.Second))
	assert.True(t, a.DeadlinePassed(now, time.Second))
	assert.False(t, (&Attempt{}).DeadlinePassed(now, 0))
}
