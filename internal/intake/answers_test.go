package intake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswers_Get(t *testing.T) {
	var a Answers
	assert.Equal(t, InterviewAnswer{}, a.Get(0))
	assert.Equal(t, InterviewAnswer{}, a.Get(-1))

	a, err := a.Save(0, "頭痛", "2025/06/01 10:00:00")
	require.NoError(t, err)
	assert.Equal(t, "頭痛", a.Get(0).Answer)
	assert.Equal(t, Questions[0], a.Get(0).Question)
	assert.Equal(t, InterviewAnswer{}, a.Get(1))
}

func TestAnswers_SaveTrimsAndOverwrites(t *testing.T) {
	a, err := Answers(nil).Save(0, "  喉が痛い \n", "t1")
	require.NoError(t, err)
	a, err = a.Save(1, "3/10", "t2")
	require.NoError(t, err)

	updated, err := a.Save(0, "喉と耳が痛い", "t3")
	require.NoError(t, err)

	assert.Equal(t, "喉が痛い", a.Get(0).Answer, "original sheet must not change")
	assert.Equal(t, "喉と耳が痛い", updated.Get(0).Answer)
	assert.Equal(t, "t3", updated.Get(0).Timestamp)
	assert.Equal(t, "3/10", updated.Get(1).Answer)
	assert.Len(t, updated, 2)
}

func TestAnswers_SaveBlankIsNoop(t *testing.T) {
	a, err := Answers(nil).Save(0, "めまい", "t1")
	require.NoError(t, err)

	for _, blank := range []string{"", "   ", "\t\n"} {
		same, err := a.Save(0, blank, "t2")
		require.NoError(t, err)
		assert.Equal(t, a, same)
	}
}

func TestAnswers_SaveRejectsGapsAndOverflow(t *testing.T) {
	_, err := Answers(nil).Save(2, "answer", "t")
	assert.ErrorIs(t, err, ErrAnswerGap)

	full := Answers{}
	for i := 0; i < QuestionCount; i++ {
		full, err = full.Save(i, "answer", "t")
		require.NoError(t, err)
	}
	assert.True(t, full.Complete())

	_, err = full.Save(QuestionCount, "extra", "t")
	assert.ErrorIs(t, err, ErrQuestionIndex)
	assert.Len(t, full, QuestionCount)
}
