package intake

import (
	"strings"

	"clinic-intake/internal/platform/apperror"
)

var (
	ErrQuestionIndex = apperror.NewValidationError("question index out of range")
	ErrAnswerGap     = apperror.NewConflictError("earlier questions must be answered first")
)

// Answers is the answer sheet of one session. Slot i always belongs to Questions[i]
// and a slot is only ever written after all earlier slots are filled.
type Answers []InterviewAnswer

// Get returns the saved answer for index, or the zero answer.
func (a Answers) Get(index int) InterviewAnswer {
	if index < 0 || index >= len(a) {
		return InterviewAnswer{}
	}
	return a[index]
}

// Save returns a copy of the sheet with slot index overwritten by the trimmed text.
// Blank text leaves the sheet as it is.
func (a Answers) Save(index int, text, timestamp string) (Answers, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return a, nil
	}
	if index < 0 || index >= QuestionCount {
		return a, ErrQuestionIndex
	}
	if index > len(a) {
		return a, ErrAnswerGap
	}

	next := make(Answers, max(len(a), index+1))
	copy(next, a)
	next[index] = InterviewAnswer{
		Question:  Questions[index],
		Answer:    text,
		Timestamp: timestamp,
	}
	return next, nil
}

// Complete reports whether every question has an answer.
func (a Answers) Complete() bool {
	return len(a) == QuestionCount
}

func (a Answers) clone() Answers {
	if a == nil {
		return nil
	}
	out := make(Answers, len(a))
	copy(out, a)
	return out
}
