package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanAskQuestions(t *testing.T) {
	tests := []struct {
		name    string
		session *Session
		limit   int
		want    bool
	}{
		{"nil session", nil, 5, false},
		{"under limit", &Session{DailyQuestionCount: 4}, 5, true},
		{"at limit", &Session{DailyQuestionCount: 5}, 5, false},
		{"over limit", &Session{DailyQuestionCount: 7}, 5, false},
		{"premium at limit", &Session{IsPremium: true, DailyQuestionCount: 5}, 5, true},
		{"premium over limit", &Session{IsPremium: true, DailyQuestionCount: 100}, 5, true},
		{"zero limit free user", &Session{}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanAskQuestions(tt.session, tt.limit))
		})
	}
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, 0, Remaining(nil, 5))
	assert.Equal(t, 5, Remaining(&Session{}, 5))
	assert.Equal(t, 1, Remaining(&Session{DailyQuestionCount: 4}, 5))
	assert.Equal(t, 0, Remaining(&Session{DailyQuestionCount: 5}, 5))
	// never negative, even when the count overshot
	assert.Equal(t, 0, Remaining(&Session{DailyQuestionCount: 9}, 5))
}
