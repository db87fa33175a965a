package session

// CanAskQuestions reports whether the user may issue another query: premium
// bypasses the daily gate regardless of count, free users are limited to
// freeDailyLimit questions per day. A nil session can never ask.
func CanAskQuestions(s *Session, freeDailyLimit int) bool {
	if s == nil {
		return false
	}
	if s.IsPremium {
		return true
	}
	return s.DailyQuestionCount < freeDailyLimit
}

// Remaining returns the number of free-tier questions left today, never
// negative even when the count has overshot the limit.
func Remaining(s *Session, freeDailyLimit int) int {
	if s == nil {
		return 0
	}
	left := freeDailyLimit - s.DailyQuestionCount
	if left < 0 {
		return 0
	}
	return left
}
