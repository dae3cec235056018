package history

// FallbackMetric counts windowed action events: how many were
// fallback actions and how many ran in total.
type FallbackMetric struct {
	FallbackCount int `json:"fallback_count"`
	TotalCount    int `json:"total_count"`
}

// StepMetric is one sender's count of user-to-bot turn pairs.
// The count is serialized under the historical wire key "event".
type StepMetric struct {
	SenderID string `json:"sender_id"`
	Steps    int    `json:"event"`
}

// TimeMetric is one sender's summed response delay: the total of
// bot.timestamp - user.timestamp over that sender's turn pairs.
// Disordered source data can legitimately produce a negative sum;
// it is passed through untouched.
type TimeMetric struct {
	SenderID string  `json:"sender_id"`
	Time     float64 `json:"time"`
}

// UserMetric combines a sender's step count, response-delay sum,
// and the most recent event timestamp observed in the window.
type UserMetric struct {
	SenderID        string  `json:"sender_id"`
	Steps           int     `json:"steps"`
	Time            float64 `json:"time"`
	LatestEventTime float64 `json:"latest_event_time"`
}
