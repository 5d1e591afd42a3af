package types

// Segment is one transcript chunk as the device transport delivers it.
// Start and End are seconds relative to the recording start; devices that do
// not report timing send zero values.
type Segment struct {
	Text      string  `json:"text"`
	Speaker   string  `json:"speaker,omitempty"`
	SpeakerID int     `json:"speaker_id,omitempty"`
	IsUser    bool    `json:"is_user"`
	Start     float64 `json:"start,omitempty"`
	End       float64 `json:"end,omitempty"`
}

// WebhookRequest is the device platform's batch payload.
type WebhookRequest struct {
	SessionID string    `json:"session_id"`
	Segments  []Segment `json:"segments"`
}

// NudgePayload is what the notification sink posts to the delivery endpoint.
type NudgePayload struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	NudgeID   string `json:"nudge_id"`
	SentAt    string `json:"sent_at"`
}
