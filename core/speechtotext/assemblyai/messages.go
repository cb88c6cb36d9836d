package assemblyai

type messageType string

const (
	messageTypeBegin       messageType = "Begin"
	messageTypeTurn        messageType = "Turn"
	messageTypeTermination messageType = "Termination"
	messageTypeTerminate   messageType = "Terminate"
)

// message is the union of every event the v3 API sends.
type message struct {
	Type messageType `json:"type"`

	// Begin
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`

	// Turn
	TurnOrder           int     `json:"turn_order"`
	Transcript          string  `json:"transcript"`
	EndOfTurn           bool    `json:"end_of_turn"`
	EndOfTurnConfidence float64 `json:"end_of_turn_confidence"`
	TurnIsFormatted     bool    `json:"turn_is_formatted"`

	// Termination
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`

	Error string `json:"error"`
}

type terminateMessage struct {
	Type messageType `json:"type"`
}
