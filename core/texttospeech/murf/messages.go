package murf

type voiceConfig struct {
	VoiceID string `json:"voiceId"`
}

type voiceConfigMessage struct {
	VoiceConfig voiceConfig `json:"voice_config"`
	ContextID   string      `json:"context_id"`
}

type textMessage struct {
	Text      string `json:"text"`
	End       bool   `json:"end"`
	ContextID string `json:"context_id"`
}

type clearMessage struct {
	Clear     bool   `json:"clear"`
	ContextID string `json:"context_id"`
}

// audioMessage is what Murf streams back: base64 encoded audio, with final
// set once a context has been fully synthesized.
type audioMessage struct {
	Audio     string `json:"audio"`
	Final     bool   `json:"final"`
	ContextID string `json:"context_id"`
	Error     string `json:"error"`
}
