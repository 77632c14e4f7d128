package models

// RoundPhase fase de la ronda de un jugador
type RoundPhase string

const (
	PhaseIdle              RoundPhase = "idle"
	PhaseAcquiring         RoundPhase = "acquiring"
	PhaseAwaitingDetection RoundPhase = "awaiting_detection"
	PhaseActive            RoundPhase = "active"
	PhaseHit               RoundPhase = "hit"
	PhaseTimedOut          RoundPhase = "timed_out"
	PhaseError             RoundPhase = "error"
	PhaseGameCompleted     RoundPhase = "game_completed"
)

// RoundView estado visible de la sesión de ronda de un jugador.
// La posición de la respuesta nunca se expone aquí.
type RoundView struct {
	SessionID     string     `json:"sessionId"`
	RoomPin       string     `json:"roomPin,omitempty"`
	PlayerName    string     `json:"playerName"`
	Phase         RoundPhase `json:"phase"`
	RoundActive   bool       `json:"roundActive"`
	CurrentRound  int        `json:"currentRound"`
	TotalRounds   int        `json:"totalRounds"`
	ImageURL      string     `json:"imageUrl,omitempty"`
	TimeRemaining int        `json:"timeRemaining"`
	StatusText    string     `json:"statusText,omitempty"`
	LoadingQuote  string     `json:"loadingQuote,omitempty"`
}

// CreateSessionRequest request para crear una sesión de juego
type CreateSessionRequest struct {
	Pin         string `json:"pin,omitempty"`
	PlayerName  string `json:"playerName"`
	TotalRounds int    `json:"totalRounds,omitempty"`
}

// StartRoundRequest request para iniciar una ronda
type StartRoundRequest struct {
	ForceNew bool `json:"forceNew,omitempty"`
}

// ClickRequest clic del jugador en coordenadas fraccionarias de la imagen
type ClickRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ClickResult resultado del clic
type ClickResult struct {
	Hit           bool   `json:"hit"`
	Ignored       bool   `json:"ignored,omitempty"`
	Retried       bool   `json:"retried,omitempty"`
	Score         int    `json:"score,omitempty"`
	TimeRemaining int    `json:"timeRemaining"`
	ElapsedMs     int    `json:"elapsedMs,omitempty"`
	StatusText    string `json:"statusText,omitempty"`
}

// PinpointRequest request para fijar manualmente la posición de la bola
type PinpointRequest struct {
	SessionID string  `json:"sessionId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// DetectRequest request para volver a detectar la bola de la imagen actual
type DetectRequest struct {
	SessionID string `json:"sessionId"`
}

// SpeechRequest request del proxy de síntesis de voz
type SpeechRequest struct {
	Text          string         `json:"text"`
	VoiceSettings *VoiceSettings `json:"voiceSettings,omitempty"`
}

// VoiceSettings ajustes de voz del sintetizador
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

// SpeechResponse respuesta del proxy de voz (audio en base64)
type SpeechResponse struct {
	AudioBuffer string `json:"audioBuffer"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}
