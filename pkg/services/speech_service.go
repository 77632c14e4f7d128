package services

import (
	"encoding/json"
	"fmt"
	"log"
	"regexp"

	"github.com/backsoul/redball/pkg/models"
	"github.com/valyala/fasthttp"
)

const (
	generateSpeechPath = "/functions/v1/generate-speech"
	speechCachePrefix  = "redball:speech_cache:"
)

// DefaultVoiceSettings ajustes de voz por defecto del sintetizador
var DefaultVoiceSettings = models.VoiceSettings{
	Stability:       0.6,
	SimilarityBoost: 0.8,
	Style:           0.4,
	UseSpeakerBoost: true,
}

// Frases fijas de las locuciones del juego
func PhraseCountdown(number int) string {
	if number == 0 {
		return "Go!"
	}
	return fmt.Sprintf("%d", number)
}

func PhraseRoundComplete() string { return "Round complete!" }

func PhrasePlayerFoundBall(playerName string) string {
	return fmt.Sprintf("%s found the ball!", playerName)
}

func PhrasePlayerInLead(playerName string) string {
	return fmt.Sprintf("%s is in the lead!", playerName)
}

func PhraseTimesUp() string { return "Time's up!" }

func PhraseNextRound() string { return "Next round starting soon!" }

func PhraseGameStart() string { return "Game starting!" }

func PhraseGameComplete() string { return "Game completed! Congratulations to all players!" }

func PhraseWelcome() string { return "Welcome to Where's The Ball!" }

// SpeechService cliente del colaborador de síntesis de voz. Los fallos de voz
// nunca afectan la partida: se registran y se tragan. El audio generado se
// cachea en Redis para no pagar dos veces la misma frase.
type SpeechService struct {
	client  *fasthttp.Client
	baseURL string
	apiKey  string
	store   KeyValueStore
}

// NewSpeechService crea una nueva instancia del servicio de voz
func NewSpeechService(baseURL, apiKey string, store KeyValueStore) *SpeechService {
	return &SpeechService{
		client:  &fasthttp.Client{},
		baseURL: baseURL,
		apiKey:  apiKey,
		store:   store,
	}
}

// GenerateSpeech sintetiza una frase y devuelve el audio en base64.
// Primero consulta la caché; una respuesta cacheada no llama al colaborador.
func (s *SpeechService) GenerateSpeech(text string, settings *models.VoiceSettings) (*models.SpeechResponse, error) {
	if settings == nil {
		settings = &DefaultVoiceSettings
	}

	cacheKey := speechCacheKey(text, *settings)
	if cached, err := s.store.Get(cacheKey); err == nil {
		var response models.SpeechResponse
		if err := json.Unmarshal([]byte(cached), &response); err == nil {
			return &response, nil
		}
	}

	log.Printf("🔊 Generando audio para: %q", text)

	payload := map[string]interface{}{
		"text":          text,
		"voiceSettings": settings,
	}

	statusCode, body, err := postJSON(s.client, s.baseURL+generateSpeechPath, s.apiKey, payload)
	if err != nil {
		return nil, err
	}

	if statusCode != fasthttp.StatusOK {
		apiErr := errorFromEnvelope(statusCode, body)
		return nil, apiErr
	}

	var result struct {
		Success     bool   `json:"success"`
		AudioBuffer string `json:"audioBuffer"`
		ContentType string `json:"contentType"`
		Size        int    `json:"size"`
		Error       string `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("error parsing respuesta de voz: %v", err)
	}

	if !result.Success || result.AudioBuffer == "" {
		return nil, fmt.Errorf("speech generation failed, no audio returned")
	}

	response := &models.SpeechResponse{
		AudioBuffer: result.AudioBuffer,
		ContentType: result.ContentType,
		Size:        result.Size,
	}

	if data, err := json.Marshal(response); err == nil {
		if err := s.store.Set(cacheKey, string(data), 0); err != nil {
			log.Printf("⚠️ Error cacheando audio: %v", err)
		}
	}

	return response, nil
}

// Warm precalienta la caché con una frase. Cualquier fallo se registra y se
// traga: la voz nunca es fatal para el juego.
func (s *SpeechService) Warm(text string) {
	if _, err := s.GenerateSpeech(text, nil); err != nil {
		log.Printf("⚠️ No se pudo precalentar la locución %q: %v", text, err)
	}
}

// PreloadCommonAnnouncements precalienta las locuciones comunes al arrancar
func (s *SpeechService) PreloadCommonAnnouncements() {
	common := []string{
		PhraseCountdown(0),
		PhraseCountdown(3),
		PhraseCountdown(2),
		PhraseCountdown(1),
		PhraseRoundComplete(),
		PhraseTimesUp(),
		PhraseNextRound(),
		PhraseGameStart(),
		PhraseGameComplete(),
		PhraseWelcome(),
	}

	log.Printf("🔊 Precalentando %d locuciones comunes...", len(common))
	for _, text := range common {
		s.Warm(text)
	}
	log.Println("✅ Locuciones comunes precalentadas")
}

var cacheKeySanitizer = regexp.MustCompile(`[^a-zA-Z0-9]`)

// speechCacheKey clave de caché basada en la frase y los ajustes de voz
func speechCacheKey(text string, settings models.VoiceSettings) string {
	settingsJSON, _ := json.Marshal(settings)
	raw := fmt.Sprintf("%s_%s", text, settingsJSON)
	return speechCachePrefix + cacheKeySanitizer.ReplaceAllString(raw, "_")
}
