package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/backsoul/redball/pkg/models"
	"github.com/backsoul/redball/pkg/services"
	"github.com/valyala/fasthttp"
)

// SpeechHandler proxy HTTP del sintetizador de voz
type SpeechHandler struct {
	speechService *services.SpeechService
}

// NewSpeechHandler crea una nueva instancia del handler de voz
func NewSpeechHandler(speechService *services.SpeechService) *SpeechHandler {
	return &SpeechHandler{speechService: speechService}
}

// GenerateSpeech maneja POST /api/speech
func (h *SpeechHandler) GenerateSpeech(ctx *fasthttp.RequestCtx) {
	var request models.SpeechRequest
	if err := json.Unmarshal(ctx.PostBody(), &request); err != nil {
		respondWithError(ctx, fasthttp.StatusBadRequest, "JSON inválido")
		return
	}

	if request.Text == "" {
		respondWithError(ctx, fasthttp.StatusBadRequest, "El texto es requerido")
		return
	}

	speech, err := h.speechService.GenerateSpeech(request.Text, request.VoiceSettings)
	if err != nil {
		respondWithError(ctx, fasthttp.StatusInternalServerError, fmt.Sprintf("Error generando locución: %v", err))
		return
	}

	respondWithSuccess(ctx, speech, "Locución generada")
}
