package handlers

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/backsoul/redball/pkg/models"
	"github.com/backsoul/redball/pkg/services"
	"github.com/valyala/fasthttp"
)

// RoundHandler maneja las peticiones HTTP del ciclo de ronda
type RoundHandler struct {
	roundService *services.RoundService
}

// NewRoundHandler crea una nueva instancia del handler de rondas
func NewRoundHandler(roundService *services.RoundService) *RoundHandler {
	return &RoundHandler{roundService: roundService}
}

// CreateSession maneja POST /api/sessions
func (h *RoundHandler) CreateSession(ctx *fasthttp.RequestCtx) {
	var request models.CreateSessionRequest
	if err := json.Unmarshal(ctx.PostBody(), &request); err != nil {
		respondWithError(ctx, fasthttp.StatusBadRequest, "JSON inválido")
		return
	}

	if request.PlayerName == "" {
		respondWithError(ctx, fasthttp.StatusBadRequest, "Nombre del jugador es requerido")
		return
	}

	view, err := h.roundService.CreateSession(request.Pin, request.PlayerName, request.TotalRounds)
	if err != nil {
		if errors.Is(err, services.ErrRoomNotFound) {
			respondWithError(ctx, fasthttp.StatusNotFound, "Room not found. Check the pin and try again.")
			return
		}
		respondWithError(ctx, fasthttp.StatusInternalServerError, fmt.Sprintf("Error creando sesión: %v", err))
		return
	}

	respondWithSuccess(ctx, view, "Sesión creada exitosamente")
}

// GetSession maneja GET /api/sessions/{id}
func (h *RoundHandler) GetSession(ctx *fasthttp.RequestCtx) {
	sessionID := ctx.UserValue("id").(string)

	view, err := h.roundService.GetView(sessionID)
	if err != nil {
		respondWithError(ctx, fasthttp.StatusNotFound, "Sesión no encontrada")
		return
	}

	respondWithSuccess(ctx, view, "Sesión obtenida exitosamente")
}

// DeleteSession maneja DELETE /api/sessions/{id}
func (h *RoundHandler) DeleteSession(ctx *fasthttp.RequestCtx) {
	sessionID := ctx.UserValue("id").(string)
	h.roundService.RemoveSession(sessionID)
	respondWithSuccess(ctx, nil, "Sesión eliminada")
}

// StartRound maneja POST /api/sessions/{id}/round
func (h *RoundHandler) StartRound(ctx *fasthttp.RequestCtx) {
	sessionID := ctx.UserValue("id").(string)

	var request models.StartRoundRequest
	if len(ctx.PostBody()) > 0 {
		if err := json.Unmarshal(ctx.PostBody(), &request); err != nil {
			respondWithError(ctx, fasthttp.StatusBadRequest, "JSON inválido")
			return
		}
	}

	view, err := h.roundService.StartRound(sessionID, false, request.ForceNew)
	if err != nil {
		respondWithError(ctx, fasthttp.StatusNotFound, "Sesión no encontrada")
		return
	}

	respondWithSuccess(ctx, view, "Ronda iniciada")
}

// NextRound maneja POST /api/sessions/{id}/next
func (h *RoundHandler) NextRound(ctx *fasthttp.RequestCtx) {
	sessionID := ctx.UserValue("id").(string)

	view, err := h.roundService.NextRound(sessionID)
	if err != nil {
		respondWithError(ctx, fasthttp.StatusNotFound, "Sesión no encontrada")
		return
	}

	respondWithSuccess(ctx, view, "Siguiente ronda")
}

// ResetGame maneja POST /api/sessions/{id}/reset
func (h *RoundHandler) ResetGame(ctx *fasthttp.RequestCtx) {
	sessionID := ctx.UserValue("id").(string)

	view, err := h.roundService.Reset(sessionID)
	if err != nil {
		respondWithError(ctx, fasthttp.StatusNotFound, "Sesión no encontrada")
		return
	}

	respondWithSuccess(ctx, view, "Partida reiniciada")
}

// Countdown maneja POST /api/sessions/{id}/countdown
func (h *RoundHandler) Countdown(ctx *fasthttp.RequestCtx) {
	sessionID := ctx.UserValue("id").(string)

	if err := h.roundService.RunCountdown(sessionID); err != nil {
		respondWithError(ctx, fasthttp.StatusNotFound, "Sesión no encontrada")
		return
	}

	respondWithSuccess(ctx, nil, "Cuenta regresiva iniciada")
}

// Click maneja POST /api/sessions/{id}/click
func (h *RoundHandler) Click(ctx *fasthttp.RequestCtx) {
	sessionID := ctx.UserValue("id").(string)

	var request models.ClickRequest
	if err := json.Unmarshal(ctx.PostBody(), &request); err != nil {
		respondWithError(ctx, fasthttp.StatusBadRequest, "JSON inválido")
		return
	}

	if request.X < 0 || request.X > 1 || request.Y < 0 || request.Y > 1 {
		respondWithError(ctx, fasthttp.StatusBadRequest, "Las coordenadas deben estar entre 0 y 1")
		return
	}

	result, err := h.roundService.Click(sessionID, request.X, request.Y)
	if err != nil {
		respondWithError(ctx, fasthttp.StatusNotFound, "Sesión no encontrada")
		return
	}

	respondWithSuccess(ctx, result, "Clic procesado")
}
