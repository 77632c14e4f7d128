package handlers

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/backsoul/redball/pkg/models"
	"github.com/backsoul/redball/pkg/services"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/valyala/fasthttp"
)

// RoomHandler maneja las peticiones HTTP de salas multijugador
type RoomHandler struct {
	roomService *services.RoomService
	publicURL   string
}

// NewRoomHandler crea una nueva instancia del handler de salas. publicURL es
// la base del enlace de invitación codificado en el QR.
func NewRoomHandler(roomService *services.RoomService, publicURL string) *RoomHandler {
	return &RoomHandler{
		roomService: roomService,
		publicURL:   publicURL,
	}
}

// CreateRoom maneja POST /api/rooms
func (h *RoomHandler) CreateRoom(ctx *fasthttp.RequestCtx) {
	var request models.CreateRoomRequest
	if err := json.Unmarshal(ctx.PostBody(), &request); err != nil {
		respondWithError(ctx, fasthttp.StatusBadRequest, "JSON inválido")
		return
	}

	if request.PlayerName == "" {
		respondWithError(ctx, fasthttp.StatusBadRequest, "Nombre del jugador es requerido")
		return
	}

	room, err := h.roomService.CreateRoom(request.PlayerName, request.TotalRounds)
	if err != nil {
		respondWithError(ctx, fasthttp.StatusInternalServerError, fmt.Sprintf("Error creando sala: %v", err))
		return
	}

	responseData := models.RoomResponse{
		Room:    room,
		Pin:     room.PinCode,
		Message: "Sala creada exitosamente",
	}

	respondWithSuccess(ctx, responseData, "Sala creada exitosamente")
}

// JoinRoom maneja POST /api/rooms/join
func (h *RoomHandler) JoinRoom(ctx *fasthttp.RequestCtx) {
	var request models.JoinRoomRequest
	if err := json.Unmarshal(ctx.PostBody(), &request); err != nil {
		respondWithError(ctx, fasthttp.StatusBadRequest, "JSON inválido")
		return
	}

	if request.Pin == "" || request.PlayerName == "" {
		respondWithError(ctx, fasthttp.StatusBadRequest, "Pin y nombre del jugador son requeridos")
		return
	}

	room, err := h.roomService.JoinRoom(request.Pin, request.PlayerName)
	if err != nil {
		h.respondRoomError(ctx, err)
		return
	}

	players, err := h.roomService.ListPlayers(request.Pin)
	if err != nil {
		respondWithError(ctx, fasthttp.StatusInternalServerError, fmt.Sprintf("Error obteniendo jugadores: %v", err))
		return
	}

	responseData := models.RoomResponse{
		Room:    room,
		Players: players,
	}

	respondWithSuccess(ctx, responseData, fmt.Sprintf("%s se unió a la sala", request.PlayerName))
}

// LeaveRoom maneja POST /api/rooms/{pin}/leave
func (h *RoomHandler) LeaveRoom(ctx *fasthttp.RequestCtx) {
	pin := ctx.UserValue("pin").(string)

	var request models.LeaveRoomRequest
	if err := json.Unmarshal(ctx.PostBody(), &request); err != nil {
		respondWithError(ctx, fasthttp.StatusBadRequest, "JSON inválido")
		return
	}

	if request.PlayerName == "" {
		respondWithError(ctx, fasthttp.StatusBadRequest, "Nombre del jugador es requerido")
		return
	}

	if err := h.roomService.LeaveRoom(pin, request.PlayerName); err != nil {
		h.respondRoomError(ctx, err)
		return
	}

	respondWithSuccess(ctx, nil, fmt.Sprintf("%s abandonó la sala", request.PlayerName))
}

// UpdateRounds maneja PUT /api/rooms/{pin}/rounds
func (h *RoomHandler) UpdateRounds(ctx *fasthttp.RequestCtx) {
	pin := ctx.UserValue("pin").(string)

	var request models.UpdateRoundsRequest
	if err := json.Unmarshal(ctx.PostBody(), &request); err != nil {
		respondWithError(ctx, fasthttp.StatusBadRequest, "JSON inválido")
		return
	}

	if request.TotalRounds < 1 || request.TotalRounds > 20 {
		respondWithError(ctx, fasthttp.StatusBadRequest, "El número de rondas debe estar entre 1 y 20")
		return
	}

	if err := h.roomService.UpdateTotalRounds(pin, request.PlayerName, request.TotalRounds); err != nil {
		h.respondRoomError(ctx, err)
		return
	}

	room, err := h.roomService.GetRoomByPin(pin)
	if err != nil {
		h.respondRoomError(ctx, err)
		return
	}

	responseData := models.RoomResponse{
		Room: room,
	}

	respondWithSuccess(ctx, responseData, "Número de rondas actualizado")
}

// GetRoom maneja GET /api/rooms/{pin}
func (h *RoomHandler) GetRoom(ctx *fasthttp.RequestCtx) {
	pin := ctx.UserValue("pin").(string)

	room, err := h.roomService.GetRoomByPin(pin)
	if err != nil {
		h.respondRoomError(ctx, err)
		return
	}

	responseData := models.RoomResponse{
		Room: room,
	}

	respondWithSuccess(ctx, responseData, "Sala obtenida exitosamente")
}

// GetPlayers maneja GET /api/rooms/{pin}/players
func (h *RoomHandler) GetPlayers(ctx *fasthttp.RequestCtx) {
	pin := ctx.UserValue("pin").(string)

	players, err := h.roomService.ListPlayers(pin)
	if err != nil {
		h.respondRoomError(ctx, err)
		return
	}

	responseData := models.RoomResponse{
		Players: players,
		Pin:     pin,
	}

	respondWithSuccess(ctx, responseData, fmt.Sprintf("%d jugadores en la sala", len(players)))
}

// GetJoinQR maneja GET /api/rooms/{pin}/qr y devuelve un PNG con el enlace
// de invitación de la sala
func (h *RoomHandler) GetJoinQR(ctx *fasthttp.RequestCtx) {
	pin := ctx.UserValue("pin").(string)

	if _, err := h.roomService.GetRoomByPin(pin); err != nil {
		h.respondRoomError(ctx, err)
		return
	}

	joinURL := fmt.Sprintf("%s/join?pin=%s", h.publicURL, pin)
	png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
	if err != nil {
		respondWithError(ctx, fasthttp.StatusInternalServerError, fmt.Sprintf("Error generando QR: %v", err))
		return
	}

	ctx.Response.Header.Set("Content-Type", "image/png")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(png)
}

// respondRoomError traduce los errores del servicio de salas a códigos HTTP
func (h *RoomHandler) respondRoomError(ctx *fasthttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, services.ErrRoomNotFound):
		respondWithError(ctx, fasthttp.StatusNotFound, "Room not found. Check the pin and try again.")
	case errors.Is(err, services.ErrGameAlreadyStarted):
		respondWithError(ctx, fasthttp.StatusConflict, "Game already in progress. Cannot join now.")
	case errors.Is(err, services.ErrNotHost):
		respondWithError(ctx, fasthttp.StatusForbidden, "Only the host can do that.")
	case errors.Is(err, services.ErrPlayerNotFound):
		respondWithError(ctx, fasthttp.StatusNotFound, "Player not found in this room.")
	default:
		respondWithError(ctx, fasthttp.StatusInternalServerError, fmt.Sprintf("Error interno: %v", err))
	}
}
