package handlers

import (
	"encoding/json"
	"log"

	"github.com/backsoul/redball/pkg/models"
	"github.com/backsoul/redball/pkg/services"
	websocketHub "github.com/backsoul/redball/pkg/websocket"
	"github.com/fasthttp/websocket"
	"github.com/valyala/fasthttp"
)

type GameControlHandler struct {
	roomService *services.RoomService
	hub         *websocketHub.Hub
}

func NewGameControlHandler(roomService *services.RoomService, hub *websocketHub.Hub) *GameControlHandler {
	return &GameControlHandler{
		roomService: roomService,
		hub:         hub,
	}
}

var upgrader = websocket.FastHTTPUpgrader{
	CheckOrigin: func(ctx *fasthttp.RequestCtx) bool {
		return true // Permitir conexiones desde cualquier origen en desarrollo
	},
}

// HandleWebSocket maneja GET /ws?pin={pin}. La conexión queda suscrita a los
// mensajes de esa sala.
func (gc *GameControlHandler) HandleWebSocket(ctx *fasthttp.RequestCtx) {
	pin := string(ctx.QueryArgs().Peek("pin"))
	if pin == "" {
		ctx.Error("Pin de sala requerido", fasthttp.StatusBadRequest)
		return
	}

	err := upgrader.Upgrade(ctx, func(ws *websocket.Conn) {
		defer ws.Close()

		gc.hub.Register(ws, pin)
		defer gc.hub.Unregister(ws)

		// Enviar el estado actual de la sala al conectarse
		room, err := gc.roomService.GetRoomByPin(pin)
		if err == nil {
			players, _ := gc.roomService.ListPlayers(pin)
			message := websocketHub.Message{
				Type: "roomUpdated",
				Data: models.RoomResponse{Room: room, Players: players},
			}
			data, _ := json.Marshal(message)
			ws.WriteMessage(websocket.TextMessage, data)
		}

		// Escuchar mensajes del cliente
		for {
			_, _, err := ws.ReadMessage()
			if err != nil {
				log.Printf("Error leyendo mensaje WebSocket: %v", err)
				break
			}
		}
	})

	if err != nil {
		log.Printf("Error upgrading to WebSocket: %v", err)
		ctx.Error("Error upgrading to WebSocket", fasthttp.StatusInternalServerError)
	}
}

// StartGame maneja POST /api/rooms/{pin}/start. Solo el anfitrión puede
// iniciar la partida.
func (gc *GameControlHandler) StartGame(ctx *fasthttp.RequestCtx) {
	pin := ctx.UserValue("pin").(string)

	var request models.StartGameRequest
	if err := json.Unmarshal(ctx.PostBody(), &request); err != nil {
		respondWithError(ctx, fasthttp.StatusBadRequest, "JSON inválido")
		return
	}

	room, err := gc.roomService.GetRoomByPin(pin)
	if err != nil {
		respondWithError(ctx, fasthttp.StatusNotFound, "Room not found. Check the pin and try again.")
		return
	}

	if room.HostPlayerName != request.PlayerName {
		respondWithError(ctx, fasthttp.StatusForbidden, "Only the host can start the game.")
		return
	}

	if room.GameStarted {
		respondWithError(ctx, fasthttp.StatusBadRequest, "Ya hay una partida activa")
		return
	}

	if err := gc.roomService.StartGame(pin); err != nil {
		respondWithError(ctx, fasthttp.StatusInternalServerError, "Error iniciando la partida")
		return
	}

	room, _ = gc.roomService.GetRoomByPin(pin)
	respondWithSuccess(ctx, models.RoomResponse{Room: room}, "Partida iniciada")
}

// ResetGame maneja POST /api/rooms/{pin}/reset
func (gc *GameControlHandler) ResetGame(ctx *fasthttp.RequestCtx) {
	pin := ctx.UserValue("pin").(string)

	var request models.StartGameRequest
	if err := json.Unmarshal(ctx.PostBody(), &request); err != nil {
		respondWithError(ctx, fasthttp.StatusBadRequest, "JSON inválido")
		return
	}

	room, err := gc.roomService.GetRoomByPin(pin)
	if err != nil {
		respondWithError(ctx, fasthttp.StatusNotFound, "Room not found. Check the pin and try again.")
		return
	}

	if room.HostPlayerName != request.PlayerName {
		respondWithError(ctx, fasthttp.StatusForbidden, "Only the host can reset the game.")
		return
	}

	if err := gc.roomService.ResetGame(pin); err != nil {
		respondWithError(ctx, fasthttp.StatusInternalServerError, "Error reiniciando la partida")
		return
	}

	room, _ = gc.roomService.GetRoomByPin(pin)
	respondWithSuccess(ctx, models.RoomResponse{Room: room}, "Partida reiniciada")
}
