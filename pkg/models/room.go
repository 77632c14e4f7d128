package models

import "time"

// Room representa una sala multijugador identificada por un pin de 6 dígitos.
// Los campos JSON usan snake_case porque son las columnas del registro de sala.
type Room struct {
	ID                    string       `json:"id"`
	PinCode               string       `json:"pin_code"`
	HostPlayerName        string       `json:"host_player_name"`
	IsActive              bool         `json:"is_active"`
	GameStarted           bool         `json:"game_started"`
	GameCompleted         bool         `json:"game_completed"`
	TotalRounds           int          `json:"total_rounds"`
	CurrentRound          int          `json:"current_round"`
	CurrentImageURL       string       `json:"current_image_url,omitempty"`
	CurrentAnswerPosition *BoundingBox `json:"current_answer_position,omitempty"`
	CreatedAt             time.Time    `json:"created_at"`
}

// RoomPlayer jugador dentro de una sala. Unicidad por (sala, nombre).
type RoomPlayer struct {
	RoomPin       string    `json:"room_pin"`
	PlayerName    string    `json:"player_name"`
	Score         int       `json:"score"`
	LastRoundTime int       `json:"last_round_time"` // milisegundos de la última ronda
	JoinedAt      time.Time `json:"joined_at"`
}

// CreateRoomRequest request para crear una sala
type CreateRoomRequest struct {
	PlayerName  string `json:"playerName"`
	TotalRounds int    `json:"totalRounds"`
}

// JoinRoomRequest request para unirse a una sala
type JoinRoomRequest struct {
	Pin        string `json:"pin"`
	PlayerName string `json:"playerName"`
}

// LeaveRoomRequest request para abandonar una sala
type LeaveRoomRequest struct {
	PlayerName string `json:"playerName"`
}

// StartGameRequest request para iniciar la partida (solo anfitrión)
type StartGameRequest struct {
	PlayerName string `json:"playerName"`
}

// UpdateRoundsRequest request para cambiar el número de rondas (solo anfitrión)
type UpdateRoundsRequest struct {
	PlayerName  string `json:"playerName"`
	TotalRounds int    `json:"totalRounds"`
}

// RoomResponse respuesta de sala
type RoomResponse struct {
	Room    *Room        `json:"room,omitempty"`
	Players []RoomPlayer `json:"players,omitempty"`
	Pin     string       `json:"pin,omitempty"`
	Message string       `json:"message,omitempty"`
}
