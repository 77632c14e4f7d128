package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/backsoul/redball/pkg/models"
	"github.com/backsoul/redball/pkg/redis"
	"github.com/google/uuid"
)

// Claves de Redis para salas y jugadores
const (
	roomKeyPrefix     = "redball:room:"
	roomPinsKey       = "redball:room_pins"
	roomPlayersPrefix = "redball:room_players:"
	playerKeyPrefix   = "redball:player:"
)

// NotificationDisplayMs duración de la notificación "encontró la bola" en el cliente
const NotificationDisplayMs = 3000

// RoomService maneja el ciclo de vida de las salas: crear, unirse, abandonar,
// transferir anfitrión y publicar la imagen compartida de la ronda.
type RoomService struct {
	store    KeyValueStore
	notifier Notifier
	listener ImageListener
}

// NewRoomService crea una nueva instancia del servicio de salas
func NewRoomService(store KeyValueStore, notifier Notifier) *RoomService {
	return &RoomService{
		store:    store,
		notifier: notifier,
	}
}

// SetImageListener inyecta el coordinador de rondas para la vía de activación
// por notificación (complementa al sondeo de los no anfitriones)
func (s *RoomService) SetImageListener(listener ImageListener) {
	s.listener = listener
}

// CreateRoom crea una sala con un pin de 6 dígitos y agrega al anfitrión
// como primer jugador con puntuación 0. Propaga el fallo de cualquiera de
// las dos escrituras.
func (s *RoomService) CreateRoom(hostName string, totalRounds int) (*models.Room, error) {
	if totalRounds <= 0 {
		totalRounds = 5
	}

	pin, err := s.generatePin()
	if err != nil {
		return nil, err
	}

	room := &models.Room{
		ID:             uuid.New().String(),
		PinCode:        pin,
		HostPlayerName: hostName,
		IsActive:       true,
		TotalRounds:    totalRounds,
		CurrentRound:   0,
		GameCompleted:  false,
		CreatedAt:      time.Now(),
	}

	if err := s.saveRoom(room); err != nil {
		return nil, fmt.Errorf("error creando sala: %v", err)
	}

	if err := s.store.AddToSet(roomPinsKey, pin); err != nil {
		return nil, fmt.Errorf("error registrando pin: %v", err)
	}

	if err := s.upsertPlayer(pin, hostName); err != nil {
		return nil, fmt.Errorf("error agregando anfitrión a la sala: %v", err)
	}

	log.Printf("✅ Sala creada: %s (anfitrión: %s, rondas: %d)", pin, hostName, totalRounds)
	return room, nil
}

// JoinRoom une a un jugador a una sala activa. El upsert está keyed por
// (sala, nombre): reingresar actualiza joined_at y reinicia la puntuación a 0
// (comportamiento heredado, ver DESIGN.md).
func (s *RoomService) JoinRoom(pin, playerName string) (*models.Room, error) {
	room, err := s.GetRoomByPin(pin)
	if err != nil || !room.IsActive {
		return nil, ErrRoomNotFound
	}

	if room.GameStarted {
		return nil, ErrGameAlreadyStarted
	}

	if err := s.upsertPlayer(pin, playerName); err != nil {
		return nil, fmt.Errorf("error uniendo jugador a la sala: %v", err)
	}

	log.Printf("✅ %s se unió a la sala %s", playerName, pin)
	s.broadcastPlayers(pin)
	return room, nil
}

// LeaveRoom elimina al jugador de la sala. Si era el anfitrión, promueve al
// jugador restante que se unió primero; si no queda nadie, desactiva la sala.
func (s *RoomService) LeaveRoom(pin, playerName string) error {
	room, err := s.GetRoomByPin(pin)
	if err != nil {
		return ErrRoomNotFound
	}

	wasHost := room.HostPlayerName == playerName

	if err := s.store.Del(playerKey(pin, playerName)); err != nil {
		return fmt.Errorf("error eliminando jugador: %v", err)
	}
	if err := s.store.RemoveFromSet(roomPlayersPrefix+pin, playerName); err != nil {
		log.Printf("⚠️ Error quitando a %s del set de jugadores: %v", playerName, err)
	}

	log.Printf("👋 %s abandonó la sala %s", playerName, pin)

	if wasHost {
		remaining, err := s.playersByJoinTime(pin)
		if err != nil {
			return err
		}

		if len(remaining) > 0 {
			room.HostPlayerName = remaining[0].PlayerName
			if err := s.saveRoom(room); err != nil {
				return fmt.Errorf("error transfiriendo anfitrión: %v", err)
			}
			log.Printf("👑 Anfitrión transferido a %s en la sala %s", room.HostPlayerName, pin)
			s.broadcastRoom(room)
		} else {
			room.IsActive = false
			if err := s.saveRoom(room); err != nil {
				return fmt.Errorf("error desactivando sala: %v", err)
			}
			if err := s.store.RemoveFromSet(roomPinsKey, pin); err != nil {
				log.Printf("⚠️ Error quitando pin %s del registro: %v", pin, err)
			}
			log.Printf("🚪 Sala %s desactivada: no quedan jugadores", pin)
		}
	}

	s.broadcastPlayers(pin)
	return nil
}

// UpdateTotalRounds cambia el número total de rondas. Solo el anfitrión puede.
func (s *RoomService) UpdateTotalRounds(pin, requester string, totalRounds int) error {
	room, err := s.GetRoomByPin(pin)
	if err != nil {
		return ErrRoomNotFound
	}

	if room.HostPlayerName != requester {
		return ErrNotHost
	}

	room.TotalRounds = totalRounds
	if err := s.saveRoom(room); err != nil {
		return fmt.Errorf("error actualizando rondas: %v", err)
	}

	s.broadcastRoom(room)
	return nil
}

// StartGame marca la partida como iniciada y lo notifica a la sala
func (s *RoomService) StartGame(pin string) error {
	room, err := s.GetRoomByPin(pin)
	if err != nil {
		return ErrRoomNotFound
	}

	room.GameStarted = true
	if err := s.saveRoom(room); err != nil {
		return fmt.Errorf("error iniciando partida: %v", err)
	}

	log.Printf("🟢 Partida iniciada en la sala %s", pin)
	s.broadcastRoom(room)

	if s.listener != nil {
		s.listener.OnGameStarted(pin)
	}
	return nil
}

// SetCurrentRound actualiza la ronda actual del registro de la sala
func (s *RoomService) SetCurrentRound(pin string, round int) error {
	room, err := s.GetRoomByPin(pin)
	if err != nil {
		return ErrRoomNotFound
	}

	room.CurrentRound = round
	if err := s.saveRoom(room); err != nil {
		return fmt.Errorf("error actualizando ronda actual: %v", err)
	}

	s.broadcastRoom(room)
	return nil
}

// MarkGameCompleted marca la partida como terminada
func (s *RoomService) MarkGameCompleted(pin string) error {
	room, err := s.GetRoomByPin(pin)
	if err != nil {
		return ErrRoomNotFound
	}

	room.GameCompleted = true
	room.CurrentRound = room.TotalRounds
	if err := s.saveRoom(room); err != nil {
		return fmt.Errorf("error marcando partida terminada: %v", err)
	}

	log.Printf("🏁 Partida terminada en la sala %s", pin)
	s.broadcastRoom(room)
	return nil
}

// ResetGame reinicia la partida para volver a jugar desde la ronda 1
func (s *RoomService) ResetGame(pin string) error {
	room, err := s.GetRoomByPin(pin)
	if err != nil {
		return ErrRoomNotFound
	}

	room.CurrentRound = 1
	room.GameCompleted = false
	room.GameStarted = false
	room.CurrentImageURL = ""
	room.CurrentAnswerPosition = nil
	if err := s.saveRoom(room); err != nil {
		return fmt.Errorf("error reiniciando partida: %v", err)
	}

	log.Printf("🔄 Partida reiniciada en la sala %s", pin)
	s.broadcastRoom(room)
	return nil
}

// PublishImage registra la imagen compartida de la ronda. La primera escritura
// gana: si ya hay una imagen registrada la llamada es un no-op, lo que hace
// idempotente la carrera entre anfitriones y entre vías de activación.
func (s *RoomService) PublishImage(pin, imageURL string, position models.BoundingBox) error {
	room, err := s.GetRoomByPin(pin)
	if err != nil {
		return ErrRoomNotFound
	}

	if room.CurrentImageURL != "" {
		log.Printf("🔁 La sala %s ya tiene imagen para esta ronda, publicación ignorada", pin)
		return nil
	}

	room.CurrentImageURL = imageURL
	room.CurrentAnswerPosition = &position
	if err := s.saveRoom(room); err != nil {
		return fmt.Errorf("error publicando imagen compartida: %v", err)
	}

	log.Printf("🖼️ Imagen compartida publicada en la sala %s", pin)
	s.notifier.BroadcastToRoom(pin, "imagePublished", map[string]interface{}{
		"imageUrl":       imageURL,
		"answerPosition": position,
	})

	if s.listener != nil {
		s.listener.OnImagePublished(pin, imageURL, position)
	}
	return nil
}

// ClearImage limpia la imagen compartida al comenzar la siguiente ronda
func (s *RoomService) ClearImage(pin string) error {
	room, err := s.GetRoomByPin(pin)
	if err != nil {
		return ErrRoomNotFound
	}

	room.CurrentImageURL = ""
	room.CurrentAnswerPosition = nil
	if err := s.saveRoom(room); err != nil {
		return fmt.Errorf("error limpiando imagen compartida: %v", err)
	}
	return nil
}

// AddScore suma puntos al jugador y registra el tiempo de la ronda. Notifica
// a la sala el cambio de puntuación y la lista completa re-consultada.
func (s *RoomService) AddScore(pin, playerName string, scoreToAdd, elapsedMs int) error {
	room, err := s.GetRoomByPin(pin)
	if err != nil {
		return ErrRoomNotFound
	}

	player, err := s.getPlayer(pin, playerName)
	if err != nil {
		return err
	}

	oldScore := player.Score
	player.Score += scoreToAdd
	player.LastRoundTime = elapsedMs

	if err := s.savePlayer(player); err != nil {
		return fmt.Errorf("error actualizando puntuación: %v", err)
	}

	log.Printf("🎯 %s anotó %d puntos en la sala %s (total: %d)", playerName, scoreToAdd, pin, player.Score)

	s.notifier.BroadcastToRoom(pin, "playerScored", map[string]interface{}{
		"playerName": playerName,
		"oldScore":   oldScore,
		"newScore":   player.Score,
		"displayMs":  NotificationDisplayMs,
		"announce":   room.GameStarted,
	})

	s.broadcastPlayers(pin)
	return nil
}

// GetRoomByPin obtiene una sala por su pin
func (s *RoomService) GetRoomByPin(pin string) (*models.Room, error) {
	data, err := s.store.Get(roomKeyPrefix + pin)
	if err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("error obteniendo sala %s: %v", pin, err)
	}

	var room models.Room
	if err := json.Unmarshal([]byte(data), &room); err != nil {
		return nil, fmt.Errorf("error parsing sala %s: %v", pin, err)
	}

	return &room, nil
}

// ListPlayers obtiene los jugadores de la sala ordenados por puntuación
// descendente
func (s *RoomService) ListPlayers(pin string) ([]models.RoomPlayer, error) {
	names, err := s.store.GetSetMembers(roomPlayersPrefix + pin)
	if err != nil {
		return nil, fmt.Errorf("error obteniendo jugadores de la sala %s: %v", pin, err)
	}

	var players []models.RoomPlayer
	for _, name := range names {
		player, err := s.getPlayer(pin, name)
		if err != nil {
			log.Printf("⚠️ Error obteniendo jugador %s: %v", name, err)
			continue
		}
		players = append(players, *player)
	}

	// Ordenar por puntuación (mayor a menor)
	for i := 0; i < len(players)-1; i++ {
		for j := i + 1; j < len(players); j++ {
			if players[i].Score < players[j].Score {
				players[i], players[j] = players[j], players[i]
			}
		}
	}

	return players, nil
}

// Métodos privados auxiliares

// generatePin genera un pin de 6 dígitos que no choque con una sala activa
func (s *RoomService) generatePin() (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		pin := fmt.Sprintf("%d", 100000+rand.Intn(900000))

		taken, err := s.store.IsSetMember(roomPinsKey, pin)
		if err != nil {
			return "", fmt.Errorf("error verificando pin: %v", err)
		}
		if !taken {
			return pin, nil
		}
	}
	return "", fmt.Errorf("no se pudo generar un pin libre")
}

func (s *RoomService) saveRoom(room *models.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("error serializando sala: %v", err)
	}
	return s.store.Set(roomKeyPrefix+room.PinCode, string(data), 0)
}

// upsertPlayer crea o reemplaza al jugador keyed por (sala, nombre) con
// joined_at fresco y puntuación 0
func (s *RoomService) upsertPlayer(pin, playerName string) error {
	player := &models.RoomPlayer{
		RoomPin:    pin,
		PlayerName: playerName,
		Score:      0,
		JoinedAt:   time.Now(),
	}

	if err := s.savePlayer(player); err != nil {
		return err
	}
	return s.store.AddToSet(roomPlayersPrefix+pin, playerName)
}

func (s *RoomService) savePlayer(player *models.RoomPlayer) error {
	data, err := json.Marshal(player)
	if err != nil {
		return fmt.Errorf("error serializando jugador: %v", err)
	}
	return s.store.Set(playerKey(player.RoomPin, player.PlayerName), string(data), 0)
}

func (s *RoomService) getPlayer(pin, playerName string) (*models.RoomPlayer, error) {
	data, err := s.store.Get(playerKey(pin, playerName))
	if err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("error obteniendo jugador %s: %v", playerName, err)
	}

	var player models.RoomPlayer
	if err := json.Unmarshal([]byte(data), &player); err != nil {
		return nil, fmt.Errorf("error parsing jugador %s: %v", playerName, err)
	}

	return &player, nil
}

// playersByJoinTime jugadores restantes ordenados por joined_at ascendente
func (s *RoomService) playersByJoinTime(pin string) ([]models.RoomPlayer, error) {
	players, err := s.ListPlayers(pin)
	if err != nil {
		return nil, err
	}

	for i := 0; i < len(players)-1; i++ {
		for j := i + 1; j < len(players); j++ {
			if players[j].JoinedAt.Before(players[i].JoinedAt) {
				players[i], players[j] = players[j], players[i]
			}
		}
	}

	return players, nil
}

// broadcastPlayers re-consulta la lista completa y la envía a la sala.
// Sin merge incremental: corrección sobre eficiencia, las salas son pequeñas.
func (s *RoomService) broadcastPlayers(pin string) {
	players, err := s.ListPlayers(pin)
	if err != nil {
		log.Printf("⚠️ Error re-consultando jugadores de %s: %v", pin, err)
		return
	}
	s.notifier.BroadcastToRoom(pin, "playersChanged", players)
}

func (s *RoomService) broadcastRoom(room *models.Room) {
	s.notifier.BroadcastToRoom(room.PinCode, "roomUpdated", room)
}

func playerKey(pin, playerName string) string {
	return fmt.Sprintf("%s%s:%s", playerKeyPrefix, pin, playerName)
}
