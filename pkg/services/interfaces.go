package services

import (
	"time"

	"github.com/backsoul/redball/pkg/models"
)

// KeyValueStore operaciones de almacenamiento que usan los servicios.
// La implementación real es *redis.RedisClient; los tests usan una en memoria.
type KeyValueStore interface {
	Get(key string) (string, error)
	Set(key, value string, ttl time.Duration) error
	Del(keys ...string) error
	AddToSet(key, member string) error
	RemoveFromSet(key, member string) error
	GetSetMembers(key string) ([]string, error)
	IsSetMember(key, member string) (bool, error)
}

// Notifier canal de notificaciones de cambios hacia los clientes de una sala.
// La implementación real es el hub de websockets.
type Notifier interface {
	BroadcastToRoom(pin string, msgType string, data interface{})
}

// ImageGenerator colaborador de generación de imágenes
type ImageGenerator interface {
	GenerateImage() (string, error)
}

// BallDetector colaborador de detección de la bola
type BallDetector interface {
	DetectBall(imageURL string) (models.BoundingBox, error)
}

// Announcer precalienta locuciones; los fallos nunca afectan la partida
type Announcer interface {
	Warm(text string)
}

// ImageListener recibe los cambios de la sala que activan rondas en curso.
// Es la vía alternativa a la del sondeo: ambas deben existir y la segunda
// en llegar debe ser un no-op estricto.
type ImageListener interface {
	OnImagePublished(pin, imageURL string, position models.BoundingBox)
	OnGameStarted(pin string)
}
