package services

import (
	"errors"
	"fmt"
	"strings"
)

// Errores de sala que los handlers traducen a códigos HTTP distintos
var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrGameAlreadyStarted = errors.New("game has already started")
	ErrNotHost            = errors.New("only the host can do that")
	ErrPlayerNotFound     = errors.New("player not found in room")
	ErrSessionNotFound    = errors.New("game session not found")
)

// APIError error de un colaborador HTTP (generación, detección, voz)
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Frases que indican cuota o límite de peticiones: nunca se reintentan
var nonRetryablePatterns = []string{
	"quota exceeded", "rate limit", "too many requests", "429",
	"bad request", "unauthorized", "forbidden", "not found",
}

// IsRetryableError clasifica un error de colaborador para una futura política
// de reintento automático: 5xx sí, 4xx y mensajes de cuota no. El diseño
// actual solo ofrece reintento manual (clic para reintentar).
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return false
		}
		return apiErr.StatusCode >= 500
	}

	message := strings.ToLower(err.Error())
	for _, pattern := range nonRetryablePatterns {
		if strings.Contains(message, pattern) {
			return false
		}
	}

	return true
}
