package services

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/backsoul/redball/pkg/models"
	"github.com/valyala/fasthttp"
)

const detectBallPath = "/functions/v1/detect-ball"

// DetectionService cliente del colaborador de visión que localiza la bola
// roja en una imagen generada
type DetectionService struct {
	client  *fasthttp.Client
	baseURL string
	apiKey  string
}

// NewDetectionService crea una nueva instancia del servicio de detección
func NewDetectionService(baseURL, apiKey string) *DetectionService {
	return &DetectionService{
		client:  &fasthttp.Client{},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// DetectBall pide la caja delimitadora de la bola para la URL de imagen dada.
// Las coordenadas son fracciones de las dimensiones de la imagen.
func (s *DetectionService) DetectBall(imageURL string) (models.BoundingBox, error) {
	log.Printf("🔍 Detectando la bola en: %s", imageURL)

	payload := map[string]interface{}{
		"imageUrl": imageURL,
	}

	statusCode, body, err := postJSON(s.client, s.baseURL+detectBallPath, s.apiKey, payload)
	if err != nil {
		return models.BoundingBox{}, err
	}

	if statusCode != fasthttp.StatusOK {
		apiErr := errorFromEnvelope(statusCode, body)
		log.Printf("❌ Error del detector de la bola (%d): %s", statusCode, apiErr.Message)
		return models.BoundingBox{}, apiErr
	}

	var result struct {
		Success     bool                `json:"success"`
		BoundingBox *models.BoundingBox `json:"boundingBox"`
		Error       string              `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return models.BoundingBox{}, fmt.Errorf("error parsing respuesta del detector: %v", err)
	}

	if !result.Success || result.BoundingBox == nil {
		return models.BoundingBox{}, fmt.Errorf("failed to detect ball location from response")
	}

	log.Printf("✅ Bola detectada en (%.3f, %.3f)-(%.3f, %.3f)",
		result.BoundingBox.XMin, result.BoundingBox.YMin,
		result.BoundingBox.XMax, result.BoundingBox.YMax)

	return *result.BoundingBox, nil
}
