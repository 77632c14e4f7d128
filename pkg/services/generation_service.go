package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

// ballPrompt prompt fijo de generación: una escena densísima estilo
// "Where's Waldo" con exactamente una bolita roja escondida
const ballPrompt = `A highly detailed "Where's Waldo" style cartoon illustration with MAXIMUM detail and complexity. The scene is an extremely crowded and bustling Singaporean hawker centre with hundreds of tiny cartoon characters. Include:

- VERY SMALL cartoon-style people (each person should be tiny, around 20-30 pixels tall in the final image)
- Hundreds of individual characters doing different activities
- EXACTLY ONE small red ball cleverly hidden among the chaos - visible but not obvious, blending naturally into the busy scene
- Dozens of food stalls with intricate details - hanging signs, cooking equipment, food displays
- Multiple layers of depth - people in foreground, middle ground, and background
- Complex overlapping elements - tables, chairs, food carts, decorations, signs
- Dense crowds with people standing, sitting, eating, cooking, talking, walking
- Intricate Singaporean hawker centre details - lanterns, umbrellas, menus, drinks, condiments
- Rich colors and textures throughout every inch of the scene
- Maximum visual complexity - every corner should be packed with interesting details to examine

CRITICAL REQUIREMENTS:
1. There must be ONLY ONE red ball in the entire image - no duplicates
2. The red ball should be small and naturally hidden among objects or people, but still fully visible when zoomed in
3. Characters must be VERY SMALL to create the classic "Where's Waldo" search experience
4. The scene must be EXTREMELY CROWDED and detailed - imagine 200+ individual elements
5. Style: Ultra-detailed classic "Where's Waldo" illustration where finding anything requires careful searching and zooming.`

// Parámetros fijos de generación
const (
	imageSize          = "square_hd"
	inferenceSteps     = 28
	generateImagePath  = "/functions/v1/generate-image"
	generationInterval = 2 * time.Second
	generationBurst    = 2
)

// GenerationService cliente del colaborador de generación de imágenes.
// Un limitador de tasa evita agotar la cuota del endpoint cuando varias
// salas generan a la vez.
type GenerationService struct {
	client  *fasthttp.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
}

// NewGenerationService crea una nueva instancia del servicio de generación
func NewGenerationService(baseURL, apiKey string) *GenerationService {
	return &GenerationService{
		client:  &fasthttp.Client{},
		baseURL: baseURL,
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Every(generationInterval), generationBurst),
	}
}

// GenerateImage pide una nueva escena al colaborador y devuelve la URL de la
// imagen generada
func (s *GenerationService) GenerateImage() (string, error) {
	if err := s.limiter.Wait(context.Background()); err != nil {
		return "", fmt.Errorf("error esperando al limitador: %v", err)
	}

	log.Println("🎨 Generando nueva imagen...")

	payload := map[string]interface{}{
		"prompt":              ballPrompt,
		"image_size":          imageSize,
		"num_inference_steps": inferenceSteps,
	}

	statusCode, body, err := postJSON(s.client, s.baseURL+generateImagePath, s.apiKey, payload)
	if err != nil {
		return "", err
	}

	if statusCode != fasthttp.StatusOK {
		apiErr := errorFromEnvelope(statusCode, body)
		log.Printf("❌ Error del generador de imágenes (%d): %s", statusCode, apiErr.Message)
		return "", apiErr
	}

	var result struct {
		Success  bool   `json:"success"`
		ImageURL string `json:"imageUrl"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("error parsing respuesta del generador: %v", err)
	}

	// Sobre malformado: fallo terminal para esta llamada, sin reintento
	if !result.Success || result.ImageURL == "" {
		return "", fmt.Errorf("image generation failed, no image data returned")
	}

	log.Printf("✅ Imagen generada: %s", result.ImageURL)
	return result.ImageURL, nil
}
