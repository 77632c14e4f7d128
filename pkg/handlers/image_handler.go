package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/backsoul/redball/pkg/models"
	"github.com/backsoul/redball/pkg/services"
	"github.com/valyala/fasthttp"
)

// ImageHandler maneja las peticiones HTTP del catálogo de imágenes guardadas
type ImageHandler struct {
	imageService *services.ImageService
	roundService *services.RoundService
}

// NewImageHandler crea una nueva instancia del handler de imágenes
func NewImageHandler(imageService *services.ImageService, roundService *services.RoundService) *ImageHandler {
	return &ImageHandler{
		imageService: imageService,
		roundService: roundService,
	}
}

// ListImages maneja GET /api/images
func (h *ImageHandler) ListImages(ctx *fasthttp.RequestCtx) {
	images, err := h.imageService.LoadSavedImages()
	if err != nil {
		respondWithError(ctx, fasthttp.StatusInternalServerError, fmt.Sprintf("Error obteniendo imágenes: %v", err))
		return
	}

	respondWithSuccess(ctx, map[string]interface{}{
		"images": images,
		"count":  len(images),
	}, fmt.Sprintf("%d imágenes guardadas", len(images)))
}

// DeleteImage maneja DELETE /api/images con body {"url": "..."}
func (h *ImageHandler) DeleteImage(ctx *fasthttp.RequestCtx) {
	var request struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(ctx.PostBody(), &request); err != nil {
		respondWithError(ctx, fasthttp.StatusBadRequest, "JSON inválido")
		return
	}

	if request.URL == "" {
		respondWithError(ctx, fasthttp.StatusBadRequest, "URL de la imagen es requerida")
		return
	}

	if err := h.imageService.DeleteImage(request.URL); err != nil {
		respondWithError(ctx, fasthttp.StatusInternalServerError, fmt.Sprintf("Error eliminando imagen: %v", err))
		return
	}

	respondWithSuccess(ctx, nil, "Imagen eliminada")
}

// DetectBall maneja POST /api/images/detect. Vuelve a localizar la bola en
// la imagen actual de la sesión y corrige la posición guardada.
func (h *ImageHandler) DetectBall(ctx *fasthttp.RequestCtx) {
	var request models.DetectRequest
	if err := json.Unmarshal(ctx.PostBody(), &request); err != nil {
		respondWithError(ctx, fasthttp.StatusBadRequest, "JSON inválido")
		return
	}

	if request.SessionID == "" {
		respondWithError(ctx, fasthttp.StatusBadRequest, "ID de sesión es requerido")
		return
	}

	bbox, err := h.roundService.ReDetect(request.SessionID)
	if err != nil {
		respondWithError(ctx, fasthttp.StatusInternalServerError, fmt.Sprintf("Error detectando la bola: %v", err))
		return
	}

	respondWithSuccess(ctx, map[string]interface{}{
		"boundingBox": bbox,
	}, "Bola detectada")
}

// Pinpoint maneja POST /api/images/pinpoint. Fija manualmente la posición de
// la bola alrededor del punto indicado.
func (h *ImageHandler) Pinpoint(ctx *fasthttp.RequestCtx) {
	var request models.PinpointRequest
	if err := json.Unmarshal(ctx.PostBody(), &request); err != nil {
		respondWithError(ctx, fasthttp.StatusBadRequest, "JSON inválido")
		return
	}

	if request.SessionID == "" {
		respondWithError(ctx, fasthttp.StatusBadRequest, "ID de sesión es requerido")
		return
	}
	if request.X < 0 || request.X > 1 || request.Y < 0 || request.Y > 1 {
		respondWithError(ctx, fasthttp.StatusBadRequest, "Las coordenadas deben estar entre 0 y 1")
		return
	}

	bbox, err := h.roundService.Pinpoint(request.SessionID, request.X, request.Y)
	if err != nil {
		respondWithError(ctx, fasthttp.StatusInternalServerError, fmt.Sprintf("Error fijando la posición: %v", err))
		return
	}

	respondWithSuccess(ctx, map[string]interface{}{
		"boundingBox": bbox,
	}, "Posición fijada")
}
