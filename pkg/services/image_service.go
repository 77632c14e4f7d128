package services

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/backsoul/redball/pkg/models"
	"github.com/backsoul/redball/pkg/store"
)

// Claves de Redis para imágenes guardadas
const (
	savedImagesKey   = "redball:saved_images"
	savedImagePrefix = "redball:saved_image:"
)

// ImageService maneja las imágenes guardadas para reutilizar entre partidas.
// Redis es el almacén principal; si falla, cada operación cae al almacén
// local en disco.
type ImageService struct {
	store KeyValueStore
	local *store.LocalStore
}

// NewImageService crea una nueva instancia del servicio de imágenes
func NewImageService(kvStore KeyValueStore, local *store.LocalStore) *ImageService {
	return &ImageService{
		store: kvStore,
		local: local,
	}
}

// SaveImage guarda una imagen con su posición de respuesta detectada
func (s *ImageService) SaveImage(url string, position models.BoundingBox) error {
	image := models.SavedImage{
		URL:            url,
		AnswerPosition: position,
		CreatedAt:      time.Now().Format(time.RFC3339),
	}

	data, err := json.Marshal(image)
	if err != nil {
		return fmt.Errorf("error serializando imagen: %v", err)
	}

	if err := s.store.Set(savedImagePrefix+url, string(data), 0); err != nil {
		log.Printf("⚠️ Error guardando imagen en Redis, usando almacén local: %v", err)
		return s.local.SaveImage(image)
	}

	if err := s.store.AddToSet(savedImagesKey, url); err != nil {
		log.Printf("⚠️ Error registrando imagen en el set: %v", err)
	}

	log.Printf("💾 Imagen guardada: %s", url)
	return nil
}

// LoadSavedImages obtiene todas las imágenes guardadas
func (s *ImageService) LoadSavedImages() ([]models.SavedImage, error) {
	urls, err := s.store.GetSetMembers(savedImagesKey)
	if err != nil {
		log.Printf("⚠️ Error leyendo imágenes de Redis, usando almacén local: %v", err)
		return s.local.LoadImages()
	}

	var images []models.SavedImage
	for _, url := range urls {
		data, err := s.store.Get(savedImagePrefix + url)
		if err != nil {
			log.Printf("⚠️ Error obteniendo imagen %s: %v", url, err)
			continue
		}

		var image models.SavedImage
		if err := json.Unmarshal([]byte(data), &image); err != nil {
			log.Printf("⚠️ Error parsing imagen %s: %v", url, err)
			continue
		}

		images = append(images, image)
	}

	return images, nil
}

// UpdateImagePosition actualiza la caja de respuesta de una imagen guardada
func (s *ImageService) UpdateImagePosition(url string, position models.BoundingBox) error {
	data, err := s.store.Get(savedImagePrefix + url)
	if err != nil {
		log.Printf("⚠️ Error leyendo imagen de Redis, actualizando almacén local: %v", err)
		return s.local.UpdateImagePosition(url, position)
	}

	var image models.SavedImage
	if err := json.Unmarshal([]byte(data), &image); err != nil {
		return fmt.Errorf("error parsing imagen %s: %v", url, err)
	}

	image.AnswerPosition = position
	updated, err := json.Marshal(image)
	if err != nil {
		return fmt.Errorf("error serializando imagen: %v", err)
	}

	if err := s.store.Set(savedImagePrefix+url, string(updated), 0); err != nil {
		log.Printf("⚠️ Error actualizando imagen en Redis, usando almacén local: %v", err)
		return s.local.UpdateImagePosition(url, position)
	}

	log.Printf("📍 Posición actualizada para la imagen: %s", url)
	return nil
}

// DeleteImage elimina una imagen guardada por URL
func (s *ImageService) DeleteImage(url string) error {
	if err := s.store.Del(savedImagePrefix + url); err != nil {
		log.Printf("⚠️ Error eliminando imagen de Redis, usando almacén local: %v", err)
		return s.local.DeleteImage(url)
	}

	if err := s.store.RemoveFromSet(savedImagesKey, url); err != nil {
		log.Printf("⚠️ Error quitando imagen del set: %v", err)
	}

	log.Printf("🗑️ Imagen eliminada: %s", url)
	return nil
}
