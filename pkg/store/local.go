package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/backsoul/redball/pkg/models"
)

// LocalStore almacenamiento de respaldo en disco para las imágenes guardadas.
// Se usa únicamente cuando Redis no está disponible: el equivalente del
// localStorage del dispositivo.
type LocalStore struct {
	path  string
	mutex sync.Mutex
}

// NewLocalStore crea un almacén local respaldado por un archivo JSON
func NewLocalStore(path string) *LocalStore {
	return &LocalStore{path: path}
}

// LoadImages lee la lista de imágenes guardadas del archivo.
// Un archivo inexistente se trata como lista vacía.
func (ls *LocalStore) LoadImages() ([]models.SavedImage, error) {
	ls.mutex.Lock()
	defer ls.mutex.Unlock()
	return ls.readAll()
}

// SaveImage agrega una imagen a la lista (reemplaza si la URL ya existe)
func (ls *LocalStore) SaveImage(image models.SavedImage) error {
	ls.mutex.Lock()
	defer ls.mutex.Unlock()

	images, err := ls.readAll()
	if err != nil {
		return err
	}

	replaced := false
	for i := range images {
		if images[i].URL == image.URL {
			images[i] = image
			replaced = true
			break
		}
	}
	if !replaced {
		images = append(images, image)
	}

	return ls.writeAll(images)
}

// UpdateImagePosition actualiza la caja de respuesta de una imagen guardada
func (ls *LocalStore) UpdateImagePosition(url string, position models.BoundingBox) error {
	ls.mutex.Lock()
	defer ls.mutex.Unlock()

	images, err := ls.readAll()
	if err != nil {
		return err
	}

	for i := range images {
		if images[i].URL == url {
			images[i].AnswerPosition = position
			return ls.writeAll(images)
		}
	}

	return fmt.Errorf("image %s not found in local store", url)
}

// DeleteImage elimina una imagen de la lista por URL
func (ls *LocalStore) DeleteImage(url string) error {
	ls.mutex.Lock()
	defer ls.mutex.Unlock()

	images, err := ls.readAll()
	if err != nil {
		return err
	}

	filtered := images[:0]
	for _, img := range images {
		if img.URL != url {
			filtered = append(filtered, img)
		}
	}

	return ls.writeAll(filtered)
}

func (ls *LocalStore) readAll() ([]models.SavedImage, error) {
	data, err := os.ReadFile(ls.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.SavedImage{}, nil
		}
		return nil, fmt.Errorf("error leyendo almacén local: %v", err)
	}

	var images []models.SavedImage
	if err := json.Unmarshal(data, &images); err != nil {
		return nil, fmt.Errorf("error parsing almacén local: %v", err)
	}

	return images, nil
}

func (ls *LocalStore) writeAll(images []models.SavedImage) error {
	data, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("error serializando almacén local: %v", err)
	}

	return os.WriteFile(ls.path, data, 0644)
}
