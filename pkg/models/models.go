package models

// BoundingBox caja delimitadora de la bola, coordenadas fraccionarias [0,1]
// relativas a las dimensiones de la imagen. Se asume x_min <= x_max y
// y_min <= y_max (no se valida activamente).
type BoundingBox struct {
	XMin float64 `json:"x_min"`
	YMin float64 `json:"y_min"`
	XMax float64 `json:"x_max"`
	YMax float64 `json:"y_max"`
}

// SavedImage imagen guardada para reutilizar entre partidas.
// La identidad es la URL, no hay claves foráneas.
type SavedImage struct {
	URL            string      `json:"url"`
	AnswerPosition BoundingBox `json:"answerPosition"`
	CreatedAt      string      `json:"createdAt,omitempty"`
}

// CachedImage último par imagen+posición resuelto en la sesión
type CachedImage struct {
	URL  string
	BBox BoundingBox
}

// APIResponse estructura estándar para respuestas de API
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}
