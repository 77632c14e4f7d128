package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// apiCallTimeout tiempo máximo de una llamada a un colaborador externo.
// La generación de imágenes puede tardar bastante.
const apiCallTimeout = 90 * time.Second

// postJSON envía un POST JSON autenticado a un colaborador externo y
// devuelve el código de estado y el cuerpo de la respuesta
func postJSON(client *fasthttp.Client, url, apiKey string, payload interface{}) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("error serializando request: %v", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	req.SetBody(body)

	if err := client.DoTimeout(req, resp, apiCallTimeout); err != nil {
		return 0, nil, fmt.Errorf("error llamando a %s: %v", url, err)
	}

	respBody := make([]byte, len(resp.Body()))
	copy(respBody, resp.Body())

	return resp.StatusCode(), respBody, nil
}

// errorFromEnvelope extrae el mensaje de error del sobre JSON de un
// colaborador; si no se puede parsear, usa un mensaje genérico
func errorFromEnvelope(statusCode int, body []byte) *APIError {
	var envelope struct {
		Error string `json:"error"`
	}
	message := "unknown error"
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		message = envelope.Error
	}
	return &APIError{StatusCode: statusCode, Message: message}
}
