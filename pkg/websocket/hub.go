package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
)

// Hub concentra las conexiones WebSocket agrupadas por pin de sala. Los
// mensajes de una sala solo llegan a los clientes suscritos a ese pin.
type Hub struct {
	clients    map[*websocket.Conn]string
	broadcast  chan roomMessage
	register   chan subscription
	unregister chan *websocket.Conn
	mutex      sync.RWMutex
}

type subscription struct {
	conn *websocket.Conn
	pin  string
}

type roomMessage struct {
	pin  string
	data []byte
}

type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]string),
		broadcast:  make(chan roomMessage),
		register:   make(chan subscription),
		unregister: make(chan *websocket.Conn),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.register:
			h.mutex.Lock()
			h.clients[sub.conn] = sub.pin
			total := len(h.clients)
			h.mutex.Unlock()
			log.Printf("Cliente WebSocket conectado a la sala %s. Total: %d", sub.pin, total)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mutex.Unlock()
			log.Printf("Cliente WebSocket desconectado. Total: %d", total)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client, pin := range h.clients {
				if pin != message.pin {
					continue
				}
				err := client.WriteMessage(websocket.TextMessage, message.data)
				if err != nil {
					log.Printf("Error enviando mensaje WebSocket: %v", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Register suscribe una conexión a los mensajes de una sala
func (h *Hub) Register(conn *websocket.Conn, pin string) {
	h.register <- subscription{conn: conn, pin: pin}
}

func (h *Hub) Unregister(conn *websocket.Conn) {
	h.unregister <- conn
}

// BroadcastToRoom envía un mensaje tipado a todos los clientes de una sala
func (h *Hub) BroadcastToRoom(pin, msgType string, data interface{}) {
	msg := Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	msgData, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error serializando mensaje: %v", err)
		return
	}

	h.broadcast <- roomMessage{pin: pin, data: msgData}
}
