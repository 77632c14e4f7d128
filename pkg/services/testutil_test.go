package services

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/backsoul/redball/pkg/models"
	"github.com/backsoul/redball/pkg/redis"
	"github.com/backsoul/redball/pkg/store"
)

// memoryStore implementación en memoria de KeyValueStore para los tests
type memoryStore struct {
	mu       sync.Mutex
	values   map[string]string
	sets     map[string]map[string]bool
	setErr   error
	getErr   error
	setDelay time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		values: make(map[string]string),
		sets:   make(map[string]map[string]bool),
	}
}

func (m *memoryStore) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	value, ok := m.values[key]
	if !ok {
		return "", redis.ErrNotFound
	}
	return value, nil
}

func (m *memoryStore) Set(key, value string, ttl time.Duration) error {
	m.mu.Lock()
	delay := m.setDelay
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

func (m *memoryStore) Del(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func (m *memoryStore) AddToSet(key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	if m.sets[key] == nil {
		m.sets[key] = make(map[string]bool)
	}
	m.sets[key][member] = true
	return nil
}

func (m *memoryStore) RemoveFromSet(key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sets[key] != nil {
		delete(m.sets[key], member)
	}
	return nil
}

func (m *memoryStore) GetSetMembers(key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	var members []string
	for member := range m.sets[key] {
		members = append(members, member)
	}
	return members, nil
}

func (m *memoryStore) IsSetMember(key, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return false, m.getErr
	}
	return m.sets[key] != nil && m.sets[key][member], nil
}

// recordedMessage mensaje capturado por el notificador de prueba
type recordedMessage struct {
	Pin  string
	Type string
	Data interface{}
}

// recordingNotifier implementación de Notifier que guarda lo enviado
type recordingNotifier struct {
	mu       sync.Mutex
	messages []recordedMessage
}

func (n *recordingNotifier) BroadcastToRoom(pin, msgType string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, recordedMessage{Pin: pin, Type: msgType, Data: data})
}

func (n *recordingNotifier) byType(msgType string) []recordedMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var matched []recordedMessage
	for _, msg := range n.messages {
		if msg.Type == msgType {
			matched = append(matched, msg)
		}
	}
	return matched
}

// fakeGenerator implementación de ImageGenerator con contador de llamadas
type fakeGenerator struct {
	mu    sync.Mutex
	urls  []string
	err   error
	calls int
}

func (g *fakeGenerator) GenerateImage() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	if len(g.urls) > 0 {
		url := g.urls[0]
		if len(g.urls) > 1 {
			g.urls = g.urls[1:]
		}
		return url, nil
	}
	return "https://img.test/generated.png", nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// fakeDetector implementación de BallDetector
type fakeDetector struct {
	mu    sync.Mutex
	bbox  models.BoundingBox
	err   error
	delay time.Duration
	calls int
}

func (d *fakeDetector) DetectBall(imageURL string) (models.BoundingBox, error) {
	d.mu.Lock()
	d.calls++
	bbox, err, delay := d.bbox, d.err, d.delay
	d.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return bbox, err
}

func (d *fakeDetector) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// silentAnnouncer implementación de Announcer que no hace nada
type silentAnnouncer struct{}

func (silentAnnouncer) Warm(text string) {}

// testBox caja usada por defecto en los tests de ronda
var testBox = models.BoundingBox{XMin: 0.40, YMin: 0.40, XMax: 0.50, YMax: 0.50}

// newTestRoundService arma un coordinador de rondas con colaboradores falsos
// e intervalos cortos
func newTestRoundService(t *testing.T, kv *memoryStore, generator *fakeGenerator, detector *fakeDetector) (*RoundService, *RoomService, *recordingNotifier) {
	notifier := &recordingNotifier{}
	rooms := NewRoomService(kv, notifier)
	images := NewImageService(kv, store.NewLocalStore(filepath.Join(t.TempDir(), "saved_images.json")))

	rs := NewRoundService(rooms, images, generator, detector, silentAnnouncer{}, notifier)
	rs.tickInterval = 10 * time.Millisecond
	rs.pollInterval = 10 * time.Millisecond
	rs.pollCeiling = 200 * time.Millisecond
	rs.detectionWait = 500 * time.Millisecond
	rs.countdownTick = 5 * time.Millisecond

	rooms.SetImageListener(rs)
	return rs, rooms, notifier
}
