package services

import (
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/backsoul/redball/pkg/models"
	"github.com/google/uuid"
)

// Constantes de la ronda
const (
	RoundDuration      = 30 // segundos por ronda
	HitTolerance       = 0.05
	WarningSecond      = 5
	BaseScore          = 100
	PointsPerSecond    = 10
	DefaultTotalRounds = 5

	// Tiempo reportado cuando el acierto llega antes de que arranque el timer
	fallbackElapsedMs = 15000
)

// Frases rotativas mientras se genera la imagen
var loadingQuotes = []string{
	"Ball is rolling around...",
	"Ball is bouncing somewhere...",
	"Don't rush me, I'm generating...",
	"Putting the 'art' in 'artificial intelligence'...",
	"Hiding ball better than my last payslip...",
	"Chope-ing this loading screen with a tissue packet...",
	"Checking if there's a queue for this image...",
	"Waking up the model... need Kopi O gao...",
	"Drawing more details than a BTO floor plan...",
	"Let me cook...",
	"Is it hot in here or is the GPU running?",
	"Shuffling pixels... harder than shuffling for NDP tickets.",
	"Adding a little bit of Singlish spice...",
	"Please wait, calculating the best place to hide from the sun.",
	"Trying not to draw another ERP gantry...",
	"Hope this loads faster than the BKE on a Friday...",
	"Asking the AI for a 5-star rating...",
	"Making sure ball is not in a restricted area...",
	"Rendering... faster than my cai fan order, hopefully.",
	"Final checks... confirm can, plus chop!",
}

// pendingDetection hueco explícito para el resultado de detección en vuelo.
// Un clic que llega antes de que termine la detección espera este mismo
// resultado en vez de disparar una llamada duplicada.
type pendingDetection struct {
	done chan struct{}
	bbox models.BoundingBox
	err  error
}

func (p *pendingDetection) await(timeout time.Duration) (models.BoundingBox, error) {
	select {
	case <-p.done:
		return p.bbox, p.err
	case <-time.After(timeout):
		return models.BoundingBox{}, fmt.Errorf("timed out waiting for ball detection")
	}
}

// RoundSession estado de ronda de un jugador. RoomPin vacío = un jugador.
type RoundSession struct {
	ID         string
	RoomPin    string
	PlayerName string

	mutex         sync.Mutex
	phase         models.RoundPhase
	currentRound  int
	totalRounds   int
	imageURL      string
	answer        *models.BoundingBox
	pending       *pendingDetection
	cached        *models.CachedImage
	usedImageURLs map[string]bool
	timeRemaining int
	roundStart    time.Time
	transitioning bool
	warningFired  bool
	timesUpFired  bool
	statusText    string
	loadingQuote  string

	// epoch invalida timers, sondeos y detecciones de rondas abandonadas:
	// el resultado tardío se descarta al consumirse, no se cancela en origen
	epoch     int
	timerStop chan struct{}
}

// RoundService coordina la secuencia de cada ronda: adquisición de imagen,
// detección de la bola, timer y resolución del clic, conciliando la caché
// local de un jugador con el estado compartido multijugador.
type RoundService struct {
	mutex    sync.RWMutex
	sessions map[string]*RoundSession

	rooms     *RoomService
	images    *ImageService
	generator ImageGenerator
	detector  BallDetector
	speech    Announcer
	notifier  Notifier

	// Intervalos inyectables para los tests
	tickInterval  time.Duration
	pollInterval  time.Duration
	pollCeiling   time.Duration
	detectionWait time.Duration
	countdownTick time.Duration
}

// NewRoundService crea una nueva instancia del coordinador de rondas
func NewRoundService(rooms *RoomService, images *ImageService, generator ImageGenerator,
	detector BallDetector, speech Announcer, notifier Notifier) *RoundService {
	return &RoundService{
		sessions:      make(map[string]*RoundSession),
		rooms:         rooms,
		images:        images,
		generator:     generator,
		detector:      detector,
		speech:        speech,
		notifier:      notifier,
		tickInterval:  time.Second,
		pollInterval:  2 * time.Second,
		pollCeiling:   30 * time.Second,
		detectionWait: 20 * time.Second,
		countdownTick: time.Second,
	}
}

// HitTest verifica si el clic cae dentro de la caja expandida por el margen
// de tolerancia en los cuatro lados
func HitTest(x, y float64, box models.BoundingBox, tolerance float64) bool {
	return x >= box.XMin-tolerance && x <= box.XMax+tolerance &&
		y >= box.YMin-tolerance && y <= box.YMax+tolerance
}

// ComputeScore puntuación determinista según el tiempo restante al acertar
func ComputeScore(timeRemaining int) int {
	bonus := timeRemaining * PointsPerSecond
	if bonus < 0 {
		bonus = 0
	}
	return BaseScore + bonus
}

// CreateSession crea una sesión de juego para un jugador. Con pin, la
// configuración de rondas viene del registro de la sala.
func (rs *RoundService) CreateSession(pin, playerName string, totalRounds int) (*models.RoundView, error) {
	if totalRounds <= 0 {
		totalRounds = DefaultTotalRounds
	}
	currentRound := 1

	if pin != "" {
		room, err := rs.rooms.GetRoomByPin(pin)
		if err != nil {
			return nil, err
		}
		totalRounds = room.TotalRounds
		if room.CurrentRound > 1 {
			currentRound = room.CurrentRound
		}
	}

	session := &RoundSession{
		ID:            uuid.New().String(),
		RoomPin:       pin,
		PlayerName:    playerName,
		phase:         models.PhaseIdle,
		currentRound:  currentRound,
		totalRounds:   totalRounds,
		usedImageURLs: make(map[string]bool),
		timeRemaining: RoundDuration,
	}

	rs.mutex.Lock()
	rs.sessions[session.ID] = session
	rs.mutex.Unlock()

	log.Printf("🎮 Sesión creada para %s (sala: %q)", playerName, pin)
	return rs.viewOf(session), nil
}

// GetView devuelve el estado visible de una sesión
func (rs *RoundService) GetView(sessionID string) (*models.RoundView, error) {
	session, err := rs.session(sessionID)
	if err != nil {
		return nil, err
	}
	return rs.viewOf(session), nil
}

// RemoveSession elimina una sesión y detiene su timer
func (rs *RoundService) RemoveSession(sessionID string) {
	rs.mutex.Lock()
	session, exists := rs.sessions[sessionID]
	delete(rs.sessions, sessionID)
	rs.mutex.Unlock()

	if exists {
		session.mutex.Lock()
		session.epoch++
		session.stopTimerLocked()
		session.mutex.Unlock()
	}
}

// StartRound arranca la secuencia de la ronda. Con incrementRound avanza el
// contador; pasado el total la partida queda completada y no se adquiere
// ninguna imagen más hasta un reinicio explícito.
func (rs *RoundService) StartRound(sessionID string, incrementRound, forceNew bool) (*models.RoundView, error) {
	session, err := rs.session(sessionID)
	if err != nil {
		return nil, err
	}

	session.mutex.Lock()

	// Guarda de reentrada
	if session.transitioning {
		view := session.viewLocked()
		session.mutex.Unlock()
		return view, nil
	}
	session.transitioning = true
	session.stopTimerLocked()
	session.epoch++
	epoch := session.epoch

	if incrementRound {
		next := session.currentRound + 1
		if next > session.totalRounds {
			session.phase = models.PhaseGameCompleted
			session.currentRound = session.totalRounds
			session.transitioning = false
			pin := session.RoomPin
			view := session.viewLocked()
			session.mutex.Unlock()

			log.Printf("🏁 Partida completada: la ronda %d supera el total de %d", next, view.TotalRounds)
			if pin != "" {
				if err := rs.rooms.MarkGameCompleted(pin); err != nil {
					log.Printf("⚠️ Error marcando partida completada: %v", err)
				}
			}
			rs.announce(pin, PhraseGameComplete())
			return view, nil
		}
		session.currentRound = next
	}

	session.phase = models.PhaseAcquiring
	session.answer = nil
	session.pending = nil
	session.imageURL = ""
	session.timeRemaining = RoundDuration
	session.roundStart = time.Time{}
	session.warningFired = false
	session.timesUpFired = false
	session.statusText = ""
	session.loadingQuote = loadingQuotes[rand.Intn(len(loadingQuotes))]

	pin := session.RoomPin
	playerName := session.PlayerName
	currentRound := session.currentRound
	cached := session.cached
	session.mutex.Unlock()

	if incrementRound {
		rs.announce(pin, PhraseNextRound())
	}
	if incrementRound && pin != "" {
		if err := rs.rooms.SetCurrentRound(pin, currentRound); err != nil {
			log.Printf("⚠️ Error actualizando la ronda de la sala: %v", err)
		}
		// La imagen compartida de la ronda anterior deja de ser válida
		if err := rs.rooms.ClearImage(pin); err != nil {
			log.Printf("⚠️ Error limpiando la imagen compartida: %v", err)
		}
	}

	if pin != "" {
		room, err := rs.rooms.GetRoomByPin(pin)
		if err != nil {
			rs.failRound(session, epoch, "Room not found.")
			return rs.viewOf(session), nil
		}

		if room.CurrentImageURL != "" && room.CurrentAnswerPosition != nil {
			// Ya hay imagen compartida: adoptarla sin generar ni detectar
			rs.activateWith(session, epoch, room.CurrentImageURL, *room.CurrentAnswerPosition,
				"Using shared image... FIND BALL... GO!")
			return rs.viewOf(session), nil
		}

		if room.HostPlayerName != playerName {
			// No somos el anfitrión: sondear hasta que publique una imagen
			session.mutex.Lock()
			session.statusText = "Waiting for host to generate image..."
			session.transitioning = false
			view := session.viewLocked()
			session.mutex.Unlock()

			go rs.pollForSharedImage(session, epoch)
			return view, nil
		}
		// El anfitrión sigue con el camino de generación de abajo y publica
	}

	if !forceNew && cached != nil {
		rs.activateWith(session, epoch, cached.URL, cached.BBox, "Using saved image... FIND BALL... GO!")
		return rs.viewOf(session), nil
	}

	if !forceNew {
		if picked := rs.pickUnusedSavedImage(session); picked != nil {
			rs.activateWith(session, epoch, picked.URL, picked.AnswerPosition,
				"Using saved image... FIND BALL... GO!")
			return rs.viewOf(session), nil
		}
	}

	return rs.generateAndDetect(session, epoch, pin)
}

// NextRound avanza a la siguiente ronda
func (rs *RoundService) NextRound(sessionID string) (*models.RoundView, error) {
	return rs.StartRound(sessionID, true, false)
}

// Reset reinicia la partida desde la ronda 1
func (rs *RoundService) Reset(sessionID string) (*models.RoundView, error) {
	session, err := rs.session(sessionID)
	if err != nil {
		return nil, err
	}

	session.mutex.Lock()
	session.epoch++
	session.stopTimerLocked()
	session.currentRound = 1
	session.usedImageURLs = make(map[string]bool)
	session.phase = models.PhaseIdle
	session.transitioning = false
	pin := session.RoomPin
	session.mutex.Unlock()

	log.Printf("🔄 Sesión %s reiniciada", sessionID)
	if pin != "" {
		if err := rs.rooms.ResetGame(pin); err != nil {
			log.Printf("⚠️ Error reiniciando la sala %s: %v", pin, err)
		}
	}

	return rs.StartRound(sessionID, false, false)
}

// Click resuelve el clic del jugador en coordenadas fraccionarias de la
// imagen. Si la detección sigue en vuelo, espera su mismo resultado.
func (rs *RoundService) Click(sessionID string, x, y float64) (*models.ClickResult, error) {
	session, err := rs.session(sessionID)
	if err != nil {
		return nil, err
	}

	session.mutex.Lock()

	// En estado de error, cualquier clic reintenta la ronda
	if session.phase == models.PhaseError {
		session.mutex.Unlock()
		if _, err := rs.StartRound(sessionID, false, false); err != nil {
			return nil, err
		}
		return &models.ClickResult{Retried: true, StatusText: "Retrying..."}, nil
	}

	if session.phase != models.PhaseActive && session.pending == nil {
		remaining := session.timeRemaining
		session.mutex.Unlock()
		return &models.ClickResult{Ignored: true, TimeRemaining: remaining}, nil
	}

	epoch := session.epoch

	var answer models.BoundingBox
	if session.answer != nil {
		answer = *session.answer
		session.mutex.Unlock()
	} else {
		pending := session.pending
		session.mutex.Unlock()

		bbox, err := pending.await(rs.detectionWait)
		if err != nil {
			log.Printf("⚠️ No se pudo verificar la ubicación al hacer clic: %v", err)
			return &models.ClickResult{StatusText: "Sorry, couldn't verify the location."}, nil
		}
		answer = bbox

		// La detección esperada puede pertenecer a una ronda ya abandonada
		session.mutex.Lock()
		stale := epoch != session.epoch
		remaining := session.timeRemaining
		session.mutex.Unlock()
		if stale {
			return &models.ClickResult{Ignored: true, TimeRemaining: remaining}, nil
		}
	}

	if !HitTest(x, y, answer, HitTolerance) {
		session.mutex.Lock()
		remaining := session.timeRemaining
		session.mutex.Unlock()
		return &models.ClickResult{
			Hit:           false,
			TimeRemaining: remaining,
			StatusText:    "Not quite... Keep looking!",
		}, nil
	}

	session.mutex.Lock()
	if epoch != session.epoch ||
		(session.phase != models.PhaseActive && session.phase != models.PhaseAwaitingDetection) {
		remaining := session.timeRemaining
		session.mutex.Unlock()
		return &models.ClickResult{Ignored: true, TimeRemaining: remaining}, nil
	}
	session.stopTimerLocked()
	remaining := session.timeRemaining
	elapsed := fallbackElapsedMs
	if !session.roundStart.IsZero() {
		elapsed = int(time.Since(session.roundStart) / time.Millisecond)
	}
	score := ComputeScore(remaining)

	// Invalidar la caché de sesión para que la próxima ronda no repita
	session.cached = nil
	session.phase = models.PhaseHit
	session.statusText = fmt.Sprintf("You found Ball! +%d points! (%ds)", score, elapsed/1000)
	pin := session.RoomPin
	playerName := session.PlayerName
	statusText := session.statusText
	session.mutex.Unlock()

	if pin != "" {
		if err := rs.rooms.AddScore(pin, playerName, score, elapsed); err != nil {
			log.Printf("⚠️ Error persistiendo la puntuación de %s: %v", playerName, err)
		}
		rs.announce(pin, PhrasePlayerFoundBall(playerName))

		// Si el acierto lo dejó al frente, anunciar al líder
		if players, err := rs.rooms.ListPlayers(pin); err == nil &&
			len(players) > 1 && players[0].PlayerName == playerName {
			rs.announce(pin, PhrasePlayerInLead(playerName))
		}
	} else {
		rs.announce(pin, PhraseRoundComplete())
	}

	return &models.ClickResult{
		Hit:           true,
		Score:         score,
		TimeRemaining: remaining,
		ElapsedMs:     elapsed,
		StatusText:    statusText,
	}, nil
}

// ReDetect vuelve a localizar la bola de la imagen actual y actualiza la
// posición guardada
func (rs *RoundService) ReDetect(sessionID string) (*models.BoundingBox, error) {
	session, err := rs.session(sessionID)
	if err != nil {
		return nil, err
	}

	session.mutex.Lock()
	imageURL := session.imageURL
	session.mutex.Unlock()

	if imageURL == "" {
		return nil, fmt.Errorf("no image to detect")
	}

	bbox, err := rs.detector.DetectBall(imageURL)
	if err != nil {
		return nil, err
	}

	session.mutex.Lock()
	b := bbox
	session.answer = &b
	session.cached = &models.CachedImage{URL: imageURL, BBox: bbox}
	session.mutex.Unlock()

	if err := rs.images.UpdateImagePosition(imageURL, bbox); err != nil {
		log.Printf("⚠️ Error actualizando la posición de la imagen: %v", err)
	}

	return &bbox, nil
}

// Pinpoint fija manualmente la posición de la bola alrededor del punto dado
func (rs *RoundService) Pinpoint(sessionID string, x, y float64) (*models.BoundingBox, error) {
	session, err := rs.session(sessionID)
	if err != nil {
		return nil, err
	}

	session.mutex.Lock()
	imageURL := session.imageURL
	session.mutex.Unlock()

	if imageURL == "" {
		return nil, fmt.Errorf("no image to pinpoint")
	}

	const ballSize = 0.02 // 2% de la imagen
	bbox := models.BoundingBox{
		XMin: clamp01(x - ballSize/2),
		YMin: clamp01(y - ballSize/2),
		XMax: clamp01(x + ballSize/2),
		YMax: clamp01(y + ballSize/2),
	}

	session.mutex.Lock()
	b := bbox
	session.answer = &b
	session.mutex.Unlock()

	if err := rs.images.UpdateImagePosition(imageURL, bbox); err != nil {
		log.Printf("⚠️ Error guardando la posición manual: %v", err)
	}

	log.Printf("📌 Posición fijada manualmente para %s", imageURL)
	return &bbox, nil
}

// RunCountdown corre la cuenta regresiva 3-2-1-Go! y arranca la primera ronda
func (rs *RoundService) RunCountdown(sessionID string) error {
	session, err := rs.session(sessionID)
	if err != nil {
		return err
	}

	go func() {
		rs.countdown(session.RoomPin)
		if _, err := rs.StartRound(session.ID, false, false); err != nil {
			log.Printf("⚠️ Error arrancando la ronda tras la cuenta regresiva: %v", err)
		}
	}()
	return nil
}

// OnGameStarted reacciona al inicio de partida de la sala: cuenta regresiva
// compartida y arranque de la ronda 1 para cada sesión de la sala
func (rs *RoundService) OnGameStarted(pin string) {
	go func() {
		rs.announce(pin, PhraseGameStart())
		rs.countdown(pin)
		for _, session := range rs.sessionsForRoom(pin) {
			if _, err := rs.StartRound(session.ID, false, false); err != nil {
				log.Printf("⚠️ Error arrancando la ronda de %s: %v", session.PlayerName, err)
			}
		}
	}()
}

// OnImagePublished vía de activación por notificación: cuando aparece la
// imagen compartida, cada sesión de la sala que aún no tiene ronda activa la
// adopta. Redundante con el sondeo a propósito: la que llegue segunda es un
// no-op estricto.
func (rs *RoundService) OnImagePublished(pin, imageURL string, position models.BoundingBox) {
	for _, session := range rs.sessionsForRoom(pin) {
		session.mutex.Lock()
		epoch := session.epoch
		adoptable := session.phase == models.PhaseAcquiring ||
			session.phase == models.PhaseAwaitingDetection ||
			session.phase == models.PhaseIdle
		session.mutex.Unlock()

		if adoptable {
			rs.activateWith(session, epoch, imageURL, position, "Using shared image... FIND BALL... GO!")
		}
	}
}

// Métodos privados auxiliares

func (rs *RoundService) session(sessionID string) (*RoundSession, error) {
	rs.mutex.RLock()
	session, exists := rs.sessions[sessionID]
	rs.mutex.RUnlock()
	if !exists {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (rs *RoundService) sessionsForRoom(pin string) []*RoundSession {
	rs.mutex.RLock()
	defer rs.mutex.RUnlock()

	var sessions []*RoundSession
	for _, session := range rs.sessions {
		if session.RoomPin == pin {
			sessions = append(sessions, session)
		}
	}
	return sessions
}

// pickUnusedSavedImage elige al azar una imagen guardada que no se haya usado
// en esta partida. Con el pool agotado devuelve nil y se fuerza la generación.
func (rs *RoundService) pickUnusedSavedImage(session *RoundSession) *models.SavedImage {
	images, err := rs.images.LoadSavedImages()
	if err != nil || len(images) == 0 {
		return nil
	}

	session.mutex.Lock()
	defer session.mutex.Unlock()

	var unused []models.SavedImage
	for _, img := range images {
		if !session.usedImageURLs[img.URL] {
			unused = append(unused, img)
		}
	}

	if len(unused) == 0 {
		log.Println("🎲 Todas las imágenes guardadas ya se usaron, se generará una nueva")
		return nil
	}

	picked := unused[rand.Intn(len(unused))]
	session.usedImageURLs[picked.URL] = true
	session.cached = &models.CachedImage{URL: picked.URL, BBox: picked.AnswerPosition}
	return &picked
}

// generateAndDetect genera una imagen nueva y lanza la detección en paralelo
// a través del hueco pendiente compartido
func (rs *RoundService) generateAndDetect(session *RoundSession, epoch int, pin string) (*models.RoundView, error) {
	imageURL, err := rs.generator.GenerateImage()
	if err != nil {
		log.Printf("❌ Error generando imagen (reintentable: %v): %v", IsRetryableError(err), err)
		rs.failRound(session, epoch, "Image generation failed. Click anywhere to retry.")
		return rs.viewOf(session), nil
	}

	session.mutex.Lock()
	if epoch != session.epoch {
		session.mutex.Unlock()
		log.Println("🗑️ Imagen generada para una ronda abandonada, descartada")
		return rs.viewOf(session), nil
	}
	session.imageURL = imageURL
	session.usedImageURLs[imageURL] = true
	session.phase = models.PhaseAwaitingDetection
	pending := &pendingDetection{done: make(chan struct{})}
	session.pending = pending
	session.transitioning = false
	view := session.viewLocked()
	session.mutex.Unlock()

	go func() {
		bbox, err := rs.detector.DetectBall(imageURL)
		pending.bbox, pending.err = bbox, err
		close(pending.done)
		rs.onDetection(session, epoch, imageURL, bbox, err)
	}()

	return view, nil
}

func (rs *RoundService) onDetection(session *RoundSession, epoch int, imageURL string, bbox models.BoundingBox, err error) {
	if err != nil {
		log.Printf("❌ Error detectando la bola (reintentable: %v): %v", IsRetryableError(err), err)
		rs.failRound(session, epoch, "Failed to detect ball. Click to retry.")
		return
	}

	// Persistir el par (url, caja) para reutilizar en futuras partidas
	if err := rs.images.SaveImage(imageURL, bbox); err != nil {
		log.Printf("⚠️ Error guardando la imagen detectada: %v", err)
	}

	session.mutex.Lock()
	if epoch != session.epoch {
		session.mutex.Unlock()
		log.Println("🗑️ Resultado de detección de una ronda abandonada, descartado")
		return
	}
	// No recachear la imagen de una ronda que ya terminó
	if !session.resolvedLocked() {
		session.cached = &models.CachedImage{URL: imageURL, BBox: bbox}
	}
	pin := session.RoomPin
	session.mutex.Unlock()

	if pin != "" {
		// Publicar para que los seguidores reutilicen la misma imagen
		if err := rs.rooms.PublishImage(pin, imageURL, bbox); err != nil {
			log.Printf("⚠️ Error publicando la imagen compartida: %v", err)
		}
	}

	rs.activateWith(session, epoch, imageURL, bbox, "FIND BALL... GO!")
}

// activateWith marca la ronda activa con la imagen y respuesta dadas y
// arranca el timer. Idempotente: si la ronda ya está activa con la misma
// imagen, o ya quedó resuelta, es un no-op estricto.
func (rs *RoundService) activateWith(session *RoundSession, epoch int, imageURL string, bbox models.BoundingBox, status string) {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	if epoch != session.epoch {
		return
	}
	// Una ronda resuelta no se reabre por una activación tardía
	if session.resolvedLocked() {
		return
	}
	if session.phase == models.PhaseActive && session.imageURL == imageURL {
		return
	}

	session.imageURL = imageURL
	answer := bbox
	session.answer = &answer
	session.pending = nil
	session.phase = models.PhaseActive
	session.statusText = status
	session.transitioning = false
	rs.startTimerLocked(session)
}

func (rs *RoundService) failRound(session *RoundSession, epoch int, status string) {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	if epoch != session.epoch {
		return
	}
	session.stopTimerLocked()
	session.phase = models.PhaseError
	session.statusText = status
	session.transitioning = false
}

// pollForSharedImage sondeo acotado del no anfitrión: espera a que el
// anfitrión publique la imagen compartida. Se auto-cancela tras el tope fijo
// y la ronda queda sin arrancar (el jugador debe reintentar).
func (rs *RoundService) pollForSharedImage(session *RoundSession, epoch int) {
	ticker := time.NewTicker(rs.pollInterval)
	defer ticker.Stop()
	deadline := time.After(rs.pollCeiling)

	for {
		select {
		case <-deadline:
			session.mutex.Lock()
			if epoch == session.epoch && session.phase == models.PhaseAcquiring {
				session.phase = models.PhaseIdle
				session.statusText = "Host hasn't generated an image yet. Try again."
			}
			session.mutex.Unlock()
			return

		case <-ticker.C:
			session.mutex.Lock()
			stale := epoch != session.epoch || session.phase != models.PhaseAcquiring
			session.mutex.Unlock()
			if stale {
				return
			}

			room, err := rs.rooms.GetRoomByPin(session.RoomPin)
			if err != nil {
				continue
			}
			if room.CurrentImageURL != "" && room.CurrentAnswerPosition != nil {
				rs.activateWith(session, epoch, room.CurrentImageURL, *room.CurrentAnswerPosition,
					"Using shared image... FIND BALL... GO!")
				return
			}
		}
	}
}

// startTimerLocked arranca el timer de 30 segundos. Se llama con el mutex de
// la sesión tomado.
func (rs *RoundService) startTimerLocked(session *RoundSession) {
	session.stopTimerLocked()
	session.roundStart = time.Now()
	session.timeRemaining = RoundDuration
	session.warningFired = false
	session.timesUpFired = false

	stop := make(chan struct{})
	session.timerStop = stop
	epoch := session.epoch

	go rs.runTimer(session, epoch, stop)
}

func (rs *RoundService) runTimer(session *RoundSession, epoch int, stop chan struct{}) {
	ticker := time.NewTicker(rs.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return

		case <-ticker.C:
			session.mutex.Lock()
			if epoch != session.epoch || session.phase != models.PhaseActive {
				session.mutex.Unlock()
				return
			}

			session.timeRemaining--
			remaining := session.timeRemaining

			warn := remaining == WarningSecond && !session.warningFired
			if warn {
				session.warningFired = true
			}

			timesUp := false
			if remaining <= 0 {
				if !session.timesUpFired {
					session.timesUpFired = true
					timesUp = true
				}
				session.timeRemaining = 0
				session.phase = models.PhaseTimedOut
				session.statusText = "Time's up! Try again."
				session.timerStop = nil
			}
			pin := session.RoomPin
			session.mutex.Unlock()

			if warn {
				rs.cue(pin, "timer-warning")
			}
			if timesUp {
				rs.cue(pin, "times-up")
				rs.announce(pin, PhraseTimesUp())
				return
			}
		}
	}
}

// resolvedLocked indica si la ronda de la época actual ya terminó. Se llama
// con el mutex de la sesión tomado.
func (session *RoundSession) resolvedLocked() bool {
	switch session.phase {
	case models.PhaseHit, models.PhaseTimedOut, models.PhaseError, models.PhaseGameCompleted:
		return true
	}
	return false
}

func (session *RoundSession) stopTimerLocked() {
	if session.timerStop != nil {
		close(session.timerStop)
		session.timerStop = nil
	}
}

func (rs *RoundService) countdown(pin string) {
	for n := 3; n >= 1; n-- {
		if pin != "" {
			rs.notifier.BroadcastToRoom(pin, "countdown", map[string]interface{}{"value": n})
		}
		rs.speech.Warm(PhraseCountdown(n))
		time.Sleep(rs.countdownTick)
	}
	if pin != "" {
		rs.notifier.BroadcastToRoom(pin, "countdown", map[string]interface{}{"value": 0})
	}
	rs.speech.Warm(PhraseCountdown(0))
}

// cue envía una señal sonora puntual a la sala
func (rs *RoundService) cue(pin, sound string) {
	if pin != "" {
		rs.notifier.BroadcastToRoom(pin, "cue", map[string]interface{}{"sound": sound})
	}
}

// announce precalienta la locución y la anuncia a la sala
func (rs *RoundService) announce(pin, text string) {
	go rs.speech.Warm(text)
	if pin != "" {
		rs.notifier.BroadcastToRoom(pin, "announcement", map[string]interface{}{"text": text})
	}
}

func (rs *RoundService) viewOf(session *RoundSession) *models.RoundView {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	return session.viewLocked()
}

func (session *RoundSession) viewLocked() *models.RoundView {
	view := &models.RoundView{
		SessionID:     session.ID,
		RoomPin:       session.RoomPin,
		PlayerName:    session.PlayerName,
		Phase:         session.phase,
		RoundActive:   session.phase == models.PhaseActive,
		CurrentRound:  session.currentRound,
		TotalRounds:   session.totalRounds,
		ImageURL:      session.imageURL,
		TimeRemaining: session.timeRemaining,
		StatusText:    session.statusText,
	}
	if session.phase == models.PhaseAcquiring || session.phase == models.PhaseAwaitingDetection {
		view.LoadingQuote = session.loadingQuote
	}
	return view
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
