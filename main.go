package main

import (
	"encoding/json"
	"log"
	"os"
	"strings"

	"github.com/backsoul/redball/pkg/handlers"
	"github.com/backsoul/redball/pkg/models"
	"github.com/backsoul/redball/pkg/redis"
	"github.com/backsoul/redball/pkg/services"
	"github.com/backsoul/redball/pkg/store"
	"github.com/backsoul/redball/pkg/websocket"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"
)

var (
	redisClient        *redis.RedisClient
	roomService        *services.RoomService
	imageService       *services.ImageService
	roundService       *services.RoundService
	speechService      *services.SpeechService
	roomHandler        *handlers.RoomHandler
	gameControlHandler *handlers.GameControlHandler
	roundHandler       *handlers.RoundHandler
	imageHandler       *handlers.ImageHandler
	speechHandler      *handlers.SpeechHandler
	hub                *websocket.Hub
)

func main() {
	// Cargar variables de entorno desde .env si existe
	if err := godotenv.Load(); err != nil {
		log.Println("💡 No se encontró archivo .env, usando variables del entorno")
	}

	log.Println("🚀 Iniciando servidor Where's The Ball")
	initRedis()
	initServices()
	preloadSpeech()

	port := getEnv("PORT", "8080")
	server := &fasthttp.Server{
		Handler: requestHandler,
		Name:    "RedBall Server",
	}

	log.Println("🎮 Servidor Where's The Ball iniciado")
	log.Printf("📱 API: http://localhost:%s/api", port)
	log.Printf("🔧 API Health: http://localhost:%s/api/health", port)
	log.Println("🔄 Presiona Ctrl+C para detener el servidor")

	if err := server.ListenAndServe(":" + port); err != nil {
		log.Fatalf("Error al iniciar el servidor: %v", err)
	}
}

func initRedis() {
	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	redisPassword := getEnv("REDIS_PASSWORD", "")
	redisDB := 0

	log.Printf("🔌 Conectando a Redis en %s...", redisAddr)
	redisClient = redis.NewRedisClient(redisAddr, redisPassword, redisDB)
}

func initServices() {
	log.Println("⚙️  Inicializando servicios...")

	apiBaseURL := getEnv("API_BASE_URL", "http://localhost:9000")
	apiKey := getEnv("API_KEY", "")
	publicURL := getEnv("PUBLIC_URL", "http://localhost:8080")
	savedImagesFile := getEnv("SAVED_IMAGES_FILE", "saved_images.json")

	localStore := store.NewLocalStore(savedImagesFile)

	hub = websocket.NewHub()
	go hub.Run()

	roomService = services.NewRoomService(redisClient, hub)
	imageService = services.NewImageService(redisClient, localStore)
	speechService = services.NewSpeechService(apiBaseURL, apiKey, redisClient)
	generationService := services.NewGenerationService(apiBaseURL, apiKey)
	detectionService := services.NewDetectionService(apiBaseURL, apiKey)

	roundService = services.NewRoundService(roomService, imageService,
		generationService, detectionService, speechService, hub)

	// Las rondas reaccionan al inicio de partida y a la imagen compartida
	roomService.SetImageListener(roundService)

	roomHandler = handlers.NewRoomHandler(roomService, publicURL)
	gameControlHandler = handlers.NewGameControlHandler(roomService, hub)
	roundHandler = handlers.NewRoundHandler(roundService)
	imageHandler = handlers.NewImageHandler(imageService, roundService)
	speechHandler = handlers.NewSpeechHandler(speechService)
}

func preloadSpeech() {
	if getEnv("PRELOAD_SPEECH", "") == "" {
		return
	}
	log.Println("🔊 Precargando locuciones comunes...")
	go speechService.PreloadCommonAnnouncements()
}

func requestHandler(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	method := string(ctx.Method())

	log.Printf("📡 %s %s", method, path)

	ctx.Response.Header.Set("Server", "RedBall-FastHTTP/1.0")
	ctx.Response.Header.Set("Cache-Control", "no-cache")

	// Headers CORS para desarrollo
	ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")
	ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	ctx.Response.Header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if method == "OPTIONS" {
		ctx.SetStatusCode(fasthttp.StatusOK)
		return
	}

	switch {
	// API Routes - Health
	case path == "/api/health":
		handleHealth(ctx)

	// API Routes - Rooms
	case path == "/api/rooms" && method == "POST":
		roomHandler.CreateRoom(ctx)
	case path == "/api/rooms/join" && method == "POST":
		roomHandler.JoinRoom(ctx)

	// API Routes - Sessions
	case path == "/api/sessions" && method == "POST":
		roundHandler.CreateSession(ctx)

	// API Routes - Images
	case path == "/api/images" && method == "GET":
		imageHandler.ListImages(ctx)
	case path == "/api/images" && method == "DELETE":
		imageHandler.DeleteImage(ctx)
	case path == "/api/images/detect" && method == "POST":
		imageHandler.DetectBall(ctx)
	case path == "/api/images/pinpoint" && method == "POST":
		imageHandler.Pinpoint(ctx)

	// API Routes - Speech
	case path == "/api/speech" && method == "POST":
		speechHandler.GenerateSpeech(ctx)

	// WebSocket Route
	case path == "/ws":
		gameControlHandler.HandleWebSocket(ctx)

	// Rutas con parámetros
	case strings.HasPrefix(path, "/api/rooms/"):
		handleRoomRoutes(ctx, path, method)
	case strings.HasPrefix(path, "/api/sessions/"):
		handleSessionRoutes(ctx, path, method)

	default:
		serve404(ctx)
	}
}

// handleRoomRoutes maneja /api/rooms/{pin} y sus subrecursos
func handleRoomRoutes(ctx *fasthttp.RequestCtx, path, method string) {
	parts := strings.Split(path, "/")
	// parts: ["", "api", "rooms", "{pin}", ...]
	if len(parts) < 4 || parts[3] == "" {
		serve404(ctx)
		return
	}
	ctx.SetUserValue("pin", parts[3])

	switch {
	case len(parts) == 4 && method == "GET":
		roomHandler.GetRoom(ctx)
	case len(parts) == 5 && parts[4] == "players" && method == "GET":
		roomHandler.GetPlayers(ctx)
	case len(parts) == 5 && parts[4] == "qr" && method == "GET":
		roomHandler.GetJoinQR(ctx)
	case len(parts) == 5 && parts[4] == "leave" && method == "POST":
		roomHandler.LeaveRoom(ctx)
	case len(parts) == 5 && parts[4] == "rounds" && method == "PUT":
		roomHandler.UpdateRounds(ctx)
	case len(parts) == 5 && parts[4] == "start" && method == "POST":
		gameControlHandler.StartGame(ctx)
	case len(parts) == 5 && parts[4] == "reset" && method == "POST":
		gameControlHandler.ResetGame(ctx)
	default:
		serve404(ctx)
	}
}

// handleSessionRoutes maneja /api/sessions/{id} y sus subrecursos
func handleSessionRoutes(ctx *fasthttp.RequestCtx, path, method string) {
	parts := strings.Split(path, "/")
	// parts: ["", "api", "sessions", "{id}", ...]
	if len(parts) < 4 || parts[3] == "" {
		serve404(ctx)
		return
	}
	ctx.SetUserValue("id", parts[3])

	switch {
	case len(parts) == 4 && method == "GET":
		roundHandler.GetSession(ctx)
	case len(parts) == 4 && method == "DELETE":
		roundHandler.DeleteSession(ctx)
	case len(parts) == 5 && parts[4] == "round" && method == "POST":
		roundHandler.StartRound(ctx)
	case len(parts) == 5 && parts[4] == "next" && method == "POST":
		roundHandler.NextRound(ctx)
	case len(parts) == 5 && parts[4] == "reset" && method == "POST":
		roundHandler.ResetGame(ctx)
	case len(parts) == 5 && parts[4] == "countdown" && method == "POST":
		roundHandler.Countdown(ctx)
	case len(parts) == 5 && parts[4] == "click" && method == "POST":
		roundHandler.Click(ctx)
	default:
		serve404(ctx)
	}
}

func handleHealth(ctx *fasthttp.RequestCtx) {
	status := "ok"
	redisStatus := "connected"
	statusCode := fasthttp.StatusOK

	if err := redisClient.HealthCheck(); err != nil {
		status = "degraded"
		redisStatus = "disconnected"
		statusCode = fasthttp.StatusServiceUnavailable
	}

	response := models.APIResponse{
		Success: statusCode == fasthttp.StatusOK,
		Data: map[string]string{
			"status": status,
			"redis":  redisStatus,
		},
	}

	ctx.Response.Header.Set("Content-Type", "application/json")
	ctx.SetStatusCode(statusCode)

	body, err := json.Marshal(response)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetBody(body)
}

func serve404(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusNotFound)
	ctx.Response.Header.Set("Content-Type", "application/json")
	ctx.SetBodyString(`{"success": false, "error": "Ruta no encontrada"}`)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
