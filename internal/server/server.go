package server

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"studysync-backend/internal/auth"
	"studysync-backend/internal/cache"
	"studysync-backend/internal/config"
	"studysync-backend/internal/handler"
	"studysync-backend/internal/presence"
	"studysync-backend/internal/storage"
)

// Server Fiber 서버 래퍼
type Server struct {
	app            *fiber.App
	cfg            *config.Config
	db             *gorm.DB
	hub            *handler.RoomHub
	sessionWS      *handler.SessionWSHandler
	storageHandler *handler.StorageHandler
	healthHandler  *handler.HealthHandler
	redisClient    *cache.RedisClient
	presenceMgr    *presence.Manager
	jwtManager     *auth.JWTManager
}

// New 새 서버 인스턴스 생성
func New(cfg *config.Config, db *gorm.DB) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "StudySync Session Relay",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket과 호환성 문제로 비활성화
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		BodyLimit:             10 * 1024 * 1024, // 10MB
		DisableStartupMessage: false,
	})

	// Auth 초기화
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	// Redis 초기화 (선택적 - 없으면 메모리+DB만으로 동작)
	var redisClient *cache.RedisClient
	rc, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Session.RoomStateTTL)
	if err != nil {
		log.Printf("⚠️ Redis initialization failed: %v (room state cache disabled)", err)
	} else {
		log.Println("✅ Redis room state cache initialized")
		redisClient = rc
	}

	var presenceMgr *presence.Manager
	if redisClient != nil {
		presenceMgr = presence.NewManager(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Session.PresenceTTL)
	}

	serverID, err := os.Hostname()
	if err != nil || serverID == "" {
		serverID = uuid.New().String()
	}

	hub := handler.NewRoomHub(cfg, db, redisClient, presenceMgr, serverID)

	// S3 서비스 초기화 (선택적)
	var s3Service *storage.S3Service
	if cfg.S3.BucketName != "" && cfg.S3.AccessKeyID != "" {
		s3Service, err = storage.NewS3Service(cfg.S3)
		if err != nil {
			log.Printf("⚠️ S3 service initialization failed: %v (file upload will be disabled)", err)
		} else {
			log.Printf("✅ S3 service initialized (bucket: %s)", cfg.S3.BucketName)
		}
	} else {
		log.Println("ℹ️ S3 service not configured (file upload will be disabled)")
	}

	return &Server{
		app:            app,
		cfg:            cfg,
		db:             db,
		hub:            hub,
		sessionWS:      handler.NewSessionWSHandler(hub),
		storageHandler: handler.NewStorageHandler(db, s3Service, hub, cfg),
		healthHandler:  handler.NewHealthHandler(db, redisClient),
		redisClient:    redisClient,
		presenceMgr:    presenceMgr,
		jwtManager:     jwtManager,
	}
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Asia/Seoul",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크 엔드포인트
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// Rate Limiter 설정 (presign 남발 방지)
	uploadLimiter := limiter.New(limiter.Config{
		Max:        30,              // 최대 30회
		Expiration: 1 * time.Minute, // 1분당
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	// Room 파일 라우트 (인증 필요)
	roomGroup := s.app.Group("/api/rooms", auth.AuthMiddleware(s.jwtManager))
	roomGroup.Get("/:roomCode/files", s.storageHandler.GetRoomFiles)
	roomGroup.Post("/:roomCode/files/presign", uploadLimiter, s.storageHandler.GetPresignedURL)
	roomGroup.Post("/:roomCode/files/confirm", s.storageHandler.ConfirmUpload)
	roomGroup.Get("/:roomCode/files/:fileId/download", s.storageHandler.GetDownloadURL)
	roomGroup.Delete("/:roomCode/files/:fileId", s.storageHandler.DeleteFile)

	// WebSocket 업그레이드 체크 미들웨어
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket 세션 동기화 엔드포인트
	s.app.Get("/ws/session", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		// 쿠키에서 JWT 토큰 추출
		accessToken := c.Cookies("access_token")
		if accessToken == "" {
			// WebSocket은 JSON 응답 대신 연결 거부
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		// JWT 검증
		claims, err := s.jwtManager.ValidateAccessToken(accessToken)
		if err != nil {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		// 와이어 프로토콜의 사용자 ID는 문자열
		c.Locals("userId", strconv.FormatInt(claims.UserID, 10))
		c.Locals("nickname", claims.Nickname)

		return c.Next()
	}, websocket.New(s.sessionWS.HandleWebSocket, websocket.Config{
		ReadBufferSize:   s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:  s.cfg.WebSocket.WriteBufferSize,
		HandshakeTimeout: s.cfg.WebSocket.HandshakeTimeout,
	}))
}

// Start 서버 시작 (Graceful Shutdown 지원)
func (s *Server) Start() error {
	// 빈 방 주기적 정리
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			s.hub.CleanupInactiveRooms()
		}
	}()

	// Graceful Shutdown 설정
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("🛑 Shutting down server...")
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Fatalf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 StudySync Session Relay starting on %s", s.cfg.Server.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost%s/ws/session", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 서버 종료
func (s *Server) Shutdown() error {
	if s.redisClient != nil {
		s.redisClient.Close()
	}
	if s.presenceMgr != nil {
		s.presenceMgr.Close()
	}
	return s.app.ShutdownWithTimeout(30 * time.Second)
}
