// Package api exposes the HTTP and WebSocket surface of the service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	limiter "github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	memory "github.com/ulule/limiter/v3/drivers/store/memory"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/crewcall/crewcall/internal/applications"
	"github.com/crewcall/crewcall/internal/chat"
	"github.com/crewcall/crewcall/internal/identities"
	"github.com/crewcall/crewcall/internal/notifications"
	"github.com/crewcall/crewcall/internal/profiles"
	"github.com/crewcall/crewcall/internal/projects"
	"github.com/crewcall/crewcall/internal/schedules"
	"github.com/crewcall/crewcall/internal/uploads"
)

// Services bundles the domain services the server routes to.
type Services struct {
	Identities    identities.IdentityService
	Profiles      profiles.ProfileService
	Projects      projects.ProjectService
	Applications  applications.ApplicationService
	Schedules     schedules.ScheduleService
	Chat          chat.ChatService
	Notifications notifications.NotificationService
	Uploads       uploads.UploadService
	Hub           *chat.Hub
}

// Options tunes the HTTP layer.
type Options struct {
	AllowedOrigins []string
	RateLimit      string // ulule/limiter format, e.g. "100-M"
}

// Server is the API server.
type Server struct {
	router      *gin.Engine
	logger      *zap.Logger
	services    Services
	validator   *validator.Validate
	rateLimiter gin.HandlerFunc
	httpServer  *http.Server
}

// NewServer builds the router with all middleware and routes registered.
func NewServer(logger *zap.Logger, services Services, opts Options) (*Server, error) {
	server := &Server{
		logger:    logger,
		services:  services,
		validator: validator.New(),
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(otelgin.Middleware("crewcall-api"))

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	rateFormat := opts.RateLimit
	if rateFormat == "" {
		rateFormat = "100-M"
	}
	rate, err := limiter.NewRateFromFormatted(rateFormat)
	if err != nil {
		return nil, err
	}
	server.rateLimiter = ginlimiter.NewMiddleware(limiter.New(memory.NewStore(), rate))

	server.router = router
	server.registerRoutes()
	return server, nil
}

// Router returns the gin engine, used by tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting API server", zap.String("addr", addr))
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	public := s.router.Group("/api/v1")
	public.Use(s.rateLimiter)
	{
		public.GET("/metrics", gin.WrapH(promhttp.Handler()))
		public.GET("/health", s.healthCheck)

		auth := public.Group("/auth")
		{
			auth.POST("/otp/request", s.requestOTP)
			auth.POST("/otp/verify", s.verifyOTP)
			auth.POST("/refresh", s.refresh)
		}

		// Browsable without an account.
		public.GET("/profiles", s.listProfiles)
		public.GET("/profiles/:id", s.getProfile)
		public.GET("/posts", s.postFeed)
		public.GET("/posts/:id", s.getPost)

		// WebSocket auth rides the query string; browsers cannot set
		// headers on the upgrade request.
		public.GET("/ws/chat", s.chatSocket)
	}

	protected := s.router.Group("/api/v1")
	protected.Use(s.rateLimiter, s.authMiddleware())
	{
		me := protected.Group("/me")
		{
			me.GET("/profile", s.getMyProfile)
			me.PUT("/profile", s.upsertMyProfile)
			me.GET("/applications", s.listMyApplications)
			me.GET("/schedule", s.mySchedule)
		}

		projectsGroup := protected.Group("/projects")
		{
			projectsGroup.POST("", s.createProject)
			projectsGroup.GET("", s.listMyProjects)
			projectsGroup.GET("/:id", s.getProject)
			projectsGroup.PUT("/:id", s.updateProject)
			projectsGroup.PUT("/:id/status", s.setProjectStatus)
			projectsGroup.POST("/:id/posts", s.createPost)
			projectsGroup.GET("/:id/posts", s.listProjectPosts)
			projectsGroup.POST("/:id/schedule", s.createScheduleEntry)
			projectsGroup.GET("/:id/schedule", s.listProjectSchedule)
		}

		postsGroup := protected.Group("/posts")
		{
			postsGroup.PUT("/:id", s.updatePost)
			postsGroup.POST("/:id/close", s.closePost)
			postsGroup.POST("/:id/apply", s.apply)
			postsGroup.GET("/:id/applications", s.listPostApplications)
		}

		appsGroup := protected.Group("/applications")
		{
			appsGroup.PUT("/:id/status", s.setApplicationStatus)
			appsGroup.POST("/:id/withdraw", s.withdrawApplication)
		}

		scheduleGroup := protected.Group("/schedule")
		{
			scheduleGroup.PUT("/:id", s.updateScheduleEntry)
			scheduleGroup.DELETE("/:id", s.deleteScheduleEntry)
		}

		chatGroup := protected.Group("/chat")
		{
			chatGroup.GET("/conversations", s.listConversations)
			chatGroup.GET("/conversations/:id/messages", s.conversationHistory)
			chatGroup.POST("/conversations/:id/read", s.markConversationRead)
		}

		notifGroup := protected.Group("/notifications")
		{
			notifGroup.GET("", s.listNotifications)
			notifGroup.POST("/read", s.markNotificationsRead)
			notifGroup.POST("/devices", s.registerDevice)
			notifGroup.DELETE("/devices/:token", s.unregisterDevice)
		}

		uploadsGroup := protected.Group("/uploads")
		{
			uploadsGroup.POST("", s.upload)
			uploadsGroup.GET("/:id/url", s.uploadURL)
			uploadsGroup.DELETE("/:id", s.deleteUpload)
		}
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now(),
	})
}
