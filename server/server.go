// Package server exposes the HTTP API.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewardhub/backend/ledger"
	"github.com/rewardhub/backend/repository"
	"github.com/rewardhub/backend/workflow"
)

// WebServer handles HTTP requests.
type WebServer struct {
	repo        *repository.Repository
	gateway     ledger.Gateway
	awards      *workflow.AwardService
	redemptions *workflow.RedemptionService
	dashboard   *workflow.DashboardService
	auth        AuthConfig
	httpAddr    string
	engine      *gin.Engine
	server      *http.Server
	logger      *slog.Logger
	startTime   time.Time
}

// AuthConfig carries token signing parameters into the server.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// NewWebServer wires the router. Workflows and the gateway are injected so
// tests can substitute doubles.
func NewWebServer(
	repo *repository.Repository,
	gateway ledger.Gateway,
	awards *workflow.AwardService,
	redemptions *workflow.RedemptionService,
	dashboard *workflow.DashboardService,
	auth AuthConfig,
	httpPort string,
	logger *slog.Logger,
) *WebServer {
	engine := gin.New()
	engine.Use(gin.Recovery())

	ws := &WebServer{
		repo:        repo,
		gateway:     gateway,
		awards:      awards,
		redemptions: redemptions,
		dashboard:   dashboard,
		auth:        auth,
		httpAddr:    ":" + httpPort,
		engine:      engine,
		server: &http.Server{
			Addr:    ":" + httpPort,
			Handler: engine,
		},
		logger:    logger,
		startTime: time.Now(),
	}
	ws.registerRoutes()
	return ws
}

// Engine exposes the router for httptest.
func (ws *WebServer) Engine() *gin.Engine { return ws.engine }

func (ws *WebServer) registerRoutes() {
	ws.engine.Use(ws.countRequests())

	ws.engine.GET("/healthz", ws.handleHealth)
	ws.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := ws.engine.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/register", ws.handleRegister)
	auth.POST("/login", ws.handleLogin)
	auth.GET("/profile", ws.authRequired(), ws.handleProfile)

	wallet := api.Group("/wallet", ws.authRequired())
	wallet.POST("/nonce", ws.handleWalletNonce)
	wallet.POST("/verify", ws.handleWalletVerify)

	api.GET("/blockchain/balance/:wallet", ws.handleWalletBalance)

	admin := api.Group("/admin", ws.authRequired())
	admin.GET("/students", ws.authorize(CapListStudents), ws.handleListStudents)
	admin.POST("/users", ws.authorize(CapManageUsers), ws.handleCreateUser)
	admin.GET("/users", ws.authorize(CapManageUsers), ws.handleListUsers)
	admin.PUT("/users/:id", ws.authorize(CapManageUsers), ws.handleUpdateUser)
	admin.DELETE("/users/:id", ws.authorize(CapManageUsers), ws.handleDeleteUser)
	admin.GET("/dashboard-stats", ws.authorize(CapViewDashboard), ws.handleDashboardStats)

	admin.POST("/achievements", ws.authorize(CapManageCatalog), ws.handleCreateAchievement)
	admin.GET("/achievements", ws.authorize(CapManageCatalog), ws.handleListAchievements)
	admin.GET("/achievements/:id", ws.authorize(CapManageCatalog), ws.handleGetAchievement)
	admin.PUT("/achievements/:id", ws.authorize(CapManageCatalog), ws.handleUpdateAchievement)
	admin.DELETE("/achievements/:id", ws.authorize(CapManageCatalog), ws.handleDeleteAchievement)

	admin.POST("/perks", ws.authorize(CapManageCatalog), ws.handleCreatePerk)
	admin.GET("/perks", ws.authorize(CapManageCatalog), ws.handleListPerks)
	admin.GET("/perks/:id", ws.authorize(CapManageCatalog), ws.handleGetPerk)
	admin.PUT("/perks/:id", ws.authorize(CapManageCatalog), ws.handleUpdatePerk)
	admin.DELETE("/perks/:id", ws.authorize(CapManageCatalog), ws.handleDeletePerk)

	awards := api.Group("/student-achievements", ws.authRequired())
	awards.POST("", ws.authorize(CapAwardAchievements), ws.handleAwardAchievement)
	awards.GET("", ws.handleListAwards)
	awards.GET("/me", ws.handleMyAwards)
	awards.GET("/student/:studentId", ws.handleStudentAwards)
	awards.GET("/:id", ws.handleGetAward)
	awards.DELETE("/:id", ws.authorize(CapDeleteAwards), ws.handleDeleteAward)

	redemptions := api.Group("/redemptions", ws.authRequired())
	redemptions.POST("", ws.authorize(CapRedeemRewards), ws.walletRequired(), ws.handleRedeem)
	redemptions.GET("/student/:studentId", ws.handleStudentRedemptions)
	redemptions.GET("", ws.authorize(CapViewAllRedemptions), ws.handleListRedemptions)
}

// Start starts the web server.
func (ws *WebServer) Start() {
	ws.logger.Info("starting web server", "addr", ws.httpAddr)
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.logger.Error("web server error", "err", err)
		}
	}()
}

// Shutdown gracefully shuts down the web server.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	ws.logger.Info("shutting down web server")
	return ws.server.Shutdown(ctx)
}

func (ws *WebServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(ws.startTime).String(),
	})
}
