package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chatrelay/balance"
	"chatrelay/blockdetect"
	"chatrelay/config"
	"chatrelay/engine"
	"chatrelay/gateway"
	"chatrelay/handlers"
	"chatrelay/middleware"
	"chatrelay/proxyclient"
	"chatrelay/storage"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"
)

var appStartTime = time.Now()

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)

	config.Init(log)
	settings := config.GetSettings()
	if level, err := logrus.ParseLevel(settings.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.Warnf("main: invalid LOG_LEVEL %q, defaulting to info", settings.LogLevel)
	}
	log.Infof("main: log level set to %s", log.GetLevel().String())

	if settings.AdminPassword == "" {
		log.Error("main: ADMIN_PASSWORD is not set — the client gateway and the admin surface are both unauthenticated")
	}
	sessionKey := settings.SessionSecretKey
	if sessionKey == config.DefaultSessionSecretKey {
		log.Warn("main: SESSION_SECRET_KEY is at its insecure default, set it in production")
	}

	middleware.Store = sessions.NewCookieStore([]byte(sessionKey))
	middleware.Store.Options = &sessions.Options{
		Path:     middleware.SessionPath,
		MaxAge:   middleware.MaxAgeSeconds,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	middleware.Log = log
	handlers.Log = log
	gateway.Log = log
	storage.Log = log
	blockdetect.Log = log
	proxyclient.Log = log
	engine.Log = log
	balance.Log = log

	if _, err := storage.InitDB(log); err != nil {
		log.Fatalf("main: database initialization failed: %v", err)
	}

	credentialStore := storage.NewCredentialStore(storage.DB)
	proxyStore := storage.NewOutboundProxyStore(storage.DB)
	usageStore := storage.NewUsageStore(storage.DB)
	blockStore := storage.NewBlockStore(storage.DB)

	selector := engine.NewKeySelector(credentialStore)
	availability := engine.NewAvailabilityController(credentialStore, selector)
	detector := blockdetect.NewDetector(blockStore)
	proxySelector := proxyclient.NewSelector(proxyStore)
	probe := balance.NewProbe()

	eng := engine.NewEngine(credentialStore, usageStore, selector, availability, detector, proxySelector, probe)

	handlers.Credentials = credentialStore
	handlers.Proxies = proxyStore
	handlers.Selector = selector
	handlers.Availability = availability
	handlers.ProxyRouter = proxySelector
	handlers.Eng = eng
	handlers.AppStartTime = appStartTime

	purgeCtx, cancelPurge := context.WithCancel(context.Background())
	go detector.RunPurgeLoop(purgeCtx)
	log.Info("main: block-record purge loop started")

	if strings.ToLower(settings.GinMode) == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.LoggerWithFormatter(func(p gin.LogFormatterParams) string {
		return fmt.Sprintf("%s | %s | %3d | %13v | %15s | %-7s %#v %s\n%s",
			p.TimeStamp.Format("2006/01/02 - 15:04:05"),
			p.Request.Proto,
			p.StatusCode,
			p.Latency,
			p.ClientIP,
			p.Method,
			p.Path,
			p.Request.UserAgent(),
			p.ErrorMessage,
		)
	}))
	router.Use(gin.Recovery())

	proxyGroup := router.Group("/api/proxy")
	if settings.AdminPassword != "" {
		proxyGroup.Use(middleware.VerifyBearer())
		log.Info("main: '/api/proxy/*' is bearer-authenticated")
	} else {
		log.Warn("main: '/api/proxy/*' has no bearer auth configured, any client may call it")
	}
	gw := gateway.NewGateway(eng)
	gw.RegisterRoutes(proxyGroup)

	adminGroup := router.Group("/admin")
	adminGroup.POST("/login", handlers.LoginHandler)

	authedAdmin := adminGroup.Group("/")
	authedAdmin.Use(middleware.RequireSession())
	{
		authedAdmin.POST("/logout", handlers.LogoutHandler)
		authedAdmin.GET("/app-status", handlers.AppStatusHandler)

		authedAdmin.GET("/credentials", handlers.ListCredentialsHandler)
		authedAdmin.POST("/credentials", handlers.AddCredentialHandler)
		authedAdmin.GET("/credentials/:id", handlers.GetCredentialHandler)
		authedAdmin.DELETE("/credentials/:id", handlers.DeleteCredentialHandler)
		authedAdmin.PATCH("/credentials/:id/availability", handlers.SetAvailabilityHandler)
		authedAdmin.PATCH("/credentials/:id/status", handlers.SetStatusHandler)

		authedAdmin.GET("/proxies", handlers.ListProxiesHandler)
		authedAdmin.POST("/proxies", handlers.AddProxyHandler)
		authedAdmin.DELETE("/proxies/:id", handlers.DeleteProxyHandler)
		authedAdmin.PATCH("/proxies/mode", handlers.SetProxyModeHandler)
		authedAdmin.POST("/proxies/:id/verify", handlers.VerifyProxyHandler)
	}
	log.Info("main: routes registered")

	serverAddr := ":" + settings.Port
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  settings.ClientSocketTimeout,
		WriteTimeout: settings.ClientSocketTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Infof("main: listening on %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("main: server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("main: shutdown signal received")
	cancelPurge()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("main: graceful shutdown failed: %v", err)
	}
	log.Info("main: shut down cleanly")
}
