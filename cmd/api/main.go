package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nimasrn/crm-campaigns/internal/ai"
	"github.com/nimasrn/crm-campaigns/internal/audience"
	"github.com/nimasrn/crm-campaigns/internal/auth"
	"github.com/nimasrn/crm-campaigns/internal/config"
	"github.com/nimasrn/crm-campaigns/internal/handlers"
	"github.com/nimasrn/crm-campaigns/internal/queue"
	"github.com/nimasrn/crm-campaigns/internal/processor"
	"github.com/nimasrn/crm-campaigns/internal/repository"
	"github.com/nimasrn/crm-campaigns/internal/services"
	xhttp "github.com/nimasrn/crm-campaigns/pkg/http"
	"github.com/nimasrn/crm-campaigns/pkg/logger"
	"github.com/nimasrn/crm-campaigns/pkg/pg"
	"github.com/nimasrn/crm-campaigns/pkg/prom"
	"github.com/nimasrn/crm-campaigns/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	logger.Info("starting api", "version", version, "commit", commit, "date", date)

	s := xhttp.NewServer(xhttp.ServerOption{
		Name:           cfg.AppName,
		ReadTimeout:    cfg.HttpServerReadTimeout,
		WriteTimeout:   cfg.HttpServerWriteTimeout,
		RequestTimeout: cfg.HttpRequestTimeout,
	})
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(cfg.HttpRequestTimeout))

	pgDebug := false
	if cfg.AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(cfg.PostgresRead(), cfg.PostgresWrite(), pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter(cfg.RedisUniversalKeyPrefix, cfg.RedisOptions("api"))
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	// the api only publishes; consumers live in the processor
	q, err := queue.NewQueue(redisAdap, processor.OptionsFromConfig(cfg).Queue)
	if err != nil {
		logger.Error("failed creating queue", "error", err)
		return
	}

	tokens, err := auth.New(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, TTL: cfg.JWTTTL})
	if err != nil {
		logger.Error("failed to set up session tokens", "error", err)
		return
	}

	var aiClient ai.Client
	if cfg.AIApiKey != "" {
		gemini, err := ai.NewGeminiClient(ai.GeminiConfig{
			APIKey:  cfg.AIApiKey,
			BaseURL: cfg.AIBaseURL,
			Models:  cfg.AIModelList(),
			Timeout: cfg.AITimeout,
		})
		if err != nil {
			logger.Error("failed to create ai client", "error", err)
			return
		}
		aiClient = gemini
	} else {
		logger.Warn("AI_API_KEY is not set, ai endpoints will report unavailable")
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err := prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}
	if cfg.AppDebugMetricsAddr != "" {
		go prom.ListenAndServer(cfg.AppDebugMetricsAddr, cfg.AppDebugMetricsURI)
	}

	customerRepo := repository.NewCustomerRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	deliveryRepo := repository.NewDeliveryRecordRepository(db)
	resolver := audience.NewResolver(customerRepo, cfg.AudienceBatchSize)

	// services
	receiptService := services.NewReceiptService(db, deliveryRepo, campaignRepo)
	dispatchService := services.NewDispatchService(db, campaignRepo, deliveryRepo, resolver, q, receiptService)
	campaignService := services.NewCampaignService(campaignRepo, resolver, dispatchService, receiptService, deliveryRepo)
	customerService := services.NewCustomerService(customerRepo, orderRepo, deliveryRepo)
	orderService := services.NewOrderService(db, orderRepo, customerRepo)
	aiService := services.NewAIService(aiClient)
	healthService := services.NewHealthService(map[string]services.Pinger{
		"postgres": db,
		"redis":    redisAdap,
	})

	protect := handlers.RequireAuth(tokens)

	g := s.Router.Group("/api")
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(healthService))
	handlers.RegisterReceiptRoutes(g, handlers.NewReceiptHandler(receiptService))
	handlers.RegisterAuthRoutes(g, handlers.NewAuthHandler(), protect)
	handlers.RegisterCustomerRoutes(g, handlers.NewCustomerHandler(customerService), protect)
	handlers.RegisterOrderRoutes(g, handlers.NewOrderHandler(orderService), protect)
	handlers.RegisterCampaignRoutes(g, handlers.NewCampaignHandler(campaignService), protect)
	handlers.RegisterAIRoutes(g, handlers.NewAIHandler(aiService), protect)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(cfg.HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	<-c
	s.Shutdown()
	if err := q.Stop(processor.ShutdownTimeout); err != nil {
		logger.Warn("queue did not stop cleanly", "error", err)
	}
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
