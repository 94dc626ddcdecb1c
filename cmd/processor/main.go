package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nimasrn/crm-campaigns/internal/config"
	gateway "github.com/nimasrn/crm-campaigns/internal/gateways"
	"github.com/nimasrn/crm-campaigns/internal/processor"
	"github.com/nimasrn/crm-campaigns/internal/repository"
	"github.com/nimasrn/crm-campaigns/internal/services"
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
	logger.Info("starting delivery processor", "version", version, "commit", commit, "date", date)

	pgDebug := false
	if cfg.AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(cfg.PostgresRead(), cfg.PostgresWrite(), pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter(cfg.RedisUniversalKeyPrefix, cfg.RedisOptions("processor"))
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	var sender gateway.Sender
	if urls := cfg.VendorURLs(); len(urls) > 0 {
		client, err := gateway.NewClient(gateway.DefaultConfig(urls...))
		if err != nil {
			logger.Error("failed to create vendor client", "error", err)
			return
		}
		defer client.Close()
		sender = client
	} else {
		logger.Warn("no vendor url configured, using the in-process simulator",
			"success_rate", cfg.VendorSimulateRate, "delay", cfg.VendorSimulateDelay)
		sender = gateway.NewSimulator(cfg.VendorSimulateRate, cfg.VendorSimulateDelay)
	}

	campaignRepo := repository.NewCampaignRepository(db)
	deliveryRepo := repository.NewDeliveryRecordRepository(db)
	receiptService := services.NewReceiptService(db, deliveryRepo, campaignRepo)

	idempotencyConfig := processor.DefaultIdempotencyConfig()
	idempotencyConfig.MaxRetries = cfg.QueueMaxRetries
	idempotencyService := processor.NewIdempotencyService(redisAdap, idempotencyConfig)

	service, err := processor.NewProcessorService(redisAdap, processor.OptionsFromConfig(cfg))
	if err != nil {
		logger.Error("failed to create the processor", "error", err)
		return
	}
	service.RegisterProcessor(processor.NewDeliveryProcessor(sender, receiptService, idempotencyService))

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	metricsAddr := cfg.AppDebugMetricsAddr
	if metricsAddr == "" {
		metricsAddr = ":9100"
	}
	go prom.ListenAndServer(metricsAddr, cfg.AppDebugMetricsURI)

	if err := service.Start(); err != nil {
		logger.Error("failed to start processor", "error", err)
		return
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	service.Stop()
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
