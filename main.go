package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"issue-routing-pipeline/compose"
	"issue-routing-pipeline/config"
	"issue-routing-pipeline/dnscheck"
	"issue-routing-pipeline/gateway"
	"issue-routing-pipeline/gemini"
	"issue-routing-pipeline/handlers"
	"issue-routing-pipeline/llm"
	"issue-routing-pipeline/metrics"
	"issue-routing-pipeline/models"
	"issue-routing-pipeline/openai"
	"issue-routing-pipeline/rabbitmq"
	"issue-routing-pipeline/routing"
	"issue-routing-pipeline/stubllm"
)

func main() {
	// Best-effort .env load for local development.
	_ = godotenv.Load()

	cfg := config.Load()

	log.SetHandler(text.New(os.Stderr))
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	var client llm.Client
	switch cfg.LLMProvider {
	case "stub":
		client = stubllm.NewClient()
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Fatal("OPENAI_API_KEY environment variable is required")
		}
		client = openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	default:
		if cfg.GeminiAPIKey == "" {
			log.Fatal("GEMINI_API_KEY environment variable is required")
		}
		client = gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel)
	}
	log.Infof("routing LLM provider=%s", client.SourceName())

	gw := gateway.New(client,
		gateway.WithMaxAttempts(cfg.MaxRetries),
		gateway.WithRepairBudget(cfg.RepairRetries),
		gateway.WithBaseDelay(cfg.RetryBaseDelay),
	)
	verifier := dnscheck.NewVerifier(cfg.DNSTimeout)
	composer := compose.NewComposer(gw)
	pipeline := routing.NewPipeline(gw, verifier, composer,
		models.Jurisdiction{City: cfg.DefaultCity, State: cfg.DefaultState},
		cfg.GuessConfidence,
	)

	// Publisher is optional: resolution still works without a broker.
	var publisher handlers.Publisher
	if cfg.RabbitMQ.URL != "" {
		p, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutedRoutingKey)
		if err != nil {
			log.Warnf("failed to initialize RabbitMQ publisher: %v", err)
		} else {
			publisher = p
			defer p.Close()
		}
	}

	metrics.Register()

	h := handlers.NewHandlers(pipeline, composer, publisher)

	router := gin.Default()
	api := router.Group("/api/v3")
	{
		api.GET("/health", h.HealthCheck)
		api.GET("/stats", h.GetStats)
		api.POST("/resolve", h.Resolve)
		api.POST("/revise", h.Revise)
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Infof("starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Info("server exited")
}
