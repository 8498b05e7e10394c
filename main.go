package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v9"

	"github.com/dskvich/perplexed/pkg/api/handler"
	"github.com/dskvich/perplexed/pkg/api/middleware"
	"github.com/dskvich/perplexed/pkg/auth"
	"github.com/dskvich/perplexed/pkg/conversation"
	"github.com/dskvich/perplexed/pkg/database"
	"github.com/dskvich/perplexed/pkg/gateway"
	"github.com/dskvich/perplexed/pkg/logger"
	"github.com/dskvich/perplexed/pkg/repository"
	"github.com/dskvich/perplexed/pkg/search"
	"github.com/dskvich/perplexed/pkg/service"
	"github.com/dskvich/perplexed/pkg/services"
)

type Config struct {
	Port              string   `env:"PORT" envDefault:"8080"`
	GatewayAPIKey     string   `env:"GATEWAY_API_KEY"`
	GatewayBaseURL    string   `env:"GATEWAY_BASE_URL" envDefault:"https://ai-gateway.vercel.sh"`
	TavilyAPIKey      string   `env:"TAVILY_API_KEY"`
	TavilySearchDepth string   `env:"TAVILY_SEARCH_DEPTH" envDefault:"basic"`
	GoogleAPIKey      string   `env:"GOOGLE_CSE_API_KEY"`
	GoogleCseID       string   `env:"GOOGLE_CSE_ID"`
	APITokens         []string `env:"API_TOKENS" envSeparator:" "`
	PgURL             string   `env:"DATABASE_URL"`
	PgHost            string   `env:"DB_HOST"`
}

func main() {
	slog.SetDefault(slog.New(logger.NewHandler(os.Stderr, logger.DefaultOptions)))

	if err := runMain(); err != nil {
		slog.Error("shutting down due to error", logger.Err(err))
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func runMain() error {
	svcGroup, err := setupServices()
	if err != nil {
		return err
	}

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case s := <-sigCh:
			slog.Info("shutting down due to signal", "signal", s.String())
			cancelFn()
		case <-ctx.Done():
		}
	}()

	return svcGroup.Run(ctx)
}

func setupServices() (service.Group, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing env config: %w", err)
	}

	searchProvider, err := setupSearchProvider(cfg)
	if err != nil {
		return nil, err
	}

	var threadRepo conversation.ThreadRepository
	if cfg.PgURL != "" || cfg.PgHost != "" {
		db, err := database.NewPostgres(cfg.PgURL, cfg.PgHost)
		if err != nil {
			return nil, fmt.Errorf("creating db: %w", err)
		}
		threadRepo = repository.NewThreadsRepository(db)
	} else {
		slog.Info("no database configured, threads are kept in memory only")
	}

	gatewayClient := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey)
	answerService := services.NewAnswerService(searchProvider, gatewayClient)
	relatedService := services.NewRelatedService(gatewayClient)
	imageService := services.NewImageService(gatewayClient)

	sessions := conversation.NewManager(answerService, relatedService, threadRepo)
	authenticator := auth.NewAuthenticator(cfg.APITokens)

	searchHandler := handler.NewSearch(sessions)
	threadsHandler := handler.NewThreads(sessions)
	conversationHandler := handler.NewConversation(sessions)
	imagesHandler := handler.NewImages(imageService)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/search", searchHandler.Stream)
	mux.HandleFunc("GET /api/threads", threadsHandler.List)
	mux.HandleFunc("POST /api/threads/new", threadsHandler.New)
	mux.HandleFunc("POST /api/threads/{id}/select", threadsHandler.Select)
	mux.HandleFunc("DELETE /api/threads/{id}", threadsHandler.Delete)
	mux.HandleFunc("GET /api/conversation", conversationHandler.Get)
	mux.HandleFunc("POST /api/generate-image", imagesHandler.Generate)

	root := middleware.RequestID()(middleware.Auth(authenticator)(mux))

	httpServer, err := service.NewHTTPServer(cfg.Port, root)
	if err != nil {
		return nil, fmt.Errorf("creating http server: %w", err)
	}

	return service.Group{httpServer}, nil
}

func setupSearchProvider(cfg Config) (services.SearchProvider, error) {
	if cfg.TavilyAPIKey != "" {
		provider, err := search.NewTavilyClient(cfg.TavilyAPIKey, cfg.TavilySearchDepth)
		if err != nil {
			return nil, fmt.Errorf("creating tavily client: %w", err)
		}
		slog.Info("using tavily search provider")
		return provider, nil
	}

	if cfg.GoogleAPIKey != "" && cfg.GoogleCseID != "" {
		provider, err := search.NewGoogleClient(cfg.GoogleAPIKey, cfg.GoogleCseID)
		if err != nil {
			return nil, fmt.Errorf("creating google search client: %w", err)
		}
		slog.Info("using google search provider")
		return provider, nil
	}

	return nil, fmt.Errorf("no search provider configured: set TAVILY_API_KEY or GOOGLE_CSE_API_KEY and GOOGLE_CSE_ID")
}
