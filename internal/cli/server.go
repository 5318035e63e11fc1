package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quizzr-service/internal/app"
	"quizzr-service/internal/auth"
	"quizzr-service/internal/config"
	"quizzr-service/internal/domain"
	"quizzr-service/internal/infra/memory"
	"quizzr-service/internal/infra/postgres"
	redisstore "quizzr-service/internal/infra/redis"
	"quizzr-service/internal/logger"
	"quizzr-service/internal/metrics"
	"quizzr-service/internal/report"
	transport "quizzr-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Init(cfg.Log.Level, cfg.Log.Pretty)

	if portFlag != "" {
		cfg.Server.Port = portFlag
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, err := newVerifier(cfg)
	if err != nil {
		return err
	}
	policy, err := app.ParseDeletePolicy(cfg.Quiz.DeletePolicy)
	if err != nil {
		return err
	}
	mode := app.ScoreServerSide
	if cfg.Scoring.TrustClient {
		mode = app.ScoreTrustClient
		log.Warn().Msg("trust-client scoring enabled; scores are taken from the client")
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg.Postgres.URL); err != nil {
			return err
		}
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
	}

	var backing app.QuizRepository = memory.NewQuizStore(demoQuizzes())
	var attempts app.AttemptStore = memory.NewAttemptStore()
	switch {
	case pool != nil:
		backing = postgres.NewQuizStore(pool)
		attempts = postgres.NewAttemptStore(pool)
	case redisClient != nil:
		attempts = redisstore.NewAttemptStore(redisClient)
	default:
		log.Warn().Msg("no postgres or redis configured; attempts are kept in memory")
	}

	cacheTTL := config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)
	var quizzes app.QuizRepository
	if redisClient != nil {
		quizzes = redisstore.NewQuizCache(redisClient, backing, cacheTTL)
	} else {
		quizzes = memory.NewCachedQuizRepository(backing, cacheTTL)
	}

	recorder := metrics.New(prometheus.DefaultRegisterer)
	ledger := app.NewAttemptLedger(quizzes, attempts, recorder)
	engine := app.NewScoringEngine(quizzes, attempts, ledger, mode, recorder)
	service := app.NewQuizService(quizzes, attempts, policy)

	router := transport.NewRouter(transport.RouterConfig{
		Quizzes:     transport.NewQuizHandler(service, ledger, engine, report.NewXLSXWriter()),
		WS:          transport.NewWSHandler(service, ledger, engine, time.Second),
		Verifier:    verifier,
		CORSOrigins: cfg.Server.CORSOrigins,
		Metrics:     promhttp.Handler(),
	})

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Str("scoring", scoringName(mode)).Msg("starting quizzr service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newVerifier(cfg config.Config) (*auth.Verifier, error) {
	switch {
	case cfg.Auth.PublicKeyFile != "":
		return auth.LoadRSAVerifier(cfg.Auth.PublicKeyFile, cfg.Auth.Issuer)
	case cfg.Auth.JWTSecret != "":
		return auth.NewHMACVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	}
	return nil, errors.New("auth not configured: set auth.public_key_file or auth.jwt_secret")
}

func scoringName(mode app.ScoringMode) string {
	if mode == app.ScoreTrustClient {
		return "trust-client"
	}
	return "server-side"
}

// demoQuizzes seeds memory mode so the service is usable without a database.
func demoQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"demo": {
			Slug:         "demo",
			OwnerID:      "demo-author",
			Title:        "Demo quiz",
			LimitMinutes: 5,
			Status:       domain.StatusActive,
			CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Questions: []domain.Question{
				{
					ID:    "q1",
					Title: "What is 2 + 2?",
					Marks: 1,
					Options: []domain.Option{
						{ID: "o1", Value: "3"},
						{ID: "o2", Value: "4", Correct: true},
						{ID: "o3", Value: "5"},
					},
				},
			},
		},
	}
}
