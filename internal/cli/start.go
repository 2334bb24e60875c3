package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"message-quizzer/internal/app"
	"message-quizzer/internal/bot"
	"message-quizzer/internal/config"
	"message-quizzer/internal/infra/memory"
	"message-quizzer/internal/infra/postgres"
	redisinfra "message-quizzer/internal/infra/redis"
	"message-quizzer/internal/ingest"
	transport "message-quizzer/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// store is what the buffer and the quiz engine need from persistence.
type store interface {
	ingest.Store
	app.QuizStore
	app.AuthorDirectory
}

// NewStartCmd builds the CLI subcommand to start the bot.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the gateway and the quiz bot",
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

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	quizTimeout := config.Duration(cfg.Quiz.Timeout, 3*time.Minute)
	authorTTL := config.Duration(cfg.Quiz.AuthorCacheTTL, time.Minute)
	cooldown := config.Duration(cfg.Ingest.FlushCooldown, 30*time.Second)
	reapInterval := config.Duration(cfg.Quiz.ReapInterval, time.Minute)

	var (
		persist   store
		analytics app.AnalyticsRepository
	)
	if cfg.Postgres.URL != "" {
		db, err := openBun(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := migrateDB(ctx, db); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		persist = postgres.NewStore(db)
		analytics = postgres.NewAnalytics(pool)
	} else {
		log.Printf("postgres not configured, keeping data in memory")
		mem := memory.NewStore()
		persist = mem
		analytics = mem
	}

	var (
		authors    app.AuthorDirectory
		sessions   app.SessionRepository
		invalidate func(communityID string)
	)
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		cache := redisinfra.NewAuthorCache(redisClient, persist, authorTTL)
		invalidate = func(communityID string) {
			if err := cache.Invalidate(context.Background(), communityID); err != nil {
				log.Printf("invalidate authors of %s failed: %v", communityID, err)
			}
		}
		authors = cache
		sessions = redisinfra.NewSessionStore(redisClient, quizTimeout)
	} else {
		cache := memory.NewAuthorCache(persist, authorTTL)
		invalidate = cache.Invalidate
		authors = cache
		sessions = memory.NewSessionStore()
	}

	buffer := ingest.NewBuffer(persist, cooldown)
	// flushed authors must show up in the next question's choices
	buffer.OnFlushed(func(communityIDs []string) {
		for _, id := range communityIDs {
			invalidate(id)
		}
	})
	quiz := app.NewQuizService(sessions, buffer, persist, authors, app.QuizConfig{
		Distractors: cfg.Quiz.Distractors,
		Timeout:     quizTimeout,
	})
	gateway := transport.NewGateway()
	quizBot := bot.New(gateway, buffer, quiz, app.NewAnalyticsService(analytics, cfg.Quiz.LeaderboardSize), bot.Commands{
		Guess:      cfg.Commands.Guess,
		Scoreboard: cfg.Commands.Scoreboard,
		Mixes:      cfg.Commands.Mixes,
	}, cfg.Ingest.HistoryPageSize)
	gateway.Handle(quizBot)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", gateway.ServeReady)
	mux.HandleFunc("/gateway", gateway.ServeWS)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quizzer gateway on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		maintain(loopCtx, buffer, quizBot, cooldown, reapInterval)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down...")
	}

	stopLoop()
	<-loopDone
	quizBot.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := buffer.Flush(shutdownCtx); err != nil {
		log.Printf("final flush failed: %v", err)
	}
	return server.Shutdown(shutdownCtx)
}

// maintain flushes the buffer once its cooldown has passed, even when the
// chat is quiet, and resolves questions whose timers were lost.
func maintain(ctx context.Context, buffer *ingest.Buffer, quizBot *bot.Bot, cooldown, reapInterval time.Duration) {
	flushTicker := time.NewTicker(positive(cooldown, time.Second))
	defer flushTicker.Stop()
	reapTicker := time.NewTicker(positive(reapInterval, time.Minute))
	defer reapTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushTicker.C:
			if !buffer.ShouldFlush() {
				continue
			}
			if err := buffer.Flush(ctx); err != nil {
				log.Printf("flush failed: %v", err)
			}
		case now := <-reapTicker.C:
			quizBot.Reap(ctx, now)
		}
	}
}

// positive returns d, or fallback when d cannot drive a ticker.
func positive(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
