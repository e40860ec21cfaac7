package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"clinic-intake/internal/agent"
	"clinic-intake/internal/config"
	"clinic-intake/internal/intake"
	"clinic-intake/internal/observability"
	"clinic-intake/internal/platform/telegram"
	"clinic-intake/internal/report"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not configured yet
		observability.InitLogger("clinic-intake", "development", "info")
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	observability.InitLogger("clinic-intake", cfg.Log.Env, cfg.Log.Level)

	// 1. Clients
	analysisClient := agent.NewAnalysisClient(cfg.Analysis.SummarizeURL, cfg.Analysis.DiagnoseURL, cfg.Analysis.ClientTimeout)
	sttClient := agent.NewTranscriber(cfg.Speech.TranscribeURL, cfg.Analysis.ClientTimeout)

	var ttsClient intake.TTSClient
	if cfg.Speech.ElevenLabsAPIKey != "" {
		ttsClient = agent.NewElevenLabsClient(cfg.Speech.ElevenLabsAPIKey, cfg.Analysis.ClientTimeout)
	} else {
		log.Warn().Msg("ELEVENLABS_API_KEY is not set, question read-out disabled")
	}

	var reporter intake.ReportService
	if cfg.Telegram.HandoffEnabled() {
		reporter = report.NewService(telegram.NewClient(cfg.Telegram.Token), cfg.Telegram.DoctorChatID, cfg.Report.FontPath)
	} else {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN or DOCTOR_CHAT_ID is not set, doctor handoff disabled")
	}

	// 2. Services
	intakeSvc := intake.NewService(intake.Dependencies{
		Repository:      intake.NewMemoryRepository(),
		Analyzer:        intake.NewAnalyzer(analysisClient, cfg.Analysis.DiagnosisEnabled),
		Transcriber:     sttClient,
		TTS:             ttsClient,
		VoiceID:         cfg.Speech.VoiceID,
		Reporter:        reporter,
		AnalysisTimeout: cfg.Analysis.Timeout,
	})
	intakeHandler := intake.NewHandler(intakeSvc)

	// 3. Router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(observability.RequestLogger)
	r.Use(middleware.Recoverer)

	// CORS for the kiosk front end
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-Request-Id")
			if r.Method == http.MethodOptions {
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Route("/api", func(r chi.Router) {
		intake.RegisterRoutes(r, intakeHandler)
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Info().Msg("shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := intakeSvc.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("background work did not finish")
	}
}
