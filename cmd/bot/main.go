package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"sync"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/TGMysticBot/internal/admin"
	"github.com/digkill/TGMysticBot/internal/auth"
	"github.com/digkill/TGMysticBot/internal/config"
	"github.com/digkill/TGMysticBot/internal/database"
	"github.com/digkill/TGMysticBot/internal/freepik"
	"github.com/digkill/TGMysticBot/internal/miniapp"
	"github.com/digkill/TGMysticBot/internal/repository"
	"github.com/digkill/TGMysticBot/internal/service"
	"github.com/digkill/TGMysticBot/internal/storage"
	"github.com/digkill/TGMysticBot/internal/telegram"
	"github.com/digkill/TGMysticBot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}
	if cfg.BotUsername == "" {
		cfg.BotUsername = botAPI.Self.UserName
	}

	freepikClient := freepik.NewClient(cfg, logr)

	userRepo := repository.NewUserRepository(db)
	generationRepo := repository.NewGenerationRepository(db)
	promoRepo := repository.NewPromoRepository(db)
	purchaseRepo := repository.NewPurchaseRepository(db)
	packRepo := repository.NewPackRepository(db)
	referralRepo := repository.NewReferralRepository(db)
	promptRepo := repository.NewPromptRepository(db)

	userService := service.NewUserService(service.UserConfig{
		StartBonus:    cfg.StartBonusCredits,
		ReferralBonus: cfg.ReferralBonusCredits,
		BotUsername:   cfg.BotUsername,
	}, logr, userRepo, referralRepo)
	packService := service.NewPackService(packRepo)
	promoService := service.NewPromoService(promoRepo, cfg.PromoBonusCredits)
	promptService := service.NewPromptService(promptRepo)
	paymentService := service.NewPaymentService(logr, botAPI, packService, purchaseRepo, userRepo)

	if err := packService.EnsureDefaultPacks(ctx); err != nil {
		log.Fatalf("ensure default packs: %v", err)
	}

	gate := auth.NewGate(auth.GateConfig{
		BotToken:       cfg.BotToken,
		InitDataMaxAge: cfg.InitDataMaxAge,
		OwnerID:        cfg.OwnerID,
		Enabled:        cfg.ChannelGateEnabled,
		FailOpen:       cfg.MembershipFailOpen,
	}, auth.NewChannelMembership(botAPI, cfg.ChannelUsername), logr)

	var mirror service.Mirror
	if cfg.MirrorEnabled() {
		uploader, err := storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		}, logr)
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		mirror = uploader
	}

	generationService := service.NewGenerationService(service.GenerationConfig{
		PollInterval:       cfg.PollInterval,
		Deadline:           cfg.GenerationDeadline,
		DefaultAspectRatio: cfg.DefaultAspectRatio,
	}, logr, gate, userService, userRepo, generationRepo, freepikClient, mirror)

	reconciler := service.NewReconciler(service.ReconcileConfig{
		Schedule:   cfg.ReconcileSchedule,
		MinAge:     cfg.GenerationDeadline + cfg.PollInterval,
		StaleAfter: cfg.ReconcileStaleAfter,
	}, logr, generationRepo, userRepo, freepikClient, mirror)
	scheduler, err := reconciler.Start(ctx)
	if err != nil {
		log.Fatalf("reconciler: %v", err)
	}
	defer func() { <-scheduler.Stop().Done() }()

	bot := telegram.NewBot(cfg, botAPI, logr, gate, userService, generationService, promoService, paymentService, packService, promptService)

	apiServer := miniapp.NewServer(miniapp.Config{
		Addr:           cfg.HTTPListenAddr,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RatePerSecond:  cfg.RateLimitPerSecond,
		RateBurst:      cfg.RateLimitBurst,
	}, logr, gate, generationService, userService, generationRepo, promptService, packService, paymentService)

	adminServer := admin.NewServer(admin.Config{
		Addr:     cfg.AdminListenAddr,
		Username: cfg.AdminUsername,
		Password: cfg.AdminPassword,
	}, logr, userService, packService, promoService, botAPI)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := apiServer.Run(ctx); err != nil {
			logr.Error("mini-app api stopped", "err", err)
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		if err := adminServer.Run(ctx); err != nil {
			logr.Error("admin server stopped", "err", err)
		}
	}()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}
	wg.Wait()
	logr.Info("shutdown complete")
}
