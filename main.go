// Package main library API.
//
// @title           Library Service API
// @version         1.0
// @description     library backend (books, borrowings, telegram notifications).
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description  Use:  Bearer <JWT>
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/mblazhko/library-service/app/echoServer"
	authctrl "github.com/mblazhko/library-service/app/echoServer/controller/auth"
	bookctrl "github.com/mblazhko/library-service/app/echoServer/controller/book"
	borrowctrl "github.com/mblazhko/library-service/app/echoServer/controller/borrowing"
	"github.com/mblazhko/library-service/app/echoServer/validation"
	"github.com/mblazhko/library-service/config"
	bookrepo "github.com/mblazhko/library-service/repository/book"
	borrowrepo "github.com/mblazhko/library-service/repository/borrowing"
	telegramrepo "github.com/mblazhko/library-service/repository/telegram"
	userrepo "github.com/mblazhko/library-service/repository/user"
	authsvc "github.com/mblazhko/library-service/service/auth"
	booksvc "github.com/mblazhko/library-service/service/book"
	borrowsvc "github.com/mblazhko/library-service/service/borrowing"
	"github.com/mblazhko/library-service/util/database"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
)

func main() {

	cfg := config.Load()
	ctx := context.Background()

	// logger
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// DB: *sql.DB
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// notifier
	var notifier telegramrepo.Notifier
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifier = telegramrepo.NewHTTP(cfg.TelegramBotToken, cfg.TelegramChatID)
	} else {
		log.Warn("telegram not configured, notifications disabled")
		notifier = telegramrepo.NewNoop()
	}

	// repos
	ur := userrepo.New(db)
	br := bookrepo.New(db)
	rr := borrowrepo.New(db)

	// services
	as := authsvc.New(ur, cfg.JWTSecret)
	bs := booksvc.New(br)
	rs := borrowsvc.New(db, rr, notifier, log)
	sw := borrowsvc.NewSweeper(rr, notifier, log)

	// controllers
	v := validator.New()
	authC := &authctrl.Controller{Svc: as, V: v, Log: log}
	bookC := &bookctrl.Controller{Svc: bs, V: v, Log: log}
	borrowC := &borrowctrl.Controller{Svc: rs, Sweeper: sw, V: v, Log: log}

	// optional in-process sweep ticker; a cron hitting the due-sweep
	// endpoint is the expected production setup
	if cfg.DueSweepInterval > 0 {
		go func() {
			t := time.NewTicker(cfg.DueSweepInterval)
			defer t.Stop()
			for now := range t.C {
				rep, err := sw.SweepDueSoon(ctx, now.UTC())
				if err != nil {
					log.Error("due sweep failed", "err", err)
					continue
				}
				log.Info("due sweep done", "due", rep.Due, "sent", rep.Sent, "failed", rep.Failed)
			}
		}()
	}

	// echo
	e := echo.New()
	echoServer.RegisterMiddlewares(e)
	e.Validator = validation.New()

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]any{
			"status":  "ok",
			"message": "Service is healthy and connected",
		})
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	echoServer.Register(e, echoServer.C{
		Auth:      authC,
		Book:      bookC,
		Borrowing: borrowC,

		JWTSecret: cfg.JWTSecret,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}
	if port == "" {
		port = "8080"
	}

	log.Info("starting server", "port", port)

	e.Logger.Fatal(e.Start(":" + port))
}
