package config

import "time"

type App struct {
	Port             string        `env:"APP_PORT" default:"8080"`
	DatabaseURL      string        `env:"DATABASE_URL,required"`
	JWTSecret        string        `env:"JWT_SECRET,required"`
	TelegramBotToken string        `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string        `env:"TELEGRAM_CHAT_ID"`
	DueSweepInterval time.Duration `env:"DUE_SWEEP_INTERVAL"`
	Env              string        `env:"APP_ENV" default:"dev"`
}
