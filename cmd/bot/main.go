package main

import (
	"os"

	"futures-grid-bot-go/internal/logger"
	"futures-grid-bot-go/internal/models"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// --- 初始化日志 (提前) ---
	// 加载 .env 和配置文件时就需要日志，先用默认配置初始化
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	if err := newApp().Run(os.Args); err != nil {
		logger.S().Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "grid-bot",
		Usage: "futures grid trading bot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.json",
				Usage:   "path to the config file (.json, .yaml or .yml)",
			},
			&cli.StringFlag{
				Name:    "exchange",
				Aliases: []string{"e"},
				Usage:   "exchange profile, overrides the config and the last used exchange",
			},
			&cli.StringFlag{
				Name:    "symbol",
				Aliases: []string{"s"},
				Usage:   "contract symbol, overrides the config",
			},
		},
		Commands: []*cli.Command{
			previewCommand(),
			runCommand(),
			closeCommand(),
			statusCommand(),
		},
	}
}
