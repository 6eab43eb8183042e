package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"futures-grid-bot-go/internal/bot"
	"futures-grid-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

const closeTimeout = 30 * time.Second

func gridFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "lower", Usage: "lower price bound"},
		&cli.StringFlag{Name: "upper", Usage: "upper price bound"},
		&cli.IntFlag{Name: "grids", Aliases: []string{"n"}, Usage: "number of grid levels"},
		&cli.StringFlag{Name: "investment", Usage: "total investment in the quote asset"},
		&cli.IntFlag{Name: "leverage", Aliases: []string{"l"}, Usage: "leverage"},
		&cli.StringFlag{Name: "direction", Aliases: []string{"d"}, Usage: "Long or Short"},
	}
}

// gridParams 以配置中的网格参数为默认值，命令行参数覆盖
func gridParams(c *cli.Context, defaults models.GridParameters) (models.GridParameters, error) {
	p := defaults
	for name, target := range map[string]*decimal.Decimal{
		"lower":      &p.LowerPrice,
		"upper":      &p.UpperPrice,
		"investment": &p.TotalInvestment,
	} {
		if !c.IsSet(name) {
			continue
		}
		v, err := decimal.NewFromString(c.String(name))
		if err != nil {
			return p, fmt.Errorf("%w: --%s %q is not a number", models.ErrInvalidParameters, name, c.String(name))
		}
		*target = v
	}
	if c.IsSet("grids") {
		p.GridCount = c.Int("grids")
	}
	if c.IsSet("leverage") {
		p.Leverage = c.Int("leverage")
	}
	if c.IsSet("direction") {
		dir, err := models.ParseDirection(c.String("direction"))
		if err != nil {
			return p, err
		}
		p.Direction = dir
	}
	return p, nil
}

func previewCommand() *cli.Command {
	return &cli.Command{
		Name:  "preview",
		Usage: "compute and print the grid without connecting",
		Flags: gridFlags(),
		Action: func(c *cli.Context) error {
			a, err := setup(c)
			if err != nil {
				return err
			}
			defer a.close()

			params, err := gridParams(c, a.cfg.Grid)
			if err != nil {
				return err
			}
			preview, err := a.bot.Preview(params)
			if err != nil {
				return err
			}
			a.reporter.PrintPreview(preview)
			return nil
		},
	}
}

func runCommand() *cli.Command {
	flags := append(gridFlags(),
		&cli.BoolFlag{Name: "create", Usage: "place the grid orders after connecting"},
		&cli.BoolFlag{Name: "close-on-exit", Usage: "cancel orders and close positions on shutdown"},
	)
	return &cli.Command{
		Name:  "run",
		Usage: "connect and show the account overview until interrupted",
		Flags: flags,
		Action: func(c *cli.Context) error {
			a, err := setup(c)
			if err != nil {
				return err
			}
			defer a.close()

			params, err := gridParams(c, a.cfg.Grid)
			if err != nil {
				return err
			}

			// 监听系统信号以实现优雅退出
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := a.connect(ctx); err != nil {
				return err
			}

			if c.Bool("create") {
				report, err := a.bot.CreateGrid(ctx, params)
				if err != nil {
					return err
				}
				a.reporter.PrintSubmitReport(report)
			}

			bot.NewPoller(a.session, a.cfg, a.reporter, a.logger).Run(ctx)
			a.logger.Info("接收到退出信号，正在停止...")

			if c.Bool("close-on-exit") {
				closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
				defer cancel()
				report, err := a.bot.CloseAllPositions(closeCtx)
				if err != nil {
					return err
				}
				a.reporter.PrintCloseReport(report)
			}
			return nil
		},
	}
}

func closeCommand() *cli.Command {
	return &cli.Command{
		Name:  "close",
		Usage: "cancel all open orders and close all positions",
		Action: func(c *cli.Context) error {
			a, err := setup(c)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.connect(c.Context); err != nil {
				return err
			}
			report, err := a.bot.CloseAllPositions(c.Context)
			if err != nil {
				return err
			}
			a.reporter.PrintCloseReport(report)
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "print the account overview once",
		Action: func(c *cli.Context) error {
			a, err := setup(c)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.connect(c.Context); err != nil {
				return err
			}
			result := bot.NewPoller(a.session, a.cfg, a.reporter, a.logger).Tick(c.Context)
			if result.State == bot.StateError {
				return result.Err
			}
			return nil
		},
	}
}
