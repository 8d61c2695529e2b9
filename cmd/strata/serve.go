package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strata/internal/api"
	"github.com/samcharles93/strata/pkg/formats"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		root        string
		readTimeout time.Duration
	)
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve a read-only HTTP inspection API over a directory of block files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "address",
				Usage:       "listen address",
				Value:       "127.0.0.1:8731",
				Destination: &addr,
			},
			&cli.StringFlag{
				Name:        "root",
				Usage:       "directory the API may read files from",
				Value:       ".",
				Destination: &root,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := loadConfig()
			log := newLogger(cmd, cfg)
			if cfg.ServerAddress != "" && !cmd.IsSet("address") {
				addr = cfg.ServerAddress
			}
			if cfg.ServeRoot != "" && !cmd.IsSet("root") {
				root = cfg.ServeRoot
			}

			reg, err := formats.NewRegistry()
			if err != nil {
				return err
			}
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			api.NewServer(reg, root, log).Register(e)

			log.Info("serving inspection API", "address", addr, "root", root)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
