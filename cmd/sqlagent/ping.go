package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/axiom/sqlagent/internal/config"
	"github.com/axiom/sqlagent/internal/database"
	"github.com/axiom/sqlagent/internal/eventbus"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check connectivity to Postgres, Redis and NATS",
	Long:  `Check the services named by DATABASE_URL, REDIS_URL and NATS_URL.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		cfg := config.Load()
		failed := 0
		report := func(name string, err error) {
			if err != nil {
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "%-9s unreachable: %v\n", name, err)
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-9s ok\n", name)
		}

		report("postgres", pingPostgres(ctx, cfg.DatabaseURL))
		report("redis", pingRedis(ctx, cfg.RedisURL))
		report("nats", pingNATS(cfg.NATSURL))

		if failed > 0 {
			return fmt.Errorf("%d service(s) unreachable", failed)
		}
		return nil
	},
}

func pingPostgres(ctx context.Context, url string) error {
	db, err := database.NewPostgres(ctx, url)
	if err != nil {
		return err
	}
	defer db.Close()
	var one int
	return db.Pool().QueryRow(ctx, "SELECT 1").Scan(&one)
}

func pingRedis(ctx context.Context, url string) error {
	r, err := database.NewRedis(ctx, url)
	if err != nil {
		return err
	}
	return r.Close()
}

func pingNATS(url string) error {
	bus, err := eventbus.Connect(url, logger)
	if err != nil {
		return err
	}
	bus.Close()
	return nil
}
