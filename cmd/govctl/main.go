package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	internalrepo "github.com/duke524-dev/synth-subnet/internal/repository"
	"github.com/duke524-dev/synth-subnet/internal/services/governance"
	"github.com/duke524-dev/synth-subnet/internal/services/scoring"
	pkgch "github.com/duke524-dev/synth-subnet/pkg/clickhouse"
	"github.com/duke524-dev/synth-subnet/pkg/config"
	applogger "github.com/duke524-dev/synth-subnet/pkg/logger"
)

var (
	configPath string
	reason     string
	window     time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "govctl",
		Short: "Inspect and drive parameter governance from the command line",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")

	check := &cobra.Command{
		Use:   "check <asset> <parameter>",
		Short: "Show the governance phase of one (asset, parameter) pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := loadEngine()
			if err != nil {
				return err
			}
			return printJSON(engine.Status(args[0], args[1], time.Now().UTC()))
		},
	}

	propose := &cobra.Command{
		Use:   "propose <asset> <parameter> <value>",
		Short: "Propose a parameter change; applied immediately when eligible",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("value must be numeric: %w", err)
			}
			engine, _, err := loadEngine()
			if err != nil {
				return err
			}
			msg, err := engine.ProposeChange(args[0], args[1], value, reason, time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		},
	}
	propose.Flags().StringVar(&reason, "reason", "", "why this change is being made")
	_ = propose.MarkFlagRequired("reason")

	values := &cobra.Command{
		Use:   "values",
		Short: "Print the effective parameter values for all tuned assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := loadEngine()
			if err != nil {
				return err
			}
			return printJSON(engine.CurrentValues())
		},
	}

	suggest := &cobra.Command{
		Use:   "suggest",
		Short: "Aggregate recent scores and print tuning suggestions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithEnv(configPath)
			if err != nil {
				return err
			}
			if !cfg.ClickHouse.Enabled {
				return fmt.Errorf("suggest requires clickhouse to be enabled")
			}
			client, err := pkgch.NewClient(
				pkgch.WithHost(cfg.ClickHouse.Host),
				pkgch.WithPort(cfg.ClickHouse.Port),
				pkgch.WithDatabase(cfg.ClickHouse.Database),
				pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
				pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			)
			if err != nil {
				return err
			}
			defer client.Close()

			sink := internalrepo.NewClickHouseResultSink(client.DB(), cfg.ClickHouse.Database+".crps_results")
			now := time.Now().UTC()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			results, err := sink.Query(ctx, now.Add(-window), now)
			if err != nil {
				return err
			}

			report := scoring.Aggregate(results, window, now)
			suggestions := governance.Suggest(report, governance.DefaultSuggestionThresholds())
			return printJSON(map[string]interface{}{
				"report":      report,
				"suggestions": suggestions,
			})
		},
	}
	suggest.Flags().DurationVar(&window, "window", 7*24*time.Hour, "score aggregation window")

	root.AddCommand(check, propose, values, suggest)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadEngine() (*governance.Engine, *config.Config, error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := applogger.New(&applogger.Config{Level: "warn", Format: "console", Output: "stderr"})
	if err != nil {
		return nil, nil, err
	}
	ledger := internalrepo.NewFileTuningLedger(cfg.Storage.LedgerPath)
	engine, err := governance.NewEngine(ledger, log)
	if err != nil {
		return nil, nil, err
	}
	return engine, cfg, nil
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
