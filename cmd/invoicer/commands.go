package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"invoicer/internal/amqp"
	"invoicer/internal/cli"
	applog "invoicer/internal/log"
	"invoicer/internal/services"
	"invoicer/internal/storage"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [PERIOD]",
		Short: "Process one accounting period end to end",
		Long: `Process one accounting period: aggregate effort, append ledger rows,
populate tracker links and emails, assign invoice numbers and mark the period
processed. Without PERIOD the pending period is read from the config table.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *cli.App) error {
				period := ""
				if len(args) == 1 {
					period = args[0]
				} else {
					pending, err := app.Processor.PendingPeriod(ctx)
					if err != nil {
						return err
					}
					period = pending
				}

				res, err := app.Processor.ProcessMonth(ctx, period)
				if errors.Is(err, services.ErrNoPeriod) {
					fmt.Fprintln(os.Stderr, "No period pending, nothing to do.")
					return nil
				}
				if err != nil {
					return fmt.Errorf("run %s: %w", period, err)
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				renderResult(os.Stdout, res)
				return nil
			})
		},
	}
	return cmd
}

func assignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign invoice numbers to ledger rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *cli.App) error {
				res, err := app.Processor.AssignInvoices(ctx, services.AssignRequest{
					Period:         viper.GetString("period"),
					ForceOverwrite: app.Processor.Config().ForceOverwrite,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				renderAssignments(os.Stdout, res)
				return nil
			})
		},
	}
	cmd.Flags().String("period", "", "only rows whose month equals this period")
	_ = viper.BindPFlag("period", cmd.Flags().Lookup("period"))
	return cmd
}

func linksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "links",
		Short: "Fill tracker links and emails of the master ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *cli.App) error {
				res, err := app.Processor.PopulateLinks(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				renderLinks(os.Stdout, res)
				return nil
			})
		},
	}
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify NAME...",
		Short: "Show the category derived from table names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			classifier, err := cli.LoadClassifier(cfg)
			if err != nil {
				return err
			}
			out := make([]classification, 0, len(args))
			for _, name := range args {
				out = append(out, classification{
					Table:    name,
					Category: string(classifier.Classify(name)),
					Effort:   services.IsEffortTable(name),
				})
			}
			if viper.GetBool("json") {
				return printJSON(out)
			}
			renderClassifications(os.Stdout, out)
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent period runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if !cfg.HistoryEnabled() {
				return errors.New("run history is disabled: set SQLITE_DB_PATH")
			}
			cli.SetupLogger(cfg, applog.ComponentCLI)
			repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			defer repo.Close()

			runs, err := repo.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(runs)
			}
			renderRuns(os.Stdout, runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}

func enqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue [PERIOD]",
		Short: "Ask the worker to process a period",
		Long:  "Publish a process request for the worker. Without PERIOD the worker reads the pending period itself.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if !cfg.EventsEnabled() {
				return errors.New("AMQP is not configured: set AMQP_URL")
			}
			cli.SetupLogger(cfg, applog.ComponentCLI)
			client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.AMQPEventsKey)
			if err != nil {
				return err
			}
			defer client.Close()

			period := ""
			if len(args) == 1 {
				period = args[0]
			}
			req := amqp.NewProcessPeriodRequest(period, cfg.InvoiceForceOverwrite)
			if err := client.PublishProcessRequest(cmd.Context(), req); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(req)
			}
			fmt.Fprintf(os.Stdout, "Queued process request for %q\n", req.Period)
			return nil
		},
	}
}
