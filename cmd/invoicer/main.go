package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"invoicer/internal/cli"
	"invoicer/internal/config"
	applog "invoicer/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "invoicer",
	Short: "Monthly instructor invoice reconciliation",
	Long: `invoicer totals instructor effort for an accounting period, appends the
totals to the master ledger, fills tracker links and emails from the contact
registry and assigns sequential invoice numbers.

Configuration comes from the environment (and a local .env file). Flags
override it for a single invocation and can also be set as INVOICER_<FLAG>.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("INVOICER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("match", "", "invoice match mode: exact or normalized")
	rootCmd.PersistentFlags().Bool("force", false, "overwrite existing invoice numbers")
	rootCmd.PersistentFlags().Bool("allow-reprocess", false, "run a period that already completed")
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("match", rootCmd.PersistentFlags().Lookup("match"))
	_ = viper.BindPFlag("force", rootCmd.PersistentFlags().Lookup("force"))
	_ = viper.BindPFlag("allow-reprocess", rootCmd.PersistentFlags().Lookup("allow-reprocess"))
}

func registerCommands() {
	rootCmd.AddCommand(
		runCmd(),
		assignCmd(),
		linksCmd(),
		classifyCmd(),
		historyCmd(),
		enqueueCmd(),
	)
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() *config.Config {
	cli.LoadEnvFile()
	cfg := config.Load()
	if viper.IsSet("match") {
		cfg.InvoiceMatchMode = strings.ToLower(strings.TrimSpace(viper.GetString("match")))
	}
	if viper.IsSet("force") {
		cfg.InvoiceForceOverwrite = viper.GetBool("force")
	}
	if viper.IsSet("allow-reprocess") {
		cfg.AllowReprocess = viper.GetBool("allow-reprocess")
	}
	return cfg
}

// withApp validates configuration, wires the processor and hands it to fn.
func withApp(ctx context.Context, fn func(ctx context.Context, app *cli.App) error) error {
	cfg := loadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := cli.SetupLogger(cfg, applog.ComponentCLI)
	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}
