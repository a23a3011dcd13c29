// Package cli — команды toolcrib: сервер, миграции, заведение
// пользователей и инструмента.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"toolcrib/config"
	"toolcrib/internal/db"
	"toolcrib/internal/logs"
	"toolcrib/server"
)

var (
	jsonOutput bool
	rootCmd    = &cobra.Command{
		Use:   "toolcrib",
		Short: "Tool crib inventory and approval service",
		Long: `toolcrib tracks measuring instruments in a shared tool crib.
Operators request tools, a single supervisor approves or rejects,
and an officer watches sessions and requests.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := logs.Init(logs.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				File:   cfg.Logging.File,
			}); err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), cfgKey{}, cfg))
			return nil
		},
	}
)

type cfgKey struct{}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func configFrom(cmd *cobra.Command) *config.Config {
	cfg, _ := cmd.Context().Value(cfgKey{}).(*config.Config)
	return cfg
}

// requireDB — команды администрирования работают только с настоящей БД.
func requireDB(cmd *cobra.Command) (*gorm.DB, error) {
	cfg := configFrom(cmd)
	d, err := server.OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, errors.New("database.driver is empty: this command needs a database")
	}
	if err := db.Migrate(d); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	return d, nil
}

func closeDB(d *gorm.DB) {
	if sqlDB, err := d.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// output печатает v как JSON при --json, иначе text.
func output(cmd *cobra.Command, v any, text string) error {
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), text)
	return err
}
