package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/baechuer/magiclink/services/signin-service/internal/config"
	"github.com/baechuer/magiclink/services/signin-service/internal/domain"
	"github.com/baechuer/magiclink/services/signin-service/internal/infrastructure/db/postgres"
	"github.com/baechuer/magiclink/services/signin-service/internal/logger"
	"github.com/baechuer/magiclink/services/signin-service/internal/transport/http/dto"
)

const commandTimeout = time.Minute

func main() {
	logger.Init()
	_ = godotenv.Load()

	if err := newRootCmd(openDB).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type dbOpener func(dsn string) (*sql.DB, error)

func openDB(dsn string) (*sql.DB, error) {
	return config.NewDB(dsn, false)
}

func newRootCmd(open dbOpener) *cobra.Command {
	var dsn string

	root := &cobra.Command{
		Use:           "signin-tool",
		Short:         "Operations for the sign-in service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dsn, "db", os.Getenv("DB_ADDR"), "Postgres DSN (defaults to $DB_ADDR)")

	withDB := func(cmd *cobra.Command, fn func(ctx context.Context, db *sql.DB) error) error {
		if strings.TrimSpace(dsn) == "" {
			return errors.New("no database: pass --db or set DB_ADDR")
		}
		db, err := open(dsn)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()
		return fn(ctx, db)
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd, func(ctx context.Context, db *sql.DB) error {
				if err := postgres.Migrate(ctx, db); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}

	profile := &cobra.Command{
		Use:   "profile",
		Short: "Inspect user profiles",
	}

	var email string
	get := &cobra.Command{
		Use:   "get",
		Short: "Print a profile by email as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd, func(ctx context.Context, db *sql.DB) error {
				p, err := postgres.NewProfileRepo(db).FindByEmail(ctx, domain.NormalizeEmail(email))
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(dto.NewProfileResponse(p))
			})
		},
	}
	get.Flags().StringVar(&email, "email", "", "profile email")
	_ = get.MarkFlagRequired("email")

	profile.AddCommand(get)
	root.AddCommand(migrate, profile)
	return root
}
