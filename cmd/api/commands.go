package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/ryadrakem/mms-V2/internal/auth"
	"github.com/ryadrakem/mms-V2/internal/jaas"
	"github.com/ryadrakem/mms-V2/internal/recordstore"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the records table in Postgres",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.StoreBackend != "postgres" {
				return fmt.Errorf("migrate needs the postgres backend, got %q", cfg.StoreBackend)
			}
			pool, err := pgxpool.New(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect db: %w", err)
			}
			defer pool.Close()
			if err := recordstore.NewPostgres(pool).Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info().Msg("records schema ready")
			return nil
		},
	}
}

var (
	devTokenUser int64
	devTokenTTL  time.Duration
)

func newDevTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev-token",
		Short: "Print an API bearer token for a user",
		Long: `Sign an HS256 API token with the configured jwt_secret. Meant for local
runs and manual testing against the session routes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			tok, err := signUserToken(cfg.JWTSecret, devTokenUser, devTokenTTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().Int64Var(&devTokenUser, "user", 0, "user id carried in the uid claim")
	cmd.Flags().DurationVar(&devTokenTTL, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func signUserToken(secret string, userID int64, ttl time.Duration) (string, error) {
	if userID <= 0 {
		return "", errors.New("--user must be positive")
	}
	return auth.Sign(secret, userID, ttl)
}

var (
	tokenURL       string
	tokenBearer    string
	tokenMeetingID int64
	tokenSessionID int64
	tokenTimeout   time.Duration
)

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Request a room token from a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := jaas.NewClient(tokenURL, tokenBearer, &http.Client{Timeout: tokenTimeout})
			grant, err := client.Exchange(cmd.Context(), jaas.Request{MeetingID: tokenMeetingID, SessionID: tokenSessionID})
			if err != nil {
				return fmt.Errorf("token exchange: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(grant)
		},
	}
	cmd.Flags().StringVar(&tokenURL, "url", "http://localhost:8080/meeting/jitsi/token", "token endpoint")
	cmd.Flags().StringVar(&tokenBearer, "bearer", "", "API bearer token (see dev-token)")
	cmd.Flags().Int64Var(&tokenMeetingID, "meeting", 0, "meeting id")
	cmd.Flags().Int64Var(&tokenSessionID, "session", 0, "session id")
	cmd.Flags().DurationVar(&tokenTimeout, "timeout", 10*time.Second, "request timeout")
	_ = cmd.MarkFlagRequired("meeting")
	return cmd
}
