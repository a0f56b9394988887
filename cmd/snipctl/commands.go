package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/snipgo/snip/internal/codec"
	"github.com/snipgo/snip/internal/model"
	"github.com/snipgo/snip/internal/repository"
	"github.com/snipgo/snip/internal/service"
)

var (
	longURLFlag   string
	aliasFlag     string
	passwordFlag  string
	expiresInFlag time.Duration
	maxClicksFlag uint64
)

// newService opens the store and builds a service without cache or
// filter; CLI invocations are one-shot so neither fast path pays off.
func newService() (*service.URLService, *repository.URLRepository, error) {
	db, err := repository.Open(cfg.MySQL.DSN(), cfg.MySQL.MaxIdleConns, cfg.MySQL.MaxOpenConns)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	repo, err := repository.NewURLRepository(db)
	if err != nil {
		return nil, nil, fmt.Errorf("init repository: %w", err)
	}
	cdc, err := codec.New(cfg.Shortener.Salt, cfg.Shortener.MinLength, cfg.Shortener.Alphabet)
	if err != nil {
		return nil, nil, fmt.Errorf("init codec: %w", err)
	}
	return service.NewURLService(repo, cdc, nil, nil), repo, nil
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a short URL",
	Example: `  snipctl create --url "https://example.com/some/long/path"
  snipctl create --url "https://example.com" --alias my-link --expires-in 48h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if longURLFlag == "" {
			return fmt.Errorf("--url is required")
		}

		svc, repo, err := newService()
		if err != nil {
			return err
		}
		defer repo.Close()

		in := service.CreateInput{LongURL: longURLFlag}
		if aliasFlag != "" {
			in.CustomAlias = &aliasFlag
		}
		if passwordFlag != "" {
			in.Password = &passwordFlag
		}
		if expiresInFlag > 0 {
			expiresAt := time.Now().UTC().Add(expiresInFlag)
			in.ExpiresAt = &expiresAt
		}
		if maxClicksFlag > 0 {
			in.MaxClicks = &maxClicksFlag
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		u, err := svc.Create(ctx, in)
		if err != nil {
			return err
		}

		fmt.Printf("Short code: %s\n", u.ShortCode)
		fmt.Printf("Short URL:  %s\n", shortURL(u))
		fmt.Printf("Long URL:   %s\n", u.LongURL)
		if u.ExpiresAt != nil {
			fmt.Printf("Expires at: %s\n", u.ExpiresAt.Format(time.RFC3339))
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <code>",
	Short: "Show statistics for a short code or alias",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, repo, err := newService()
		if err != nil {
			return err
		}
		defer repo.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		stats, err := svc.GetStats(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Short code:      %s\n", stats.ShortCode)
		fmt.Printf("Long URL:        %s\n", stats.LongURL)
		fmt.Printf("Clicks:          %d\n", stats.ClickCount)
		fmt.Printf("Active:          %t\n", stats.IsActive)
		fmt.Printf("Expired:         %t\n", stats.IsExpired)
		fmt.Printf("Click exhausted: %t\n", stats.ClickExhausted)
		fmt.Printf("Accessible:      %t\n", stats.IsAccessible)
		if stats.LastAccessedAt != nil {
			fmt.Printf("Last accessed:   %s\n", stats.LastAccessedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := repository.Open(cfg.MySQL.DSN(), cfg.MySQL.MaxIdleConns, cfg.MySQL.MaxOpenConns)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		if err := db.AutoMigrate(&model.URL{}); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Println("migrations applied")
		return nil
	},
}

func shortURL(u *model.URL) string {
	identifier := u.ShortCode
	if u.CustomAlias != nil {
		identifier = *u.CustomAlias
	}
	return fmt.Sprintf("%s/%s", cfg.Server.BaseURL, identifier)
}

func init() {
	createCmd.Flags().StringVar(&longURLFlag, "url", "", "long URL to shorten")
	createCmd.Flags().StringVar(&aliasFlag, "alias", "", "custom alias (3-50 chars, alphanumeric plus _ and -)")
	createCmd.Flags().StringVar(&passwordFlag, "password", "", "password protecting the URL")
	createCmd.Flags().DurationVar(&expiresInFlag, "expires-in", 0, "lifetime, e.g. 48h (0 means no expiry)")
	createCmd.Flags().Uint64Var(&maxClicksFlag, "max-clicks", 0, "maximum click count (0 means unlimited)")
}
