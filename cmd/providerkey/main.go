// Command providerkey manages provider API keys stored in Postgres.
//
//	providerkey set -provider gemini [-key ...] [-by ops@example.com]
//	providerkey delete -provider openai
//	providerkey list
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"storefront/internal/infra"
	"storefront/internal/infra/credentials"
)

var envKeys = map[string]string{
	credentials.ProviderGemini: "GEMINI_API_KEY",
	credentials.ProviderOpenAI: "OPENAI_API_KEY",
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fail("usage: providerkey <set|delete|list> [flags]")
	}
	cmd, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	providerFlag := fs.String("provider", credentials.ProviderGemini, "gemini or openai")
	keyFlag := fs.String("key", "", "API key; defaults to the provider's environment variable")
	byFlag := fs.String("by", os.Getenv("USER"), "operator recorded with the key")
	_ = fs.Parse(args)

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fail("DATABASE_URL is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fail("connect: %v", err)
	}
	defer pool.Close()

	logger := infra.Component(infra.NewLogger(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL")), "providerkey")
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	switch cmd {
	case "set":
		provider := mustProvider(*providerFlag)
		key := strings.TrimSpace(*keyFlag)
		if key == "" {
			key = strings.TrimSpace(os.Getenv(envKeys[provider]))
		}
		if key == "" {
			fail("%s key is required via -key or %s", provider, envKeys[provider])
		}
		if err := store.Set(ctx, provider, key, *byFlag); err != nil {
			fail("%v", err)
		}
		fmt.Printf("%s key stored; restart the api and worker to pick it up\n", provider)
	case "delete":
		provider := mustProvider(*providerFlag)
		existed, err := store.Delete(ctx, provider)
		if err != nil {
			fail("%v", err)
		}
		if !existed {
			fmt.Printf("no stored %s key\n", provider)
			return
		}
		fmt.Printf("%s key deleted\n", provider)
	case "list":
		keys, err := store.List(ctx)
		if err != nil {
			fail("%v", err)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PROVIDER\tKEY\tSET BY\tROTATED")
		for _, k := range keys {
			fmt.Fprintf(tw, "%s\t...%s\t%s\t%s\n", k.Provider, k.Suffix, k.SetBy, k.RotatedAt.Format(time.RFC3339))
		}
		_ = tw.Flush()
	default:
		fail("unknown command %q", cmd)
	}
}

func mustProvider(raw string) string {
	p, err := credentials.ParseProvider(raw)
	if err != nil {
		fail("%v", err)
	}
	return p
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
