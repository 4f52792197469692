// QuickCategories CLI — инструмент командной строки для управления
// батчами правок категорий через HTTP API.
//
// Использование:
//
//	quickcategories [--api-url URL] [--token TOKEN] [--domain DOMAIN] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	batch       Управление батчами
//	background  Фоновое выполнение
//
// Токен и домен по умолчанию берутся из QC_TOKEN и QC_WIKI_DOMAIN.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shaiso/quickcategories/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL, token, wikiDomain string
	var jsonOutput, noColor bool

	rootCmd := &cobra.Command{
		Use:           "quickcategories",
		Short:         "QuickCategories CLI — batch category edits on MediaWiki",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor || jsonOutput {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", envOr("QC_API_URL", "http://localhost:8080"), "API server URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("QC_TOKEN"), "Wiki OAuth access token")
	rootCmd.PersistentFlags().StringVar(&wikiDomain, "domain", os.Getenv("QC_WIKI_DOMAIN"), "Wiki domain, e.g. en.wikipedia.org")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	clientFn := func() *cli.Client {
		return cli.NewClient(cli.ClientConfig{BaseURL: apiURL, Token: token, Domain: wikiDomain})
	}
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewBatchCmd(clientFn, outputFn),
		cli.NewBackgroundCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
