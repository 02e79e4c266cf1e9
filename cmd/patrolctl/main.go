// patrolctl — инструмент командной строки для патрульных task.
//
// Использование:
//
//	patrolctl [--mq-url URL] [--db-url URL] [--json] task <subcommand> [flags]
//
// Команды:
//
//	task validate  Проверить файл task
//	task submit    Отправить task движку
//	task cancel    Отменить task
//	task list      Архив task
//	task show      Task с шагами
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/patrol/internal/cli"
	"github.com/shaiso/patrol/internal/mq"
	"github.com/shaiso/patrol/internal/repo"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var mqURL, dbURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "patrolctl",
		Short:         "patrolctl — patrol task tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&mqURL, "mq-url", envOr("RABBITMQ_URL", mq.DefaultURL()), "RabbitMQ URL")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", envOr("DB_URL", repo.DefaultURL), "PostgreSQL URL for task history")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(mqURL, dbURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewTaskCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
