package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	app "github.com/kode4food/argyll/worker"
	"github.com/kode4food/argyll/worker/pkg/log"
)

type cli struct {
	logLevel   string
	codeDir    string
	sandbox    string
	exprLang   string
	payload    string
	samples    string
	sets       []string
	connection []string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "flowrun",
		Short:         "Run flow definitions locally",
		Version:       app.Version,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(log.NewConsole(
				cmd.ErrOrStderr(), log.ParseLevel(c.logLevel),
			))
		},
	}
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn",
		"log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&c.codeDir, "code-dir", ".",
		"directory holding <step>/index.js or <step>/index.lua code units")
	root.PersistentFlags().StringVar(&c.sandbox, "sandbox", "isolated",
		"code sandbox mode (direct, isolated)")
	root.PersistentFlags().StringVar(&c.exprLang, "expressions", "expr",
		"template token language (expr, js, ale)")
	root.PersistentFlags().StringArrayVar(&c.connection, "connection", nil,
		"connection value as name=json, repeatable")

	root.AddCommand(c.runCommand(), c.stepCommand(), c.validateCommand())
	return root
}
