package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	appconfig "github.com/manthysbr/firewerk/internal/config"
	"github.com/manthysbr/firewerk/internal/core/domain"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

type cli struct {
	configPath string
	debug      bool
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "firewerk",
		Short:         "Drive prompt sets through a web generation UI and keep the results",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default ./firewerk.yaml)")
	root.PersistentFlags().BoolVarP(&c.debug, "debug", "d", false, "debug logging")

	root.AddCommand(newServeCommand(c))
	root.AddCommand(newRunCommand(c))
	root.AddCommand(newJobsCommand())
	root.AddCommand(newPromptsCommand(c))
	return root
}

func (c *cli) loadConfig() (*domain.AppConfig, error) {
	return appconfig.Load(c.configPath)
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// newLogger writes JSON, or text when human is set and stderr is a terminal.
func (c *cli) newLogger(human bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if c.debug {
		opts.Level = slog.LevelDebug
	}
	if human && isTTY(os.Stderr) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
