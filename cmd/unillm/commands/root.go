// Package commands implements the unillm CLI.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/unillm/unillm"
	"github.com/unillm/unillm/internal/event"
	"github.com/unillm/unillm/internal/logging"
	"github.com/unillm/unillm/pkg/aierrors"
)

var (
	flagVerbose bool
	flagDebug   bool
	flagJSON    bool
)

var rootCmd = &cobra.Command{
	Use:   "unillm",
	Short: "One interface over multiple LLM providers",
	Long: `unillm routes requests across LLM providers with alias-based model
selection, automatic fallback, retry, tool calling and streaming.

Model references are concrete IDs or @aliases:

  unillm ask "explain this error" --model @fast
  unillm ask "review my design" --model @best`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.WarnLevel
		if flagVerbose {
			level = zerolog.InfoLevel
		}
		if flagDebug {
			level = zerolog.DebugLevel
		}
		logging.Init(logging.Config{Level: level, Output: os.Stderr, Pretty: true})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show retries, fallbacks and tool activity")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "machine-readable output")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(os.Stderr, err)
	}
	return err
}

// printError reports a terminal error on stderr. With --json the error
// category and message serialize in the same envelope the HTTP API uses;
// otherwise it prints a plain one-liner.
func printError(w io.Writer, err error) {
	if !flagJSON {
		fmt.Fprintln(w, "Error:", err)
		return
	}
	body := struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}{}
	body.Error.Type = string(aierrors.Categorize(err))
	body.Error.Message = err.Error()
	_ = json.NewEncoder(w).Encode(body)
}

// newClient builds a client from files and environment.
func newClient(ctx context.Context) (*unillm.Client, error) {
	return unillm.New(ctx)
}

// watchEvents prints request lifecycle events to stderr while verbose
// mode is on. Returns a stop function.
func watchEvents() func() {
	if !flagVerbose && !flagDebug {
		return func() {}
	}

	ch, cancel := event.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range ch {
			switch data := e.Data.(type) {
			case event.RetryData:
				fmt.Fprintf(os.Stderr, "retry %d on %s in %dms\n", data.Attempt, data.Backend, data.DelayMS)
			case event.FallbackData:
				fmt.Fprintf(os.Stderr, "falling back: %s -> %s\n", data.From, data.To)
			case event.ToolData:
				if e.Type == event.ToolStarted {
					fmt.Fprintf(os.Stderr, "tool %s running\n", data.Tool)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// ExitCode maps the error taxonomy onto process exit codes.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		return 130
	}
	switch aierrors.Categorize(err) {
	case aierrors.CategoryConfig:
		return 2
	case aierrors.CategoryUnavailable:
		return 3
	case aierrors.CategoryAllFailed:
		return 4
	case aierrors.CategoryTimeout:
		return 5
	case aierrors.CategoryToolLoop:
		return 6
	case aierrors.CategoryCapability:
		return 7
	case aierrors.CategoryAuthorization:
		return 8
	default:
		return 1
	}
}
