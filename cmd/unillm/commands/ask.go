package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/unillm/unillm"
	"github.com/unillm/unillm/pkg/types"
)

var (
	askModel       string
	askBackend     string
	askSystem      string
	askTemperature float64
	askMaxTokens   int
	askTools       []string
	askStream      bool
	askTimeout     time.Duration
)

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Send one prompt and print the answer",
	Long: `Sends a single prompt through the routing engine and prints the
response. The prompt comes from the arguments, or from stdin when piped:

  unillm ask "what is a goroutine" --model @fast
  git diff | unillm ask "review this change" --model @coding --stream`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, err := readPrompt(args)
		if err != nil {
			return err
		}

		client, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		stop := watchEvents()
		defer stop()

		opts := requestOpts()
		if askStream && !flagJSON {
			return streamAnswer(cmd, client, prompt, opts)
		}

		resp, err := client.Ask(cmd.Context(), prompt, opts...)
		if err != nil {
			return err
		}
		return printResponse(cmd, resp)
	},
}

func init() {
	askCmd.Flags().StringVarP(&askModel, "model", "m", "", "model ID or @alias")
	askCmd.Flags().StringVarP(&askBackend, "backend", "b", "", "pin a backend, disabling fallback")
	askCmd.Flags().StringVarP(&askSystem, "system", "s", "", "system prompt")
	askCmd.Flags().Float64VarP(&askTemperature, "temperature", "t", -1, "sampling temperature")
	askCmd.Flags().IntVar(&askMaxTokens, "max-tokens", 0, "cap response length")
	askCmd.Flags().StringSliceVar(&askTools, "tools", nil, "enable registered tools (comma separated)")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "print output incrementally")
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 0, "overall request deadline")
}

func requestOpts() []unillm.RequestOption {
	var opts []unillm.RequestOption
	if askModel != "" {
		opts = append(opts, unillm.WithModel(askModel))
	}
	if askBackend != "" {
		opts = append(opts, unillm.WithPinnedBackend(askBackend))
	}
	if askSystem != "" {
		opts = append(opts, unillm.WithSystem(askSystem))
	}
	if askTemperature >= 0 {
		opts = append(opts, unillm.WithTemperature(askTemperature))
	}
	if askMaxTokens > 0 {
		opts = append(opts, unillm.WithMaxTokens(askMaxTokens))
	}
	if len(askTools) > 0 {
		opts = append(opts, unillm.WithTools(askTools...))
	}
	if askTimeout > 0 {
		opts = append(opts, unillm.WithTimeout(askTimeout))
	}
	return opts
}

// readPrompt joins the arguments, appending piped stdin when present.
func readPrompt(args []string) (string, error) {
	prompt := strings.Join(args, " ")

	stat, err := os.Stdin.Stat()
	if err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		piped, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		if len(piped) > 0 {
			if prompt != "" {
				prompt += "\n\n"
			}
			prompt += string(piped)
		}
	}

	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("no prompt given; pass it as an argument or pipe it on stdin")
	}
	return prompt, nil
}

func streamAnswer(cmd *cobra.Command, client *unillm.Client, prompt string, opts []unillm.RequestOption) error {
	stream := client.Stream(cmd.Context(), prompt, opts...)
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), chunk.Content)
	}
	fmt.Fprintln(cmd.OutOrStdout())

	_, err := stream.Final()
	return err
}

func printResponse(cmd *cobra.Command, resp *types.AIResponse) error {
	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.Content)
	if flagVerbose {
		fmt.Fprintf(os.Stderr, "[%s via %s, %d tokens]\n",
			resp.Model, resp.Backend, resp.Usage.Total())
	}
	return nil
}
