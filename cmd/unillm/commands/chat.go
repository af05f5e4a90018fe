package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unillm/unillm"
)

var (
	chatModel  string
	chatSystem string
	chatTools  []string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive multi-turn session",
	Long: `Opens a conversation that keeps history across turns. Slash commands:

  /reset   clear the conversation
  /model   show or change the session model
  /exit    leave`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		stop := watchEvents()
		defer stop()

		chat := client.Chat(chatModel, chatSystem)
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "unillm chat (/exit to leave, /reset to clear history)")

		scanner := bufio.NewScanner(cmd.InOrStdin())
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for {
			fmt.Fprint(out, "> ")
			if !scanner.Scan() {
				fmt.Fprintln(out)
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "/") {
				if done := slashCommand(out, chat, line); done {
					return nil
				}
				continue
			}

			if err := chatTurn(cmd, chat, line); err != nil {
				// Conversation survives a failed turn; history is unchanged.
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
			}
		}
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "model ID or @alias")
	chatCmd.Flags().StringVarP(&chatSystem, "system", "s", "", "system prompt")
	chatCmd.Flags().StringSliceVar(&chatTools, "tools", nil, "enable registered tools")
}

func chatTurn(cmd *cobra.Command, chat *unillm.ChatSession, prompt string) error {
	var opts []unillm.RequestOption
	if len(chatTools) > 0 {
		opts = append(opts, unillm.WithTools(chatTools...))
	}

	stream := chat.Stream(cmd.Context(), prompt, opts...)
	defer stream.Close()

	out := cmd.OutOrStdout()
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		fmt.Fprint(out, chunk.Content)
	}
	fmt.Fprintln(out)

	_, err := stream.Final()
	return err
}

func slashCommand(out io.Writer, chat *unillm.ChatSession, line string) (done bool) {
	cmd, rest, _ := strings.Cut(line, " ")
	switch cmd {
	case "/exit", "/quit":
		return true
	case "/reset":
		chat.Reset()
		fmt.Fprintln(out, "history cleared")
	case "/model":
		if rest == "" {
			fmt.Fprintln(out, "model:", orDefault(chatModel))
		} else {
			chatModel = rest
			fmt.Fprintln(out, "future sessions will use", rest, "(/reset and restart chat to apply)")
		}
	default:
		fmt.Fprintln(out, "unknown command", cmd)
	}
	return false
}

func orDefault(model string) string {
	if model == "" {
		return "(configured default)"
	}
	return model
}
