package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"studybuddy-client/internal/app"
	"studybuddy-client/internal/domain"
)

// NewChatCmd runs a line-oriented chat with the study assistant.
func NewChatCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Ask questions about your study materials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), *configPath)
		},
	}
}

func runChat(ctx context.Context, in io.Reader, out io.Writer, configPath string) error {
	c, err := buildComponents(ctx, configPath)
	if err != nil {
		return err
	}
	defer c.Close()

	assistant, err := c.assistant()
	if err != nil {
		return err
	}
	if err := c.service.Reload(ctx); err != nil {
		c.log.Warn("study materials not loaded", "error", err)
	}
	session := app.NewChatSession(assistant, c.log)

	fmt.Fprintln(out, "Ask about your study materials. Type \"exit\" to quit.")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		question := scanner.Text()
		if q := strings.TrimSpace(question); q == "exit" || q == "quit" {
			break
		}
		turn, err := session.Ask(ctx, question)
		switch {
		case errors.Is(err, domain.ErrEmptyQuestion):
			continue
		case err != nil && !domain.IsTransport(err):
			return err
		}
		fmt.Fprintln(out, turn.Answer)
		if len(turn.Sources) > 0 {
			fmt.Fprintf(out, "Sources: %s\n", strings.Join(turn.Sources, ", "))
		}
		if ctx.Err() != nil {
			break
		}
	}
	fmt.Fprintln(out)
	return scanner.Err()
}
