package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"handbook-agent/internal/usecase"
)

func newAskCmd() *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question from the handbook",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, _, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.Responder.Initialize(ctx); err != nil {
				return err
			}
			query := strings.Join(args, " ")
			if err := a.Responder.ValidateQuery(query); err != nil {
				return err
			}
			out := a.Responder.Answer(ctx, usecase.AnswerInput{Query: query, ConversationID: conversationID})
			fmt.Fprintln(cmd.OutOrStdout(), out.Answer)
			fmt.Fprintf(cmd.ErrOrStderr(), "conversation: %s\n", out.ConversationID)
			return nil
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation-id", "", "continue an existing conversation")
	return cmd
}
