package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question from the stored documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		reply, err := a.chatService().Ask(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, reply.Answer)
		if len(reply.Sources) > 0 {
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Sources:")
			for _, s := range reply.Sources {
				if s.URL == "" {
					fmt.Fprintf(out, "  - %s\n", s.Title)
					continue
				}
				fmt.Fprintf(out, "  - %s (%s)\n", s.Title, s.URL)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}
