package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/parley/internal/state"
	"github.com/user/parley/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionShowCmd, sessionClearCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		sessions := state.NewSessionStore(cfg.DataDir)
		conversations := state.NewConversationStore(cfg.DataDir)

		ctx := context.Background()
		list, err := sessions.List(ctx)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}

		if len(list) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKEY\tMESSAGES\tCREATED")
		for _, s := range list {
			count, err := conversations.Count(ctx, s.SessionID)
			if err != nil {
				count = 0
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
				s.SessionID,
				s.SessionKey,
				count,
				s.CreatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session's conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		sessions := state.NewSessionStore(cfg.DataDir)
		conversations := state.NewConversationStore(cfg.DataDir)

		ctx := context.Background()
		id := types.SessionID(args[0])
		if _, err := sessions.Get(ctx, id); err != nil {
			return err
		}
		messages, err := conversations.ReadAll(ctx, id)
		if err != nil {
			return fmt.Errorf("read conversation: %w", err)
		}

		if len(messages) == 0 {
			fmt.Println("No messages.")
			return nil
		}
		for _, m := range messages {
			fmt.Fprintf(os.Stdout, "[%s] %s: %s\n",
				m.At.Format("2006-01-02 15:04:05"), m.Role, m.Content)
		}
		return nil
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear <id|all>",
	Short: "Clear a session's conversation, or all conversations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		sessions := state.NewSessionStore(cfg.DataDir)
		conversations := state.NewConversationStore(cfg.DataDir)

		ctx := context.Background()

		if args[0] == "all" {
			list, err := sessions.List(ctx)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			for _, s := range list {
				if err := conversations.Clear(ctx, s.SessionID); err != nil {
					return fmt.Errorf("clear session %s: %w", s.SessionID, err)
				}
				s.MessageCount = 0
				if err := sessions.Update(ctx, s); err != nil {
					return fmt.Errorf("update session %s: %w", s.SessionID, err)
				}
			}
			fmt.Println("All sessions cleared.")
			return nil
		}

		id := types.SessionID(args[0])
		session, err := sessions.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := conversations.Clear(ctx, id); err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
		session.MessageCount = 0
		if err := sessions.Update(ctx, session); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Session %s cleared.\n", args[0])
		return nil
	},
}
