package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/longregen/helpdesk/internal/domain"
	"github.com/spf13/cobra"
)

const chatHelp = `Type your message and press Enter. Commands:
  /retry     resend the last failed message
  /escalate  ask for a human agent
  /resolve   close the conversation as resolved
  /refresh   check for new messages now
  /quit      leave the chat`

// chatCmd creates the chat command for interactive conversations
func chatCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "chat [conversation-id]",
		Short: "Interactive support chat",
		Long: `Start an interactive support chat.
Provide a conversation ID to continue an existing conversation, or omit it to open a new ticket.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var conversationID string
			if len(args) > 0 {
				conversationID = args[0]
			} else {
				if cfg.Caller.UserID == "" {
					return fmt.Errorf("user ID required to open a ticket. Set HELPDESK_USER_ID")
				}
				conversation, err := a.store.CreateConversation(ctx, cfg.Caller.UserID, category)
				if err != nil {
					return err
				}
				conversationID = conversation.ID
				fmt.Printf("Started new conversation: %s\n", conversationID)
			}

			if err := a.engine.OpenConversation(ctx, conversationID); err != nil {
				if errors.Is(err, domain.ErrConversationNotFound) {
					return fmt.Errorf("conversation not found: %s", conversationID)
				}
				return err
			}

			r := newRenderer(os.Stdout)
			st := a.engine.State()
			if st.Conversation != nil {
				fmt.Printf("Conversation %s (%s)\n", st.Conversation.ID, st.Conversation.Status)
			}
			fmt.Println(chatHelp)
			fmt.Println(strings.Repeat("-", 80))
			r.history(st)

			changes, stopWatch := a.engine.Watch()
			defer stopWatch()

			lines := make(chan string)
			go func() {
				defer close(lines)
				scanner := bufio.NewScanner(os.Stdin)
				for scanner.Scan() {
					lines <- scanner.Text()
				}
			}()

			for {
				select {
				case <-ctx.Done():
					fmt.Println("\nGoodbye!")
					return nil
				case <-changes:
					r.update(a.engine.State())
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					if quit := handleInput(ctx, a, strings.TrimSpace(line)); quit {
						fmt.Println("Goodbye!")
						return nil
					}
				}
			}
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Ticket category (only used when creating)")

	return cmd
}

// handleInput runs one line typed by the user and reports whether to quit.
func handleInput(ctx context.Context, a *app, input string) bool {
	var err error
	switch strings.ToLower(input) {
	case "":
		return false
	case "/quit", "/exit", "exit", "quit":
		return true
	case "/help":
		fmt.Println(chatHelp)
	case "/retry":
		err = a.engine.RetryLastFailed()
	case "/escalate":
		if err = a.engine.Escalate(ctx); err == nil {
			fmt.Println("  (a human agent will join shortly)")
		}
	case "/resolve":
		if err = a.engine.CloseWithResolution(ctx); err == nil {
			fmt.Println("  (conversation marked as resolved)")
		}
	case "/refresh":
		a.engine.Refresh()
	default:
		_, err = a.engine.SendMessage(input)
	}

	if err != nil {
		fmt.Printf("  (%s)\n", describeError(err))
	}
	return false
}

func describeError(err error) string {
	switch {
	case errors.Is(err, domain.ErrNothingToRetry):
		return "nothing to retry"
	case errors.Is(err, domain.ErrConversationClosed):
		return "this conversation is closed"
	case errors.Is(err, domain.ErrAssistantOffline):
		return "the assistant is unavailable, try again shortly"
	case errors.Is(err, domain.ErrActionFailed):
		return "the request could not be completed: " + err.Error()
	default:
		return err.Error()
	}
}
