package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/karim/ensemble/pkg/orchestrator"
)

var chatRole string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session with the configured personas.
Messages go to the selected persona; delegation between personas happens
automatically. Commands: /role <name> switches persona, /new starts a
fresh session, /exit quits.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatRole, "role", "", "persona role to talk to (defaults to the first configured)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	role := chatRole
	if role == "" {
		role = rt.cfg.Personas[0].Role
	}
	if rt.orch.Get(role) == nil {
		return fmt.Errorf("unknown persona role: %s (configured: %s)", role, strings.Join(rt.orch.Roles(), ", "))
	}

	sessionID := orchestrator.NewSessionID()
	fmt.Printf("ensemble %s | persona: %s | session: %s\n", version, role, sessionID)
	fmt.Println("Type /exit to quit, /role <name> to switch persona, /new for a fresh session.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Printf("%s> ", role)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			switch {
			case line == "/exit" || line == "/quit":
				return nil
			case line == "/new":
				sessionID = orchestrator.NewSessionID()
				fmt.Printf("new session: %s\n", sessionID)
			case strings.HasPrefix(line, "/role "):
				next := strings.TrimSpace(strings.TrimPrefix(line, "/role "))
				if rt.orch.Get(next) == nil {
					fmt.Printf("unknown role: %s (configured: %s)\n", next, strings.Join(rt.orch.Roles(), ", "))
					continue
				}
				role = next
			default:
				fmt.Printf("unknown command: %s\n", line)
			}
			continue
		}

		result, err := rt.orch.Dispatch(cmd.Context(), role, sessionID, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		fmt.Println(result.Text)
		if len(result.Hops) > 1 {
			fmt.Printf("(via %s)\n", strings.Join(result.Hops, " -> "))
		}
	}
	return scanner.Err()
}
