package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/karim/ensemble/pkg/orchestrator"
)

var (
	askRole    string
	askSession string
)

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Send a single message and print the reply",
	Long: `Send one message to a persona and print the combined reply of the
resulting delegation chain. With --session, the turn joins an existing
conversation instead of starting a new one.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askRole, "role", "", "persona role to ask (defaults to the first configured)")
	askCmd.Flags().StringVar(&askSession, "session", "", "session id to continue")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	role := askRole
	if role == "" {
		role = rt.cfg.Personas[0].Role
	}

	sessionID := askSession
	if sessionID == "" {
		sessionID = orchestrator.NewSessionID()
	}

	result, err := rt.orch.Dispatch(cmd.Context(), role, sessionID, strings.Join(args, " "))
	if err != nil {
		return err
	}

	fmt.Println(result.Text)
	return nil
}
