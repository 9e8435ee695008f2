package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/karim/ensemble/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the resolved configuration",
	Long:  `Show the resolved configuration: personas, providers, storage, and logging.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	fmt.Printf("config:  %s\n", config.NewLoader(cfgFile).Path())
	fmt.Printf("storage: %s (retention %d days)\n", cfg.Storage.Path, cfg.Storage.RetentionDays)
	fmt.Printf("logging: level=%s file=%s\n", cfg.Logging.Level, cfg.Logging.File)

	if len(cfg.Personas) == 0 {
		fmt.Println("personas: none configured")
		return nil
	}

	fmt.Println("personas:")
	for _, p := range cfg.Personas {
		fmt.Printf("  %-12s model=%s provider=%s", p.Role, p.Model, p.Provider)
		if p.PromptFile != "" {
			fmt.Printf(" prompt=%s", p.PromptFile)
		}
		fmt.Println()
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("validation: %v\n", err)
	} else {
		fmt.Println("validation: ok")
	}
	return nil
}
