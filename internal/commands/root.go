package commands

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cgk-platform/agentcore/internal/app"
	"github.com/cgk-platform/agentcore/internal/output"
)

// Execute runs the CLI application.
func Execute(version string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	root := &cobra.Command{
		Use:           "agentcore",
		Short:         "Agent coordination primitives (events, handoffs, approvals, memory context)",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			showVersion, _ := cmd.Flags().GetBool("version")
			if showVersion {
				type resp struct {
					Version string `json:"version"`
				}
				return output.PrintSuccess(resp{Version: version})
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.EnsureConfigDir(); err != nil {
				return err
			}

			// Wire --db-path into app-level resolver.
			if dbPath, err := cmd.Flags().GetString("db-path"); err == nil && dbPath != "" {
				app.SetDBPathOverride(dbPath)
			}

			return nil
		},
	}

	root.PersistentFlags().String("db-path", "", "Override database path")
	root.PersistentFlags().StringP("tenant", "t", "", "Tenant ID (default: $AGENTCORE_TENANT)")
	root.Flags().BoolP("version", "v", false, "version for agentcore")

	root.AddCommand(NewEventCmd())
	root.AddCommand(NewHandoffCmd())
	root.AddCommand(NewApprovalCmd())
	root.AddCommand(NewFeedbackCmd())
	root.AddCommand(NewChannelCmd())
	root.AddCommand(NewContextCmd())
	root.AddCommand(NewDBCmd())
	root.AddCommand(NewStatusCmd(root))

	err := root.Execute()
	if err != nil {
		var pe printedError
		if !errors.As(err, &pe) {
			slog.Error("command failed", "error", err.Error())
		}
	}
	return err
}

// tenantFromFlags resolves the tenant id from --tenant or $AGENTCORE_TENANT.
func tenantFromFlags(cmd *cobra.Command) (string, error) {
	tenantID, _ := cmd.Flags().GetString("tenant")
	if tenantID == "" {
		tenantID = os.Getenv("AGENTCORE_TENANT")
	}
	if tenantID == "" {
		return "", errors.New("--tenant is required (or set AGENTCORE_TENANT)")
	}
	return tenantID, nil
}
