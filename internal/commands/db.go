package commands

import (
	"github.com/spf13/cobra"

	"github.com/cgk-platform/agentcore/internal/app"
	"github.com/cgk-platform/agentcore/internal/output"
	"github.com/cgk-platform/agentcore/internal/store"
)

func NewDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database utilities",
	}

	cmd.AddCommand(newDBPathCmd())
	cmd.AddCommand(newDBStatusCmd())
	return cmd
}

func newDBPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print the resolved database path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, source, err := app.ResolveDBPathDetailed()
			if err != nil {
				return cmdErr(err)
			}

			type resp struct {
				Path   string `json:"path"`
				Source string `json:"source"`
			}
			return output.PrintSuccess(resp{Path: path, Source: source})
		},
	}
	return cmd
}

func newDBStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print schema version and pending migration state",
		RunE: func(cmd *cobra.Command, args []string) error {
			var current, latest int64
			if err := withDB(func(db *DB) error {
				c, l, err := store.SchemaVersion(db)
				if err != nil {
					return err
				}
				current, latest = c, l
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				CurrentVersion int64 `json:"current_version"`
				LatestVersion  int64 `json:"latest_version"`
				UpToDate       bool  `json:"up_to_date"`
			}
			return output.PrintSuccess(resp{
				CurrentVersion: current,
				LatestVersion:  latest,
				UpToDate:       current >= latest,
			})
		},
	}
	return cmd
}
