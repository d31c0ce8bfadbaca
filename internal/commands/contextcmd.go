package commands

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cgk-platform/agentcore/internal/contextbuilder"
	"github.com/cgk-platform/agentcore/internal/models"
	"github.com/cgk-platform/agentcore/internal/output"
	"github.com/cgk-platform/agentcore/internal/ranking"
)

// NewContextCmd creates the context command group
func NewContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Rank memory search results into a bounded context payload",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newContextBuildCmd())
	cmd.AddCommand(newContextRankCmd())

	return cmd
}

// newContextBuildCmd runs the full offline pipeline over a results file:
// threshold filter -> rank -> diversify -> group -> render bounded payload.
// The similarity search itself lives in the memory service; this command
// operates on its exported results.
func newContextBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a context payload from a memory search results file",
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := readResultsFile(cmd)
			if err != nil {
				return cmdErr(err)
			}

			minSimilarity, _ := cmd.Flags().GetFloat64("min-similarity")
			minScore, _ := cmd.Flags().GetFloat64("min-score")
			maxPerType, _ := cmd.Flags().GetInt("max-per-type")
			maxPerSubject, _ := cmd.Flags().GetInt("max-per-subject")
			limit, _ := cmd.Flags().GetInt("limit")
			maxChars, _ := cmd.Flags().GetInt("max-chars")

			payload := contextbuilder.BuildFromResults(results, contextbuilder.Options{
				Thresholds: ranking.ThresholdOptions{MinSimilarity: minSimilarity},
				Rank:       ranking.RankOptions{MinScore: minScore},
				Diversify: ranking.DiversifyOptions{
					MaxPerType:    maxPerType,
					MaxPerSubject: maxPerSubject,
					Limit:         limit,
				},
				MaxChars: maxChars,
			})

			return output.PrintSuccess(payload)
		},
	}

	cmd.Flags().String("file", "", "JSON file of memory search results, - for stdin (required)")
	cmd.Flags().Float64("min-similarity", 0, "Drop candidates below this similarity")
	cmd.Flags().Float64("min-score", 0, "Drop candidates below this composite score")
	cmd.Flags().Int("max-per-type", 0, "Per-type selection cap (default 5)")
	cmd.Flags().Int("max-per-subject", 0, "Per-subject selection cap (default 3)")
	cmd.Flags().Int("limit", 0, "Total selection cap (default 20)")
	cmd.Flags().Int("max-chars", 0, "Payload character budget (default 4000)")

	return cmd
}

// newContextRankCmd stops after scoring: useful for inspecting how candidates
// would order before diversification trims them.
func newContextRankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Score and order a memory search results file",
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := readResultsFile(cmd)
			if err != nil {
				return cmdErr(err)
			}

			minScore, _ := cmd.Flags().GetFloat64("min-score")
			ranked := ranking.RankMemories(results, ranking.RankOptions{MinScore: minScore})

			type resp struct {
				Memories []models.MemorySearchResult `json:"memories"`
				Count    int                         `json:"count"`
			}
			return output.PrintSuccess(resp{Memories: ranked, Count: len(ranked)})
		},
	}

	cmd.Flags().String("file", "", "JSON file of memory search results, - for stdin (required)")
	cmd.Flags().Float64("min-score", 0, "Drop candidates below this composite score")

	return cmd
}

func readResultsFile(cmd *cobra.Command) ([]models.MemorySearchResult, error) {
	file, _ := cmd.Flags().GetString("file")
	if file == "" {
		return nil, errors.New("--file is required")
	}

	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, err
	}

	var results []models.MemorySearchResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, errors.New("results file must be a JSON array of memory search results: " + err.Error())
	}
	return results, nil
}
