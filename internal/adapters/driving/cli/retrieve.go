package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/scanqa/internal/core/domain"
)

var retrieveJSON bool

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <file> <question|->",
	Short: "Show the passages most similar to a question",
	Long: `Indexes the document and prints the top-k passages for the question,
ranked by cosine similarity. No language model is called.`,
	Args: cobra.ExactArgs(2),
	RunE: runRetrieve,
}

func init() {
	retrieveCmd.Flags().BoolVar(&retrieveJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(retrieveCmd)
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}
	path := args[0]

	question, err := questionArg(cmd, args[1])
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)

	handle, err := openHandle(ctx, path)
	if err != nil {
		return err
	}
	defer handle.Close() //nolint:errcheck

	result, err := pipelineService.Retrieve(ctx, handle, question, settings.Pipeline)
	if err != nil && (result == nil || !errors.Is(err, domain.ErrNoContent)) {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	if retrieveJSON {
		return outputJSON(cmd, result)
	}

	switch result.Outcome {
	case domain.OutcomeNoContent:
		cmd.Printf("No text could be extracted from %s.\n", path)
		return nil
	case domain.OutcomeNoMatch:
		cmd.Printf("No passage scored above the minimum similarity (%.2f).\n", settings.Pipeline.MinScore)
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, c := range result.Chunks {
		cmd.Printf("  [%d] %s (%.2f)\n", i+1, chunkLocation(c.Chunk), c.Score)
		cmd.Println(indent(c.Chunk.Content, "      "))
		cmd.Println()
	}
	return nil
}
