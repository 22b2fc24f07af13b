package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/scanqa/internal/core/domain"
)

var (
	askJSON        bool
	askShowContext bool
)

var askCmd = &cobra.Command{
	Use:   "ask <file> <question|->",
	Short: "Answer a question about a scanned document",
	Long: `Indexes the document (reusing cached stages), retrieves the passages most
similar to the question and asks the language model to answer from them.

Pass "-" as the question to read it from stdin.`,
	Example: `  scanqa ask report.pdf "প্রতিবেদনটি কোন সালের?"
  echo "Who signed the letter?" | scanqa ask --lang eng letter.pdf -`,
	Args: cobra.ExactArgs(2),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	askCmd.Flags().BoolVar(&askShowContext, "show-context", false, "print the passages sent to the model")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	answer, err := pipelineService.AnswerQuestion(ctx, handle, question, settings.Pipeline)
	switch {
	case errors.Is(err, domain.ErrLLMUnavailable):
		return fmt.Errorf("%w: configure one with 'scanqa config wizard', or use 'scanqa retrieve'", err)
	case err != nil && answer == nil:
		return fmt.Errorf("answering failed: %w", err)
	}

	if askJSON {
		return outputJSON(cmd, answer)
	}
	printAnswer(cmd, path, answer)
	return nil
}

// openHandle indexes path, accepting an empty document.
func openHandle(ctx context.Context, path string) (*domain.DocumentHandle, error) {
	handle, err := pipelineService.IndexDocument(ctx, path, settings.Pipeline)
	if err != nil && !errors.Is(err, domain.ErrEmptyDocument) {
		return nil, fmt.Errorf("indexing failed: %w", err)
	}
	if handle == nil {
		return nil, fmt.Errorf("indexing failed: %w", err)
	}
	return handle, nil
}

// questionArg returns arg, or reads the question from stdin when arg is "-".
func questionArg(cmd *cobra.Command, arg string) (string, error) {
	question := arg
	if arg == "-" {
		var err error
		if question, err = readQuestion(cmd); err != nil {
			return "", fmt.Errorf("reading question: %w", err)
		}
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("question is empty")
	}
	return question, nil
}

// readQuestion prompts for one line on a terminal, otherwise reads all of stdin.
func readQuestion(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		cmd.Print("Question: ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return line, nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func printAnswer(cmd *cobra.Command, path string, a *domain.Answer) {
	switch a.Outcome {
	case domain.OutcomeNoContent:
		cmd.Printf("No text could be extracted from %s, so there is nothing to answer from.\n", path)
		printWarnings(cmd, a.Warnings)
		return
	case domain.OutcomeNoMatch:
		cmd.Printf("No passage scored above the minimum similarity (%.2f).\n", settings.Pipeline.MinScore)
		printWarnings(cmd, a.Warnings)
		return
	}

	cmd.Println("Answer:")
	cmd.Println()
	cmd.Println(indent(a.Text, "  "))
	cmd.Println()

	if len(a.Citations) > 0 {
		cmd.Println("Sources:")
		for i, c := range a.Citations {
			cmd.Printf("  [%d] %s (%.2f)\n", i+1, chunkLocation(c.Chunk), c.Score)
			if askShowContext {
				cmd.Println(indent(c.Chunk.Content, "      "))
				cmd.Println()
			}
		}
	}
	printWarnings(cmd, a.Warnings)
}

func chunkLocation(c domain.Chunk) string {
	if c.Page < 0 {
		return fmt.Sprintf("chunk %s", c.ID)
	}
	return fmt.Sprintf("page %d, chunk %s", c.Page+1, c.ID)
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

func outputJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
