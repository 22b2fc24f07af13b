package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/scanqa/internal/core/domain"
)

var (
	indexWatch   bool
	indexRefresh bool
)

var indexCmd = &cobra.Command{
	Use:   "index <file>",
	Short: "OCR and index a scanned document",
	Long: `Runs OCR, chunking, embedding and indexing for a document, storing each
stage in the cache. Stages whose inputs have not changed are restored
instead of recomputed.

Use --refresh to drop the cached stages first, and --watch to re-index
whenever the file changes.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVarP(&indexWatch, "watch", "w", false, "re-index when the file changes")
	indexCmd.Flags().BoolVar(&indexRefresh, "refresh", false, "drop cached stages before indexing")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}
	path := args[0]
	ctx := commandContext(cmd)

	if indexRefresh {
		if err := invalidateDocument(ctx, cmd, path); err != nil {
			return err
		}
	}

	if err := indexOnce(ctx, cmd, path); err != nil {
		return err
	}
	if !indexWatch {
		return nil
	}

	watcher, err := newFileWatcher(path, watchDebounce)
	if err != nil {
		return err
	}
	defer watcher.Close() //nolint:errcheck

	cmd.Printf("Watching %s for changes (Ctrl+C to stop)...\n", path)
	for range watcher.Changes(ctx) {
		cmd.Println()
		if err := indexOnce(ctx, cmd, path); err != nil {
			cmd.PrintErrf("Re-index failed: %v\n", err)
		}
	}
	return nil
}

// indexOnce indexes path and prints a summary. An empty document is
// reported, not treated as a failure.
func indexOnce(ctx context.Context, cmd *cobra.Command, path string) error {
	cmd.Printf("Indexing %s...\n", path)

	handle, err := pipelineService.IndexDocument(ctx, path, settings.Pipeline)
	if err != nil && !errors.Is(err, domain.ErrEmptyDocument) {
		return fmt.Errorf("indexing failed: %w", err)
	}
	if handle == nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	defer handle.Close() //nolint:errcheck

	printHandle(cmd, handle)
	if err != nil {
		cmd.Println("No text could be extracted; questions about this document will find nothing.")
	}
	return nil
}

func invalidateDocument(ctx context.Context, cmd *cobra.Command, path string) error {
	if cacheService == nil {
		return errors.New("cache service not configured")
	}
	fp, err := cacheService.Fingerprint(path, settings.Pipeline.FingerprintMode)
	if err != nil {
		return fmt.Errorf("fingerprinting %s: %w", path, err)
	}
	n, err := cacheService.Invalidate(ctx, fp)
	if err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	cmd.Printf("Dropped %d cached entries for %s\n", n, fp.Short())
	return nil
}

func printHandle(cmd *cobra.Command, h *domain.DocumentHandle) {
	cmd.Printf("\nDocument: %s\n", h.Document.Title)
	cmd.Printf("  Fingerprint: %s\n", h.Document.Fingerprint.Short())
	cmd.Printf("  Pages:       %d", h.PageCount)
	if len(h.FailedPages) > 0 {
		cmd.Printf(" (%d failed: %s)", len(h.FailedPages), pageList(h.FailedPages))
	}
	cmd.Println()
	cmd.Printf("  Chunks:      %d\n", len(h.Chunks))
	if h.EmbeddingModel != "" {
		cmd.Printf("  Embeddings:  %s (%d dimensions)\n", h.EmbeddingModel, h.Dimensions)
	}

	stages := make([]string, 0, len(h.Stages))
	for _, stage := range domain.AllStages() {
		if status, ok := h.Stages[stage]; ok {
			stages = append(stages, fmt.Sprintf("%s=%s", stage, status))
		}
	}
	if len(stages) > 0 {
		cmd.Printf("  Stages:      %s\n", strings.Join(stages, ", "))
	}
	printWarnings(cmd, h.Warnings)
}

func printWarnings(cmd *cobra.Command, warnings []domain.Warning) {
	if len(warnings) == 0 {
		return
	}
	cmd.Println("\nWarnings:")
	for _, w := range warnings {
		cmd.Printf("  - %s\n", w.Message)
	}
}

// pageList renders zero-based page indices as one-based page numbers.
func pageList(pages []int) string {
	sorted := make([]int, len(pages))
	copy(sorted, pages)
	sort.Ints(sorted)

	parts := make([]string, len(sorted))
	for i, p := range sorted {
		parts[i] = fmt.Sprint(p + 1)
	}
	return strings.Join(parts, ", ")
}

