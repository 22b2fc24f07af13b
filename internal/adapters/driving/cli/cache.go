package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/scanqa/internal/core/domain"
)

// fullFingerprintLen is the length of a hex SHA-256 digest.
const fullFingerprintLen = 64

var cacheClearAll bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clear cached pipeline stages",
	Long: `Every document is cached by its fingerprint, one entry per pipeline stage
(extract, chunk, embed, index) and configuration.`,
}

var cacheListCmd = &cobra.Command{
	Use:   "list [file|fingerprint]",
	Short: "List cached entries",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCacheList,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear <file|fingerprint>",
	Short: "Remove the cached entries of a document",
	Long: `Removes every cached stage of a document, named by its path or fingerprint.
Use --all to empty the cache.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if cacheClearAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runCacheClear,
}

func init() {
	cacheClearCmd.Flags().BoolVar(&cacheClearAll, "all", false, "remove every cached entry")
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheList(cmd *cobra.Command, args []string) error {
	if cacheService == nil {
		return errors.New("cache service not configured")
	}
	ctx := commandContext(cmd)

	var fp domain.Fingerprint
	if len(args) == 1 {
		var err error
		if fp, err = resolveFingerprint(ctx, args[0]); err != nil {
			return err
		}
	}

	artifacts, err := cacheService.Artifacts(ctx, fp)
	if err != nil {
		return fmt.Errorf("listing cache: %w", err)
	}
	if len(artifacts) == 0 {
		cmd.Println("Cache is empty.")
		return nil
	}

	sortArtifacts(artifacts)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FINGERPRINT\tSTAGE\tCONFIG\tSIZE\tCREATED")
	total := 0
	for _, a := range artifacts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			a.Key.Fingerprint.Short(),
			a.Key.Stage,
			shortHash(a.Key.ConfigHash),
			formatSize(a.Size),
			a.CreatedAt.Local().Format("2006-01-02 15:04"),
		)
		total += a.Size
	}
	if err := w.Flush(); err != nil {
		return err
	}
	cmd.Printf("\nTotal: %d entries, %s\n", len(artifacts), formatSize(total))
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	if cacheService == nil {
		return errors.New("cache service not configured")
	}
	ctx := commandContext(cmd)

	if cacheClearAll {
		return clearAll(ctx, cmd)
	}

	fp, err := resolveFingerprint(ctx, args[0])
	if err != nil {
		return err
	}
	n, err := cacheService.Invalidate(ctx, fp)
	if err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	cmd.Printf("Removed %d cached entries for %s\n", n, fp.Short())
	return nil
}

func clearAll(ctx context.Context, cmd *cobra.Command) error {
	artifacts, err := cacheService.Artifacts(ctx, "")
	if err != nil {
		return fmt.Errorf("listing cache: %w", err)
	}

	seen := make(map[domain.Fingerprint]bool)
	removed := 0
	for _, a := range artifacts {
		fp := a.Key.Fingerprint
		if seen[fp] {
			continue
		}
		seen[fp] = true
		n, err := cacheService.Invalidate(ctx, fp)
		if err != nil {
			return fmt.Errorf("clearing %s: %w", fp.Short(), err)
		}
		removed += n
	}
	cmd.Printf("Removed %d cached entries for %d documents\n", removed, len(seen))
	return nil
}

// resolveFingerprint fingerprints arg if it names a file, otherwise treats
// it as a fingerprint or a prefix matching exactly one cached fingerprint.
func resolveFingerprint(ctx context.Context, arg string) (domain.Fingerprint, error) {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		fp, err := cacheService.Fingerprint(arg, settings.Pipeline.FingerprintMode)
		if err != nil {
			return "", fmt.Errorf("fingerprinting %s: %w", arg, err)
		}
		return fp, nil
	}
	if !isHex(arg) {
		return "", fmt.Errorf("%w: %q is neither a file nor a fingerprint", domain.ErrInvalidInput, arg)
	}
	prefix := strings.ToLower(arg)
	if len(prefix) >= fullFingerprintLen {
		return domain.Fingerprint(prefix), nil
	}

	artifacts, err := cacheService.Artifacts(ctx, "")
	if err != nil {
		return "", fmt.Errorf("listing cache: %w", err)
	}
	var match domain.Fingerprint
	for _, a := range artifacts {
		fp := a.Key.Fingerprint
		if !strings.HasPrefix(fp.String(), prefix) || fp == match {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("%w: fingerprint prefix %q is ambiguous", domain.ErrInvalidInput, arg)
		}
		match = fp
	}
	if match == "" {
		return "", fmt.Errorf("%w: no cached document matches %q", domain.ErrNotFound, arg)
	}
	return match, nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

func sortArtifacts(artifacts []domain.ArtifactInfo) {
	order := make(map[domain.Stage]int)
	for i, s := range domain.AllStages() {
		order[s] = i
	}
	sort.SliceStable(artifacts, func(i, j int) bool {
		a, b := artifacts[i].Key, artifacts[j].Key
		if a.Fingerprint != b.Fingerprint {
			return a.Fingerprint < b.Fingerprint
		}
		return order[a.Stage] < order[b.Stage]
	})
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

func formatSize(n int) string {
	return humanize.IBytes(uint64(max(n, 0)))
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
