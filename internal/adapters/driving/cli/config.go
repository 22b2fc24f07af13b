package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/scanqa/internal/adapters/driven/config/file"
	"github.com/custodia-labs/scanqa/internal/core/domain"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and change the scanqa configuration file.

Values are read from the config file, then SCANQA_* environment variables
(for example SCANQA_PIPELINE_TOP_K), then command line flags.`,
	Annotations: map[string]string{annotationServices: servicesSettings},
	RunE:        runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Show the effective configuration",
	Annotations: map[string]string{annotationServices: servicesSettings},
	RunE:        runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write a config file with the defaults",
	Annotations: map[string]string{annotationServices: servicesSettings},
	RunE:        runConfigInit,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a single configuration value and save it to the config file.
Run 'scanqa config keys' for the accepted keys.`,
	Example: `  scanqa config set pipeline.top_k 5
  scanqa config set llm.provider ollama`,
	Annotations: map[string]string{annotationServices: servicesSettings},
	Args:        cobra.ExactArgs(2),
	RunE:        runConfigSet,
}

var configKeysCmd = &cobra.Command{
	Use:         "keys",
	Short:       "List configuration keys",
	Annotations: map[string]string{annotationServices: servicesSettings},
	RunE:        runConfigKeys,
}

var configWizardCmd = &cobra.Command{
	Use:         "wizard",
	Short:       "Interactive provider setup",
	Long:        `Run an interactive wizard to choose the embedding and language model providers.`,
	Annotations: map[string]string{annotationServices: servicesSettings},
	RunE:        runConfigWizard,
}

func init() {
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configKeysCmd)
	configCmd.AddCommand(configWizardCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if settingsStore == nil {
		return errors.New("settings store not configured")
	}

	cmd.Printf("Config file: %s\n", settingsStore.Path())

	section := ""
	for _, kv := range file.Values(settings) {
		prefix, _, _ := strings.Cut(kv[0], ".")
		if prefix != section {
			section = prefix
			cmd.Printf("\n[%s]\n", section)
		}
		cmd.Printf("  %s = %s\n", kv[0], displayValue(kv[1]))
	}
	cmd.Println()

	cmd.Printf("Embedding provider: %s\n", providerStatus(settings.Embedding.Provider, settings.Embedding.IsConfigured()))
	cmd.Printf("Language model:     %s\n", providerStatus(settings.LLM.Provider, settings.LLM.IsConfigured()))
	return nil
}

func displayValue(v string) string {
	if v == "" {
		return "(not set)"
	}
	return v
}

func providerStatus(p domain.AIProvider, configured bool) string {
	if configured {
		return p.Description()
	}
	return p.Description() + " (not configured)"
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	if settingsStore == nil {
		return errors.New("settings store not configured")
	}
	path := settingsStore.Path()
	if _, err := os.Stat(path); err == nil && !configInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := settingsStore.Save(domain.DefaultSettings()); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	cmd.Printf("Wrote defaults to %s\n", path)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if settingsStore == nil {
		return errors.New("settings store not configured")
	}
	if err := settingsStore.Set(args[0], args[1]); err != nil {
		return fmt.Errorf("failed to set %s: %w", args[0], err)
	}
	cmd.Printf("Set %s\n", args[0])
	return nil
}

func runConfigKeys(cmd *cobra.Command, _ []string) error {
	if settingsStore == nil {
		return errors.New("settings store not configured")
	}
	for _, k := range settingsStore.Keys() {
		cmd.Println(k)
	}
	return nil
}

func runConfigWizard(cmd *cobra.Command, _ []string) error {
	if settingsStore == nil {
		return errors.New("settings store not configured")
	}
	reader := bufio.NewReader(cmd.InOrStdin())

	cmd.Println("scanqa setup")
	cmd.Println("============")
	cmd.Println()

	if err := configureEmbeddingProvider(cmd, reader); err != nil {
		return err
	}
	return configureLLMProvider(cmd, reader)
}

//nolint:dupl // Similar to configureLLMProvider but for embeddings - intentional for CLI flow clarity
func configureEmbeddingProvider(cmd *cobra.Command, reader *bufio.Reader) error {
	cmd.Println("Select Embedding Provider")
	providers := domain.AllEmbeddingProviders()
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	idx := parseChoice(readLine(reader), len(providers), 1)
	selected := providers[idx-1]

	defaultModel := domain.DefaultEmbeddingModels()[selected]
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	model := readLine(reader)
	if model == "" {
		model = defaultModel
	}

	values := [][2]string{
		{"embedding.provider", string(selected)},
		{"pipeline.embedding_model", model},
	}
	if selected.RequiresAPIKey() {
		cmd.Print("Enter API key: ")
		apiKey := readPassword(cmd, reader)
		cmd.Println()
		if apiKey == "" {
			return errors.New("API key is required for this provider")
		}
		values = append(values, [2]string{"embedding.api_key", apiKey})
	}
	if err := setAll(values); err != nil {
		return fmt.Errorf("failed to configure embedding provider: %w", err)
	}

	if aiValidator != nil {
		cmd.Print("Validating configuration... ")
		s, err := settingsStore.Load()
		if err != nil {
			return err
		}
		if err := aiValidator.ValidateEmbedding(commandContext(cmd), &s.Embedding, model); err != nil {
			cmd.Printf("FAILED: %v\n", err)
			return fmt.Errorf("embedding configuration validation failed: %w", err)
		}
		cmd.Println("OK")
	}

	cmd.Printf("Embedding provider configured: %s (%s)\n\n", selected.Description(), model)
	cmd.Println("Documents indexed with another embedding model are re-embedded on next use.")
	cmd.Println()
	return nil
}

//nolint:dupl // Similar to configureEmbeddingProvider but for LLM - intentional for CLI flow clarity
func configureLLMProvider(cmd *cobra.Command, reader *bufio.Reader) error {
	cmd.Println("Select Language Model Provider")
	providers := domain.AllLLMProviders()
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	idx := parseChoice(readLine(reader), len(providers), 1)
	selected := providers[idx-1]

	defaultModel := domain.DefaultLLMModels()[selected]
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	model := readLine(reader)
	if model == "" {
		model = defaultModel
	}

	values := [][2]string{
		{"llm.provider", string(selected)},
		{"llm.model", model},
	}
	if selected.RequiresAPIKey() {
		cmd.Print("Enter API key: ")
		apiKey := readPassword(cmd, reader)
		cmd.Println()
		if apiKey == "" {
			return errors.New("API key is required for this provider")
		}
		values = append(values, [2]string{"llm.api_key", apiKey})
	}
	if err := setAll(values); err != nil {
		return fmt.Errorf("failed to configure language model: %w", err)
	}

	if aiValidator != nil {
		cmd.Print("Validating configuration... ")
		s, err := settingsStore.Load()
		if err != nil {
			return err
		}
		if err := aiValidator.ValidateLLM(commandContext(cmd), &s.LLM); err != nil {
			cmd.Printf("FAILED: %v\n", err)
			return fmt.Errorf("language model configuration validation failed: %w", err)
		}
		cmd.Println("OK")
	}

	cmd.Printf("Language model configured: %s (%s)\n\n", selected.Description(), model)
	return nil
}

func setAll(values [][2]string) error {
	for _, kv := range values {
		if err := settingsStore.Set(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

// readPassword reads without echo on a terminal, otherwise reads a line.
func readPassword(cmd *cobra.Command, reader *bufio.Reader) string {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	return readLine(reader)
}
