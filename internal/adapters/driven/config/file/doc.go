// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data to the local filesystem.
//
// Adapters:
//   - SettingsStore: TOML configuration in ~/.scanqa/config.toml
//   - PromptStore: user-editable answer prompts in ~/.scanqa/prompts
package file
