package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/tgvault/internal/config"
	"github.com/stellarlinkco/tgvault/internal/logger"
	"github.com/stellarlinkco/tgvault/internal/pipeline"
)

var rootCmd = &cobra.Command{
	Use:   "tgvault",
	Short: "tgvault - sync Telegram messages into a notes vault",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the sync pipeline (transport + AI + categorization + vault)",
	RunE:  runPipeline,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and vault directory",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tgvault status",
	RunE:  runStatus,
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List configured categories and rules",
	RunE:  runCategories,
}

func init() {
	rootCmd.AddCommand(runCmd, onboardCmd, statusCmd, categoriesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if !cfg.Telegram.Enabled || cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram is not configured. Run 'tgvault onboard' and set telegram.token")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})

	p, err := pipeline.New(cfg, log)
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	return p.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.Vault.Root, 0755); err != nil {
		return fmt.Errorf("create vault: %w", err)
	}

	fmt.Printf("Vault ready: %s\n", cfg.Vault.Root)
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set telegram.token and your AI provider key\n", cfgPath)
	fmt.Println("  2. Or set OPENAI_API_KEY / ANTHROPIC_API_KEY / GEMINI_API_KEY")
	fmt.Println("  3. Run 'tgvault run' to start syncing")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Vault: %s\n", cfg.Vault.Root)
	fmt.Printf("Telegram: enabled=%v\n", cfg.Telegram.Enabled)
	fmt.Printf("AI: enabled=%v provider=%s\n", cfg.AI.Enabled, cfg.AI.Provider)
	fmt.Printf("API Key: %s\n", maskKey(cfg.AI.ProviderFor(cfg.AI.Provider).APIKey))
	fmt.Printf("Categories: enabled=%v ai=%v count=%d rules=%d\n",
		cfg.Categories.Enabled, cfg.Categories.AIClassification,
		len(cfg.Categories.Categories), len(cfg.Categories.Rules))
	fmt.Printf("Digest: enabled=%v\n", cfg.Digest.Enabled)

	if _, err := os.Stat(cfg.Vault.Root); err != nil {
		fmt.Println("Vault: not found (run 'tgvault onboard')")
	}

	return nil
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "not set"
	case len(key) > 8:
		return key[:4] + "..." + key[len(key)-4:]
	default:
		return "set"
	}
}

func runCategories(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if len(cfg.Categories.Categories) == 0 {
		fmt.Println("No categories configured (they are seeded on first run).")
		return nil
	}

	fmt.Println("Categories:")
	for _, cat := range cfg.Categories.Categories {
		state := "enabled"
		if !cat.Enabled {
			state = "disabled"
		}
		fmt.Printf("  %-12s %-8s %s\n", cat.Name, state, cat.Description)
		if len(cat.Keywords) > 0 {
			fmt.Printf("               keywords: %v\n", cat.Keywords)
		}
	}

	if len(cfg.Categories.Rules) > 0 {
		fmt.Println("\nRules (by priority):")
		for _, rule := range cfg.Categories.Rules {
			fmt.Printf("  [%3d] %-8s -> %s (%s)\n", rule.Priority, rule.Type, rule.CategoryID, rule.Condition)
		}
	}

	return nil
}
