package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/dataloom/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set DataLoom configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Println("No config loaded")
			return nil
		}
		fmt.Printf("listen_addr: %s\n", cfg.ListenAddr)
		fmt.Printf("api_key: %s\n", mask(cfg.APIKey))
		if cfg.APIBaseURL != "" {
			fmt.Printf("api_base_url: %s\n", cfg.APIBaseURL)
		}
		fmt.Printf("default_model: %s\n", cfg.DefaultModel)
		fmt.Printf("max_tokens: %d\n", cfg.MaxTokens)
		fmt.Printf("temperature: %.3f\n", cfg.Temperature)
		fmt.Printf("storage_endpoint: %s\n", cfg.StorageEndpoint)
		fmt.Printf("storage_bucket: %s\n", cfg.StorageBucket)
		fmt.Printf("storage_access_key: %s\n", mask(cfg.StorageAccessKey))
		fmt.Printf("metadata_path: %s\n", cfg.MetadataPath)
		fmt.Printf("top_values: %d\n", cfg.TopValues)
		fmt.Printf("top_correlations: %d\n", cfg.TopCorrelations)
		fmt.Printf("sample_rows: %d\n", cfg.SampleRows)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		switch key {
		case "listen_addr":
			cfg.ListenAddr = val
		case "api_key":
			cfg.APIKey = val
		case "api_base_url":
			cfg.APIBaseURL = val
		case "default_model":
			cfg.DefaultModel = val
		case "max_tokens":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("max_tokens must be an integer: %w", err)
			}
			cfg.MaxTokens = n
		case "temperature":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("temperature must be a number: %w", err)
			}
			cfg.Temperature = f
		case "storage_endpoint":
			cfg.StorageEndpoint = val
		case "storage_bucket":
			cfg.StorageBucket = val
		case "storage_access_key":
			cfg.StorageAccessKey = val
		case "storage_secret_key":
			cfg.StorageSecretKey = val
		case "storage_use_ssl":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("storage_use_ssl must be true/false: %w", err)
			}
			cfg.StorageUseSSL = b
		case "metadata_path":
			cfg.MetadataPath = val
		case "top_values":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("top_values must be an integer: %w", err)
			}
			cfg.TopValues = n
		case "top_correlations":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("top_correlations must be an integer: %w", err)
			}
			cfg.TopCorrelations = n
		case "sample_rows":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("sample_rows must be an integer: %w", err)
			}
			cfg.SampleRows = n
		default:
			return fmt.Errorf("unknown config key: %s", key)
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Printf("✓ Saved %s\n", key)
		return nil
	},
}

func mask(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
