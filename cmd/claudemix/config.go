package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Draidel/ClaudeMix/internal/config"
)

var configPaths bool

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify ClaudeMix configuration.

Without arguments, displays the effective configuration for the repository.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the value in the user config.

User configuration is stored at ~/.config/claudemix/config.yaml.
Project-specific overrides live in .claudemix.yaml (see 'claudemix init').`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if configPaths {
			fmt.Printf("user:    %s\n", config.GetUserConfigPath())
			if project := config.FindProjectConfig(repoDir); project != "" {
				fmt.Printf("project: %s\n", project)
			} else {
				fmt.Println("project: (none)")
			}
			return nil
		}

		if len(args) == 2 {
			return setConfigKey(args[0], args[1])
		}

		cfg, err := config.Load(repoDir)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			value, err := cfg.Value(args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		}
		for _, key := range cfg.Keys() {
			value, _ := cfg.Value(key)
			if value == "" {
				value = "(not set)"
			}
			fmt.Printf("%s: %s\n", key, value)
		}
		return nil
	},
}

// setConfigKey sets a value in the user config file only, so project
// overrides are not copied into it.
func setConfigKey(key, value string) error {
	cfg := config.Default()
	path := config.GetUserConfigPath()
	if _, err := os.Stat(path); err == nil {
		if cfg, err = config.LoadFromPath(path); err != nil {
			return err
		}
	}
	if err := cfg.SetValue(key, value); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("Set %s = %s\n", key, value)
	return nil
}

func init() {
	configCmd.Flags().BoolVar(&configPaths, "path", false, "Print the config file locations")
}
