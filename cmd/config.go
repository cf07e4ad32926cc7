package cmd

import (
	"fmt"
	"strings"

	"github.com/marcus/riverwalk/internal/output"
	"github.com/marcus/riverwalk/internal/suggest"
	"github.com/marcus/riverwalk/internal/syncconfig"
	"github.com/spf13/cobra"
)

// checkConfigKey resolves aliases and rejects unknown keys with a hint.
func checkConfigKey(key string) (string, error) {
	keys := syncconfig.Keys()
	if resolved, ok := suggest.Resolve(key, keys); ok {
		return resolved, nil
	}
	for _, k := range keys {
		if k == key {
			return key, nil
		}
	}
	return "", fmt.Errorf("unknown config key %q%s", key, suggest.Hint(key, keys))
}

// configValue returns the effective value of key after env and defaults.
func configValue(key string) string {
	switch key {
	case "server.url":
		return syncconfig.GetServerURL()
	case "sync.max_attempts":
		return fmt.Sprint(syncconfig.GetMaxAttempts())
	case "sync.interval":
		return syncconfig.GetSyncInterval().String()
	case "sync.http_timeout":
		return syncconfig.GetHTTPTimeout().String()
	case "sync.on_start":
		return fmt.Sprint(syncconfig.GetSyncOnStart())
	case "store.dir":
		dir, err := syncconfig.GetStoreDir()
		if err != nil {
			return "error: " + err.Error()
		}
		return dir
	}
	return ""
}

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage rwalk configuration",
	GroupID: "system",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := checkConfigKey(args[0])
		if err != nil {
			output.Error("%v", err)
			fmt.Println("Valid keys:", strings.Join(syncconfig.Keys(), ", "))
			return err
		}
		if err := syncconfig.Set(key, args[1]); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("%s = %s", key, configValue(key))
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show the effective value of a config key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := checkConfigKey(args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		fmt.Println(configValue(key))
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Show every config key with its effective value",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			values := make(map[string]string)
			for _, k := range syncconfig.Keys() {
				values[k] = configValue(k)
			}
			return output.JSON(values)
		}
		for _, k := range syncconfig.Keys() {
			fmt.Printf("%-20s %s\n", k, configValue(k))
		}
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := syncconfig.ConfigPath()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd, configGetCmd, configListCmd, configPathCmd)

	configListCmd.Flags().Bool("json", false, "Output as JSON")
}
