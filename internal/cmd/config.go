package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/bankshield/internal/config"
	"github.com/felixgeelhaar/bankshield/internal/errors"
	"github.com/felixgeelhaar/bankshield/internal/ux"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change client settings",
	Long: `Show or change settings in the bankshield configuration file.

Keys are dot-separated, for example api.base_url or dashboard.refresh_interval.
Environment variables (BANKSHIELD_*) and flags still take precedence over the
file when commands run.

Examples:
  bankshield config view
  bankshield config set api.base_url https://bankshield.example.com/api
  bankshield config get dashboard.refresh_interval`,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigView,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file location",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting from the configuration file",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting in the configuration file",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

func init() {
	configCmd.AddCommand(configViewCmd, configPathCmd, configGetCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}

// secretKeys are never printed by config view
var secretKeys = map[string]bool{
	"auth.passphrase": true,
}

func configPath(cc *CommandContext) (string, error) {
	if cc.ConfigPath != "" {
		return cc.ConfigPath, nil
	}
	return config.DefaultPath()
}

func runConfigView(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	cfg, err := cc.LoadConfig()
	if err != nil {
		return err
	}

	keys := cfg.Keys()
	values := make(map[string]string, len(keys))
	for _, k := range keys {
		v, err := cfg.Get(k)
		if err != nil {
			return err
		}
		if secretKeys[k] && v != "" {
			v = "********"
		}
		values[k] = v
	}

	return writeOutput(cmd, cc, values, func() *ux.Table {
		t := &ux.Table{Headers: []string{"KEY", "VALUE"}}
		for _, k := range keys {
			t.Append(k, values[k])
		}
		return t
	})
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	path, err := configPath(cc)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	path, err := configPath(cc)
	if err != nil {
		return err
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return errors.Wrap(errors.KindValidation, errors.ErrCodeFileUnmarshal, "invalid configuration", err)
	}

	v, err := cfg.Get(args[0])
	if err != nil {
		return errors.NewValidation(err.Error()).
			WithSuggestion("Run 'bankshield config view' to list the available keys")
	}
	fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	path, err := configPath(cc)
	if err != nil {
		return err
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return errors.Wrap(errors.KindValidation, errors.ErrCodeFileUnmarshal, "invalid configuration", err)
	}

	updated, err := cfg.Set(args[0], args[1])
	if err != nil {
		return errors.NewValidation(err.Error())
	}
	if err := config.Save(path, updated); err != nil {
		return errors.Wrap(errors.KindValidation, errors.ErrCodeFileWriteFailed, "failed to save configuration", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s in %s\n", args[0], path)
	return nil
}
