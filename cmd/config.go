package cmd

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/thisislance98/claudia/cli"
	"github.com/thisislance98/claudia/config"
	"github.com/thisislance98/claudia/errors"
)

// NewConfigCmd creates the `config` command.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate the claudia configuration",
		Long: `The configuration is read from --config, $CLAUDIA_CONFIG, or claudia.yml,
claudia.yaml or claudia.toml in the config directory, in that order.`,
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigValidateCmd(), newConfigSchemaCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with defaults applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				format = "json"
			}

			var data []byte
			switch format {
			case "json":
				return printJSON(cmd, cfg)
			case "toml":
				data, err = toml.Marshal(cfg)
			case "yaml":
				data, err = yaml.Marshal(cfg)
			default:
				return errors.InvalidInput(fmt.Sprintf("unknown format %q (use yaml, toml or json)", format))
			}
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}

			source := path
			if source == "" {
				source = "built-in defaults"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# Source: %s\n%s", source, data)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "Output format: yaml, toml, json")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a configuration file against the schema and rules",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cli.GetOptions(cmd).ConfigFile
			if len(args) == 1 {
				path = args[0]
			}
			path = config.FindConfigFile(path)
			if path == "" {
				return errors.New(errors.ErrCodeConfigNotFound, "no configuration file found").
					WithDetail("path", config.DefaultConfigFiles())
			}
			if _, err := config.LoadFile(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.Success(path+" is valid"))
			return nil
		},
	}
}

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
