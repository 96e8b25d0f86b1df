package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/bankshield/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the bankshield version, build details and the backend API revision it speaks.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		verbose, _ := cmd.Flags().GetBool("verbose")
		info := version.GetInfo()
		out := cmd.OutOrStdout()

		if jsonOutput {
			data, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal version info: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		if verbose {
			fmt.Fprintf(out, "Version:    %s\n", info.Version)
			fmt.Fprintf(out, "Commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "Built:      %s\n", info.Date)
			fmt.Fprintf(out, "Go version: %s\n", info.GoVersion)
			fmt.Fprintf(out, "Platform:   %s\n", info.Platform)
			fmt.Fprintf(out, "API:        %s\n", info.APIVersion)
			return nil
		}

		fmt.Fprintln(out, info.String())
		return nil
	},
}

func init() {
	versionCmd.Flags().Bool("json", false, "output version information as JSON")
	versionCmd.Flags().BoolP("verbose", "v", false, "show detailed build information")
	rootCmd.AddCommand(versionCmd)
}
