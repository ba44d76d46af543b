package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var vaultsJSON bool

var vaultsCmd = &cobra.Command{
	Use:   "vaults",
	Short: "List vaults",
	Args:  cobra.NoArgs,
	RunE:  runVaults,
}

var filesCmd = &cobra.Command{
	Use:   "files [vault]",
	Short: "List files uploaded into a vault",
	Args:  cobra.ExactArgs(1),
	RunE:  runFiles,
}

func init() {
	vaultsCmd.Flags().BoolVar(&vaultsJSON, "json", false, "output as JSON")
	filesCmd.Flags().BoolVar(&vaultsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(vaultsCmd)
	rootCmd.AddCommand(filesCmd)
}

func runVaults(cmd *cobra.Command, args []string) error {
	svc, err := services(cmd)
	if err != nil {
		return err
	}

	vaults, err := svc.ListVaults(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to list vaults: %w", err)
	}

	if vaultsJSON {
		return printJSON(cmd, vaults)
	}
	if len(vaults) == 0 {
		cmd.Println("No vaults.")
		return nil
	}
	for _, v := range vaults {
		cmd.Printf("  %s (created %s)\n", v.Name, v.CreatedAt.Format("2006-01-02"))
	}
	return nil
}

func runFiles(cmd *cobra.Command, args []string) error {
	svc, err := services(cmd)
	if err != nil {
		return err
	}

	files, err := svc.ListFiles(commandContext(cmd), args[0])
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}

	if vaultsJSON {
		return printJSON(cmd, files)
	}
	if len(files) == 0 {
		cmd.Printf("No files in vault %s.\n", args[0])
		return nil
	}
	for _, f := range files {
		cmd.Printf("  %s  %d chunks  by %s\n", f.Filename, f.ChunkCount, f.UserID)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
