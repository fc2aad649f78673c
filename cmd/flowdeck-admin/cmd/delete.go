package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete resources",
}

var deleteWorkflowCmd = &cobra.Command{
	Use:   "workflow <id>",
	Short: "Delete a workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := apiClient().Delete("/api/v1/workflows/" + args[0]); err != nil {
			return err
		}
		fmt.Printf("Workflow %s deleted\n", args[0])
		return nil
	},
}

var deleteAPIKeyCmd = &cobra.Command{
	Use:   "api-key <id>",
	Short: "Delete an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := apiClient().Delete("/api/v1/api-keys/" + args[0]); err != nil {
			return err
		}
		fmt.Printf("API key %s deleted\n", args[0])
		return nil
	},
}

func init() {
	deleteCmd.AddCommand(deleteWorkflowCmd)
	deleteCmd.AddCommand(deleteAPIKeyCmd)
}
