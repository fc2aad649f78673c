package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	flagWorkflowName string
	flagWorkflowDesc string
	flagKeyName      string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create resources",
}

var createWorkflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Create a workflow",
	RunE: func(_ *cobra.Command, _ []string) error {
		if flagWorkflowName == "" {
			return fmt.Errorf("--name is required")
		}

		data, err := apiClient().Post("/api/v1/workflows/", map[string]string{
			"name":        flagWorkflowName,
			"description": flagWorkflowDesc,
		})
		if err != nil {
			return err
		}
		var wf workflowItem
		if err := unmarshal(data, &wf); err != nil {
			return err
		}

		printOutput(wf, func() {
			fmt.Printf("Workflow %q created: %s\n", wf.Name, wf.ID)
		})
		return nil
	},
}

var createAPIKeyCmd = &cobra.Command{
	Use:   "api-key",
	Short: "Create an API key",
	Long: `Create an API key.

The raw key is printed exactly once; it cannot be recovered later.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		if flagKeyName == "" {
			return fmt.Errorf("--name is required")
		}

		data, err := apiClient().Post("/api/v1/api-keys/", map[string]string{
			"name": flagKeyName,
		})
		if err != nil {
			return err
		}
		var key struct {
			apiKeyItem
			Key string `json:"key"`
		}
		if err := unmarshal(data, &key); err != nil {
			return err
		}

		printOutput(key, func() {
			fmt.Printf("API key %q created: %s\n", key.Name, key.ID)
			fmt.Printf("Key (save it now, it is not shown again): %s\n", key.Key)
		})
		return nil
	},
}

func init() {
	createWorkflowCmd.Flags().StringVar(&flagWorkflowName, "name", "", "Workflow name (required)")
	createWorkflowCmd.Flags().StringVar(&flagWorkflowDesc, "description", "", "Workflow description")
	createAPIKeyCmd.Flags().StringVar(&flagKeyName, "name", "", "API key name (required)")

	createCmd.AddCommand(createWorkflowCmd)
	createCmd.AddCommand(createAPIKeyCmd)
}
