package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var flagRunInput string

var runCmd = &cobra.Command{
	Use:   "run <workflow-id>",
	Short: "Execute a workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		body := map[string]any{}
		if flagRunInput != "" {
			var input map[string]any
			if err := json.Unmarshal([]byte(flagRunInput), &input); err != nil {
				return fmt.Errorf("parse --input: %w", err)
			}
			body["input"] = input
		}

		data, err := apiClient().Post("/api/v1/workflows/"+args[0]+"/execute", body)
		if err != nil {
			return err
		}
		var exec executionItem
		if err := unmarshal(data, &exec); err != nil {
			return err
		}

		printOutput(exec, func() {
			fmt.Printf("Execution %s: %s\n", exec.ID, exec.Status)
		})
		return nil
	},
}

var deployCmd = &cobra.Command{
	Use:   "deploy <workflow-id>",
	Short: "Deploy a workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		data, err := apiClient().Post("/api/v1/workflows/"+args[0]+"/deploy", nil)
		if err != nil {
			return err
		}
		var wf workflowItem
		if err := unmarshal(data, &wf); err != nil {
			return err
		}
		fmt.Printf("Workflow %q deployed\n", wf.Name)
		return nil
	},
}

var undeployCmd = &cobra.Command{
	Use:   "undeploy <workflow-id>",
	Short: "Undeploy a workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		data, err := apiClient().Post("/api/v1/workflows/"+args[0]+"/undeploy", nil)
		if err != nil {
			return err
		}
		var wf workflowItem
		if err := unmarshal(data, &wf); err != nil {
			return err
		}
		fmt.Printf("Workflow %q undeployed\n", wf.Name)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&flagRunInput, "input", "", "Execution input as a JSON object")
}
