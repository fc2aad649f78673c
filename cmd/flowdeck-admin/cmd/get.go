package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// workflowItem mirrors the API's workflow response for listing.
type workflowItem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsDeployed bool   `json:"isDeployed"`
	Schedule   string `json:"schedule"`
	RunCount   int    `json:"runCount"`
	CreatedAt  string `json:"createdAt"`
}

// executionItem mirrors the API's execution response for listing.
type executionItem struct {
	ID          string `json:"id"`
	WorkflowID  string `json:"workflowId"`
	Trigger     string `json:"trigger"`
	Status      string `json:"status"`
	StartedAt   string `json:"startedAt"`
	CompletedAt string `json:"completedAt"`
}

// apiKeyItem mirrors the API's key response for listing.
type apiKeyItem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Prefix     string `json:"prefix"`
	LastUsedAt string `json:"lastUsedAt"`
	CreatedAt  string `json:"createdAt"`
}

type listEnvelope[T any] struct {
	Data []T `json:"data"`
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "List or fetch resources",
}

var getWorkflowsCmd = &cobra.Command{
	Use:     "workflows",
	Aliases: []string{"workflow", "wf"},
	Short:   "List workflows",
	RunE: func(_ *cobra.Command, _ []string) error {
		data, err := apiClient().Get("/api/v1/workflows/?per_page=100")
		if err != nil {
			return err
		}
		var resp listEnvelope[workflowItem]
		if err := unmarshal(data, &resp); err != nil {
			return err
		}

		printOutput(resp.Data, func() {
			t := newTable("ID", "NAME", "DEPLOYED", "SCHEDULE", "RUNS")
			for _, wf := range resp.Data {
				t.AddRow(wf.ID, wf.Name, fmt.Sprintf("%t", wf.IsDeployed), wf.Schedule, fmt.Sprintf("%d", wf.RunCount))
			}
			t.Flush()
		})
		return nil
	},
}

var getExecutionsCmd = &cobra.Command{
	Use:     "executions <workflow-id>",
	Aliases: []string{"execution", "exec"},
	Short:   "List executions for a workflow",
	Args:    cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		data, err := apiClient().Get("/api/v1/workflows/" + args[0] + "/executions?per_page=100")
		if err != nil {
			return err
		}
		var resp listEnvelope[executionItem]
		if err := unmarshal(data, &resp); err != nil {
			return err
		}

		printOutput(resp.Data, func() {
			t := newTable("ID", "TRIGGER", "STATUS", "STARTED", "COMPLETED")
			for _, e := range resp.Data {
				t.AddRow(e.ID, e.Trigger, e.Status, e.StartedAt, e.CompletedAt)
			}
			t.Flush()
		})
		return nil
	},
}

var getAPIKeysCmd = &cobra.Command{
	Use:     "api-keys",
	Aliases: []string{"api-key", "keys"},
	Short:   "List API keys",
	RunE: func(_ *cobra.Command, _ []string) error {
		data, err := apiClient().Get("/api/v1/api-keys/")
		if err != nil {
			return err
		}
		var resp listEnvelope[apiKeyItem]
		if err := unmarshal(data, &resp); err != nil {
			return err
		}

		printOutput(resp.Data, func() {
			t := newTable("ID", "NAME", "PREFIX", "LAST USED")
			for _, k := range resp.Data {
				t.AddRow(k.ID, k.Name, k.Prefix, k.LastUsedAt)
			}
			t.Flush()
		})
		return nil
	},
}

var getEnvCmd = &cobra.Command{
	Use:     "env",
	Aliases: []string{"environment"},
	Short:   "List environment variable names",
	RunE: func(_ *cobra.Command, _ []string) error {
		data, err := apiClient().Get("/api/v1/environment/")
		if err != nil {
			return err
		}
		var resp struct {
			Names []string `json:"names"`
		}
		if err := unmarshal(data, &resp); err != nil {
			return err
		}

		printOutput(resp.Names, func() {
			t := newTable("NAME")
			for _, name := range resp.Names {
				t.AddRow(name)
			}
			t.Flush()
		})
		return nil
	},
}

func init() {
	getCmd.AddCommand(getWorkflowsCmd)
	getCmd.AddCommand(getExecutionsCmd)
	getCmd.AddCommand(getAPIKeysCmd)
	getCmd.AddCommand(getEnvCmd)
}
