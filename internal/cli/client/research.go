package client

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// WorkspaceSummary is the subset of workspace fields the CLI renders.
type WorkspaceSummary struct {
	ID        string `json:"id"`
	Query     string `json:"query"`
	Status    string `json:"status"`
	Synthesis string `json:"synthesis,omitempty"`
	Progress  struct {
		AspectsPlanned    int `json:"aspectsPlanned"`
		SourcesGathered   int `json:"sourcesGathered"`
		SummariesProduced int `json:"summariesProduced"`
		ConnectionsFound  int `json:"connectionsFound"`
	} `json:"progress"`
	Quality struct {
		CompletenessScore float64 `json:"completenessScore"`
	} `json:"quality"`
}

// ResearchCmd creates the research command group.
func ResearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "research",
		Short: "Run and inspect deep research sessions",
	}

	cmd.AddCommand(researchStartCmd())
	cmd.AddCommand(researchStatusCmd())
	cmd.AddCommand(researchExportCmd())
	cmd.AddCommand(researchArchiveCmd())

	return cmd
}

func researchStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <query>",
		Short: "Start a research session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClient()
			if err != nil {
				return err
			}

			resp, err := api.Post("/research", map[string]string{"query": args[0]})
			if err != nil {
				return fmt.Errorf("failed to start research: %w", err)
			}

			var ws WorkspaceSummary
			if err := json.Unmarshal(resp.Data, &ws); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if outputJSON {
				output, _ := json.MarshalIndent(ws, "", "  ")
				fmt.Println(string(output))
			} else {
				fmt.Printf("Started research %s\n", ws.ID)
				fmt.Printf("Check progress with: recall research status %s\n", ws.ID)
			}
			return nil
		},
	}
}

func researchStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show the status of a research session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClient()
			if err != nil {
				return err
			}

			resp, err := api.Get("/research/" + args[0])
			if err != nil {
				return fmt.Errorf("failed to fetch research status: %w", err)
			}

			var ws WorkspaceSummary
			if err := json.Unmarshal(resp.Data, &ws); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if outputJSON {
				output, _ := json.MarshalIndent(ws, "", "  ")
				fmt.Println(string(output))
				return nil
			}

			fmt.Printf("Research %s: %s\n", ws.ID, ws.Status)
			fmt.Printf("Query: %s\n", ws.Query)
			fmt.Printf("Aspects: %d, sources: %d, summaries: %d, connections: %d\n",
				ws.Progress.AspectsPlanned, ws.Progress.SourcesGathered,
				ws.Progress.SummariesProduced, ws.Progress.ConnectionsFound)
			if ws.Status == "completed" {
				fmt.Printf("Completeness: %.2f\n\n", ws.Quality.CompletenessScore)
				fmt.Println(ws.Synthesis)
			}
			return nil
		},
	}
}

func researchExportCmd() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a research workspace as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClient()
			if err != nil {
				return err
			}

			data, err := api.GetRaw("/research/" + args[0] + "/export")
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			if outFile == "" {
				fmt.Println(string(data))
				return nil
			}
			if err := os.WriteFile(outFile, data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", outFile, err)
			}
			fmt.Printf("Exported workspace to %s\n", outFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "Write to file instead of stdout")

	return cmd
}

func researchArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive a research workspace to object storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClient()
			if err != nil {
				return err
			}

			if _, err := api.Post("/research/"+args[0]+"/archive", nil); err != nil {
				return fmt.Errorf("archive failed: %w", err)
			}

			fmt.Printf("Archived workspace %s\n", args[0])
			return nil
		},
	}
}
