package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// AskRequest represents the ask API request.
type AskRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

// AskResponse represents the ask API response.
type AskResponse struct {
	Response   string  `json:"response"`
	Confidence float64 `json:"confidence"`
	CardCount  int     `json:"card_count"`
	Truncated  bool    `json:"truncated"`
	Stored     bool    `json:"stored"`
}

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question against stored memories",
		Long:  "Retrieves relevant memories, assembles a context, and generates an answer.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runAsk(args[0], sessionID, outputJSON)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID for conversation continuity")

	return cmd
}

func runAsk(query, sessionID string, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	resp, err := api.Post("/ask", AskRequest{Query: query, SessionID: sessionID})
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	var askResp AskResponse
	if err := json.Unmarshal(resp.Data, &askResp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(askResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Println(askResp.Response)
	fmt.Printf("\n(confidence %.2f, %d context cards", askResp.Confidence, askResp.CardCount)
	if askResp.Truncated {
		fmt.Print(", truncated")
	}
	fmt.Println(")")

	return nil
}
