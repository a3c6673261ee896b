package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// AddMemoryRequest represents the add memory API request.
type AddMemoryRequest struct {
	ID        string `json:"id,omitempty"`
	Content   string `json:"content"`
	Type      string `json:"type,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// AddDocumentRequest represents the add document API request. The server
// splits the content into overlapping chunks before storage.
type AddDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
}

// DocumentRecord represents a stored document in API responses.
type DocumentRecord struct {
	ChunkIDs []string `json:"chunk_ids"`
	Count    int      `json:"count"`
}

// MemoryRecord represents a stored memory in API responses.
type MemoryRecord struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Type      string `json:"type,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// AddCmd creates the add command.
func AddCmd() *cobra.Command {
	var (
		file      string
		chunkType string
		id        string
		sessionID string
		document  bool
	)

	cmd := &cobra.Command{
		Use:   "add [content]",
		Short: "Store a memory",
		Long: `Stores a memory from an argument, a file, or stdin.

Examples:
  # Add from an argument
  recall add "the staging cluster runs postgres 18"

  # Add from a file, tagged as documentation
  recall add --file notes.md --type documentation

  # Add a long file split into retrievable chunks
  recall add --file design.md --document

  # Add from stdin
  cat decision.md | recall add --type architecture`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			content := ""
			if len(args) == 1 {
				content = args[0]
			}
			if document {
				return runAddDocument(content, file, chunkType, outputJSON)
			}
			return runAdd(content, file, chunkType, id, sessionID, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read content from file")
	cmd.Flags().StringVarP(&chunkType, "type", "t", "", "Chunk type (fact, documentation, architecture, code, conversation_turn)")
	cmd.Flags().StringVar(&id, "id", "", "Explicit memory ID (generated if omitted)")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID to associate with the memory")
	cmd.Flags().BoolVarP(&document, "document", "d", false, "Split the content into chunks server-side (title taken from the file name)")

	return cmd
}

func resolveContent(content, file string) (string, error) {
	if content == "" && file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", file, err)
		}
		content = string(data)
	}
	if content == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		content = string(data)
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("content is required (argument, --file, or stdin)")
	}
	return content, nil
}

func runAdd(content, file, chunkType, id, sessionID string, outputJSON bool) error {
	content, err := resolveContent(content, file)
	if err != nil {
		return err
	}

	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	resp, err := api.Post("/memory", AddMemoryRequest{
		ID:        id,
		Content:   content,
		Type:      chunkType,
		SessionID: sessionID,
	})
	if err != nil {
		return fmt.Errorf("add failed: %w", err)
	}

	var record MemoryRecord
	if err := json.Unmarshal(resp.Data, &record); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(record, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("Stored memory %s\n", record.ID)
	}

	return nil
}

func runAddDocument(content, file, chunkType string, outputJSON bool) error {
	content, err := resolveContent(content, file)
	if err != nil {
		return err
	}

	title := ""
	if file != "" {
		title = filepath.Base(file)
	}

	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	resp, err := api.Post("/memory/document", AddDocumentRequest{
		Title:   title,
		Content: content,
		Type:    chunkType,
	})
	if err != nil {
		return fmt.Errorf("add failed: %w", err)
	}

	var record DocumentRecord
	if err := json.Unmarshal(resp.Data, &record); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(record, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("Stored document as %d chunks\n", record.Count)
	}

	return nil
}
