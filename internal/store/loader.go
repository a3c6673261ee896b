package store

import (
	"bufio"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/recall-labs/recallai/internal/domain"
)

// maxRecordBytes bounds a single JSONL record; inline embeddings make lines
// long but anything past this is corrupt.
const maxRecordBytes = 16 * 1024 * 1024

// chunkRecord is the wire shape of one line in a chunk source file. Older
// files tag the type as "chunk_type".
type chunkRecord struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	Content   string                 `json:"content"`
	Type      domain.ChunkType       `json:"type"`
	ChunkType domain.ChunkType       `json:"chunk_type"`
	Embedding []float32              `json:"embedding"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata"`
}

func (r *chunkRecord) toChunk() *domain.Chunk {
	chunkType := r.Type
	if chunkType == "" {
		chunkType = r.ChunkType
	}
	return &domain.Chunk{
		ID:        r.ID,
		Title:     r.Title,
		Content:   r.Content,
		Type:      chunkType,
		Embedding: r.Embedding,
		Timestamp: r.Timestamp,
		Metadata:  r.Metadata,
	}
}

var noiseArtifacts = map[string]struct{}{
	".ds_store":   {},
	"thumbs.db":   {},
	"desktop.ini": {},
	".directory":  {},
	"__macosx":    {},
}

// isNoiseRecord recognizes system/corrupted records: empty or null content
// and filesystem-metadata artifacts that leak into exported chunk files.
func isNoiseRecord(c *domain.Chunk) bool {
	if c.ID == "" {
		return true
	}
	content := strings.TrimSpace(c.Content)
	if content == "" || strings.EqualFold(content, "null") || strings.Contains(content, "\x00") {
		return true
	}
	if _, ok := noiseArtifacts[strings.ToLower(filepath.Base(c.ID))]; ok {
		return true
	}
	if source, ok := c.Metadata["source"].(string); ok {
		if _, noise := noiseArtifacts[strings.ToLower(filepath.Base(source))]; noise {
			return true
		}
	}
	return false
}

// loadChunkFile reads one line-delimited JSON source. Malformed lines are
// skipped with a warning and never abort the load.
func loadChunkFile(path string) ([]*domain.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var chunks []*domain.Chunk
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxRecordBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var record chunkRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			log.Printf("chunk store: skipping malformed record %s:%d: %v", path, lineNo, err)
			continue
		}

		chunk := record.toChunk()
		if isNoiseRecord(chunk) {
			continue
		}
		chunks = append(chunks, chunk)
	}

	if err := scanner.Err(); err != nil {
		return chunks, err
	}
	return chunks, nil
}

// loadEmbeddingsFile reads the sidecar embedding-by-id map. A missing file
// is not an error; chunks simply keep whatever embeddings they carry inline.
func loadEmbeddingsFile(path string) (map[string][]float32, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	embeddings := make(map[string][]float32)
	if err := json.Unmarshal(data, &embeddings); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// loadInteractionLog reads the whole-file JSON array of interactions. A
// missing or empty file yields an empty list.
func loadInteractionLog(path string) ([]*domain.Interaction, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var interactions []*domain.Interaction
	if err := json.Unmarshal(data, &interactions); err != nil {
		return nil, err
	}
	return interactions, nil
}
