package domain

// ContextCard is an ephemeral per-request projection of a chunk used while
// assembling a token-budgeted context. Cards are created and discarded within
// one pipeline invocation and never persisted.
type ContextCard struct {
	CardID   string
	Content  string
	Tokens   int
	Priority float64
}

// EstimateTokens approximates the token count of a string as ceil(len/4).
// It intentionally overcounts slightly so budget fills stay conservative.
func EstimateTokens(content string) int {
	if content == "" {
		return 0
	}
	return (len(content) + 3) / 4
}
