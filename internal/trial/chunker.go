package trial

import "strings"

const (
	// DefaultMaxTokens keeps several chunks inside a typical model context.
	DefaultMaxTokens = 400
	// DefaultOverlapTokens is the repeated window between adjacent chunks.
	DefaultOverlapTokens = 50
)

// ChunkDocument splits a document's FullText into overlapping whitespace-token
// windows of at most maxTokens with overlapTokens repeated between adjacent
// windows. Splitting is deterministic: the same text always produces the same
// boundaries and ids. Empty or whitespace-only text produces no chunks.
func ChunkDocument(doc TrialDocument, maxTokens, overlapTokens int) []Chunk {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		overlapTokens = DefaultOverlapTokens
		if overlapTokens >= maxTokens {
			overlapTokens = maxTokens / 8
		}
	}
	tokens := strings.Fields(doc.FullText)
	if len(tokens) == 0 {
		return nil
	}
	var chunks []Chunk
	position := 0
	for start := 0; start < len(tokens); {
		end := start + maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, Chunk{
			ID:        ChunkID(doc.NCTID, position),
			TrialID:   doc.NCTID,
			Position:  position,
			Text:      strings.Join(tokens[start:end], " "),
			Title:     doc.Title,
			Status:    doc.Status,
			Phase:     doc.Phase,
			StudyType: doc.StudyType,
			StartDate: doc.StartDate,
		})
		position++
		if end == len(tokens) {
			break
		}
		start = end - overlapTokens
	}
	return chunks
}
