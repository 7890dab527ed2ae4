package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/trialscope/trialscope/internal/common"
	"github.com/trialscope/trialscope/internal/llm/providers"
	"github.com/trialscope/trialscope/internal/query"
	"github.com/trialscope/trialscope/internal/trial"
	"github.com/trialscope/trialscope/internal/vector"
)

// DefaultBudget is the context budget in runes for assembled chunk text.
const DefaultBudget = 6000

const excerptRunes = 160

// Citation records where a piece of context came from.
type Citation struct {
	TrialID string `json:"trial_id"`
	ChunkID string `json:"chunk_id"`
	Excerpt string `json:"excerpt"`
}

// Prompt is an assembled request ready for a chat provider.
type Prompt struct {
	Messages  []providers.Message `json:"messages"`
	Citations []Citation          `json:"citations"`
	Empty     bool                `json:"empty"`
}

// Builder assembles chat prompts from retrieved chunks under a rune budget.
type Builder struct {
	budget int
}

// NewBuilder constructs a Builder. A non-positive budget uses DefaultBudget.
func NewBuilder(budget int) *Builder {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Builder{budget: budget}
}

// Build assembles the prompt for an intent and its retrieved chunks. Chunks
// are packed greedily in ranking order and are never truncated: a chunk that
// would overflow the budget is skipped and packing continues with the next.
// With no usable context the prompt instructs the model to refuse.
func (b *Builder) Build(intent query.Intent, results []vector.SearchResult) Prompt {
	var sections []string
	var citations []Citation
	used := 0
	for _, result := range results {
		section := formatChunk(result.Chunk)
		size := utf8.RuneCountInString(section)
		if used+size > b.budget {
			continue
		}
		used += size
		sections = append(sections, section)
		citations = append(citations, Citation{
			TrialID: result.Chunk.TrialID,
			ChunkID: result.Chunk.ID,
			Excerpt: excerpt(result.Chunk.Text),
		})
	}
	if len(sections) == 0 {
		common.Logger().Warn("prompt: no context fits", "question", intent.Question, "results", len(results))
		return Prompt{
			Empty: true,
			Messages: []providers.Message{
				{Role: "system", Content: SystemPrompt(intent.Topic) + "\n\n" + emptyContextNotice},
				{Role: "user", Content: intent.Question},
			},
		}
	}

	var user strings.Builder
	user.WriteString("Context from clinical trial records:\n\n")
	for i, section := range sections {
		fmt.Fprintf(&user, "[%d] %s\n\n", i+1, section)
	}
	user.WriteString("Question: ")
	user.WriteString(intent.Question)
	return Prompt{
		Messages: []providers.Message{
			{Role: "system", Content: SystemPrompt(intent.Topic)},
			{Role: "user", Content: user.String()},
		},
		Citations: citations,
	}
}

func formatChunk(chunk trial.Chunk) string {
	var header strings.Builder
	fmt.Fprintf(&header, "Trial %s", chunk.TrialID)
	if chunk.Title != "" {
		fmt.Fprintf(&header, " (%s)", chunk.Title)
	}
	if chunk.Status != "" {
		fmt.Fprintf(&header, " [%s]", chunk.Status)
	}
	return header.String() + "\n" + chunk.Text
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptRunes {
		return text
	}
	return string(runes[:excerptRunes]) + "…"
}
