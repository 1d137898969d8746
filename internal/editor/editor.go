// Package editor applies model-proposed source edits to file content using
// fuzzy content matching. Each edit block names the text it expects to find
// and the text to replace it with; the engine locates the closest contiguous
// match and splices the replacement in.
package editor

import (
	"fmt"
	"strings"
)

// DefaultSimilarityThreshold is the fraction of an edit block's original text
// that must align contiguously with the buffer for the match to be accepted.
const DefaultSimilarityThreshold = 0.9

type EditBlock struct {
	FilePath string `json:"file_path"`
	Original string `json:"original"`
	Updated  string `json:"updated"`
}

type BlockResult struct {
	FilePath       string   `json:"file_path"`
	Success        bool     `json:"success"`
	Error          string   `json:"error,omitempty"`
	SimilarMatches []string `json:"similar_matches,omitempty"`
}

type Outcome struct {
	Content string        `json:"content"`
	Results []BlockResult `json:"results"`
	Failed  int           `json:"failed"`
}

type Engine struct {
	// Threshold overrides DefaultSimilarityThreshold when > 0.
	Threshold float64
}

func New() *Engine {
	return &Engine{}
}

func (e *Engine) threshold() float64 {
	if e != nil && e.Threshold > 0 {
		return e.Threshold
	}
	return DefaultSimilarityThreshold
}

// Apply runs the blocks in order against a single evolving buffer: block N+1
// sees the content produced by block N, and may match text block N
// introduced. Blocks are not transactional across the call — a failing block
// is skipped and later blocks still run. A caller needing all-or-nothing
// semantics must snapshot the content before calling and discard the outcome
// on any failure.
func (e *Engine) Apply(content string, blocks []EditBlock) Outcome {
	outcome := Outcome{Content: content, Results: make([]BlockResult, 0, len(blocks))}
	for _, block := range blocks {
		result := BlockResult{FilePath: block.FilePath}
		next, similar, err := e.applyBlock(outcome.Content, block)
		if err != nil {
			result.Error = err.Error()
			result.SimilarMatches = similar
			outcome.Failed++
		} else {
			result.Success = true
			outcome.Content = next
		}
		outcome.Results = append(outcome.Results, result)
	}
	return outcome
}

func (e *Engine) applyBlock(content string, block EditBlock) (string, []string, error) {
	// An empty buffer or a blank original means "write the file fresh".
	if content == "" || strings.TrimSpace(block.Original) == "" {
		return block.Updated, nil, nil
	}

	length, contentEnd, _ := longestCommonSubstring(content, block.Original)
	if length == 0 {
		return "", nil, fmt.Errorf("no matching span found for edit block")
	}
	start := contentEnd - length
	ratio := float64(length) / float64(len(block.Original))
	if ratio <= e.threshold() {
		similar := []string{expandToLines(content, start, contentEnd)}
		return "", similar, fmt.Errorf("best match covers %.0f%% of the original block, need more than %.0f%%", ratio*100, e.threshold()*100)
	}
	return content[:start] + block.Updated + content[contentEnd:], nil, nil
}

// longestCommonSubstring returns the length of the longest contiguous run of
// bytes shared by a and b, together with the exclusive end offsets of that
// run in each string. Classic dynamic-programming alignment with two rolling
// rows, so memory stays proportional to len(b).
func longestCommonSubstring(a, b string) (length, aEnd, bEnd int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > length {
					length = curr[j]
					aEnd = i
					bEnd = j
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	return length, aEnd, bEnd
}

// expandToLines widens [start, end) to whole lines of content, giving the
// caller a readable candidate span to re-propose against.
func expandToLines(content string, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(content) {
		end = len(content)
	}
	for start > 0 && content[start-1] != '\n' {
		start--
	}
	for end < len(content) && content[end] != '\n' {
		end++
	}
	return content[start:end]
}
