package feed

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tokensentry/tokensentry/internal/model"
)

// DecodeCandidate parses one candidate record from the feed's JSON payload.
// Address and chain are required; everything else is optional enrichment.
func DecodeCandidate(data []byte) (model.Candidate, error) {
	var c model.Candidate
	if err := json.Unmarshal(data, &c); err != nil {
		return model.Candidate{}, fmt.Errorf("feed: decode candidate: %w", err)
	}
	c.Address = strings.TrimSpace(c.Address)
	c.Chain = strings.ToLower(strings.TrimSpace(c.Chain))
	if c.Address == "" {
		return model.Candidate{}, fmt.Errorf("feed: candidate missing address")
	}
	if c.Chain == "" {
		return model.Candidate{}, fmt.Errorf("feed: candidate missing chain")
	}
	return c, nil
}

// LoadFile reads a batch of candidates from a JSON file. The file holds
// either a top-level array or an object with a "tokens" array.
func LoadFile(path string) ([]model.Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("feed: read %s: %w", path, err)
	}
	return parseBatch(data, path)
}

func parseBatch(data []byte, origin string) ([]model.Candidate, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var wrapped struct {
			Tokens []json.RawMessage `json:"tokens"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil || wrapped.Tokens == nil {
			return nil, fmt.Errorf("feed: %s is neither a candidate array nor a tokens object", origin)
		}
		raw = wrapped.Tokens
	}

	candidates := make([]model.Candidate, 0, len(raw))
	skipped := 0
	for _, entry := range raw {
		c, err := DecodeCandidate(entry)
		if err != nil {
			skipped++
			continue
		}
		candidates = append(candidates, c)
	}

	if skipped > 0 {
		log.Warn().
			Int("skipped", skipped).
			Int("loaded", len(candidates)).
			Str("origin", origin).
			Msg("feed: some candidate records were undecodable")
	}
	return candidates, nil
}
