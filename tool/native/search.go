package native

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/spetersoncode/dylan/tool"
)

const defaultMaxResults = 5

// SearchArgs are the arguments of the search tool.
type SearchArgs struct {
	Query      string `json:"query" jsonschema:"description=Search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"description=Maximum number of results,default=5,minimum=1,maximum=20"`
}

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Name     string     `json:"Name"`
	Topics   []ddgTopic `json:"Topics"`
}

type ddgResponse struct {
	Heading       string     `json:"Heading"`
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	Answer        string     `json:"Answer"`
	Definition    string     `json:"Definition"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

type searchHit struct {
	text string
	url  string
}

func (c *config) search(ctx context.Context, args SearchArgs) (string, error) {
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return "", tool.InvalidArgumentsf("query is required")
	}
	limit := args.MaxResults
	if limit <= 0 {
		limit = defaultMaxResults
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")

	var data ddgResponse
	if err := c.getJSON(ctx, c.searchURL+"?"+q.Encode(), &data); err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}

	var hits []searchHit
	switch {
	case data.Answer != "":
		hits = append(hits, searchHit{text: data.Answer})
	case data.AbstractText != "":
		hits = append(hits, searchHit{text: data.AbstractText, url: data.AbstractURL})
	case data.Definition != "":
		hits = append(hits, searchHit{text: data.Definition})
	}
	hits = collectTopics(hits, data.RelatedTopics, limit)
	if len(hits) > limit {
		hits = hits[:limit]
	}

	if len(hits) == 0 {
		return fmt.Sprintf("No results found for %q.", query), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search results for %q:", query)
	for i, h := range hits {
		fmt.Fprintf(&b, "\n%d. %s", i+1, h.text)
		if h.url != "" {
			fmt.Fprintf(&b, "\n   %s", h.url)
		}
	}
	return b.String(), nil
}

// collectTopics flattens grouped topics until limit hits are gathered.
func collectTopics(hits []searchHit, topics []ddgTopic, limit int) []searchHit {
	for _, t := range topics {
		if len(hits) >= limit {
			break
		}
		if len(t.Topics) > 0 {
			hits = collectTopics(hits, t.Topics, limit)
			continue
		}
		if t.Text != "" {
			hits = append(hits, searchHit{text: t.Text, url: t.FirstURL})
		}
	}
	return hits
}
