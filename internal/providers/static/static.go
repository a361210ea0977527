// Package static is a deterministic, offline text adaptor. It backs tests,
// dry runs and projects that opt out of paid providers.
package static

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"genstudio/internal/adaptor"
	"genstudio/internal/domain"
)

// Generator turns the user prompt into a headline plus bullet ideas.
type Generator struct{}

func New() *Generator {
	return &Generator{}
}

func (g *Generator) GenerateText(ctx context.Context, req adaptor.Request) (*adaptor.TextResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tag := language.Und
	if loc := strings.TrimSpace(req.Options.Locale); loc != "" {
		if parsed, err := language.Parse(loc); err == nil {
			tag = parsed
		}
	}
	c := cases.Title(tag)

	words := strings.Fields(req.Prompt.User)
	if len(words) == 0 {
		words = []string{"campaign", "idea"}
	}
	head := words
	if len(head) > 8 {
		head = head[:8]
	}
	headline := c.String(strings.Join(head, " "))

	var b strings.Builder
	b.WriteString(headline)
	for i, angle := range []string{"signature", "seasonal", "community"} {
		fmt.Fprintf(&b, "\n%d. %s %s", i+1, c.String(angle), headline)
	}
	text := b.String()
	return &adaptor.TextResult{
		Text: text,
		Usage: domain.Usage{
			InputTokens:  len(strings.Fields(req.Prompt.Text())),
			OutputTokens: len(strings.Fields(text)),
		},
	}, nil
}

var _ adaptor.TextGenerator = (*Generator)(nil)
