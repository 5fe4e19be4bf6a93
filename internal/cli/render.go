package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/suPer8Hu/legalwise/internal/chat"
)

// Renderer prints assistant markdown for the terminal.
type Renderer struct {
	term *glamour.TermRenderer
}

// NewRenderer builds a glamour renderer. style is a glamour standard style,
// "auto" to follow the terminal, or "plain" for unrendered markdown.
func NewRenderer(style string, width int) (*Renderer, error) {
	style = strings.ToLower(strings.TrimSpace(style))
	if style == "plain" {
		return &Renderer{}, nil
	}
	if width <= 0 {
		width = 100
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" || style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	term, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("markdown renderer: %w", err)
	}
	return &Renderer{term: term}, nil
}

// Render unwraps fenced replies and renders them. Rendering errors fall back to the raw text.
func (r *Renderer) Render(content string) string {
	md := chat.NormalizeContent(content)
	if r == nil || r.term == nil {
		return md
	}
	out, err := r.term.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}
