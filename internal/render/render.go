// Package render draws conversation lists and detail views for the terminal.
// Renderers consume the repositories' read API only; mutation never happens
// here.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"minerva/pkg/minervatypes"
)

// ProjectNameFunc resolves a project id to a display name. A false return
// makes the renderer fall back to showing the raw id.
type ProjectNameFunc func(id string) (string, bool)

// ListRenderer renders conversation collections as a styled table.
type ListRenderer struct {
	profile      termenv.Profile
	titleStyle   lipgloss.Style
	metaStyle    lipgloss.Style
	pinStyle     lipgloss.Style
	tagStyle     lipgloss.Style
	projectStyle lipgloss.Style
}

// NewListRenderer creates a renderer using the terminal's detected color
// profile.
func NewListRenderer() *ListRenderer {
	return &ListRenderer{
		profile:      termenv.ColorProfile(),
		titleStyle:   lipgloss.NewStyle().Bold(true),
		metaStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		pinStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		tagStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		projectStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("99")),
	}
}

// ConversationList renders one line per conversation: pin marker, title,
// project badge, tags, and last-updated timestamp.
func (r *ListRenderer) ConversationList(convs []*minervatypes.Conversation, projectName ProjectNameFunc) string {
	if len(convs) == 0 {
		return r.metaStyle.Render("No conversations.")
	}

	var sb strings.Builder
	for _, conv := range convs {
		marker := "  "
		if conv.Pinned {
			marker = r.pinStyle.Render("* ")
		}

		line := marker + r.titleStyle.Render(conv.Title)

		if conv.Project != "" {
			name, ok := projectName(conv.Project)
			if !ok {
				name = conv.Project
			}
			line += " " + r.projectStyle.Render("["+name+"]")
		}

		if len(conv.Tags) > 0 {
			line += " " + r.tagStyle.Render("#"+strings.Join(conv.Tags, " #"))
		}

		line += " " + r.metaStyle.Render(conv.LastUpdated.Format("2006-01-02 15:04"))
		sb.WriteString(line)
		sb.WriteString("\n")

		if conv.Summary != "" {
			sb.WriteString("    " + r.metaStyle.Render(conv.Summary) + "\n")
		}
	}
	return sb.String()
}

// DetailRenderer renders a single conversation's messages as markdown.
type DetailRenderer struct {
	renderer *glamour.TermRenderer
}

// NewDetailRenderer creates a markdown detail renderer with auto-detected
// styling.
func NewDetailRenderer() (*DetailRenderer, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return &DetailRenderer{renderer: renderer}, nil
}

// ConversationDetail renders the full message history of a conversation.
func (d *DetailRenderer) ConversationDetail(conv *minervatypes.Conversation) (string, error) {
	var sb strings.Builder
	sb.WriteString("# " + conv.Title + "\n\n")

	for _, msg := range conv.Messages {
		sb.WriteString(fmt.Sprintf("**%s** (%s):\n\n", msg.Role, msg.Timestamp.Format("2006-01-02 15:04")))
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")
	}

	return d.renderer.Render(sb.String())
}

// MarkdownSource returns the raw markdown the detail renderer would style,
// useful for plain output and tests.
func MarkdownSource(conv *minervatypes.Conversation) string {
	var sb strings.Builder
	sb.WriteString("# " + conv.Title + "\n\n")
	for _, msg := range conv.Messages {
		sb.WriteString(fmt.Sprintf("**%s**: %s\n\n", msg.Role, msg.Content))
	}
	return sb.String()
}
