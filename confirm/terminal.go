package confirm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	detailStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
	addStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	delStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	hunkStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

// maxPromptLines caps how much of a preview (usually a diff) is printed
// before the prompt.
const maxPromptLines = 20

// TerminalGateway prompts on a local terminal and blocks for the answer.
// Empty input approves; EOF or an interrupted read denies. The context is
// not consulted: the synchronous prompt has no timeout.
type TerminalGateway struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalGateway creates a gateway reading answers from in and
// printing prompts to out.
func NewTerminalGateway(in io.Reader, out io.Writer) *TerminalGateway {
	return &TerminalGateway{in: bufio.NewReader(in), out: out}
}

func (g *TerminalGateway) Confirm(ctx context.Context, req Request) bool {
	fmt.Fprintln(g.out)
	fmt.Fprintln(g.out, warnStyle.Render("  ! Confirmation required: "+req.Tool))
	g.printPreview(req)
	fmt.Fprint(g.out, warnStyle.Render("  Proceed? [Y/n] "))

	line, err := g.in.ReadString('\n')
	if err != nil {
		fmt.Fprintln(g.out)
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "" || answer == "y" || answer == "yes"
}

func (g *TerminalGateway) printPreview(req Request) {
	preview := req.Preview
	if preview == "" {
		if data, err := json.Marshal(req.Arguments); err == nil {
			preview = string(data)
			if len(preview) > 200 {
				preview = preview[:200] + "..."
			}
		}
	}
	if preview == "" {
		return
	}

	lines := strings.Split(preview, "\n")
	shown := lines
	if len(shown) > maxPromptLines {
		shown = shown[:maxPromptLines]
	}
	for _, l := range shown {
		fmt.Fprintln(g.out, "    "+styleDiffLine(l))
	}
	if omitted := len(lines) - len(shown); omitted > 0 {
		fmt.Fprintln(g.out, dimStyle.Render(fmt.Sprintf("    ... (%d more lines)", omitted)))
	}
}

// styleDiffLine colors unified-diff lines by prefix; anything that does
// not look like a diff renders bold like the rest of the prompt.
func styleDiffLine(l string) string {
	switch {
	case strings.HasPrefix(l, "+++"), strings.HasPrefix(l, "---"):
		return detailStyle.Render(l)
	case strings.HasPrefix(l, "@@"):
		return hunkStyle.Render(l)
	case strings.HasPrefix(l, "+"):
		return addStyle.Render(l)
	case strings.HasPrefix(l, "-"):
		return delStyle.Render(l)
	}
	return detailStyle.Render(l)
}
