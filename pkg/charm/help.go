package charm

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kr/text"
	"golang.org/x/term"
)

const tab = "    "

var helpOutput io.Writer = os.Stderr

func displayHelp(p path) {
	spec := p.last().spec
	helpItem("NAME", spec.Name+" - "+spec.Short)
	helpItem("USAGE", spec.Usage)
	helpList("OPTIONS", options(p))
	if cmds := commands(spec); len(cmds) > 0 {
		helpList("COMMANDS", cmds)
	}
	if spec.Long != "" {
		fmt.Fprint(helpOutput, header("DESCRIPTION")+"\n"+formatParagraph(spec.Long, width()))
	}
}

func width() int {
	w := 80
	if fd := int(os.Stderr.Fd()); term.IsTerminal(fd) {
		if tw, _, err := term.GetSize(fd); err == nil && tw > 0 {
			w = tw
		}
	}
	return w - len(tab) - 5
}

// formatParagraph wraps each paragraph of body to lineWidth and indents
// it by one tab.
func formatParagraph(body string, lineWidth int) string {
	var chunks []string
	for _, paragraph := range strings.Split(strings.TrimSpace(body), "\n\n") {
		paragraph = strings.Join(strings.Fields(paragraph), " ")
		chunks = append(chunks, text.Indent(text.Wrap(paragraph, lineWidth), tab))
	}
	return strings.Join(chunks, "\n\n") + "\n\n"
}

func header(heading string) string {
	return "\033[1m" + heading + "\033[0m"
}

func helpItem(heading, body string) {
	fmt.Fprint(helpOutput, header(heading)+"\n"+tab+body+"\n\n")
}

func helpList(heading string, lines []string) {
	fmt.Fprint(helpOutput, header(heading)+"\n"+tab+strings.Join(lines, "\n"+tab)+"\n\n")
}

func commands(spec *Spec) []string {
	var lines []string
	for _, cmd := range spec.children {
		if !cmd.Hidden {
			lines = append(lines, cmd.Name+" - "+cmd.Short)
		}
	}
	return lines
}

// options lists the flags of the last command followed by the flags of
// each enclosing command under a heading naming it.
func options(p path) []string {
	lines := p.last().options()
	if len(lines) == 0 {
		lines = []string{"no flags for this command"}
	}
	for i := len(p) - 2; i >= 0; i-- {
		opts := p[i].options()
		if len(opts) == 0 {
			continue
		}
		lines = append(lines, "", "["+p[:i+1].pathname()+" flags]")
		lines = append(lines, opts...)
	}
	return lines
}
