package explain

import (
	"errors"
	"flag"
	"fmt"

	"github.com/brimdata/raexec/cmd/raexec/root"
	"github.com/brimdata/raexec/pkg/charm"
	"github.com/brimdata/raexec/runtime/exec"
)

var Cmd = &charm.Spec{
	Name:  "explain",
	Usage: "explain [options] plan.yaml",
	Short: "show the steps of a plan",
	Long: `
The explain command prints the steps the plan in the given YAML document
would execute, last step first. Each step is numbered and lists the
operators it absorbed beneath it. Subqueries follow the main steps.`,
	New: New,
}

func init() {
	root.Raexec.Add(Cmd)
}

type Command struct {
	*root.Command
	fragments bool
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{Command: parent.(*root.Command)}
	f.BoolVar(&c.fragments, "fragments", false, "also print the number of outer fragments a coordinator could split the plan into")
	return c, nil
}

func (c *Command) Run(args []string) error {
	_, cleanup, err := c.Init()
	if err != nil {
		return err
	}
	defer cleanup()
	if len(args) != 1 {
		return errors.New("explain: a single plan document is required")
	}
	doc, err := root.ReadDocument(args[0])
	if err != nil {
		return err
	}
	engine, err := c.Engine(doc)
	if err != nil {
		return err
	}
	s, err := engine.Explain(doc.Root)
	if err != nil {
		return err
	}
	fmt.Print(s)
	if c.fragments {
		n, err := engine.OuterFragmentCount(doc.Root, exec.DefaultExecOptions(c.ExecFlags.Exec))
		if err != nil {
			return err
		}
		fmt.Printf("outer fragments: %d\n", n)
	}
	return nil
}
