package steps

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/brimdata/raexec/cmd/raexec/root"
	"github.com/brimdata/raexec/pkg/charm"
)

var Cmd = &charm.Spec{
	Name:  "steps",
	Usage: "steps [options] plan.yaml",
	Short: "execute a plan one step at a time",
	Long: `
The steps command executes the plan in the given YAML document one step
at a time, the way a coordinator drives compute leaves, and prints for
each step the node whose result it produced, how partial results of the
step would be merged and the number of rows it produced.`,
	New: New,
}

func init() {
	root.Raexec.Add(Cmd)
}

type Command struct {
	*root.Command
	query root.QueryFlags
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{Command: parent.(*root.Command)}
	c.query.SetFlags(f)
	return c, nil
}

func (c *Command) Run(args []string) error {
	ctx, cleanup, err := c.Init()
	if err != nil {
		return err
	}
	defer cleanup()
	if len(args) != 1 {
		return errors.New("steps: a single plan document is required")
	}
	doc, err := root.ReadDocument(args[0])
	if err != nil {
		return err
	}
	engine, err := c.Engine(doc)
	if err != nil {
		return err
	}
	co, eo, err := c.query.Options(c.ExecFlags.Exec)
	if err != nil {
		return err
	}
	seq, err := engine.ConstructSequence(doc.Root)
	if err != nil {
		return err
	}
	ctx, cancel := c.query.Context(ctx)
	defer cancel()
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, ' ', 0)
	fmt.Fprintln(w, "STEP\tNODE\tMERGE\tROWS")
	for i := 0; i < seq.Len(); i++ {
		res, err := engine.ExecuteSingleStep(ctx, seq, i, co, eo)
		if err != nil {
			w.Flush()
			return fmt.Errorf("step %d: %w", i, err)
		}
		fmt.Fprintf(w, "%d\t#%d\t%s\t%d\n", i, res.NodeID, res.Merge, res.Result.RowCount())
	}
	return w.Flush()
}
