package root

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/brimdata/raexec/cli"
	"github.com/brimdata/raexec/cli/execflags"
	"github.com/brimdata/raexec/cli/logflags"
	"github.com/brimdata/raexec/pkg/charm"
	"github.com/brimdata/raexec/plan/planio"
	"github.com/brimdata/raexec/runtime/exec"
	"github.com/brimdata/raexec/runtime/memexec"
	"go.uber.org/zap"
)

var Raexec = &charm.Spec{
	Name:  "raexec",
	Usage: "raexec <command> [options] [arguments...]",
	Short: "execute relational algebra plans",
	Long: `
raexec reads plan documents, which describe a tree of relational algebra
operators together with the tables they scan, and executes them with a
device-aware in-memory executor.

Failures the executor reports are recovered by falling back to the CPU,
to interop execution, to cardinality estimation, to single fragment
kernels or to larger output buffers before they reach you.`,
	New: New,
}

type Command struct {
	charm.Command
	cli.Flags
	ExecFlags execflags.Flags
	LogFlags  logflags.Flags
	Logger    *zap.Logger
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{}
	c.SetFlags(f)
	c.ExecFlags.SetFlags(f)
	c.LogFlags.SetFlags(f)
	return c, nil
}

// Init initializes the global flags and opens the logger.
func (c *Command) Init(all ...cli.Initializer) (context.Context, func(), error) {
	ctx, cleanup, err := c.Flags.Init(append(all, &c.ExecFlags)...)
	if err != nil {
		return nil, nil, err
	}
	if c.Logger, err = c.LogFlags.Open(); err != nil {
		cleanup()
		return nil, nil, err
	}
	return ctx, func() {
		c.Logger.Sync()
		cleanup()
	}, nil
}

func (c *Command) Run(args []string) error {
	_, cleanup, err := c.Init()
	if err != nil {
		return err
	}
	defer cleanup()
	if len(args) == 0 {
		return charm.NeedHelp
	}
	return charm.ErrNoRun
}

// Engine loads the tables of doc into a catalog and returns an engine
// executing against it.
func (c *Command) Engine(doc *planio.Document) (*exec.Engine, error) {
	catalog := memexec.NewCatalog()
	for _, t := range doc.Tables {
		catalog.Add(t.Name, t.Data.WithFragments(t.Fragments))
	}
	logger := c.LogFlags.Engine(c.Logger)
	x := memexec.New(c.ExecFlags.Memory, catalog, logger.Named("memexec"))
	return exec.New(c.ExecFlags.Exec, exec.Env{
		Executor:    x,
		Translator:  memexec.NewTranslator(),
		Schemas:     catalog,
		Interrupter: x.Interrupter(),
		Cache:       c.ExecFlags.Cache(nil),
		Logger:      logger.Named("exec"),
	})
}

// ReadFile reads the file at path or standard input when path is "-".
func ReadFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func ReadDocument(path string) (*planio.Document, error) {
	if path == "-" {
		return planio.Read(os.Stdin)
	}
	return planio.ReadFile(path)
}
