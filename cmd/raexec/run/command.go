package run

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/brimdata/raexec/api"
	"github.com/brimdata/raexec/api/client"
	"github.com/brimdata/raexec/cmd/raexec/root"
	"github.com/brimdata/raexec/pkg/charm"
	"github.com/brimdata/raexec/table"
	"github.com/brimdata/raexec/table/tableio"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var Cmd = &charm.Spec{
	Name:  "run",
	Usage: "run [options] plan.yaml",
	Short: "execute a plan document",
	Long: `
The run command executes the plan in the given YAML document ("-" reads
standard input) and writes the result table to standard output or to the
file named by -o.

With -f auto, the default, the result is written as an aligned text table
when the output is a terminal and as an Arrow IPC stream otherwise.

With -s the plan is sent to a raexec service at the given URL instead of
being executed locally.`,
	New: New,
}

func init() {
	root.Raexec.Add(Cmd)
}

type Command struct {
	*root.Command
	query   root.QueryFlags
	format  string
	output  string
	service string
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{Command: parent.(*root.Command)}
	c.query.SetFlags(f)
	f.StringVar(&c.format, "f", "auto", "output format (auto, text, arrow)")
	f.StringVar(&c.output, "o", "", "write result to file instead of stdout")
	f.StringVar(&c.service, "s", "", "URL of a raexec service to run the plan")
	return c, nil
}

func (c *Command) Run(args []string) error {
	ctx, cleanup, err := c.Init()
	if err != nil {
		return err
	}
	defer cleanup()
	if len(args) != 1 {
		return errors.New("run: a single plan document is required")
	}
	w, tty, err := openOutput(c.output)
	if err != nil {
		return err
	}
	format := c.format
	if format == "auto" {
		format = "arrow"
		if tty {
			format = "text"
		}
	}
	ctx, cancel := c.query.Context(ctx)
	defer cancel()
	if c.service != "" {
		err = c.remote(ctx, args[0], format, w)
	} else {
		err = c.local(ctx, args[0], format, w)
	}
	return multierr.Append(err, w.Close())
}

func (c *Command) local(ctx context.Context, path, format string, w io.Writer) error {
	doc, err := root.ReadDocument(path)
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
	res, err := engine.ExecuteQuery(ctx, doc.Root, co, eo)
	if err != nil {
		return err
	}
	c.Logger.Info("Query completed", zap.Int("rows", res.RowCount()), zap.Duration("exec_time", res.ExecTime))
	return write(w, format, res.Table)
}

func (c *Command) remote(ctx context.Context, path, format string, w io.Writer) error {
	b, err := root.ReadFile(path)
	if err != nil {
		return err
	}
	req := api.QueryRequest{
		Plan:         string(b),
		Device:       c.ExecFlags.Exec.Device.String(),
		Executor:     c.query.Executor,
		JustExplain:  c.query.Explain,
		JustValidate: c.query.Validate,
		Timeout:      c.query.Timeout.Milliseconds(),
	}
	_, eo, err := c.query.Options(c.ExecFlags.Exec)
	if err != nil {
		return err
	}
	req.OuterFragments = eo.OuterFragments
	conn := client.NewConnectionTo(c.service)
	res, err := conn.QueryFormat(ctx, req, api.FormatToMediaType(format))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, err = io.Copy(w, res.Body)
	return err
}

func write(w io.Writer, format string, t *table.Table) error {
	switch format {
	case "text":
		return tableio.NewTableWriter(w).Write(t)
	case "arrow":
		aw := tableio.NewArrowWriter(w)
		return multierr.Append(aw.Write(t), aw.Close())
	}
	return fmt.Errorf("unknown output format %q", format)
}

func openOutput(path string) (io.WriteCloser, bool, error) {
	if path == "" {
		return nopCloser{os.Stdout}, term.IsTerminal(int(os.Stdout.Fd())), nil
	}
	f, err := os.Create(path)
	return f, false, err
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
