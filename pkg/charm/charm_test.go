package charm

import (
	"bytes"
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type root struct {
	verbose bool
	ran     []string
}

func (r *root) Run(args []string) error {
	if len(args) == 0 {
		return NeedHelp
	}
	return ErrNoRun
}

type child struct {
	root  *root
	limit int
}

func (c *child) Run(args []string) error {
	c.root.ran = append(c.root.ran, args...)
	return nil
}

func specs(r *root) (*Spec, **child) {
	var last *child
	top := &Spec{
		Name:  "top",
		Usage: "top [options] command",
		Short: "test command",
		Long:  "A command used by tests.\n\nIt has one sub-command.",
		New: func(_ Command, f *flag.FlagSet) (Command, error) {
			f.BoolVar(&r.verbose, "v", false, "verbose")
			return r, nil
		},
	}
	top.Add(&Spec{
		Name:  "run",
		Usage: "run [options] args",
		Short: "run things",
		New: func(parent Command, f *flag.FlagSet) (Command, error) {
			last = &child{root: parent.(*root)}
			f.IntVar(&last.limit, "limit", 10, "limit")
			return last, nil
		},
	})
	return top, &last
}

func TestExecRoot(t *testing.T) {
	r := &root{}
	top, c := specs(r)
	require.NoError(t, top.ExecRoot([]string{"-v", "run", "-limit", "3", "a", "b"}))
	assert.True(t, r.verbose)
	assert.Equal(t, 3, (*c).limit)
	assert.Equal(t, []string{"a", "b"}, r.ran)
}

func TestNoSuchSubcommand(t *testing.T) {
	top, _ := specs(&root{})
	err := top.ExecRoot([]string{"walk"})
	assert.EqualError(t, err, `"top": no such sub-command "walk": options are: run`)
}

func TestHelp(t *testing.T) {
	var buf bytes.Buffer
	saved := helpOutput
	helpOutput = &buf
	defer func() { helpOutput = saved }()
	top, _ := specs(&root{})
	require.NoError(t, top.ExecRoot([]string{"run", "-h"}))
	out := buf.String()
	assert.Contains(t, out, "run - run things")
	assert.Contains(t, out, `-limit limit (default "10")`)
	assert.Contains(t, out, "[top flags]")

	buf.Reset()
	require.NoError(t, top.ExecRoot(nil))
	assert.Contains(t, buf.String(), "run - run things")
	assert.Contains(t, buf.String(), "It has one sub-command.")
}
