package root

import (
	"flag"
	"testing"

	"github.com/brimdata/raexec/runtime/exec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryFlags(t *testing.T) {
	var q QueryFlags
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	q.SetFlags(fs)
	require.NoError(t, fs.Parse([]string{"-executor", "extern", "-fragments", "0, 2", "-validate"}))
	co, eo, err := q.Options(exec.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, exec.CPU, co.Device)
	assert.Equal(t, exec.Extern, eo.Executor)
	assert.Equal(t, []int{0, 2}, eo.OuterFragments)
	assert.True(t, eo.JustValidate)
	assert.True(t, eo.AllowMultifrag)

	q.Fragments = "x"
	_, _, err = q.Options(exec.DefaultConfig())
	assert.EqualError(t, err, `bad fragment "x"`)
	q.Fragments, q.Executor = "", "jit"
	_, _, err = q.Options(exec.DefaultConfig())
	assert.EqualError(t, err, `unknown executor "jit"`)
}
