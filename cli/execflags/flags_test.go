package execflags

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/brimdata/raexec/runtime/exec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (*Flags, error) {
	var f Flags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f.SetFlags(fs)
	require.NoError(t, fs.Parse(args))
	return &f, f.Init()
}

func TestDefaults(t *testing.T) {
	f, err := parse(t)
	require.NoError(t, err)
	assert.Equal(t, exec.DefaultConfig(), f.Exec)
	assert.NotZero(t, f.Memory.CPUMemory)
	assert.Zero(t, f.Memory.GPUMemory)
	assert.Nil(t, f.Cache(nil))
}

func TestMemoryBudgets(t *testing.T) {
	f, err := parse(t, "-mem.gpu", "2GiB", "-mem.cpu", "512MB", "-exec.device", "gpu")
	require.NoError(t, err)
	assert.EqualValues(t, 2<<30, f.Memory.GPUMemory)
	assert.EqualValues(t, 512*1000*1000, f.Memory.CPUMemory)
	assert.Equal(t, exec.GPU, f.Exec.Device)

	var b bytesValue
	assert.Error(t, b.Set("lots"))
}

func TestConfigFileUnderFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raexec.yaml")
	conf := `
exec:
  device: gpu
  enable_interop: true
  max_slot_escalations: 5
memory:
  gpu_memory: 4096
  workers: 3
`
	require.NoError(t, os.WriteFile(path, []byte(conf), 0644))
	f, err := parse(t, "-config", path, "-exec.escalations", "1")
	require.NoError(t, err)
	assert.Equal(t, exec.GPU, f.Exec.Device)
	assert.True(t, f.Exec.EnableInterop)
	assert.Equal(t, 1, f.Exec.MaxSlotEscalations)
	assert.True(t, f.Exec.AllowCPURetry)
	assert.EqualValues(t, 4096, f.Memory.GPUMemory)
	assert.Equal(t, 3, f.Memory.Workers)
}

func TestInvalid(t *testing.T) {
	_, err := parse(t, "-exec.mingroups", "0")
	assert.EqualError(t, err, "exec.mingroups must be greater than zero")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("exec:\n  device: tpu\n"), 0644))
	_, err = parse(t, "-config", path)
	assert.ErrorContains(t, err, `unknown device "tpu"`)
}
