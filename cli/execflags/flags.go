// Package execflags holds the flags that configure the execution engine
// and the in-memory executor. Settings may also come from a YAML file
// given with -config; flags on the command line take precedence.
package execflags

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/units"
	"github.com/brimdata/raexec/runtime/exec"
	"github.com/brimdata/raexec/runtime/exec/cardcache"
	"github.com/brimdata/raexec/runtime/memexec"
	"github.com/go-redis/redis/v8"
	"github.com/pbnjay/memory"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

type Flags struct {
	Exec   exec.Config
	Memory memexec.Config
	// RedisAddr selects a shared cardinality cache.
	RedisAddr   string
	RedisExpiry time.Duration

	fs         *flag.FlagSet
	configPath string
}

// File is the layout of a config file.
//
//	exec:
//	  device: gpu
//	  allow_cpu_retry: true
//	memory:
//	  gpu_memory: 1073741824
type File struct {
	Exec   exec.Config    `yaml:"exec"`
	Memory memexec.Config `yaml:"memory"`
}

func (f *Flags) SetFlags(fs *flag.FlagSet) {
	f.fs = fs
	f.Exec = exec.DefaultConfig()
	f.Memory.CPUMemory = memory.TotalMemory()
	c := &f.Exec
	fs.StringVar(&f.configPath, "config", "", "YAML file with exec and memory settings")
	fs.TextVar(&c.Device, "exec.device", exec.CPU, "device to run steps on (cpu, gpu)")
	fs.BoolVar(&c.AllowCPURetry, "exec.cpuretry", c.AllowCPURetry, "rerun a query on the CPU when the device cannot run it")
	fs.BoolVar(&c.AllowStepCPURetry, "exec.stepcpuretry", c.AllowStepCPURetry, "rerun a single step on the CPU when the device cannot run it")
	fs.BoolVar(&c.EnableInterop, "exec.interop", c.EnableInterop, "retry steps needing the extern runtime with interop")
	fs.BoolVar(&c.Watchdog, "exec.watchdog", c.Watchdog, "enable the execution watchdog")
	fs.BoolVar(&c.DynamicWatchdog, "exec.dynamicwatchdog", c.DynamicWatchdog, "enable the dynamic watchdog")
	fs.BoolVar(&c.SkipIntermediateCount, "exec.skipcount", c.SkipIntermediateCount, "reuse known row counts instead of counting filtered rows")
	fs.BoolVar(&c.EnableMultifragResult, "exec.multifrag", c.EnableMultifragResult, "keep intermediate results fragmented")
	fs.BoolVar(&c.EnableBumpAllocator, "exec.bump", c.EnableBumpAllocator, "allow the bump allocator for filtered projections")
	fs.BoolVar(&c.EnableWindowFunctions, "exec.window", c.EnableWindowFunctions, "allow window functions")
	fs.BoolVar(&c.EnableTableFunctions, "exec.tablefunc", c.EnableTableFunctions, "allow table functions")
	fs.Uint64Var(&c.DefaultGroupsBufferEntryGuess, "exec.groups", c.DefaultGroupsBufferEntryGuess, "initial groups buffer entry guess")
	fs.Uint64Var(&c.MinGroupsBufferEntryGuess, "exec.mingroups", c.MinGroupsBufferEntryGuess, "smallest groups buffer entry guess")
	fs.IntVar(&c.MaxSlotEscalations, "exec.escalations", c.MaxSlotEscalations, "times a step may double its output slots")
	fs.Uint64Var(&c.BigGroupThreshold, "exec.biggroup", c.BigGroupThreshold, "group count above which estimates come from an NDV probe")
	fs.Uint64Var(&c.EstimatorFailureMaxGroupBySize, "exec.maxgroups", c.EstimatorFailureMaxGroupBySize, "largest cardinality accepted when an estimate is unavailable")
	fs.Uint64Var(&c.ColumnarLargeProjectionsThreshold, "exec.columnar", c.ColumnarLargeProjectionsThreshold, "scan limit above which projections are counted first")
	fs.IntVar(&c.CardinalityCacheSize, "exec.cachesize", c.CardinalityCacheSize, "entries in the local cardinality cache")
	fs.Var((*bytesValue)(&f.Memory.GPUMemory), "mem.gpu", "GPU memory budget as '512MB', '2GiB', etc. (0 means no GPU)")
	fs.Var((*bytesValue)(&f.Memory.CPUMemory), "mem.cpu", "CPU memory budget as '512MB', '2GiB', etc. (0 means unlimited)")
	fs.IntVar(&f.Memory.Workers, "mem.workers", 0, "fragments processed at once (0 means one per CPU)")
	fs.StringVar(&f.RedisAddr, "cardcache.redis", "", "address of a Redis server shared as cardinality cache")
	fs.DurationVar(&f.RedisExpiry, "cardcache.expiry", 24*time.Hour, "lifetime of cardinalities stored in Redis")
}

// Init loads the config file, if any, and reapplies the flags set on the
// command line over it.
func (f *Flags) Init() error {
	if f.configPath != "" {
		set := make(map[string]string)
		f.fs.Visit(func(fl *flag.Flag) {
			set[fl.Name] = fl.Value.String()
		})
		if err := f.load(f.configPath); err != nil {
			return err
		}
		for name, val := range set {
			if err := f.fs.Set(name, val); err != nil {
				return err
			}
		}
	}
	if f.Exec.MinGroupsBufferEntryGuess == 0 {
		return errors.New("exec.mingroups must be greater than zero")
	}
	if f.Exec.MaxSlotEscalations < 0 {
		return errors.New("exec.escalations must not be negative")
	}
	return nil
}

func (f *Flags) load(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	file := File{Exec: f.Exec, Memory: f.Memory}
	if err := yaml.Unmarshal(b, &file); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	f.Exec = file.Exec
	f.Memory = file.Memory
	return nil
}

// Cache returns the shared cardinality cache selected by -cardcache.redis
// or nil, in which case the engine keeps a local one.
func (f *Flags) Cache(reg prometheus.Registerer) exec.CardinalityCache {
	if f.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: f.RedisAddr})
	return cardcache.NewRedis(client, f.RedisExpiry, reg)
}

type bytesValue uint64

func (b *bytesValue) Set(s string) error {
	n, err := units.ParseStrictBytes(s)
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("negative size: %s", s)
	}
	*b = bytesValue(n)
	return nil
}

func (b *bytesValue) String() string {
	if b == nil {
		return "0"
	}
	return units.Base2Bytes(*b).String()
}
