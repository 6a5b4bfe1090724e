package exec

import "fmt"

type Device int

const (
	CPU Device = iota
	GPU
)

func (d Device) String() string {
	if d == GPU {
		return "gpu"
	}
	return "cpu"
}

func ParseDevice(s string) (Device, error) {
	switch s {
	case "cpu":
		return CPU, nil
	case "gpu":
		return GPU, nil
	}
	return CPU, fmt.Errorf("unknown device %q", s)
}

func (d Device) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Device) UnmarshalText(b []byte) error {
	var err error
	*d, err = ParseDevice(string(b))
	return err
}

// ExecutorType selects between natively generated code and the external
// interop runtime.
type ExecutorType int

const (
	Native ExecutorType = iota
	Extern
)

func (e ExecutorType) String() string {
	if e == Extern {
		return "extern"
	}
	return "native"
}

type CompileOptions struct {
	Device              Device
	HoistLiterals       bool
	AllowLazyFetch      bool
	WithDynamicWatchdog bool
}

func DefaultCompileOptions(conf Config) CompileOptions {
	return CompileOptions{
		Device:              conf.Device,
		HoistLiterals:       true,
		AllowLazyFetch:      true,
		WithDynamicWatchdog: conf.DynamicWatchdog,
	}
}

// CPUOnly returns a copy of co targeting the CPU.
func (co CompileOptions) CPUOnly() CompileOptions {
	co.Device = CPU
	return co
}

type ExecOptions struct {
	OutputColumnar  bool
	AllowMultifrag  bool
	JustExplain     bool
	JustValidate    bool
	WithWatchdog    bool
	Executor        ExecutorType
	MultifragResult bool
	PreserveOrder   bool
	// OuterFragments restricts the first step to the listed fragments
	// of its outer table.
	OuterFragments []int
}

func DefaultExecOptions(conf Config) ExecOptions {
	return ExecOptions{
		AllowMultifrag: true,
		WithWatchdog:   conf.Watchdog,
	}
}

// Config holds the engine tunables. Watchdog only sets
// ExecOptions.WithWatchdog for the executor. Slot escalation is bounded by
// MaxSlotEscalations whether or not it is set.
type Config struct {
	Device                            Device `yaml:"device"`
	AllowCPURetry                     bool   `yaml:"allow_cpu_retry"`
	AllowStepCPURetry                 bool   `yaml:"allow_step_cpu_retry"`
	EnableInterop                     bool   `yaml:"enable_interop"`
	Watchdog                          bool   `yaml:"watchdog"`
	DynamicWatchdog                   bool   `yaml:"dynamic_watchdog"`
	SkipIntermediateCount             bool   `yaml:"skip_intermediate_count"`
	EnableMultifragResult             bool   `yaml:"enable_multifrag_result"`
	EnableBumpAllocator               bool   `yaml:"enable_bump_allocator"`
	EnableWindowFunctions             bool   `yaml:"enable_window_functions"`
	EnableTableFunctions              bool   `yaml:"enable_table_functions"`
	DefaultGroupsBufferEntryGuess     uint64 `yaml:"default_groups_buffer_entry_guess"`
	MinGroupsBufferEntryGuess         uint64 `yaml:"min_groups_buffer_entry_guess"`
	MaxSlotEscalations                int    `yaml:"max_slot_escalations"`
	BigGroupThreshold                 uint64 `yaml:"big_group_threshold"`
	EstimatorFailureMaxGroupBySize    uint64 `yaml:"estimator_failure_max_group_by_size"`
	ColumnarLargeProjectionsThreshold uint64 `yaml:"columnar_large_projections_threshold"`
	CardinalityCacheSize              int    `yaml:"cardinality_cache_size"`
}

func DefaultConfig() Config {
	return Config{
		Device:                            CPU,
		AllowCPURetry:                     true,
		AllowStepCPURetry:                 true,
		SkipIntermediateCount:             true,
		EnableMultifragResult:             true,
		EnableWindowFunctions:             true,
		EnableTableFunctions:              true,
		DefaultGroupsBufferEntryGuess:     16384,
		MinGroupsBufferEntryGuess:         1024,
		MaxSlotEscalations:                2,
		BigGroupThreshold:                 20000,
		EstimatorFailureMaxGroupBySize:    256000000,
		ColumnarLargeProjectionsThreshold: 1000000,
		CardinalityCacheSize:              4096,
	}
}

// highScanLimit is the scan limit above which a projection's output
// buffer is sized from a filtered count instead.
const highScanLimit = 32000000
