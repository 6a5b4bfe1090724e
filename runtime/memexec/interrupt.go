package memexec

import (
	"sync/atomic"

	"github.com/brimdata/raexec/errors"
)

// Interrupter is a flag that stops running queries at their next check.
// Only work compiled with the dynamic watchdog checks it, and the engine
// resets it before each such sequence.
type Interrupter struct {
	flag atomic.Bool
}

func (i *Interrupter) Interrupt() {
	i.flag.Store(true)
}

func (i *Interrupter) ResetInterrupt() {
	i.flag.Store(false)
}

func (i *Interrupter) CheckInterrupt() error {
	if i.flag.Load() {
		return zqe.ErrInterrupted("query was interrupted")
	}
	return nil
}

func (i *Interrupter) interrupted() bool {
	return i != nil && i.flag.Load()
}
