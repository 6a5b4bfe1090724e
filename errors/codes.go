package zqe

import "fmt"

// Code is a numeric failure reported by a query executor. Negative codes
// mean the executor ran out of output slots.
type Code int32

const (
	DivByZero                      Code = 1
	OutOfGPUMem                    Code = 2
	OutOfSlots                     Code = 3
	UnsupportedSelfJoin            Code = 4
	OutOfRenderMem                 Code = 5
	OutOfCPUMem                    Code = 6
	OverflowOrUnderflow            Code = 7
	OutOfTime                      Code = 9
	Interrupt                      Code = 10
	ColumnarConversionNotSupported Code = 11
	TooManyLiterals                Code = 12
	StringConstInResultSet         Code = 13
	SingleValueFoundMultipleValues Code = 15
	WidthBucketInvalidArgument     Code = 17
)

var codeNames = map[Code]string{
	DivByZero:                      "ERR_DIV_BY_ZERO: Division by zero",
	OutOfGPUMem:                    "ERR_OUT_OF_GPU_MEM: Query couldn't keep the entire working set of columns in GPU memory",
	OutOfSlots:                     "ERR_OUT_OF_SLOTS: Insufficient space in the query output buffer",
	UnsupportedSelfJoin:            "ERR_UNSUPPORTED_SELF_JOIN: Self joins not supported yet",
	OutOfRenderMem:                 "ERR_OUT_OF_RENDER_MEM: Insufficient GPU memory for query results in render output buffer",
	OutOfCPUMem:                    "ERR_OUT_OF_CPU_MEM: Not enough host memory to execute the query",
	OverflowOrUnderflow:            "ERR_OVERFLOW_OR_UNDERFLOW: Overflow or underflow",
	OutOfTime:                      "ERR_OUT_OF_TIME: Query execution has exceeded the time limit",
	Interrupt:                      "ERR_INTERRUPTED: Query execution has been interrupted",
	ColumnarConversionNotSupported: "ERR_COLUMNAR_CONVERSION_NOT_SUPPORTED: Columnar conversion not supported for variable length types",
	TooManyLiterals:                "ERR_TOO_MANY_LITERALS: Too many literals in the query",
	StringConstInResultSet:         "ERR_STRING_CONST_IN_RESULTSET: NONE ENCODED String types are not supported as input result set",
	SingleValueFoundMultipleValues: "ERR_SINGLE_VALUE_FOUND_MULTIPLE_VALUES: Multiple distinct values encountered",
	WidthBucketInvalidArgument:     "ERR_WIDTH_BUCKET_INVALID_ARGUMENT: Arguments of WIDTH_BUCKET function does not satisfy the condition",
}

// CodeMessage returns the user facing description of an executor code.
func CodeMessage(c Code) string {
	if c < 0 {
		return "Ran out of slots in the query output buffer"
	}
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Other error: code %d", c)
}

// Kind maps an executor code to the error Kind reported when the code is
// not recovered.
func (c Code) Kind() Kind {
	switch {
	case c < 0, c == OutOfSlots, c == OutOfCPUMem, c == OutOfGPUMem, c == OutOfRenderMem:
		return ResourceExhausted
	case c == Interrupt:
		return Interrupted
	case c == OutOfTime:
		return TimedOut
	}
	return Invalid
}

// ExecError is returned by executors for code-bearing failures.
// MultifragLaunch is set when the failing kernel launch spanned
// several fragments at once.
type ExecError struct {
	Code            Code
	MultifragLaunch bool
}

func (e *ExecError) Error() string {
	return CodeMessage(e.Code)
}

// OutOfSlots reports whether the error is a slot exhaustion.
func (e *ExecError) OutOfSlots() bool {
	return e.Code < 0
}

// Fatal converts an unrecovered executor code into a zqe error.
func (e *ExecError) Fatal() error {
	return &Error{Kind: e.Code.Kind(), Err: e}
}
