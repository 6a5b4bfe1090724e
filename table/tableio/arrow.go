package tableio

import (
	"io"

	"github.com/apache/arrow/go/v11/arrow/ipc"
	"github.com/brimdata/raexec/table"
)

// ArrowWriter streams tables in the Arrow IPC stream format. All tables
// written to one ArrowWriter must share a schema.
type ArrowWriter struct {
	w      io.Writer
	writer *ipc.Writer
}

func NewArrowWriter(w io.Writer) *ArrowWriter {
	return &ArrowWriter{w: w}
}

func (w *ArrowWriter) Write(t *table.Table) error {
	rec := t.Record()
	if w.writer == nil {
		w.writer = ipc.NewWriter(w.w, ipc.WithSchema(rec.Schema()))
	}
	return w.writer.Write(rec)
}

func (w *ArrowWriter) Close() error {
	if w.writer == nil {
		return nil
	}
	err := w.writer.Close()
	w.writer = nil
	return err
}
