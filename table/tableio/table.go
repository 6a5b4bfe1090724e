// Package tableio writes result tables as aligned text or as an Arrow IPC
// stream.
package tableio

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/brimdata/raexec/table"
)

type TableWriter struct {
	writer io.Writer
	table  *tabwriter.Writer
	limit  int
}

func NewTableWriter(w io.Writer) *TableWriter {
	return &TableWriter{
		writer: w,
		table:  tabwriter.NewWriter(w, 0, 8, 1, ' ', 0),
		limit:  1000,
	}
}

func (w *TableWriter) writeHeader(schema table.Schema) {
	var names []string
	for _, col := range schema {
		names = append(names, strings.ToUpper(col.Name))
	}
	fmt.Fprintln(w.table, strings.Join(names, "\t"))
}

// Write prints t, repeating the header every limit rows.
func (w *TableWriter) Write(t *table.Table) error {
	w.writeHeader(t.Schema())
	for i := 0; i < t.NumRows(); i++ {
		if i > 0 && i%w.limit == 0 {
			if err := w.table.Flush(); err != nil {
				return err
			}
			w.writeHeader(t.Schema())
		}
		row := t.Row(i)
		ss := make([]string, 0, len(row))
		for _, v := range row {
			ss = append(ss, FormatValue(v))
		}
		fmt.Fprintln(w.table, strings.Join(ss, "\t"))
	}
	return w.table.Flush()
}

// FormatValue renders a single cell. Nulls print as "-".
func FormatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "-"
	case float64:
		return strconv.FormatFloat(v, 'g', 6, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	}
	return fmt.Sprint(v)
}
