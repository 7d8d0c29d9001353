package authority

import (
	"fmt"
	"io"
	"time"
)

// trace prints the authority's event log: one line per message handled,
// columns for the (optional) wall-clock date, simulated seconds, client,
// command, and result. Not a stable interface — format and columns may
// change between versions.
type trace struct {
	w      io.Writer
	origin int64
}

func newTrace(w io.Writer, origin int64) *trace {
	t := &trace{w: w, origin: origin}
	header := ""
	if origin != 0 {
		header = fmt.Sprintf("%-25s", "date")
	}
	fmt.Fprintf(w, "%s%-9s %-8s %-15s %-10s\n", header, "seconds", "client", "command", "result")
	return t
}

// line starts a new trace row, returning a lineBuilder for the caller to
// append client/command/result fields to before calling Done.
func (t *trace) line(now int64) *lineBuilder {
	lb := &lineBuilder{w: t.w}
	if t.origin != 0 {
		cur := time.Unix(t.origin+now, 0)
		fmt.Fprintf(t.w, "%-25s", cur.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(t.w, "%-9d", now)
	return lb
}

type lineBuilder struct {
	w io.Writer
}

func (lb *lineBuilder) client(c string) *lineBuilder {
	fmt.Fprintf(lb.w, " %-8s", c)
	return lb
}

func (lb *lineBuilder) command(cmd string) *lineBuilder {
	fmt.Fprintf(lb.w, " %-15s", cmd)
	return lb
}

func (lb *lineBuilder) result(format string, args ...any) *lineBuilder {
	fmt.Fprintf(lb.w, " "+format, args...)
	return lb
}

func (lb *lineBuilder) done() {
	fmt.Fprint(lb.w, "\n")
}
