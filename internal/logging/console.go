package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

// ConsoleSink writes log events to a writer as one line each: a
// timestamp, level, message, and sorted key=value properties.
type ConsoleSink struct {
	out io.Writer
	mu  sync.Mutex
}

// NewConsoleSink builds a ConsoleSink writing to stdout.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{out: os.Stdout}
}

// NewConsoleSinkWithWriter builds a ConsoleSink writing to w, for tests and
// callers that want to capture output.
func NewConsoleSinkWithWriter(w io.Writer) *ConsoleSink {
	return &ConsoleSink{out: w}
}

func (c *ConsoleSink) Emit(event Event) {
	var b strings.Builder
	b.WriteString(event.Timestamp.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString("[" + event.Level.String() + "] ")
	b.WriteString(event.Message)

	if len(event.Properties) > 0 {
		keys := make([]string, 0, len(event.Properties))
		for k := range event.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, event.Properties[k])
		}
	}
	if event.Err != nil {
		fmt.Fprintf(&b, " error=%q", event.Err.Error())
	}
	b.WriteByte('\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	io.WriteString(c.out, b.String())
}

func (c *ConsoleSink) Close() error { return nil }
