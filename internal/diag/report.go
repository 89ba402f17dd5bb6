package diag

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	defaultLogTail      = 20
	defaultExchangeTail = 10
	maxBodyBytes        = 512
)

// Report collects what is needed to understand a failed condition.
type Report struct {
	Condition string
	Expected  any
	Observed  any
	// Resource is rendered as indented JSON.
	Resource  any
	Logs      []string
	Exchanges []Exchange

	LogTail      int
	ExchangeTail int
}

func (r Report) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "condition: %s\n", r.Condition)
	fmt.Fprintf(&b, "expected: %v\n", r.Expected)
	fmt.Fprintf(&b, "observed: %v\n", r.Observed)

	if r.Resource != nil {
		data, err := json.MarshalIndent(r.Resource, "", "  ")
		if err != nil {
			fmt.Fprintf(&b, "resource: <%v>\n", err)
		} else {
			fmt.Fprintf(&b, "resource:\n%s\n", data)
		}
	}

	if logs := tail(r.Logs, orDefault(r.LogTail, defaultLogTail)); len(logs) > 0 {
		fmt.Fprintf(&b, "last %d of %d log lines:\n", len(logs), len(r.Logs))
		for _, l := range logs {
			fmt.Fprintf(&b, "  %s\n", l)
		}
	}

	if exs := tail(r.Exchanges, orDefault(r.ExchangeTail, defaultExchangeTail)); len(exs) > 0 {
		fmt.Fprintf(&b, "last %d api exchanges:\n", len(exs))
		for _, e := range exs {
			b.WriteString("  ")
			b.WriteString(formatExchange(e))
			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatExchange(e Exchange) string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s -> error: %v (%s)", e.Method, e.URL, e.Err, e.Duration)
	}
	s := fmt.Sprintf("%s %s -> %d (%s)", e.Method, e.URL, e.Status, e.Duration)
	if len(e.ResponseBody) > 0 {
		s += " " + truncate(e.ResponseBody)
	}
	return s
}

func truncate(body []byte) string {
	if len(body) <= maxBodyBytes {
		return string(body)
	}
	return string(body[:maxBodyBytes]) + "..."
}

func tail[T any](items []T, n int) []T {
	if len(items) > n {
		return items[len(items)-n:]
	}
	return items
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
