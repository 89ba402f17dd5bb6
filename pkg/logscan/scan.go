package logscan

import (
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
)

// AnyID is the key used in Result.Found when a criterion expects no ID.
const AnyID = "*"

// Criteria selects the log lines that count as a match.
type Criteria struct {
	// Text is looked up in TextKey (msg by default).
	Text    string
	TextKey string
	// Exact requires equality instead of a substring match.
	Exact bool
	// IDKey names the field carrying the entity id, e.g. policy_id or group_name.
	IDKey string
	// IDs is the expected id set. Empty means any line with the text matches.
	IDs []string
	// Since drops lines not strictly after it. Zero keeps every line.
	Since time.Time
}

func (c Criteria) expected() sets.Set[string] {
	if len(c.IDs) == 0 {
		return sets.New(AnyID)
	}
	return sets.New(c.IDs...)
}

// Match reports the id a record matches c for, if any.
func (c Criteria) Match(r Record) (string, bool) {
	if !c.Since.IsZero() && !r.Timestamp.After(c.Since) {
		return "", false
	}

	text, ok := r.Text(c.TextKey)
	if !ok {
		return "", false
	}
	if c.Exact && text != c.Text {
		return "", false
	}
	if !c.Exact && !strings.Contains(text, c.Text) {
		return "", false
	}

	if len(c.IDs) == 0 {
		return AnyID, true
	}
	id, ok := r.String(c.IDKey)
	if !ok {
		return "", false
	}
	for _, want := range c.IDs {
		if id == want {
			return id, true
		}
	}
	return "", false
}

// Result is the outcome of scanning a log buffer for one criterion.
type Result struct {
	Found    sets.Set[string]
	Expected sets.Set[string]
	// Last is the most recent matching record.
	Last *Record
}

// Complete reports whether every expected id has a matching line.
func (r Result) Complete() bool {
	return r.Found.Equal(r.Expected)
}

// Missing returns the expected ids without a matching line, sorted.
func (r Result) Missing() []string {
	return sets.List(r.Expected.Difference(r.Found))
}

// Scan looks for lines matching c and stops at the first line on which every
// expected id is covered. Lines that do not parse are skipped.
func Scan(lines []string, c Criteria) Result {
	return ScanAll(lines, c)[0]
}

// ScanAll evaluates several criteria in a single pass over lines and stops once
// all of them are complete.
func ScanAll(lines []string, criteria ...Criteria) []Result {
	results := make([]Result, len(criteria))
	for i, c := range criteria {
		results[i] = Result{Found: sets.New[string](), Expected: c.expected()}
	}

	for _, line := range lines {
		rec, ok := Parse(line)
		if !ok {
			continue
		}

		complete := true
		for i, c := range criteria {
			if results[i].Complete() {
				continue
			}
			if id, ok := c.Match(rec); ok {
				results[i].Found.Insert(id)
				matched := rec
				results[i].Last = &matched
			}
			complete = complete && results[i].Complete()
		}
		if complete {
			break
		}
	}
	return results
}

// Lines splits a raw log buffer into lines, dropping empty ones.
func Lines(raw string) []string {
	parts := strings.Split(raw, "\n")
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimRight(p, "\r"); strings.TrimSpace(p) != "" {
			lines = append(lines, p)
		}
	}
	return lines
}
