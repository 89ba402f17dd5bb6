package logscan_test

import (
	"encoding/json"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/orb-community/orb-acceptance/pkg/logscan"
)

func TestLogscan(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Logscan Suite")
}

func line(fields map[string]any) string {
	b, err := json.Marshal(fields)
	Expect(err).ToNot(HaveOccurred())
	return string(b)
}

var _ = Describe("Parse", func() {
	// Given lines that are not structured records
	// When we parse them
	// Then they are rejected without error
	DescribeTable("should reject unparseable lines",
		func(raw string) {
			_, ok := logscan.Parse(raw)
			Expect(ok).To(BeFalse())
		},
		Entry("plain text", "starting orb-agent"),
		Entry("truncated json", `{"msg":"policy applied successfully","ts":`),
		Entry("json array", `[1,2,3]`),
		Entry("missing ts", `{"msg":"hello"}`),
		Entry("bad ts string", `{"msg":"hello","ts":"yesterday"}`),
		Entry("boolean ts", `{"msg":"hello","ts":true}`),
		Entry("empty line", ""),
	)

	// Given timestamps in every encoding agents emit
	// When we parse the lines
	// Then they normalize to the same instant
	DescribeTable("should normalize timestamps",
		func(ts any, want time.Time) {
			rec, ok := logscan.Parse(line(map[string]any{"msg": "m", "ts": ts}))
			Expect(ok).To(BeTrue())
			Expect(rec.Timestamp.Equal(want)).To(BeTrue(), "got %s want %s", rec.Timestamp, want)
		},
		Entry("integer epoch", 1650000000, time.Unix(1650000000, 0)),
		Entry("fractional epoch", 1650000000.5, time.Unix(1650000000, 500_000_000)),
		Entry("RFC3339 with zone", "2022-04-15T05:20:00Z", time.Unix(1650000000, 0)),
		Entry("RFC3339 with offset", "2022-04-15T07:20:00+02:00", time.Unix(1650000000, 0)),
		Entry("zone-less ISO is UTC", "2022-04-15T05:20:00.250", time.Unix(1650000000, 250_000_000)),
		Entry("space separated", "2022-04-15 05:20:00Z", time.Unix(1650000000, 0)),
	)

	It("should expose message, level, log and extra fields", func() {
		rec, ok := logscan.Parse(`{"level":"info","ts":1650000000,"msg":"policy applied successfully","policy_id":"p1","count":3,"log":"raw"}`)
		Expect(ok).To(BeTrue())
		Expect(rec.Message).To(Equal("policy applied successfully"))
		Expect(rec.Level).To(Equal("info"))
		Expect(rec.Log).To(Equal("raw"))

		id, ok := rec.String("policy_id")
		Expect(ok).To(BeTrue())
		Expect(id).To(Equal("p1"))

		count, ok := rec.String("count")
		Expect(ok).To(BeTrue())
		Expect(count).To(Equal("3"))

		_, ok = rec.String("missing")
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Scan", func() {
	const msg = "policy applied successfully"
	since := time.Unix(1650000000, 0)

	policyLine := func(id string, ts any) string {
		return line(map[string]any{"level": "info", "msg": msg, "policy_id": id, "ts": ts})
	}

	// Given a line stamped exactly at the considered timestamp
	// When we scan with strict greater-than semantics
	// Then the line does not count, while one a unit later does
	It("should only count lines strictly after Since", func() {
		// Arrange
		c := logscan.Criteria{Text: msg, IDKey: "policy_id", IDs: []string{"p1"}, Since: since}

		// Act
		equal := logscan.Scan([]string{policyLine("p1", 1650000000)}, c)
		later := logscan.Scan([]string{policyLine("p1", 1650000001)}, c)

		// Assert
		Expect(equal.Complete()).To(BeFalse())
		Expect(equal.Found).To(BeEmpty())
		Expect(later.Complete()).To(BeTrue())
	})

	// Given an unparseable line between valid lines
	// When we scan
	// Then it is ignored
	It("should skip unparseable lines", func() {
		lines := []string{
			"panic: not really",
			policyLine("p1", 1650000010),
			`{"msg": broken`,
		}
		res := logscan.Scan(lines, logscan.Criteria{Text: msg, IDKey: "policy_id", IDs: []string{"p1", "p2"}, Since: since})
		Expect(res.Complete()).To(BeFalse())
		Expect(res.Found.UnsortedList()).To(ConsistOf("p1"))
		Expect(res.Missing()).To(Equal([]string{"p2"}))
	})

	// Given lines for ids outside the expected set
	// When we scan
	// Then they are not reported
	It("should ignore ids outside the expected set", func() {
		res := logscan.Scan([]string{policyLine("other", 1650000010)},
			logscan.Criteria{Text: msg, IDKey: "policy_id", IDs: []string{"p1"}})
		Expect(res.Found).To(BeEmpty())
	})

	// Given the expected set is covered on an intermediate line
	// When we scan
	// Then scanning stops there and Last is that line
	It("should stop once every id is covered", func() {
		lines := []string{
			policyLine("p1", 1650000010),
			policyLine("p2", 1650000011),
			policyLine("p1", 1650000012),
		}
		res := logscan.Scan(lines, logscan.Criteria{Text: msg, IDKey: "policy_id", IDs: []string{"p1", "p2"}})
		Expect(res.Complete()).To(BeTrue())
		Expect(res.Last).ToNot(BeNil())
		Expect(res.Last.Timestamp.Unix()).To(Equal(int64(1650000011)))
	})

	It("should match substrings unless exact matching is requested", func() {
		lines := []string{line(map[string]any{"msg": "agent subscribed to group", "group_name": "g1", "ts": 1650000010})}

		sub := logscan.Scan(lines, logscan.Criteria{Text: "subscribed", IDKey: "group_name", IDs: []string{"g1"}})
		Expect(sub.Complete()).To(BeTrue())

		exact := logscan.Scan(lines, logscan.Criteria{Text: "subscribed", Exact: true, IDKey: "group_name", IDs: []string{"g1"}})
		Expect(exact.Complete()).To(BeFalse())
	})

	It("should match any line when no ids are expected", func() {
		lines := []string{line(map[string]any{"msg": "backend started", "ts": "2022-04-15T05:20:01Z"})}
		res := logscan.Scan(lines, logscan.Criteria{Text: "backend started"})
		Expect(res.Complete()).To(BeTrue())
		Expect(res.Found.Has(logscan.AnyID)).To(BeTrue())
	})
})

var _ = Describe("ScanAll", func() {
	// Given a stop line and a backend removal line after the considered timestamp
	// When we scan for both in one pass
	// Then both criteria complete
	It("should evaluate several criteria in one pass", func() {
		since := time.Unix(1650000000, 0)
		lines := []string{
			line(map[string]any{"log": "policy [p]: stopping", "ts": 1649999999}),
			line(map[string]any{"log": "policy [p]: stopping", "ts": 1650000005}),
			line(map[string]any{"log": "DELETE /api/v1/policies/p 200", "ts": "2022-04-15T05:20:06Z"}),
		}

		res := logscan.ScanAll(lines,
			logscan.Criteria{Text: "policy [p]: stopping", TextKey: logscan.LogKey, Since: since},
			logscan.Criteria{Text: "DELETE /api/v1/policies/p 200", TextKey: logscan.LogKey, Since: since},
		)

		Expect(res).To(HaveLen(2))
		Expect(res[0].Complete()).To(BeTrue())
		Expect(res[0].Last.Timestamp.Unix()).To(Equal(int64(1650000005)))
		Expect(res[1].Complete()).To(BeTrue())
	})
})

var _ = Describe("Lines", func() {
	It("should split and drop blank lines", func() {
		Expect(logscan.Lines("a\r\n\n  \nb\n")).To(Equal([]string{"a", "b"}))
	})
})
