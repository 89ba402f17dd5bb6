// Package diag collects diagnostics for failed conditions: the API traffic of
// the run, through a recording RoundTripper, and a rendered Report.
package diag
