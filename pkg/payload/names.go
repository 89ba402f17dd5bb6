package payload

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Name prefixes of resources created by the harness. The janitor deletes
// everything carrying one of them.
const (
	AgentPrefix   = "test_agent_name_"
	GroupPrefix   = "test_group_name_"
	PolicyPrefix  = "test_policy_name_"
	DatasetPrefix = "test_dataset_name_"
	SinkPrefix    = "test_sink_label_name_"
	TagPrefix     = "test_tag_"
	TapTagPrefix  = "testtaptag"
)

// RandomString returns n lowercase hex characters, at most 32.
func RandomString(n int) string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	return s[:min(n, len(s))]
}

// RandomName returns prefix followed by ten random characters.
func RandomName(prefix string) string {
	return prefix + RandomString(10)
}

// RandomTags returns n tags with random keys and values, all starting with prefix.
func RandomTags(n int, prefix string) map[string]string {
	tags := make(map[string]string, n)
	for len(tags) < n {
		tags[prefix+RandomString(4)] = prefix + RandomString(2)
	}
	return tags
}

// ParseTags parses "k1:v1, k2:v2".
func ParseTags(s string) (map[string]string, error) {
	tags := map[string]string{}
	if strings.TrimSpace(s) == "" {
		return tags, nil
	}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("invalid tag %q, expected key:value", pair)
		}
		tags[k] = v
	}
	return tags, nil
}

// HasPrefix reports whether name was generated with one of the harness prefixes.
func HasPrefix(name string) bool {
	for _, p := range []string{AgentPrefix, GroupPrefix, PolicyPrefix, DatasetPrefix, SinkPrefix} {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
