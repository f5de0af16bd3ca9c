// Package catalog builds the per-namespace operation catalog: it loads the
// namespace's service model and classifies each operation as read or write,
// safe-to-call, and paginated. Only read-classified operations are retained;
// everything else is excluded up front (default-deny).
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Classification is the read/write verdict for an operation name.
type Classification string

const (
	ClassificationUnknown Classification = "unknown"
	ClassificationRead    Classification = "read"
	ClassificationWrite   Classification = "write"
)

// RuleSet is the data-driven classification table. Rules apply in order:
// exact known-read names first, then read prefixes, then write prefixes, and
// anything unmatched is write.
type RuleSet struct {
	// KnownRead lists read-only operations whose names match no read prefix.
	KnownRead []string `yaml:"known_read"`

	// ReadPrefixes are lowercase name prefixes classified as read.
	ReadPrefixes []string `yaml:"read_prefixes"`

	// WritePrefixes are lowercase name prefixes classified as write.
	WritePrefixes []string `yaml:"write_prefixes"`

	knownRead map[string]struct{}
}

// DefaultRules returns the compiled-in classification table.
func DefaultRules() *RuleSet {
	rs := &RuleSet{
		KnownRead: []string{
			"SimulateCustomPolicy",
			"SimulatePrincipalPolicy",
			"FilterLogEvents",
			"DiscoverInstances",
			"ResolveAlias",
		},
		ReadPrefixes: []string{
			"list", "describe", "get", "batchget", "batchdescribe", "scan",
			"query", "select", "head", "search", "lookup", "check", "validate",
			"estimate", "view", "fetch",
		},
		WritePrefixes: []string{
			"create", "delete", "update", "put", "modify", "add", "remove",
			"attach", "detach", "associate", "disassociate", "enable",
			"disable", "start", "stop", "terminate", "reboot", "restore",
			"copy", "invoke", "send", "publish", "authorize", "revoke", "tag",
			"untag", "register", "deregister", "import", "export", "cancel",
			"accept", "reject", "allocate", "release", "assign", "unassign",
			"purchase", "request", "reset", "rotate", "promote", "replace",
			"set", "submit", "upload", "abort", "activate", "deactivate",
			"renew", "resume", "suspend", "transfer", "grant", "merge",
		},
	}
	rs.compile()
	return rs
}

// LoadRules reads a rule set from a YAML file. The loaded table fully
// replaces the defaults so the rule set stays independently testable.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading classification rules: %w", err)
	}
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parsing classification rules %s: %w", path, err)
	}
	if len(rs.ReadPrefixes) == 0 {
		return nil, fmt.Errorf("classification rules %s declare no read prefixes", path)
	}
	rs.compile()
	return &rs, nil
}

func (rs *RuleSet) compile() {
	rs.knownRead = make(map[string]struct{}, len(rs.KnownRead))
	for _, name := range rs.KnownRead {
		rs.knownRead[name] = struct{}{}
	}
}

// Classify returns the classification for an operation name. The function is
// pure: the same name always yields the same verdict for a given rule set.
func (rs *RuleSet) Classify(name string) Classification {
	if name == "" {
		return ClassificationUnknown
	}
	if _, ok := rs.knownRead[name]; ok {
		return ClassificationRead
	}
	lower := strings.ToLower(name)
	for _, prefix := range rs.ReadPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return ClassificationRead
		}
	}
	for _, prefix := range rs.WritePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return ClassificationWrite
		}
	}
	// Unmatched names are conservatively treated as mutating.
	return ClassificationWrite
}
