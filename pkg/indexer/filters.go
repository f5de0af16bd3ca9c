package indexer

import "strings"

// ResourceFilter decides whether one collection item counts as an inventoried
// resource. Returning false drops the item before deduplication.
type ResourceFilter func(operation string, item map[string]any) bool

// DefaultFilters returns the built-in per-namespace filters.
func DefaultFilters() map[string]ResourceFilter {
	return map[string]ResourceFilter{
		"iam":            notServiceManaged,
		"cloudformation": notDeletedStack,
		"docdb":          engineFilter("docdb"),
		"neptune":        engineFilter("neptune"),
	}
}

// notServiceManaged drops identity resources owned by the platform rather
// than the account: managed policies and service-linked roles.
func notServiceManaged(_ string, item map[string]any) bool {
	arn := firstString(item, "Arn", "arn", "ARN")
	if strings.Contains(arn, ":iam::aws:") {
		return false
	}
	if strings.Contains(arn, "/aws-service-role/") || strings.Contains(arn, "/service-role/") {
		return false
	}
	path := firstString(item, "Path", "path")
	if strings.HasPrefix(path, "/aws-service-role/") || strings.HasPrefix(path, "/service-role/") {
		return false
	}
	return true
}

// notDeletedStack drops stacks in any DELETE_* state; deleted stacks remain
// listable for a while but are not live resources.
func notDeletedStack(_ string, item map[string]any) bool {
	status := firstString(item, "StackStatus")
	return !strings.HasPrefix(status, "DELETE_")
}

// engineFilter keeps only items whose Engine matches the namespace's own
// engine. Cluster listings for document and graph databases include entries
// from sibling engines sharing the same control plane.
func engineFilter(engine string) ResourceFilter {
	return func(_ string, item map[string]any) bool {
		e := strings.ToLower(firstString(item, "Engine"))
		if !strings.Contains(e, engine) {
			return false
		}
		if status := strings.ToLower(firstString(item, "DBInstanceStatus")); status != "" {
			for _, dead := range []string{"deleted", "deleting", "failed"} {
				if strings.Contains(status, dead) {
					return false
				}
			}
		}
		return true
	}
}

func firstString(item map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := item[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
