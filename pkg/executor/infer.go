package executor

import (
	"fmt"
	"strconv"
	"strings"
)

// IdentifierHook normalizes an inferred identifier value for one namespace
// before it is used as a call parameter.
type IdentifierHook func(value string) string

// DefaultIdentifierHooks returns the built-in per-namespace normalizers.
func DefaultIdentifierHooks() map[string]IdentifierHook {
	return map[string]IdentifierHook{
		// Hosted zone identifiers are cached as "/hostedzone/Z123"; calls
		// take only the trailing segment.
		"route53": func(value string) string {
			if idx := strings.LastIndex(value, "/"); idx >= 0 {
				return value[idx+1:]
			}
			return value
		},
	}
}

// listItemFields are the collection keys checked when flattening a list
// response into cacheable items.
var listItemFields = []string{
	"Items",
	"Results",
	"Values",
	"HostedZones",
	"HostedZoneSummaries",
}

// inferValues scans the task's cached list results for values of the given
// required parameter, trying the parameter name and its common identifier
// variants on each cached item. At most MaxFollowups distinct values are
// returned, in discovery order.
func (e *Executor) inferValues(param string) []string {
	variants := keyVariants(param)
	hook := e.cfg.IdentifierHooks[e.namespace]

	var values []string
	seen := make(map[string]struct{})
	for _, operation := range e.listOrder {
		for _, item := range e.listResults[operation] {
			value, ok := lookupVariant(item, variants)
			if !ok {
				continue
			}
			if hook != nil {
				value = hook(value)
			}
			if value == "" {
				continue
			}
			if _, dup := seen[value]; dup {
				continue
			}
			seen[value] = struct{}{}
			values = append(values, value)
			if len(values) >= e.cfg.MaxFollowups {
				return values
			}
		}
	}
	return values
}

// keyVariants lists the keys tried for a parameter, most specific first.
func keyVariants(param string) []string {
	return []string{
		param,
		param + "Id",
		param + "_id",
		"Id",
		"ID",
		"id",
		"Arn",
		"ARN",
		"arn",
	}
}

func lookupVariant(item map[string]any, variants []string) (string, bool) {
	for _, key := range variants {
		raw, ok := item[key]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case string:
			if v != "" {
				return v, true
			}
		case float64:
			// JSON decoding yields float64 for numeric identifiers.
			return strconv.FormatFloat(v, 'f', -1, 64), true
		case int:
			return strconv.Itoa(v), true
		case int64:
			return strconv.FormatInt(v, 10), true
		case fmt.Stringer:
			if s := v.String(); s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// flattenItems extracts the per-item maps from a list response so sibling
// operations can infer parameters from them. Paginated payloads contribute
// every page. A page with no recognized collection field is cached as a
// single item; top-level scalar fields sometimes carry the identifier.
func flattenItems(payload map[string]any) []map[string]any {
	var items []map[string]any
	for _, page := range pagesOf(payload) {
		found := false
		for _, field := range listItemFields {
			raw, ok := page[field]
			if !ok {
				continue
			}
			list, ok := raw.([]any)
			if !ok {
				continue
			}
			for _, entry := range list {
				if m, ok := entry.(map[string]any); ok {
					items = append(items, m)
					found = true
				}
			}
			if found {
				break
			}
		}
		if !found {
			items = append(items, page)
		}
	}
	return items
}

// pagesOf returns the individual pages of a payload, whether it is a raw
// single response or a paginated aggregate.
func pagesOf(payload map[string]any) []map[string]any {
	raw, ok := payload["pages"]
	if !ok {
		return []map[string]any{payload}
	}
	list, ok := raw.([]any)
	if !ok {
		return []map[string]any{payload}
	}
	var pages []map[string]any
	for _, entry := range list {
		if m, ok := entry.(map[string]any); ok {
			pages = append(pages, m)
		}
	}
	if len(pages) == 0 {
		return []map[string]any{payload}
	}
	return pages
}
