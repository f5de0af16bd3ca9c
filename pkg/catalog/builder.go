package catalog

import (
	"context"
	"strings"

	"github.com/alejandrobarreracorrea/cloudscan/pkg/model"
	"github.com/rs/zerolog"
)

// OperationDescriptor is the catalog entry for one callable operation.
// Descriptors are built once per namespace per run and never mutated.
type OperationDescriptor struct {
	Name           string         `json:"name"`
	RequiredParams []model.Member `json:"required_params,omitempty"`
	OptionalParams []model.Member `json:"optional_params,omitempty"`

	// SafeToCall is true iff the operation has zero required input members.
	SafeToCall bool `json:"safe_to_call"`

	// Paginated is true iff the output shape carries a continuation token or
	// a bulk-result member.
	Paginated bool `json:"paginated"`

	Classification Classification `json:"classification"`
}

// continuation-token member names observed across service models.
var paginationTokens = map[string]struct{}{
	"NextToken":         {},
	"nextToken":         {},
	"NextPageToken":     {},
	"Marker":            {},
	"NextMarker":        {},
	"ContinuationToken": {},
}

// member names that suggest a bulk-result field.
var bulkResultNames = map[string]struct{}{
	"items":   {},
	"results": {},
	"list":    {},
	"values":  {},
}

// Builder constructs operation catalogs from service models.
type Builder struct {
	loader model.Loader
	rules  *RuleSet
	log    zerolog.Logger
}

// NewBuilder creates a catalog builder. A nil rule set uses the defaults.
func NewBuilder(loader model.Loader, rules *RuleSet, log zerolog.Logger) *Builder {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Builder{loader: loader, rules: rules, log: log}
}

// Build loads the namespace's model and returns its read-only catalog in
// discovery order. A namespace whose model cannot be loaded yields an empty
// catalog; that skips the namespace for the run but is not fatal.
func (b *Builder) Build(ctx context.Context, namespace string) ([]OperationDescriptor, error) {
	svc, err := b.loader.Load(ctx, namespace)
	if err != nil {
		b.log.Warn().Str("namespace", namespace).Err(err).Msg("service model unavailable, skipping namespace")
		return nil, nil
	}

	descriptors := make([]OperationDescriptor, 0, len(svc.Operations))
	for _, op := range svc.Operations {
		desc, ok := b.describe(op)
		if !ok {
			continue
		}
		if desc.Classification != ClassificationRead {
			continue
		}
		descriptors = append(descriptors, desc)
	}
	return descriptors, nil
}

// describe analyzes one operation shape. A malformed operation is dropped
// silently; losing one entry must not poison the namespace.
func (b *Builder) describe(op model.Operation) (OperationDescriptor, bool) {
	if op.Name == "" {
		return OperationDescriptor{}, false
	}

	required := op.RequiredInput()
	return OperationDescriptor{
		Name:           op.Name,
		RequiredParams: required,
		OptionalParams: op.OptionalInput(),
		SafeToCall:     len(required) == 0,
		Paginated:      isPaginated(op.Output),
		Classification: b.rules.Classify(op.Name),
	}, true
}

// isPaginated reports whether an output shape looks paginated: either a
// continuation-token member, or a member whose name suggests bulk results.
func isPaginated(output []model.Member) bool {
	for _, m := range output {
		if _, ok := paginationTokens[m.Name]; ok {
			return true
		}
		if _, ok := bulkResultNames[strings.ToLower(m.Name)]; ok {
			return true
		}
	}
	return false
}
