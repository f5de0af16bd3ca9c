package indexer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/alejandrobarreracorrea/cloudscan/pkg/engine"
)

// Error codes that mark an operation as unavailable rather than failed.
// Envelopes carrying these are excluded from both success and failure counts.
var notAvailableCodes = map[string]struct{}{
	"OperationNotFound":    {},
	"EndpointNotAvailable": {},
	"RequestExpired":       {},
}

// OperationRecord is the indexed outcome of one executed operation.
type OperationRecord struct {
	Operation    string `json:"operation"`
	Success      bool   `json:"success"`
	Paginated    bool   `json:"paginated,omitempty"`
	NotAvailable bool   `json:"not_available,omitempty"`
	Resources    int    `json:"resources"`
}

// RegionIndex aggregates one namespace's operations within a single region.
type RegionIndex struct {
	Operations []OperationRecord `json:"operations"`
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	Resources  int               `json:"resources"`
}

// NamespaceIndex aggregates one namespace across all regions it ran in.
type NamespaceIndex struct {
	Regions              map[string]*RegionIndex `json:"regions"`
	Operations           []string                `json:"operations"`
	TotalOperations      int                     `json:"total_operations"`
	SuccessfulOperations int                     `json:"successful_operations"`
	FailedOperations     int                     `json:"failed_operations"`
	Resources            int                     `json:"resources"`
}

// Index is the per-run resource index built from persisted envelopes.
type Index struct {
	RunID           string                     `json:"run_id"`
	GeneratedAt     time.Time                  `json:"generated_at"`
	Namespaces      map[string]*NamespaceIndex `json:"namespaces"`
	Regions         []string                   `json:"regions"`
	TotalOperations int                        `json:"total_operations"`
	TotalResources  int                        `json:"total_resources"`
}

// Config tunes which namespaces are indexed and which operations contribute
// resource counts.
type Config struct {
	// PriorityOperations restricts resource counting per namespace to the
	// named operations. A namespace listed with an empty slice contributes
	// no resources at all; a namespace absent from the map falls back to
	// the listing heuristic.
	PriorityOperations map[string][]string

	// ExcludedNamespaces are dropped from the index entirely.
	ExcludedNamespaces []string

	// Filters drop collection items per namespace before counting.
	Filters map[string]ResourceFilter
}

func (c Config) withDefaults() Config {
	if c.PriorityOperations == nil {
		c.PriorityOperations = DefaultPriorityOperations()
	}
	if c.ExcludedNamespaces == nil {
		c.ExcludedNamespaces = DefaultExcludedNamespaces()
	}
	if c.Filters == nil {
		c.Filters = DefaultFilters()
	}
	return c
}

// Indexer builds resource indexes from a run's stored envelopes.
type Indexer struct {
	storage  engine.Storage
	priority map[string]map[string]struct{}
	excluded map[string]struct{}
	filters  map[string]ResourceFilter
	log      zerolog.Logger
}

// NewIndexer creates an indexer over the given storage.
func NewIndexer(storage engine.Storage, cfg Config, log zerolog.Logger) *Indexer {
	cfg = cfg.withDefaults()

	priority := make(map[string]map[string]struct{}, len(cfg.PriorityOperations))
	for ns, ops := range cfg.PriorityOperations {
		set := make(map[string]struct{}, len(ops))
		for _, op := range ops {
			set[op] = struct{}{}
		}
		priority[ns] = set
	}
	excluded := make(map[string]struct{}, len(cfg.ExcludedNamespaces))
	for _, ns := range cfg.ExcludedNamespaces {
		excluded[ns] = struct{}{}
	}

	return &Indexer{
		storage:  storage,
		priority: priority,
		excluded: excluded,
		filters:  cfg.Filters,
		log:      log.With().Str("component", "indexer").Logger(),
	}
}

// BuildIndex reads every envelope recorded for the run and aggregates them
// into an Index. Envelopes for excluded namespaces are skipped; unavailable
// operations are recorded but counted neither successful nor failed.
func (ix *Indexer) BuildIndex(ctx context.Context, runID string) (*Index, error) {
	envelopes, err := ix.storage.ListEnvelopes(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("listing envelopes for run %s: %w", runID, err)
	}
	if len(envelopes) == 0 {
		ix.log.Warn().Str("run_id", runID).Msg("no envelopes recorded for run")
	}

	index := &Index{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Namespaces:  make(map[string]*NamespaceIndex),
	}
	regions := make(map[string]struct{})

	for i := range envelopes {
		env := &envelopes[i]
		if _, skip := ix.excluded[env.Namespace]; skip {
			continue
		}

		nsIdx := index.Namespaces[env.Namespace]
		if nsIdx == nil {
			nsIdx = &NamespaceIndex{Regions: make(map[string]*RegionIndex)}
			index.Namespaces[env.Namespace] = nsIdx
		}
		regIdx := nsIdx.Regions[env.Region]
		if regIdx == nil {
			regIdx = &RegionIndex{}
			nsIdx.Regions[env.Region] = regIdx
		}
		regions[env.Region] = struct{}{}

		record := OperationRecord{
			Operation:    env.Operation,
			Success:      env.Success,
			Paginated:    env.Paginated,
			NotAvailable: isNotAvailable(env),
		}

		switch {
		case record.NotAvailable:
			// Unreachable endpoints and absent operations say nothing
			// about the inventory either way.
		case env.Success:
			nsIdx.SuccessfulOperations++
			regIdx.Successful++
			if ix.countable(env.Namespace, env.Operation) {
				record.Resources = countResources(env.Namespace, env.Operation, env.Payload, ix.filters[env.Namespace])
			}
		default:
			nsIdx.FailedOperations++
			regIdx.Failed++
		}

		regIdx.Operations = append(regIdx.Operations, record)
		regIdx.Resources += record.Resources
		nsIdx.Resources += record.Resources
		nsIdx.TotalOperations++
		index.TotalOperations++
		index.TotalResources += record.Resources
	}

	for _, nsIdx := range index.Namespaces {
		nsIdx.Operations = operationNames(nsIdx)
	}
	index.Regions = sortedKeys(regions)

	ix.log.Info().
		Str("run_id", runID).
		Int("namespaces", len(index.Namespaces)).
		Int("operations", index.TotalOperations).
		Int("resources", index.TotalResources).
		Msg("index built")
	return index, nil
}

// countable reports whether the operation contributes resource counts. A
// namespace with a priority list only counts those operations; otherwise
// listing-shaped operations count and auxiliary lookups do not.
func (ix *Indexer) countable(namespace, operation string) bool {
	if allowed, ok := ix.priority[namespace]; ok {
		_, in := allowed[operation]
		return in
	}

	lower := strings.ToLower(operation)
	if strings.HasPrefix(lower, "list") || strings.HasPrefix(lower, "describe") {
		return true
	}
	if strings.HasPrefix(lower, "get") {
		for _, hint := range []string{"apis", "tables", "instances", "clusters", "functions", "buckets", "users", "roles"} {
			if strings.Contains(lower, hint) {
				return true
			}
		}
	}
	return false
}

func isNotAvailable(env *engine.ResultEnvelope) bool {
	if env.NotAvailable {
		return true
	}
	if env.Error != nil {
		_, ok := notAvailableCodes[env.Error.Code]
		return ok
	}
	return false
}

func operationNames(nsIdx *NamespaceIndex) []string {
	seen := make(map[string]struct{})
	for _, regIdx := range nsIdx.Regions {
		for _, rec := range regIdx.Operations {
			seen[rec.Operation] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DefaultExcludedNamespaces lists namespaces with no inventoriable
// resources: billing, quota, and account-metadata surfaces.
func DefaultExcludedNamespaces() []string {
	return []string{
		"support", "pricing", "ce", "cur", "health",
		"budgets", "servicequotas", "account", "sts",
	}
}

// DefaultPriorityOperations maps namespaces to the operations whose payloads
// represent their primary resources. Restricting counting to these keeps
// auxiliary lookups (account settings, quotas, attribute reads) from
// inflating the totals.
func DefaultPriorityOperations() map[string][]string {
	return map[string][]string{
		"acm":        {"ListCertificates"},
		"apigateway": {"GetRestApis", "GetApis"},
		"s3":         {"ListBuckets"},
		"ec2": {
			"DescribeInstances", "DescribeNetworkInterfaces", "DescribeVolumes",
			"DescribeSecurityGroups", "DescribeAddresses", "DescribeRouteTables",
			"DescribeSubnets", "DescribeLaunchTemplates", "DescribeNetworkAcls",
			"DescribeNetworkInsightsPaths", "DescribeTransitGatewayRouteTables",
			"DescribeFleets", "DescribeVpcs", "DescribeInternetGateways",
			"DescribeNatGateways", "DescribeTransitGateways",
			"DescribeTransitGatewayAttachments", "DescribeCustomerGateways",
			"DescribeDhcpOptions", "DescribeFlowLogs", "DescribeVpnConnections",
		},
		"iam":            {"ListUsers", "ListRoles", "ListGroups"},
		"autoscaling":    {"DescribeAutoScalingGroups"},
		"rds":            {"DescribeDBInstances", "DescribeDBClusters", "DescribeDBClusterSnapshots", "DescribeDBSnapshots"},
		"kms":            {"ListKeys", "ListAliases"},
		"events":         {"ListRules"},
		"eks":            {"ListClusters", "ListAddons"},
		"docdb":          {"DescribeDBClusters"},
		"neptune":        {"DescribeDBClusters"},
		"memorydb":       {"DescribeClusters"},
		"opensearch":     {"ListDomainNames"},
		"redshift":       {"DescribeClusters"},
		"elasticache":    {"DescribeCacheClusters", "DescribeReplicationGroups"},
		"lambda":         {"ListFunctions"},
		"cloudformation": {"ListStacks"},
		"ecs":            {"ListClusters", "ListServices"},
		"dynamodb":       {"ListTables"},
		"sns":            {"ListTopics"},
		"sqs":            {"ListQueues"},
		"kinesis":        {"ListStreams"},
		"elbv2":          {"DescribeLoadBalancers", "DescribeTargetGroups", "DescribeListeners"},
		"route53":        {"ListHostedZones"},
		"cloudfront":     {"ListDistributions"},
		"wafv2":          {"ListWebACLs"},
		"guardduty":      {"ListDetectors"},
		"securityhub":    {"GetFindings"},
		"config":         {"ListDiscoveredResources", "GetDiscoveredResourceCounts", "SelectResourceConfig"},
		"cloudtrail":     {"ListTrails"},
		"backup":         {"ListBackupVaults", "ListBackupPlans"},
		"secretsmanager": {"ListSecrets"},
		"ssm":            {"DescribeInstances"},
		"codecommit":     {"ListRepositories"},
		"codebuild":      {"ListProjects"},
		"codepipeline":   {"ListPipelines"},
		"codedeploy":     {"ListApplications"},
		"organizations":  {"ListAccounts"},
		"cloudwatch":     {"ListDashboards"},
		"logs":           {"DescribeLogGroups"},
		"stepfunctions":  {"ListStateMachines"},
		"batch":          {"DescribeJobQueues"},
		"glue":           {"GetDatabases", "ListJobs"},
		"athena":         {"ListDatabases", "ListWorkGroups"},
		"sagemaker":      {"ListNotebookInstances"},
		"efs":            {"DescribeFileSystems"},
		"fsx":            {"DescribeFileSystems"},
		"workspaces":     {"DescribeWorkspaces"},
		"glacier":        {"ListVaults"},
		"ses":            {"ListIdentities"},
		"appsync":        {"ListGraphqlApis"},
		"cognito-idp":    {"ListUserPools"},
	}
}
