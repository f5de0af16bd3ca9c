package indexer

import "fmt"

// collectionFields are the response keys scanned for resource collections.
// Field names vary per namespace; every key present on a page contributes
// items.
var collectionFields = []string{
	"Items", "items",
	"Results", "results",
	"Resources", "resources",
	"Instances", "instances",
	"Certificates", "CertificateSummaryList",
	"RestApis",
	"Buckets", "Users", "Roles", "Policies", "Groups",
	"Vpcs", "Subnets", "SecurityGroups", "RouteTables",
	"LaunchTemplates", "NetworkAcls", "NetworkInterfaces",
	"InternetGateways", "NatGateways", "TransitGateways",
	"TransitGatewayAttachments", "TransitGatewayRouteTables",
	"CustomerGateways", "DhcpOptions", "FlowLogs", "VpnConnections",
	"Addresses", "Volumes", "Fleets",
	"LoadBalancers", "TargetGroups", "Listeners",
	"MetricAlarms", "CompositeAlarms", "Alarms",
	"DBInstances", "DBClusters", "DBClusterSnapshots", "DBSnapshots",
	"Functions", "Layers", "EventSourceMappings",
	"Clusters", "Services", "Tasks",
	"Repositories", "Images",
	"StackSummaries", "Stacks",
	"Keys", "Aliases", "Rules",
	"QueueUrls", "Queues",
	"Addons",
	"BackupPlansList", "BackupVaultList",
	"AutoScalingGroups",
	"HostedZones", "HostedZoneSummaries",
	"deploymentConfigsList",
}

// identifierFields is the lookup order for a dedup identifier, resource
// specific names before the generic ones.
var identifierFields = []string{
	"InstanceId", "NetworkInterfaceId", "VolumeId",
	"VpcId", "SubnetId", "RouteTableId",
	"SecurityGroupId", "GroupId",
	"InternetGatewayId", "NatGatewayId",
	"TransitGatewayId", "TransitGatewayAttachmentId", "TransitGatewayRouteTableId",
	"CustomerGatewayId", "DhcpOptionsId", "FlowLogId", "VpnConnectionId",
	"AllocationId", "FleetId",
	"LaunchTemplateId", "LaunchTemplateName",
	"NetworkAclId", "NetworkInsightsPathId",
	"DBInstanceIdentifier", "DBClusterIdentifier",
	"DBClusterSnapshotIdentifier", "DBSnapshotIdentifier",
	"DBSubnetGroupName", "OptionGroupName",
	"StackId", "StackName",
	"TargetGroupArn", "LoadBalancerArn", "ListenerArn",
	"CertificateArn", "TopicArn", "TrailARN",
	"TaskDefinitionArn", "CapacityProviderArn",
	"BackupPlanId", "BackupVaultName",
	"HostedZoneId", "ResolverRuleId", "DetectorId",
	"KeyId", "KeyArn", "AliasName", "AliasArn",
	"QueueUrl", "QueueName",
	"FunctionName", "TableName",
	"ClusterName", "ServiceName",
	"AutoScalingGroupName", "KeyspaceName",
	"RestApiId", "BucketName",
	"UserId", "UserName", "RoleName", "GroupName", "PolicyName",
	"AlarmName", "RuleName", "AddonName",
	"deploymentConfigName", "DeploymentConfigName",
	"repositoryName", "RepositoryName",
	"SecretId",
	"Id", "id",
	"Arn", "arn", "ARN",
	"Name",
}

// singleResourceFields mark a page as describing exactly one resource when no
// collection field matched.
var singleResourceFields = []string{
	"CertificateArn", "RestApiId", "BucketName",
	"UserId", "RoleName", "InstanceId", "VpcId",
}

// nestedCollection lifts resources buried one level inside another
// collection.
type nestedCollection struct {
	outer string
	inner string
	id    string
}

// nestedCollections is keyed by "namespace:operation".
var nestedCollections = map[string]nestedCollection{
	// Instance listings group instances under their launch reservations.
	"ec2:DescribeInstances": {outer: "Reservations", inner: "Instances", id: "InstanceId"},
}

// countResources counts the distinct resources across all pages of a
// payload. A page with no recognized collection and no single-resource
// marker contributes nothing; an undeterminable payload counts zero rather
// than one.
func countResources(namespace, operation string, payload map[string]any, filter ResourceFilter) int {
	seen := make(map[string]struct{})
	nested, hasNested := nestedCollections[namespace+":"+operation]

	single := false
	for _, page := range pagesOf(payload) {
		if hasNested && collectNested(page, nested, seen) {
			continue
		}

		found := false
		for _, field := range collectionFields {
			raw, ok := page[field]
			if !ok {
				continue
			}
			list, ok := raw.([]any)
			if !ok {
				continue
			}
			found = true
			for _, entry := range list {
				switch item := entry.(type) {
				case string:
					seen[item] = struct{}{}
				case map[string]any:
					if filter != nil && !filter(operation, item) {
						continue
					}
					seen[identify(item)] = struct{}{}
				}
			}
		}

		if !found && hasSingleResourceMarker(page) {
			single = true
		}
	}

	if len(seen) > 0 {
		return len(seen)
	}
	if single {
		return 1
	}
	return 0
}

func collectNested(page map[string]any, nested nestedCollection, seen map[string]struct{}) bool {
	raw, ok := page[nested.outer]
	if !ok {
		return false
	}
	outer, ok := raw.([]any)
	if !ok {
		return false
	}
	for _, entry := range outer {
		group, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		inner, ok := group[nested.inner].([]any)
		if !ok {
			continue
		}
		for _, e := range inner {
			item, ok := e.(map[string]any)
			if !ok {
				continue
			}
			if id, ok := item[nested.id].(string); ok && id != "" {
				seen[id] = struct{}{}
			}
		}
	}
	return true
}

// identify picks the dedup key for one item: the first known identifier
// field, falling back to the item's full rendering.
func identify(item map[string]any) string {
	for _, field := range identifierFields {
		if raw, ok := item[field]; ok {
			if s := fmt.Sprintf("%v", raw); s != "" {
				return s
			}
		}
	}
	return fmt.Sprintf("%v", item)
}

func hasSingleResourceMarker(page map[string]any) bool {
	for _, field := range singleResourceFields {
		if _, ok := page[field]; ok {
			return true
		}
	}
	return false
}

// pagesOf unwraps a paginated or follow-up aggregate into its constituent
// pages; a plain response is its own single page.
func pagesOf(payload map[string]any) []map[string]any {
	for _, key := range []string{"pages", "results"} {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		list, ok := raw.([]any)
		if !ok {
			continue
		}
		var pages []map[string]any
		for _, entry := range list {
			if m, ok := entry.(map[string]any); ok {
				pages = append(pages, m)
			}
		}
		if len(pages) > 0 {
			return pages
		}
	}
	return []map[string]any{payload}
}
