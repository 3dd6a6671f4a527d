package catalog

import (
	"m365prov/pkg/scopes"
)

// Action is one menu entry: the step name used for prerequisite gating and
// the artifact that implements it.
type Action struct {
	Step    string
	Title   string
	Service scopes.Service
	Path    string
}

var actions = []Action{
	{Step: "SecurityGroups", Title: "Security Groups", Service: scopes.Entra, Path: "entra/Security-Groups.yaml"},
	{Step: "ConditionalAccess", Title: "Conditional Access Policies", Service: scopes.Entra, Path: "entra/CA-Policies.yaml"},
	{Step: "PermissionGroups", Title: "Permission Groups", Service: scopes.Entra, Path: "entra/Permission-Groups.yaml"},

	{Step: "DeviceGroups", Title: "Device Groups", Service: scopes.Intune, Path: "intune/Device-Groups.yaml"},
	{Step: "CompliancePolicies", Title: "Compliance Policies", Service: scopes.Intune, Path: "intune/Compliance-Policies.yaml"},
	{Step: "ConfigurationPolicies", Title: "Configuration Policies", Service: scopes.Intune, Path: "intune/Configuration-Policies.yaml"},
	{Step: "AutopilotConfig", Title: "Autopilot Configuration", Service: scopes.Intune, Path: "intune/Autopilot-Config.yaml"},

	{Step: "DistributionLists", Title: "Distribution Lists", Service: scopes.Exchange, Path: "exchange/Distribution-Lists.yaml"},
	{Step: "SharedMailboxes", Title: "Shared Mailboxes", Service: scopes.Exchange, Path: "exchange/Shared-MB-Creation.yaml"},

	{Step: "ExternalSharing", Title: "External Sharing", Service: scopes.SharePoint, Path: "sharepoint/External-Sharing.yaml"},

	{Step: "SafeAttachments", Title: "Safe Attachments", Service: scopes.Security, Path: "security/Safe-Attachments.yaml"},

	{Step: "RetentionPolicies", Title: "Retention Policies", Service: scopes.Purview, Path: "purview/Retention-Policies.yaml"},
}

// All returns every action in menu order.
func All() []Action {
	out := make([]Action, len(actions))
	copy(out, actions)
	return out
}

func ForService(svc scopes.Service) []Action {
	var out []Action
	for _, a := range actions {
		if a.Service == svc {
			out = append(out, a)
		}
	}
	return out
}

// ByPath finds the action an artifact path belongs to.
func ByPath(path string) (Action, bool) {
	for _, a := range actions {
		if a.Path == path {
			return a, true
		}
	}
	return Action{}, false
}
