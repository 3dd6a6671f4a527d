package prereq

import (
	"net/url"
	"path"
	"strings"

	"m365prov/internal/facts"
	"m365prov/pkg/graph"
)

// Check is a read-only existence query: a Graph list call whose items are
// exposed to the mapping as {"items": [...]}.
type Check struct {
	Path  string
	Query url.Values
	Fact  facts.Mapping
}

type Prerequisite struct {
	Name  Name
	Title string
	Check *Check // nil for Unimplemented prerequisites
}

// SecurityGroupNames are the role groups created by entra/Security-Groups.
var SecurityGroupNames = []string{
	"SG-Global-Admins",
	"SG-Entra-Admins",
	"SG-Intune-Admins",
	"SG-Exchange-Admins",
	"SG-SharePoint-Admins",
	"SG-Security-Admins",
	"SG-Compliance-Admins",
	"SG-BreakGlass-Exclusions",
}

// DeviceGroupNames are the dynamic device groups created by intune/Device-Groups.
var DeviceGroupNames = []string{
	"DG-Windows-Corporate",
	"DG-Windows-Autopilot",
	"DG-iOS-Corporate",
	"DG-Android-Corporate",
	"DG-macOS-Corporate",
}

// Catalog lists every prerequisite in display order.
func Catalog() []Prerequisite {
	return []Prerequisite{
		{
			Name:  SecurityGroups,
			Title: "Security Groups",
			Check: &Check{
				Path:  "groups",
				Query: groupQuery(SecurityGroupNames),
				Fact:  facts.Mapping{Path: "items[?securityEnabled].displayName", Transform: "covers", TransformArgs: anys(SecurityGroupNames)},
			},
		},
		{
			Name:  DeviceGroups,
			Title: "Device Groups",
			Check: &Check{
				Path:  "groups",
				Query: groupQuery(DeviceGroupNames),
				Fact:  facts.Mapping{Path: "items[?contains(groupTypes, 'DynamicMembership')].displayName", Transform: "covers", TransformArgs: anys(DeviceGroupNames)},
			},
		},
		{Name: SensitivityLabels, Title: "Sensitivity Labels"},
	}
}

// steps maps a menu action to the prerequisites it depends on.
var steps = map[string][]Name{
	"ConditionalAccess":     {SecurityGroups},
	"CompliancePolicies":    {DeviceGroups},
	"ConfigurationPolicies": {DeviceGroups},
	"AutopilotConfig":       {DeviceGroups},
	"RetentionPolicies":     {SensitivityLabels},
}

// satisfiedBy maps an artifact path (extension and case ignored) to the
// prerequisites a successful run establishes.
var satisfiedBy = map[string][]Name{
	"entra/security-groups": {SecurityGroups},
	"intune/device-groups":  {DeviceGroups},
}

func pathKey(p string) string {
	p = strings.ToLower(strings.Trim(p, "/"))
	return strings.TrimSuffix(p, path.Ext(p))
}

func groupQuery(names []string) url.Values {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = graph.ODataQuote(n)
	}
	q := url.Values{}
	q.Set("$filter", "displayName in ("+strings.Join(quoted, ",")+")")
	q.Set("$select", "id,displayName,securityEnabled,groupTypes")
	return q
}

func anys(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
