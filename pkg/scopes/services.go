package scopes

import (
	"fmt"
	"strings"
)

// Service is a logical service area; each has its own menu and scope set.
type Service string

const (
	Entra      Service = "Entra"
	Intune     Service = "Intune"
	Exchange   Service = "Exchange"
	SharePoint Service = "SharePoint"
	Security   Service = "Security"
	Purview    Service = "Purview"
)

// Services lists every service in menu order.
var Services = []Service{Entra, Intune, Exchange, SharePoint, Security, Purview}

func ParseService(s string) (Service, error) {
	for _, svc := range Services {
		if strings.EqualFold(string(svc), strings.TrimSpace(s)) {
			return svc, nil
		}
	}
	return "", fmt.Errorf("unknown service %q", s)
}

// serviceScopeMap is the immutable service -> Graph scope table. Order is the
// order scopes are requested in; it does not matter for comparison.
var serviceScopeMap = map[Service][]string{
	Entra: {
		"User.Read.All",
		"Group.ReadWrite.All",
		"Directory.ReadWrite.All",
		"Policy.Read.All",
		"Policy.ReadWrite.ConditionalAccess",
		"Application.Read.All",
		"RoleManagement.ReadWrite.Directory",
	},
	Intune: {
		"User.Read.All",
		"Group.ReadWrite.All",
		"Directory.Read.All",
		"DeviceManagementConfiguration.ReadWrite.All",
		"DeviceManagementServiceConfig.ReadWrite.All",
		"DeviceManagementManagedDevices.ReadWrite.All",
	},
	Exchange: {
		"User.Read.All",
		"Group.ReadWrite.All",
		"Directory.Read.All",
		"Mail.ReadWrite",
		"MailboxSettings.ReadWrite",
	},
	SharePoint: {
		"User.Read.All",
		"Sites.FullControl.All",
		"SharePointTenantSettings.ReadWrite.All",
	},
	Security: {
		"User.Read.All",
		"Group.Read.All",
		"SecurityEvents.ReadWrite.All",
		"ThreatSubmission.ReadWrite.All",
	},
	Purview: {
		"User.Read.All",
		"Group.Read.All",
		"RecordsManagement.ReadWrite.All",
		"InformationProtectionPolicy.Read",
	},
}

// Required returns the scope set a service menu needs.
func Required(svc Service) Set { return New(serviceScopeMap[svc]...) }

// Ordered returns the scopes of svc in table order (a copy).
func Ordered(svc Service) []string {
	return append([]string(nil), serviceScopeMap[svc]...)
}

// Baseline is requested on first connect, before any service menu is entered.
func Baseline() Set { return New("User.Read", "Group.Read.All", "Directory.Read.All") }
