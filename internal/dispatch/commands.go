package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"m365prov/pkg/graph"
	"m365prov/pkg/scopes"
)

const exchangeResource = "https://outlook.office365.com/.default"

// restCommand runs artifact steps against one REST surface.
type restCommand struct {
	name     string
	base     func(inv Invocation) string
	scopes   func(inv Invocation) []string
	required func(svc scopes.Service) scopes.Set
	tokens   graph.TokenSource
	http     *http.Client
	log      *zap.SugaredLogger
}

func (c *restCommand) Name() string { return c.name }

func (c *restCommand) RequiredScopes(svc scopes.Service) scopes.Set { return c.required(svc) }

func (c *restCommand) Run(ctx context.Context, inv Invocation) (map[string]any, error) {
	client := graph.New(c.base(inv), func() []string { return c.scopes(inv) }, c.tokens, c.http)
	vars := make(map[string]any, len(inv.Params)+2)
	for k, v := range inv.Params {
		vars[k] = v
	}
	vars["tenant"] = inv.Session.TenantID
	vars["principal"] = inv.Session.Principal
	return runSteps(ctx, client, inv.Artifact, vars, c.log)
}

// NewGraphCommand runs steps against Microsoft Graph (base is the versioned
// endpoint, e.g. https://graph.microsoft.com/v1.0) with the session's scopes.
func NewGraphCommand(base string, tokens graph.TokenSource, hc *http.Client, log *zap.SugaredLogger) Command {
	base = strings.TrimRight(base, "/")
	return &restCommand{
		name:     "graph",
		base:     func(Invocation) string { return base },
		scopes:   func(inv Invocation) []string { return inv.Session.Scopes.Qualified(scopes.GraphResource) },
		required: scopes.Required,
		tokens:   tokens,
		http:     hc,
		log:      log,
	}
}

// NewExchangeCommand runs steps against the Exchange Online admin API; each
// step usually posts a CmdletInput to InvokeCommand.
func NewExchangeCommand(base string, tokens graph.TokenSource, hc *http.Client, log *zap.SugaredLogger) Command {
	base = strings.TrimRight(base, "/")
	return &restCommand{
		name: "exchange",
		base: func(inv Invocation) string {
			return fmt.Sprintf("%s/adminapi/beta/%s", base, inv.Session.TenantID)
		},
		scopes:   func(Invocation) []string { return []string{exchangeResource} },
		required: func(scopes.Service) scopes.Set { return scopes.Required(scopes.Exchange) },
		tokens:   tokens,
		http:     hc,
		log:      log,
	}
}
