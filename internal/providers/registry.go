package providers

import (
	"strings"

	"simba/internal/correction/models"
	"simba/internal/correction/ports"
	"simba/internal/platform/config"
	id "simba/pkg/domain"
)

// Registry resolves a configured provider name to its client. Names are
// matched case-insensitively; an unknown name is a configuration error, not a
// caller error.
type Registry struct {
	clients map[id.ProviderName]ports.ProviderClient
}

// NewRegistry wires the standard clients from configuration. Providers with
// no configured endpoint are left unregistered so a lookup fails fast instead
// of dialing an empty URL.
func NewRegistry(cfg config.Providers) *Registry {
	r := &Registry{clients: make(map[id.ProviderName]ports.ProviderClient)}
	if cfg.AEFSEndpoint != "" {
		r.Register(id.ProviderAEFS, NewAEFS(cfg.AEFSEndpoint, cfg.CallTimeout))
	}
	if cfg.GoogleEndpoint != "" {
		r.Register(id.ProviderGoogle, NewGoogle(cfg.GoogleEndpoint, cfg.CallTimeout))
	}
	if cfg.ArcGISEndpoint != "" {
		r.Register(id.ProviderArcGIS, NewArcGIS(cfg.ArcGISEndpoint, cfg.CallTimeout))
	}
	if cfg.FindrEndpoint != "" {
		r.Register(id.ProviderFindr, NewFindr(cfg.FindrEndpoint, cfg.CallTimeout))
	}
	return r
}

// Register adds or replaces a client, normalizing the name.
func (r *Registry) Register(name id.ProviderName, client ports.ProviderClient) {
	r.clients[normalize(name)] = client
}

// Client resolves a provider name. ErrProviderNotKnown means the registry
// has configuration rows for a provider nobody wired a client for.
func (r *Registry) Client(name id.ProviderName) (ports.ProviderClient, error) {
	client, ok := r.clients[normalize(name)]
	if !ok {
		return nil, models.ErrProviderNotKnown
	}
	return client, nil
}

func normalize(name id.ProviderName) id.ProviderName {
	return id.ProviderName(strings.ToUpper(string(name)))
}
