package credentials

import (
	"os"

	"github.com/duckstack/duckstack/pkg/models"
)

// Resolver picks the token to inject into an upstream request.
type Resolver struct {
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// New returns a Resolver backed by the process environment.
func New() *Resolver {
	return &Resolver{LookupEnv: os.LookupEnv}
}

// Resolve returns the token for src, or "" when none is configured.
// A literal override wins over the environment; an unbound environment
// variable yields "".
func (r *Resolver) Resolve(src *models.SourceDefinition) string {
	if src.APIKeyOverride != "" {
		return src.APIKeyOverride
	}
	if src.AuthEnvVar == "" {
		return ""
	}
	lookup := r.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, _ := lookup(src.AuthEnvVar)
	return v
}
