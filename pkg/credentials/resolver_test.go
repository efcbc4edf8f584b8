package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/duckstack/duckstack/pkg/models"
)

func envOf(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		src  models.SourceDefinition
		env  map[string]string
		want string
	}{
		{
			name: "override wins over environment",
			src:  models.SourceDefinition{APIKeyOverride: "literal", AuthEnvVar: "API_KEY"},
			env:  map[string]string{"API_KEY": "from-env"},
			want: "literal",
		},
		{
			name: "environment variable",
			src:  models.SourceDefinition{AuthEnvVar: "API_KEY"},
			env:  map[string]string{"API_KEY": "from-env"},
			want: "from-env",
		},
		{
			name: "unbound environment variable",
			src:  models.SourceDefinition{AuthEnvVar: "MISSING"},
			env:  map[string]string{},
			want: "",
		},
		{
			name: "nothing configured",
			src:  models.SourceDefinition{},
			env:  map[string]string{"API_KEY": "from-env"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Resolver{LookupEnv: envOf(tt.env)}
			assert.Equal(t, tt.want, r.Resolve(&tt.src))
		})
	}
}

func TestResolveProcessEnvironment(t *testing.T) {
	t.Setenv("DUCKSTACK_TEST_TOKEN", "tok-123")

	r := New()
	got := r.Resolve(&models.SourceDefinition{AuthEnvVar: "DUCKSTACK_TEST_TOKEN"})
	assert.Equal(t, "tok-123", got)
}
