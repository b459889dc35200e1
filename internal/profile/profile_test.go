package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		profile *Profile
		wantErr bool
	}{
		{"postgres with dsn", &Profile{Mode: "dev", Driver: "postgres", DSN: "postgres://localhost/firemark", EmbeddingDim: 1536}, false},
		{"postgres without dsn", &Profile{Mode: "dev", Driver: "postgres", EmbeddingDim: 1536}, true},
		{"unsupported driver", &Profile{Mode: "dev", Driver: "mysql", DSN: "x", EmbeddingDim: 1536}, true},
		{"zero dimension", &Profile{Mode: "dev", Driver: "postgres", DSN: "x", EmbeddingDim: 0}, true},
		{"negative dimension", &Profile{Mode: "dev", Driver: "postgres", DSN: "x", EmbeddingDim: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestProfile_Validate_UnknownModeFallsBackToDemo(t *testing.T) {
	p := &Profile{Mode: "staging", Driver: "postgres", DSN: "x", EmbeddingDim: 1536}

	require.NoError(t, p.Validate())
	assert.Equal(t, "demo", p.Mode)
}

func TestProfile_Validate_DefaultsTimeoutAndRPS(t *testing.T) {
	p := &Profile{Mode: "dev", Driver: "postgres", DSN: "x", EmbeddingDim: 1536}

	require.NoError(t, p.Validate())
	assert.Equal(t, 30, p.EmbeddingTimeout)
	assert.Equal(t, 10, p.EmbeddingRPS)
}

func TestProfile_Validate_SqliteDefaultsDSN(t *testing.T) {
	p := &Profile{Mode: "dev", Driver: "sqlite", Data: t.TempDir(), EmbeddingDim: 1536}

	require.NoError(t, p.Validate())
	assert.Contains(t, p.DSN, "firemark_dev.db")
}

func TestProfile_FromEnv(t *testing.T) {
	t.Setenv("FIREMARK_EMBEDDING_PROVIDERS", `[{"url": "https://a", "key": "k"}]`)
	t.Setenv("FIREMARK_EMBEDDING_DIM", "768")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, `[{"url": "https://a", "key": "k"}]`, p.EmbeddingProviders)
	assert.Equal(t, 768, p.EmbeddingDim)
	assert.Equal(t, 30, p.EmbeddingTimeout)
}

func TestProfile_IsDev(t *testing.T) {
	assert.True(t, (&Profile{Mode: "dev"}).IsDev())
	assert.True(t, (&Profile{Mode: "demo"}).IsDev())
	assert.False(t, (&Profile{Mode: "prod"}).IsDev())
}
