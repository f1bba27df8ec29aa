package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("COGNITO_USER_POOL_ID", "us-east-1_TEST")
	t.Setenv("COGNITO_CLIENT_ID", "client-id")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.False(t, cfg.Server.IsProduction())
	assert.Equal(t, "free", cfg.DefaultPlan)
	assert.Equal(t, "trialing", cfg.DefaultPlanStatus)
	assert.Equal(t, "predictium-predictions", cfg.S3.Bucket)
}

func TestLoadMissingRequired(t *testing.T) {
	// t.Setenv registers the restore; unsetting afterwards makes the
	// variable genuinely absent for the required check.
	for _, key := range []string{
		"COGNITO_USER_POOL_ID", "COGNITO_CLIENT_ID",
		"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	_, err := Load()
	assert.Error(t, err)
}

func TestCognitoEndpoints(t *testing.T) {
	cfg := CognitoConfig{UserPoolID: "us-east-1_ABC", Region: "us-east-1"}
	assert.Equal(t, "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_ABC", cfg.Issuer())
	assert.Equal(t, "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_ABC/.well-known/jwks.json", cfg.JWKSURL())
}

func TestCORSOrigins(t *testing.T) {
	cfg := ServerConfig{AllowedOrigins: "http://localhost:3000, https://app.predictium.example ,"}
	assert.Equal(t, []string{"http://localhost:3000", "https://app.predictium.example"}, cfg.CORSOrigins())
}
