package config

import "testing"

func TestCanonicalizeEnvKey_UsesExistingCamelCaseKeys(t *testing.T) {
	existing := map[string]any{
		"supabase": map[string]any{
			"anonKey": "",
		},
		"profileSync": map[string]any{
			"retryDelay": "1500ms",
			"cachePath":  "",
		},
		"auth": map[string]any{
			"magicLinkCooldown": "60s",
		},
	}

	tests := []struct {
		envKey string
		want   string
	}{
		{envKey: "SUPABASE_ANONKEY", want: "supabase.anonKey"},
		{envKey: "PROFILESYNC_RETRYDELAY", want: "profileSync.retryDelay"},
		{envKey: "PROFILESYNC_CACHEPATH", want: "profileSync.cachePath"},
		{envKey: "AUTH_MAGICLINKCOOLDOWN", want: "auth.magicLinkCooldown"},
		{envKey: "NEW_FEATURE_FLAG", want: "new.feature.flag"},
	}

	for _, tt := range tests {
		t.Run(tt.envKey, func(t *testing.T) {
			if got := canonicalizeEnvKey(tt.envKey, existing); got != tt.want {
				t.Fatalf("canonicalizeEnvKey(%q) = %q, want %q", tt.envKey, got, tt.want)
			}
		})
	}
}

func TestLoadWithEnv_MissingFileUsesEnvOnly(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://example.supabase.co")
	t.Setenv("SUPABASE_ANONKEY", "anon-key")

	cfg, err := LoadWithEnv[Config]("no-such-config")
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if cfg.Supabase.URL != "https://example.supabase.co" {
		t.Fatalf("Supabase.URL = %q", cfg.Supabase.URL)
	}
	if cfg.Supabase.AnonKey != "anon-key" {
		t.Fatalf("Supabase.AnonKey = %q", cfg.Supabase.AnonKey)
	}
}
