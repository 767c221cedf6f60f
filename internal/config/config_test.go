package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "")
	t.Setenv("ALLOW_SELF_TRANSFER", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected default token ttl 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.AllowSelfTransfer {
		t.Fatalf("self transfer must be disallowed by default")
	}
}

func TestLoadParsesSelfTransferFlag(t *testing.T) {
	for _, val := range []string{"1", "true", "TRUE", "yes", "on"} {
		t.Setenv("ALLOW_SELF_TRANSFER", val)
		if !Load().AllowSelfTransfer {
			t.Fatalf("expected %q to enable self transfer", val)
		}
	}
	t.Setenv("ALLOW_SELF_TRANSFER", "false")
	if Load().AllowSelfTransfer {
		t.Fatalf("expected false to disable self transfer")
	}
}

func TestAddress(t *testing.T) {
	t.Setenv("PORT", "9102")
	if got := Load().Address(); got != ":9102" {
		t.Fatalf("expected :9102, got %q", got)
	}
}
