package config

import (
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default("acme")
	if cfg.Tenant.ID != "acme" {
		t.Fatalf("tenant id: %q", cfg.Tenant.ID)
	}
	if cfg.Board.DefaultStatus != "Out" {
		t.Fatalf("default status: %q", cfg.Board.DefaultStatus)
	}
	if cfg.Board.BannerRotationSeconds != 10 {
		t.Fatalf("banner rotation: %d", cfg.Board.BannerRotationSeconds)
	}
	if len(cfg.Statuses) == 0 || cfg.Statuses[0] != "In" {
		t.Fatalf("statuses: %v", cfg.Statuses)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte(`
tenant:
  id: acme
  company_name: Acme Inc
board:
  default_status: In
statuses:
  - In
  - Out
webhooks:
  - url: https://example.com/hook
    events: ["employee.status.resolved"]
    timeout_seconds: 3
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Board.DefaultStatus != "In" {
		t.Fatalf("default status: %q", cfg.Board.DefaultStatus)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].TimeoutSeconds != 3 {
		t.Fatalf("webhooks: %+v", cfg.Webhooks)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing tenant id",
			yaml: "tenant:\n  company_name: Acme\n",
			want: "tenant.id",
		},
		{
			name: "duplicate statuses",
			yaml: "tenant:\n  id: acme\n  company_name: Acme\nstatuses: [In, In]\n",
			want: "duplicate",
		},
		{
			name: "empty status label",
			yaml: "tenant:\n  id: acme\n  company_name: Acme\nstatuses: [In, \"\"]\n",
			want: "empty",
		},
		{
			name: "webhook without url",
			yaml: "tenant:\n  id: acme\n  company_name: Acme\nwebhooks:\n  - events: [\"*\"]\n",
			want: "url",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tc.yaml))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
