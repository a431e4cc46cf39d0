package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func writeSite(t *testing.T, base, dir, env string) {
	t.Helper()
	p := filepath.Join(base, dir)
	if err := os.MkdirAll(p, 0o755); err != nil {
		t.Fatal(err)
	}
	if env == "" {
		return
	}
	if err := os.WriteFile(filepath.Join(p, ".env"), []byte(env), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNormalizeDomain(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  https://Example.com///", "Example.com"},
		{"http://example.com", "example.com"},
		{"HTTPS://shop.example.com/", "shop.example.com"},
		{`"example.org"`, "example.org"},
		{`'  http://example.net/ '`, "example.net"},
		{"example.com", "example.com"},
		{"   ", ""},
		{"https:///", ""},
	}
	for _, c := range cases {
		if got := NormalizeDomain(c.in); got != c.want {
			t.Fatalf("NormalizeDomain(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestParseDeclaration(t *testing.T) {
	cases := []struct {
		name, in, want string
		ok             bool
	}{
		{"plain", "APP=x\nDOMAIN_NAME=example.com\n", "example.com", true},
		{"export", "export DOMAIN_NAME = example.com", "example.com", true},
		{"comment line", "# DOMAIN_NAME=old.example\nDOMAIN_NAME=new.example", "new.example", true},
		{"inline comment", "DOMAIN_NAME=example.com # prod", "example.com", true},
		{"quoted keeps hash", `DOMAIN_NAME="a.example #x"`, `"a.example #x"`, true},
		{"similar key", "OLD_DOMAIN_NAME=x.example", "", false},
		{"missing", "PORT=3000", "", false},
	}
	for _, c := range cases {
		got, ok := parseDeclaration([]byte(c.in), "DOMAIN_NAME")
		if ok != c.ok || got != c.want {
			t.Fatalf("%s: got (%q,%v) want (%q,%v)", c.name, got, ok, c.want, c.ok)
		}
	}
}

func TestDiscover_ExcludesAndSkips(t *testing.T) {
	base := t.TempDir()
	writeSite(t, base, "alpha", "DOMAIN_NAME=  https://Alpha.example///\n")
	writeSite(t, base, "beta", "PORT=80\nDOMAIN_NAME=beta.example\n")
	writeSite(t, base, "nginx", "DOMAIN_NAME=excluded.example\n")
	writeSite(t, base, "noenv", "")
	writeSite(t, base, "nodomain", "PORT=80\n")
	writeSite(t, base, "blank", "DOMAIN_NAME=\n")
	if err := os.WriteFile(filepath.Join(base, "loose-file"), []byte("DOMAIN_NAME=x"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewScanner(zap.NewNop(), base, []string{"nginx", "core"}, "", "")
	sites, err := s.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(sites) != 2 {
		t.Fatalf("want 2 sites, got %+v", sites)
	}
	if sites[0].ID != "alpha" || sites[0].Domain != "Alpha.example" {
		t.Fatalf("unexpected first site: %+v", sites[0])
	}
	if sites[1].ID != "beta" || sites[1].Domain != "beta.example" {
		t.Fatalf("unexpected second site: %+v", sites[1])
	}
	for _, site := range sites {
		if site.ID == "nginx" {
			t.Fatalf("excluded directory discovered: %+v", site)
		}
	}
}

func TestDiscover_UnreadableEnvIsSkipped(t *testing.T) {
	base := t.TempDir()
	writeSite(t, base, "good", "DOMAIN_NAME=good.example")
	// a directory named like the env file cannot be read as a file
	if err := os.MkdirAll(filepath.Join(base, "broken", ".env"), 0o755); err != nil {
		t.Fatal(err)
	}

	sites, err := NewScanner(zap.NewNop(), base, nil, ".env", "DOMAIN_NAME").Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(sites) != 1 || sites[0].ID != "good" {
		t.Fatalf("want only good, got %+v", sites)
	}
}

func TestDiscover_MissingBaseDir(t *testing.T) {
	s := NewScanner(zap.NewNop(), filepath.Join(t.TempDir(), "nope"), nil, "", "")
	_, err := s.Discover(context.Background())
	if !errors.Is(err, ErrBaseDir) {
		t.Fatalf("want ErrBaseDir, got %v", err)
	}
}

func TestScanner_Excluded(t *testing.T) {
	s := NewScanner(zap.NewNop(), "/x", []string{"snap", "core"}, "", "")
	got := s.Excluded()
	if len(got) != 2 || got[0] != "core" || got[1] != "snap" {
		t.Fatalf("unexpected exclusions: %q", got)
	}
}
