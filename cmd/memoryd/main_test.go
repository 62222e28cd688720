package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"serve", "migrate", "doctor", "consolidate-run"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestResolveConfigPath(t *testing.T) {
	if got := resolveConfigPath("custom.yaml"); got != "custom.yaml" {
		t.Errorf("resolveConfigPath(custom.yaml) = %q, want custom.yaml", got)
	}
	t.Setenv("CORTEX_CONFIG", "")
	if got := resolveConfigPath(""); got != "cortex.yaml" {
		t.Errorf("resolveConfigPath(\"\") = %q, want cortex.yaml", got)
	}
	t.Setenv("CORTEX_CONFIG", "from-env.yaml")
	if got := resolveConfigPath(""); got != "from-env.yaml" {
		t.Errorf("resolveConfigPath(\"\") with env = %q, want from-env.yaml", got)
	}
}
