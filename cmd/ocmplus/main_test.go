package main

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
)

func TestOcmplusCommand(t *testing.T) {
	command := newOcmplusCommand()
	if command.Use != "ocmplus" {
		t.Errorf("Expected Use to be 'ocmplus', got %q", command.Use)
	}

	expected := []string{
		"addon", "feature", "cluster-proxy", "managedcluster-info", "managed-serviceaccount",
		"managed-serviceaccount-rbac", "policyset", "import", "import-eks", "inventory", "version",
	}
	for _, name := range expected {
		sub, _, err := command.Find([]string{name})
		if err != nil || sub.Name() != name {
			t.Errorf("Expected subcommand %q, got %v", name, err)
		}
	}

	for alias, name := range map[string]string{
		"managedcluster-addon":     "addon",
		"cluster-management-addon": "feature",
	} {
		sub, _, err := command.Find([]string{alias})
		if err != nil || sub.Name() != name {
			t.Errorf("Expected alias %q of %q, got %v", alias, name, err)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	command := newOcmplusCommand()
	out := &bytes.Buffer{}
	command.SetArgs([]string{"version"})
	command.SetOut(out)
	command.SetErr(io.Discard)
	if err := command.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info := map[string]interface{}{}
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("unexpected output %q: %v", out.String(), err)
	}
	if info["gitVersion"] != "v0.0.0-unset" {
		t.Errorf("unexpected version %v", info)
	}
}
