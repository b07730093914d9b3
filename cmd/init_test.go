package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/pixeldrift/photosync/pkg/config"
)

// runCommand executes the CLI with the given arguments against a fresh
// command tree, capturing combined output.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInitProvisionsDevice(t *testing.T) {
	library := t.TempDir()
	remote := t.TempDir()
	media := t.TempDir()

	_, err := runCommand(t, "init",
		"--library", library,
		"--name", "test-device",
		"--backend", "local",
		"--remote-root", remote,
		"--scan-root", media,
	)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}

	cfg, err := config.Load(library)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := uuid.Parse(cfg.Device.ID); err != nil {
		t.Errorf("device ID %q is not a UUID: %v", cfg.Device.ID, err)
	}
	if cfg.Device.Name != "test-device" {
		t.Errorf("device name = %q, want test-device", cfg.Device.Name)
	}
	if cfg.Remote.Backend != "local" || cfg.Remote.Root != remote {
		t.Errorf("remote not configured: %+v", cfg.Remote)
	}
	if len(cfg.Scan.Roots) != 1 || cfg.Scan.Roots[0] != media {
		t.Errorf("scan roots = %v, want [%s]", cfg.Scan.Roots, media)
	}
}

func TestInitKeepsDeviceIdentity(t *testing.T) {
	library := t.TempDir()

	if _, err := runCommand(t, "init", "--library", library, "--name", "first"); err != nil {
		t.Fatalf("first init failed: %v", err)
	}
	first, err := config.Load(library)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := runCommand(t, "init", "--library", library, "--name", "renamed"); err != nil {
		t.Fatalf("second init failed: %v", err)
	}
	second, err := config.Load(library)
	if err != nil {
		t.Fatal(err)
	}

	if second.Device.ID != first.Device.ID {
		t.Errorf("device ID changed across init runs: %s -> %s", first.Device.ID, second.Device.ID)
	}
	if second.Device.Name != "renamed" {
		t.Errorf("device name = %q, want renamed", second.Device.Name)
	}
}

func TestInitMergesScanRoots(t *testing.T) {
	library := t.TempDir()
	rootA := t.TempDir()
	rootB := t.TempDir()

	if _, err := runCommand(t, "init", "--library", library, "--scan-root", rootA); err != nil {
		t.Fatal(err)
	}
	if _, err := runCommand(t, "init", "--library", library, "--scan-root", rootA, "--scan-root", rootB); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(library)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Scan.Roots) != 2 {
		t.Errorf("scan roots = %v, want the two distinct roots", cfg.Scan.Roots)
	}
}

func TestConfigFileLandsInLibrary(t *testing.T) {
	library := t.TempDir()
	if _, err := runCommand(t, "init", "--library", library); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(library, config.ConfigFileName)
	if _, err := config.Load(library); err != nil {
		t.Fatalf("generated config at %s does not load: %v", cfgPath, err)
	}
}
