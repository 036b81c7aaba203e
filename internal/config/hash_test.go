package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateChecksumsDryRun(t *testing.T) {
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte("service:\n  name: aurras\n"), 0600); err != nil {
		t.Fatal(err)
	}

	report, err := GenerateChecksums(tmpDir, []string{"config.yaml", "extra.yaml"}, true)
	if err != nil {
		t.Fatalf("GenerateChecksums() failed: %v", err)
	}

	if report.Written {
		t.Fatal("report.Written = true, want false in dry-run")
	}
	if len(report.Files) != 2 {
		t.Fatalf("len(report.Files) = %d, want 2", len(report.Files))
	}
	if !report.Files[0].Exists || report.Files[0].Hash == "" {
		t.Fatal("config.yaml should exist with computed hash")
	}
	if report.Files[1].Exists || report.Files[1].Hash != "" {
		t.Fatal("extra.yaml should be reported as missing without hash")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, ".checksums")); !os.IsNotExist(err) {
		t.Fatal(".checksums should not be written in dry-run mode")
	}
}

func TestGenerateChecksumsRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte("service:\n  name: aurras\n"), 0600); err != nil {
		t.Fatal(err)
	}

	report, err := GenerateChecksums(tmpDir, []string{"config.yaml"}, false)
	if err != nil {
		t.Fatalf("GenerateChecksums() failed: %v", err)
	}
	if !report.Written {
		t.Fatal("report.Written = false, want true")
	}

	manifest, err := LoadChecksums(tmpDir)
	if err != nil {
		t.Fatalf("LoadChecksums() failed: %v", err)
	}
	if err := VerifyFileHash(path, manifest.Hashes["config.yaml"]); err != nil {
		t.Fatalf("VerifyFileHash() failed on untouched file: %v", err)
	}

	if err := os.WriteFile(path, []byte("service:\n  name: tampered\n"), 0600); err != nil {
		t.Fatal(err)
	}
	err = VerifyFileHash(path, manifest.Hashes["config.yaml"])
	if err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("VerifyFileHash() error = %v, want hash mismatch", err)
	}
}

func TestLoadChecksumsMissing(t *testing.T) {
	if _, err := LoadChecksums(t.TempDir()); err == nil {
		t.Fatal("expected error for missing .checksums")
	}
}
