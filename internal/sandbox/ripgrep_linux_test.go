package sandbox

import (
	"os/exec"
	"testing"

	"github.com/Use-Tusk/fence/internal/config"
)

func TestFindDangerousFiles_MissingRipgrepIsNonFatal(t *testing.T) {
	fsCfg := config.FilesystemConfig{
		Ripgrep: &config.RipgrepConfig{Command: "definitely-not-a-real-binary"},
	}

	_, err := findDangerousFiles(t.TempDir(), fsCfg)
	if err == nil {
		t.Fatal("expected an error when ripgrep binary is missing")
	}
}

func TestFindDangerousFiles_DefaultCommandIsRg(t *testing.T) {
	fsCfg := config.FilesystemConfig{}
	if got := fsCfg.RipgrepCommand(); got != "rg" {
		t.Fatalf("RipgrepCommand() = %q, want %q", got, "rg")
	}
}

func TestFindDangerousFiles_ReportsNoDangerousFiles(t *testing.T) {
	if _, err := exec.LookPath("rg"); err != nil {
		t.Skip("ripgrep not installed in this environment")
	}

	dir := t.TempDir()
	files, err := findDangerousFiles(dir, config.FilesystemConfig{})
	if err != nil {
		t.Fatalf("findDangerousFiles returned error: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected no dangerous files in an empty dir, got %v", files)
	}
}
