package facematch

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Alice", "Alice"},
		{"  Bob Smith  ", "Bob Smith"},
		{"Jean-Luc_Picard", "Jean-Luc_Picard"},
		{"../../etc/passwd", "etcpasswd"},
		{"Zoë Čapek", "Zoë Čapek"},
		{"Anna (2024)!", "Anna 2024"},
		{"   ", ""},
		{"***", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := SanitizeName(tt.input); got != tt.expected {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func newPortrait(t *testing.T, dir string, index int) PortraitRecord {
	t.Helper()
	path := filepath.Join(dir, PortraitFilename(index))
	if err := os.WriteFile(path, []byte{byte(index)}, 0o644); err != nil {
		t.Fatal(err)
	}
	return PortraitRecord{Index: index, Path: path}
}

func TestRenamePortrait(t *testing.T) {
	dir := t.TempDir()
	rec := newPortrait(t, dir, 0)

	renamed, err := RenamePortrait(rec, " Alice! ", false)
	if err != nil {
		t.Fatalf("RenamePortrait() error: %v", err)
	}
	if renamed.Path != filepath.Join(dir, "Alice.jpg") {
		t.Errorf("unexpected path %s", renamed.Path)
	}
	if renamed.Index != 0 {
		t.Errorf("index should not change, got %d", renamed.Index)
	}
	if _, err := os.Stat(rec.Path); !os.IsNotExist(err) {
		t.Error("old portrait file should be gone")
	}

	again, err := RenamePortrait(renamed, "Alice", false)
	if err != nil {
		t.Errorf("renaming to the same name should be a no-op, got %v", err)
	}
	if again.Path != renamed.Path {
		t.Errorf("path changed on no-op rename: %s", again.Path)
	}
}

func TestRenamePortrait_Errors(t *testing.T) {
	dir := t.TempDir()
	first := newPortrait(t, dir, 0)
	second := newPortrait(t, dir, 1)

	if _, err := RenamePortrait(first, "?!", false); !errors.Is(err, ErrEmptyName) {
		t.Errorf("expected ErrEmptyName, got %v", err)
	}

	if _, err := RenamePortrait(first, "Bob", false); err != nil {
		t.Fatalf("RenamePortrait() error: %v", err)
	}
	if _, err := RenamePortrait(second, "Bob", false); !errors.Is(err, ErrNameTaken) {
		t.Errorf("expected ErrNameTaken, got %v", err)
	}
	if _, err := os.Stat(second.Path); err != nil {
		t.Error("portrait should be untouched after a refused rename")
	}

	renamed, err := RenamePortrait(second, "Bob", true)
	if err != nil {
		t.Fatalf("overwrite rename failed: %v", err)
	}
	data, err := os.ReadFile(renamed.Path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 1 || data[0] != 1 {
		t.Error("overwrite should replace the existing file with the renamed portrait")
	}
}
