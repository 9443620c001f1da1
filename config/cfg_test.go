package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfiguration_NoFile(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() with empty path error = %v", err)
	}

	if cfg.Version != 1 {
		t.Errorf("Default config version = %d, want 1", cfg.Version)
	}
	if !cfg.Book.Layout.IsExcluded("nav.xhtml") {
		t.Error("Default layout must exclude nav.xhtml")
	}
	if !cfg.Book.Layout.IsTocExcluded("cover.xhtml") {
		t.Error("Default layout must keep cover.xhtml out of navigation")
	}
	if !cfg.Book.Layout.IsPinned("copyright.xhtml") {
		t.Error("Default layout must pin copyright.xhtml")
	}
}

func TestLoadConfiguration_WithFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `version: 1
book:
  layout:
    exclude: [nav.xhtml, intro.xhtml]
    toc_exclude: [nav.xhtml]
    pinned_top: [intro.xhtml]
  fix:
    localization_credit: "<p>Localization: The Team</p>"
  package:
    fix_zip: true
    output_name_template: "{{.Track}}-{{.Date}}.epub"
logging:
  console:
    level: normal
  file:
    level: debug
    destination: /tmp/test.log
    mode: append
reporting:
  destination: /tmp/test-report.zip
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfiguration(configPath)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}

	if !cfg.Book.Layout.IsExcluded("intro.xhtml") {
		t.Error("Expected intro.xhtml to be excluded")
	}
	if cfg.Book.Layout.IsExcluded("cover.xhtml") {
		t.Error("Overlay replaces the exclusion set, cover.xhtml must not linger")
	}
	if !cfg.Book.Package.FixZip {
		t.Error("Expected FixZip to be true")
	}
	if cfg.Book.Package.OutputNameTemplate != "{{.Track}}-{{.Date}}.epub" {
		t.Errorf("OutputNameTemplate = %q", cfg.Book.Package.OutputNameTemplate)
	}
	if cfg.Book.Fix.LocalizationCredit != "<p>Localization: The Team</p>" {
		t.Errorf("LocalizationCredit = %q", cfg.Book.Fix.LocalizationCredit)
	}
}

func TestLoadConfiguration_NonExistentFile(t *testing.T) {
	if _, err := LoadConfiguration("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for nonexistent file")
	}
}

func TestLoadConfiguration_UnknownFields(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "unknown.yaml")

	configWithUnknown := `version: 1
unknown_field: value
`
	if err := os.WriteFile(configPath, []byte(configWithUnknown), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := LoadConfiguration(configPath); err == nil {
		t.Error("Expected error for unknown fields")
	}
}

func TestLoadConfiguration_ValidationError(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_values.yaml")

	configWithInvalidVersion := `version: 2
`
	if err := os.WriteFile(configPath, []byte(configWithInvalidVersion), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := LoadConfiguration(configPath); err == nil {
		t.Error("Expected validation error for invalid version")
	}
}

func TestPrepare(t *testing.T) {
	data, err := Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if len(data) == 0 {
		t.Error("Prepare() returned empty configuration")
	}
}

func TestDumpRoundTrip(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	data, err := Dump(cfg)
	if err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	if _, err := unmarshalConfig(data, &Config{}, false); err != nil {
		t.Errorf("dumped configuration does not decode: %v", err)
	}
}
