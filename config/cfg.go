package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"slices"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	TemplateFieldName string

	// LayoutConfig pins down which xhtml files in a track's EPUB directory
	// are not stories. Keeping the set in configuration (rather than
	// inferring it from filename patterns) means a renamed or added
	// non-story page cannot be silently picked up as a story.
	LayoutConfig struct {
		Exclude []string `yaml:"exclude" validate:"dive,required"`
		// spine entries kept out of the navigation document and the NCX
		TocExclude []string `yaml:"toc_exclude" validate:"dive,required"`
		// non-story entries that stay at the top of a grouped navigation
		PinnedTop []string `yaml:"pinned_top" validate:"dive,required"`
	}

	FixConfig struct {
		// exact <p> line inserted into the metadata block on request
		LocalizationCredit string `yaml:"localization_credit"`
	}

	PackageConfig struct {
		// rewrite the finished container without data descriptors for
		// reading systems that choke on them
		FixZip             bool   `yaml:"fix_zip"`
		OutputNameTemplate string `yaml:"output_name_template"`
	}

	BookConfig struct {
		Layout  LayoutConfig  `yaml:"layout"`
		Fix     FixConfig     `yaml:"fix"`
		Package PackageConfig `yaml:"package"`
	}

	Config struct {
		Version   int            `yaml:"version" validate:"eq=1"`
		Book      BookConfig     `yaml:"book"`
		Logging   LoggingConfig  `yaml:"logging"`
		Reporting ReporterConfig `yaml:"reporting"`
	}
)

const (
	// NOTE: must match yaml field name above, alternative is to use struct
	// field name and reflection which I want to avoid for now
	OutputNameTemplateFieldName TemplateFieldName = "output_name_template"
)

var requiredOptions = append([]func(*gencfg.ProcessingOptions){},
	gencfg.WithDoNotExpandField(string(OutputNameTemplateFieldName)),
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		// sanitize and validate what has been loaded
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, append(requiredOptions, options...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	// overwrite cfg values with values from the file
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl, requiredOptions...)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %w", err)
	}
	return data, nil
}

// IsExcluded reports whether name belongs to the configured non-story set.
func (l *LayoutConfig) IsExcluded(name string) bool {
	return slices.Contains(l.Exclude, name)
}

// IsTocExcluded reports whether name stays out of navigation documents.
func (l *LayoutConfig) IsTocExcluded(name string) bool {
	return slices.Contains(l.TocExclude, name)
}

// IsPinned reports whether name stays at the top of a grouped navigation.
func (l *LayoutConfig) IsPinned(name string) bool {
	return slices.Contains(l.PinnedTop, name)
}
