package eagle

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// LoadSpeculativeConfig reads and strictly parses a YAML speculative
// configuration file. Strict decoding rejects unrecognized keys so
// typos fail loudly at startup instead of silently falling back to
// zero values.
func LoadSpeculativeConfig(path string) (*SpeculativeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading speculative config: %w", err)
	}
	var cfg SpeculativeConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing speculative config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Valid name registries: unexported maps backing IsValidXxx helpers and
// sorted name lists for error messages.
var (
	validAlgorithms = map[SpeculativeAlgorithm]bool{
		AlgorithmEAGLE:  true,
		AlgorithmEAGLE3: true,
	}
)

// IsValidAlgorithm returns true if name is a recognized speculative algorithm.
func IsValidAlgorithm(name SpeculativeAlgorithm) bool { return validAlgorithms[name] }

// IsValidAttentionBackend returns true if name is a recognized attention backend.
func IsValidAttentionBackend(name AttentionBackend) bool { return validAttentionBackends[name] }

// ValidAttentionBackendNames returns the sorted list of recognized
// attention backend names, for error messages and CLI help text.
func ValidAttentionBackendNames() []string {
	names := make([]string, 0, len(validAttentionBackends))
	for b := range validAttentionBackends {
		names = append(names, string(b))
	}
	sort.Strings(names)
	return names
}
