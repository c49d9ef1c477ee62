package cli

import (
	"github.com/replaykit/replaykit/internal/artifact"
	"github.com/replaykit/replaykit/internal/config"
	"github.com/replaykit/replaykit/internal/redact"
)

// loadPolicy loads a config.PolicyConfig from path, or the zero-value
// config's defaults (DefaultInterceptionPolicy, empty RedactionPolicy)
// when path is empty — every command works with no --config flag.
func loadPolicy(path string) (config.PolicyConfig, error) {
	if path == "" {
		return config.PolicyConfig{Interception: artifact.DefaultInterceptionPolicy()}, nil
	}
	return config.Load(path)
}

func redactionPolicyFrom(p artifact.RedactionPolicy) redact.Policy {
	return redact.Policy{
		Version:                    p.Version,
		ExtraSensitiveFieldNames:   p.ExtraSensitiveFieldNames,
		ExtraSecretValuePatterns:   p.ExtraSecretValuePatterns,
		ExtraSensitivePathPatterns: p.ExtraSensitivePathPatterns,
	}
}
