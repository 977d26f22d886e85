package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/suchanek/personal-agent-sub002/pkg/identity"
)

var (
	envVarPatterns = struct {
		withDefault *regexp.Regexp
		braced      *regexp.Regexp
		simple      *regexp.Regexp
	}{
		withDefault: regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`),
		braced:      regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`),
		simple:      regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`),
	}
)

// ExpandEnvVars expands $VAR, ${VAR} and ${VAR:-default} references.
func ExpandEnvVars(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	s = envVarPatterns.withDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.withDefault.FindStringSubmatch(match)
		if len(parts) == 3 {
			if val := os.Getenv(parts[1]); val != "" {
				return val
			}
			return parts[2]
		}
		return match
	})

	s = envVarPatterns.braced.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.braced.FindStringSubmatch(match)
		if len(parts) == 2 {
			return os.Getenv(parts[1])
		}
		return match
	})

	s = envVarPatterns.simple.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.simple.FindStringSubmatch(match)
		if len(parts) == 2 {
			return os.Getenv(parts[1])
		}
		return match
	})

	return s
}

func envOr(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return ExpandEnvVars(val)
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if val == "" {
		return fallback
	}
	return val == "true" || val == "1" || val == "yes"
}

func envInt(key string, fallback int) int {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

// NewFromEnv builds a registry from the recognized environment
// variables, with the identity store resolved from PERSAG_HOME.
func NewFromEnv() (*Registry, error) {
	ids, err := identity.NewStore(identity.Options{})
	if err != nil {
		return nil, err
	}
	return NewFromEnvWithIdentity(ids)
}

// NewFromEnvWithIdentity builds a registry around an existing identity
// store. Used by tests to pin PERSAG_HOME to a temp dir.
func NewFromEnvWithIdentity(ids *identity.Store) (*Registry, error) {
	provider := ProviderOllama
	if p := os.Getenv("PROVIDER"); p != "" {
		parsed, err := ParseProvider(p)
		if err != nil {
			return nil, err
		}
		provider = parsed
	}

	level := InstructionStandard
	if l := os.Getenv("INSTRUCTION_LEVEL"); l != "" {
		parsed, err := ParseInstructionLevel(l)
		if err != nil {
			return nil, err
		}
		level = parsed
	}

	model := envOr("LLM_MODEL", DefaultModelFor(provider))
	lightragURL := envOr("LIGHTRAG_URL",
		fmt.Sprintf("http://localhost:%d", envInt("LIGHTRAG_PORT", 9621)))
	lightragMemoryURL := envOr("LIGHTRAG_MEMORY_URL",
		fmt.Sprintf("http://localhost:%d", envInt("LIGHTRAG_MEMORY_PORT", 9622)))

	snapshot := Snapshot{
		Provider:          provider,
		Model:             model,
		OllamaURL:         envOr("OLLAMA_URL", "http://localhost:11434"),
		RemoteOllamaURL:   envOr("REMOTE_OLLAMA_URL", ""),
		LMStudioURL:       envOr("LMSTUDIO_BASE_URL", "http://localhost:1234/v1"),
		RemoteLMStudioURL: envOr("REMOTE_LMSTUDIO_URL", ""),
		OpenAIURL:         envOr("OPENAI_URL", "https://api.openai.com/v1"),
		LightRAGURL:       lightragURL,
		LightRAGMemoryURL: lightragMemoryURL,
		AgentMode:         AgentModeSingle,
		InstructionLevel:  level,
		DebugMode:         envBool("DEBUG", false),
		UseMCP:            envBool("USE_MCP", true),
		EnableMemory:      envBool("ENABLE_MEMORY", true),
		Seed:              envInt("LLM_SEED", 0),
	}

	return NewRegistry(ids, snapshot), nil
}
