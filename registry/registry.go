package registry

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/isdmx/runbox/config"
	"github.com/isdmx/runbox/sandbox"
)

// ErrUnknownLanguage is returned by Resolve when no profile is
// registered under the requested identifier.
var ErrUnknownLanguage = errors.New("unknown language")

// binaryName is the output name compiled profiles build inside the
// sandbox working directory; command templates reference it as {bin}.
const binaryName = "app"

// Profile is the immutable per-language execution recipe. Profiles are
// built once at startup and shared read-only by all concurrent
// executions of that language.
type Profile struct {
	Language   string
	Image      string
	SourceFile string
	CompileCmd []string // empty for run-only languages
	RunCmd     []string
	Env        map[string]string
	Limits     sandbox.Limits
	TimeLimit  time.Duration
}

// Compiled reports whether the profile has a compile step.
func (p Profile) Compiled() bool {
	return len(p.CompileCmd) > 0
}

// Registry maps language identifiers to execution profiles. Lookup is
// exact-match and case-sensitive; loose matching on identifiers that
// feed image names is a security bug waiting to happen. The registry is
// immutable after construction and safe for concurrent use.
type Registry struct {
	profiles map[string]Profile
}

// NewFromConfig builds the registry from the configured language
// entries, merging profiles from languages_file on top when set.
func NewFromConfig(logger *zap.Logger, cfg *config.Config) (*Registry, error) {
	entries := make(map[string]config.Language, len(cfg.Languages))
	for id, lang := range cfg.Languages {
		entries[id] = lang
	}

	if cfg.LanguagesFile != "" {
		extra, err := loadLanguagesFile(cfg.LanguagesFile)
		if err != nil {
			return nil, err
		}
		for id, lang := range extra {
			entries[id] = lang
		}
	}

	profiles := make(map[string]Profile, len(entries))
	for id, lang := range entries {
		profile, err := buildProfile(id, lang, &cfg.Sandbox)
		if err != nil {
			return nil, fmt.Errorf("language %q: %w", id, err)
		}
		profiles[id] = profile
	}

	if len(profiles) == 0 {
		return nil, fmt.Errorf("no language profiles configured")
	}

	logger.Info("language registry loaded", zap.Strings("languages", sortedKeys(profiles)))
	return &Registry{profiles: profiles}, nil
}

// Resolve returns the profile registered under the identifier.
func (r *Registry) Resolve(language string) (Profile, error) {
	profile, ok := r.profiles[language]
	if !ok {
		return Profile{}, fmt.Errorf("%q: %w", language, ErrUnknownLanguage)
	}
	return profile, nil
}

// Languages returns the registered identifiers in sorted order.
func (r *Registry) Languages() []string {
	return sortedKeys(r.profiles)
}

func buildProfile(id string, lang config.Language, defaults *config.SandboxConfig) (Profile, error) {
	if lang.Image == "" {
		return Profile{}, fmt.Errorf("image is required")
	}
	if lang.SourceFile == "" {
		return Profile{}, fmt.Errorf("source_file is required")
	}
	if strings.TrimSpace(lang.RunCmd) == "" {
		return Profile{}, fmt.Errorf("run_cmd is required")
	}

	runCmd, err := buildCommand(lang.RunCmd, lang.SourceFile)
	if err != nil {
		return Profile{}, fmt.Errorf("run_cmd: %w", err)
	}

	var compileCmd []string
	if strings.TrimSpace(lang.CompileCmd) != "" {
		compileCmd, err = buildCommand(lang.CompileCmd, lang.SourceFile)
		if err != nil {
			return Profile{}, fmt.Errorf("compile_cmd: %w", err)
		}
	}

	limits := sandbox.Limits{
		CPUs:      defaults.CPUs,
		MemoryMB:  defaults.MemoryMB,
		PidsLimit: defaults.PidsLimit,
	}
	if lang.CPUs > 0 {
		limits.CPUs = lang.CPUs
	}
	if lang.MemoryMB > 0 {
		limits.MemoryMB = lang.MemoryMB
	}

	timeLimit := time.Duration(defaults.TimeoutSec) * time.Second
	if lang.TimeoutSec > 0 {
		// The compile phase always gets a strictly shorter budget than
		// the run phase; a per-language override cannot invert that.
		if len(compileCmd) > 0 && lang.TimeoutSec <= defaults.CompileTimeoutSec {
			return Profile{}, fmt.Errorf("timeout_sec override must be longer than compile_timeout_sec, got: %d <= %d",
				lang.TimeoutSec, defaults.CompileTimeoutSec)
		}
		timeLimit = time.Duration(lang.TimeoutSec) * time.Second
	}

	return Profile{
		Language:   id,
		Image:      lang.Image,
		SourceFile: lang.SourceFile,
		CompileCmd: compileCmd,
		RunCmd:     runCmd,
		Env:        lang.Environment,
		Limits:     limits,
		TimeLimit:  timeLimit,
	}, nil
}

// buildCommand expands {src} and {bin} placeholders and splits the
// template into an argument vector. Shell-style quoting is honored so
// templates can carry arguments with spaces.
func buildCommand(tpl, sourceFile string) ([]string, error) {
	expanded := strings.ReplaceAll(tpl, "{src}", sourceFile)
	expanded = strings.ReplaceAll(expanded, "{bin}", binaryName)

	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, fmt.Errorf("parse command template: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("command is empty after expansion")
	}
	return fields, nil
}

func loadLanguagesFile(path string) (map[string]config.Language, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Operator-provided path
	if err != nil {
		return nil, fmt.Errorf("read languages file: %w", err)
	}

	var entries map[string]config.Language
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse languages file %s: %w", path, err)
	}
	return entries, nil
}

func sortedKeys(profiles map[string]Profile) []string {
	keys := make([]string, 0, len(profiles))
	for id := range profiles {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	return keys
}
