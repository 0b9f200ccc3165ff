package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/confmap"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/n8nkit/n8nkit/engine/core"
)

// SourceType identifies which layer supplied a configuration value.
type SourceType string

const (
	SourceDefault SourceType = "default"
	SourceXDG     SourceType = "xdg"
	SourceHome    SourceType = "home"
	SourceProject SourceType = "project"
	SourceFile    SourceType = "file" // explicit --config path
	SourceEnv     SourceType = "env"
	SourceFlag    SourceType = "flag"
)

// LoadOptions steer one load.
type LoadOptions struct {
	// File replaces file discovery with one explicit config file.
	File string
	// Profile selects a named profile, overriding any default_profile
	// pointer in the files. Empty falls back to N8N_PROFILE, then the
	// files' own pointers.
	Profile string
	// WorkDir anchors project-local discovery. Empty means the current
	// directory.
	WorkDir string
	// Overrides are flag-supplied values keyed by dotted config path.
	// They sit above every other layer.
	Overrides map[string]any
	// SkipEnv keeps environment variables out of the value layering. File
	// discovery still honors XDG_CONFIG_HOME and HOME.
	SkipEnv bool
}

// Loader assembles a Config. It remembers which layer won each key and any
// non-fatal findings, mirroring how the version store reports permission
// drift.
type Loader struct {
	k        *koanf.Koanf
	validate *validator.Validate
	sources  map[string]SourceType
	warnings []string
}

// NewLoader returns an empty loader; Load may be called repeatedly.
func NewLoader() *Loader {
	return &Loader{validate: validator.New()}
}

type layerFile struct {
	path   string
	source SourceType
}

// secretFile records a config file that carried an API key, for the
// strict-permissions check.
type secretFile struct {
	path string
	mode fs.FileMode
}

// Load builds the configuration. Layers apply lowest to highest: built-in
// defaults, the XDG config file, the home file, the project file, the
// environment, then flag overrides.
func (l *Loader) Load(_ context.Context, opts LoadOptions) (*Config, error) {
	l.k = koanf.New(".")
	l.sources = map[string]SourceType{}
	l.warnings = nil

	if err := l.k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, core.WrapError(core.KindInternal, core.CodeInternal, err, "config: load defaults")
	}
	l.trackAll(SourceDefault)

	profile := opts.Profile
	if profile == "" && !opts.SkipEnv {
		profile = os.Getenv("N8N_PROFILE")
	}

	files, err := discoverFiles(opts)
	if err != nil {
		return nil, err
	}

	profileWanted := profile != ""
	profileFound := false
	var secrets []secretFile
	for _, f := range files {
		applied, err := l.applyFile(f, profile)
		if err != nil {
			return nil, err
		}
		if applied.hadProfile {
			profileFound = true
		}
		if applied.hasSecret {
			secrets = append(secrets, secretFile{path: f.path, mode: applied.mode})
		}
	}
	if profileWanted && !profileFound {
		return nil, core.NewError(core.KindConfig, core.CodeConfigInvalid,
			"profile %q is not defined in any config file", profile)
	}

	if !opts.SkipEnv {
		if err := l.applyEnvironment(); err != nil {
			return nil, err
		}
	}

	if len(opts.Overrides) > 0 {
		before := l.k.All()
		if err := l.k.Load(confmap.Provider(opts.Overrides, "."), nil); err != nil {
			return nil, core.WrapError(core.KindConfig, core.CodeConfigInvalid, err, "config: apply flag overrides")
		}
		l.trackChanged(before, SourceFlag)
	}

	cfg, err := l.unmarshal()
	if err != nil {
		return nil, err
	}

	if err := l.checkSecretModes(secrets, cfg.Store.StrictPermissions); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Warnings reports non-fatal findings from the last Load.
func (l *Loader) Warnings() []string {
	return l.warnings
}

// Source tells which layer supplied a config path.
func (l *Loader) Source(key string) SourceType {
	if src, ok := l.sources[key]; ok {
		return src
	}
	return SourceDefault
}

// Sources returns a copy of the per-key provenance map.
func (l *Loader) Sources() map[string]SourceType {
	out := make(map[string]SourceType, len(l.sources))
	for k, v := range l.sources {
		out[k] = v
	}
	return out
}

// Value returns the effective value for one dotted config path.
func (l *Loader) Value(key string) (any, bool) {
	if l.k == nil || !l.k.Exists(key) {
		return nil, false
	}
	return l.k.Get(key), true
}

// All returns the effective configuration flattened to dotted paths.
func (l *Loader) All() map[string]any {
	if l.k == nil {
		return map[string]any{}
	}
	return l.k.All()
}

// discoverFiles picks at most one file per layer, lowest precedence first.
func discoverFiles(opts LoadOptions) ([]layerFile, error) {
	if opts.File != "" {
		if _, err := os.Stat(opts.File); err != nil {
			return nil, core.WrapError(core.KindConfig, core.CodeConfigInvalid, err, "config file %s", opts.File)
		}
		return []layerFile{{path: opts.File, source: SourceFile}}, nil
	}

	var out []layerFile
	appendFirst := func(source SourceType, candidates ...string) {
		for _, c := range candidates {
			if c == "" {
				continue
			}
			if info, err := os.Stat(c); err == nil && !info.IsDir() {
				out = append(out, layerFile{path: c, source: source})
				return
			}
		}
	}

	xdgDir := os.Getenv("XDG_CONFIG_HOME")
	home, homeErr := os.UserHomeDir()
	if xdgDir == "" && homeErr == nil {
		xdgDir = filepath.Join(home, ".config")
	}
	if xdgDir != "" {
		appendFirst(SourceXDG,
			filepath.Join(xdgDir, "n8nkit", "config.yaml"),
			filepath.Join(xdgDir, "n8nkit", "config.yml"))
	}
	if homeErr == nil {
		appendFirst(SourceHome,
			filepath.Join(home, ".n8nkit.yaml"),
			filepath.Join(home, ".n8nkit.yml"),
			filepath.Join(home, ".n8nkit.env"))
	}
	workDir := opts.WorkDir
	if workDir == "" {
		workDir = "."
	}
	appendFirst(SourceProject,
		filepath.Join(workDir, ".n8nkit.yaml"),
		filepath.Join(workDir, ".n8nkit.yml"),
		filepath.Join(workDir, ".n8nkit.env"))
	return out, nil
}

type appliedFile struct {
	hadProfile bool
	hasSecret  bool
	mode       fs.FileMode
}

// applyFile parses one config file and merges it over the current state.
func (l *Loader) applyFile(f layerFile, profile string) (appliedFile, error) {
	var applied appliedFile

	info, err := os.Stat(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return applied, nil
		}
		return applied, core.WrapError(core.KindConfig, core.CodeConfigInvalid, err, "config file %s", f.path)
	}
	applied.mode = info.Mode()

	data, err := os.ReadFile(f.path)
	if err != nil {
		return applied, core.WrapError(core.KindIO, core.CodeIOError, err, "config: read %s", f.path)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return applied, nil
	}

	doc, hadProfile, err := l.parseFile(f.path, data, profile)
	if err != nil {
		return applied, err
	}
	applied.hadProfile = hadProfile
	if len(doc) == 0 {
		return applied, nil
	}
	applied.hasSecret = containsSecret(doc)

	before := l.k.All()
	if err := l.k.Load(confmap.Provider(doc, "."), nil); err != nil {
		return applied, core.WrapError(core.KindConfig, core.CodeConfigInvalid, err, "config: merge %s", f.path)
	}
	l.trackChanged(before, f.source)
	return applied, nil
}

// parseFile sniffs the format by extension, then by content: structured
// YAML/JSON first, flat key=value as the fallback.
func (l *Loader) parseFile(path string, data []byte, profile string) (map[string]any, bool, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return l.parseStructured(path, data, profile)
	case ".env":
		doc, err := l.parseFlat(path, data)
		return doc, false, err
	}
	doc, hadProfile, err := l.parseStructured(path, data, profile)
	if err == nil {
		return doc, hadProfile, nil
	}
	if flat, flatErr := l.parseFlat(path, data); flatErr == nil {
		return flat, false, nil
	}
	return nil, false, err
}

// parseStructured decodes YAML (a JSON superset) and resolves profiles: the
// top-level keys are the base, profiles.<name> overlays them, and a
// default_profile pointer applies when no profile was requested.
func (l *Loader) parseStructured(path string, data []byte, profile string) (map[string]any, bool, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, false, core.WrapError(core.KindConfig, core.CodeConfigInvalid, err, "config: parse %s", path)
	}
	if doc == nil {
		return nil, false, nil
	}

	name := profile
	if name == "" {
		name, _ = doc["default_profile"].(string)
	}
	profilesRaw, _ := doc["profiles"].(map[string]any)

	base := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "profiles" || k == "default_profile" {
			continue
		}
		base[k] = v
	}

	hadProfile := false
	if name != "" && profilesRaw != nil {
		if overlay, ok := profilesRaw[name].(map[string]any); ok {
			hadProfile = true
			if err := mergo.Merge(&base, overlay, mergo.WithOverride); err != nil {
				return nil, false, core.WrapError(core.KindConfig, core.CodeConfigInvalid, err,
					"config: apply profile %q from %s", name, path)
			}
		}
	}
	return base, hadProfile, nil
}

// parseFlat decodes key=value lines whose keys are the environment variable
// names. Unknown keys are skipped with a warning instead of failing the
// load, so one stray line cannot brick the tool.
func (l *Loader) parseFlat(path string, data []byte) (map[string]any, error) {
	values, err := godotenv.UnmarshalBytes(data)
	if err != nil {
		return nil, core.WrapError(core.KindConfig, core.CodeConfigInvalid, err, "config: parse %s", path)
	}
	envToPath := EnvToConfigPaths()
	doc := make(map[string]any, len(values))
	for key, value := range values {
		configPath, ok := envToPath[key]
		if !ok {
			l.warnings = append(l.warnings, "config file "+path+": unknown key "+key)
			continue
		}
		doc[configPath] = value
	}
	return doc, nil
}

// applyEnvironment loads the recognized environment variables. Everything
// else in the process environment is ignored.
func (l *Loader) applyEnvironment() error {
	before := l.k.All()
	envToPath := EnvToConfigPaths()
	err := l.k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			if value == "" {
				// An exported-but-empty variable behaves as unset.
				return "", nil
			}
			if key == "NO_COLOR" {
				// Any non-empty value disables color, per convention.
				return "log.no_color", "true"
			}
			if configPath, ok := envToPath[key]; ok {
				return configPath, value
			}
			return "", nil
		},
	}), nil)
	if err != nil {
		return core.WrapError(core.KindConfig, core.CodeConfigInvalid, err, "config: load environment")
	}
	l.trackChanged(before, SourceEnv)
	return nil
}

// durationDecodeHook accepts both Go duration strings ("45s") and bare
// numbers meaning seconds (45), the form flat files and YAML tend to use.
// Values that are already durations pass through untouched.
func durationDecodeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	durationType := reflect.TypeOf(time.Duration(0))
	if to != durationType || from == durationType {
		return data, nil
	}
	switch from.Kind() {
	case reflect.String:
		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return time.Duration(0), nil
		}
		if secs, err := strconv.Atoi(raw); err == nil {
			return time.Duration(secs) * time.Second, nil
		}
		return time.ParseDuration(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return time.Duration(reflect.ValueOf(data).Uint()) * time.Second, nil
	case reflect.Float32, reflect.Float64:
		return time.Duration(reflect.ValueOf(data).Float() * float64(time.Second)), nil
	}
	return data, nil
}

// sensitiveStringDecodeHook converts plain strings into SensitiveString so
// secrets never need special casing in the sources.
func sensitiveStringDecodeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(SensitiveString("")) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return SensitiveString(v), nil
	case []byte:
		return SensitiveString(v), nil
	default:
		return data, nil
	}
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				durationDecodeHook,
				mapstructure.StringToSliceHookFunc(","),
				sensitiveStringDecodeHook,
			),
		},
	}); err != nil {
		return nil, core.WrapError(core.KindConfig, core.CodeConfigInvalid, err, "config: unmarshal")
	}
	if err := l.validate.Struct(&cfg); err != nil {
		return nil, core.WrapError(core.KindConfig, core.CodeConfigInvalid, err, "config: validate")
	}
	return &cfg, nil
}

// checkSecretModes enforces the 0600 rule for files carrying an API key:
// a warning normally, a refusal under strict permissions.
func (l *Loader) checkSecretModes(secrets []secretFile, strict bool) error {
	for _, s := range secrets {
		if s.mode.Perm()&0o077 == 0 {
			continue
		}
		if strict {
			return core.NewError(core.KindConfig, core.CodeConfigInvalid,
				"config file %s contains an api key but has mode %04o, want 0600 or tighter", s.path, s.mode.Perm())
		}
		l.warnings = append(l.warnings,
			"config file "+s.path+" contains an api key and is readable by others; tighten it to 0600")
	}
	return nil
}

// containsSecret reports whether a parsed document sets any sensitive path.
func containsSecret(doc map[string]any) bool {
	for key, value := range flattenMap("", doc) {
		if !IsSensitivePath(key) {
			continue
		}
		if s, ok := value.(string); ok && s != "" {
			return true
		}
	}
	return false
}

// flattenMap turns nested maps into dotted paths; already-dotted keys pass
// through untouched.
func flattenMap(prefix string, m map[string]any) map[string]any {
	result := make(map[string]any)
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			for fk, fv := range flattenMap(key, nested) {
				result[fk] = fv
			}
			continue
		}
		result[key] = v
	}
	return result
}

func (l *Loader) trackAll(src SourceType) {
	for key := range l.k.All() {
		l.sources[key] = src
	}
}

func (l *Loader) trackChanged(before map[string]any, src SourceType) {
	for key, after := range l.k.All() {
		prev, ok := before[key]
		if !ok || !reflect.DeepEqual(prev, after) {
			l.sources[key] = src
		}
	}
}
