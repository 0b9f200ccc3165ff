package config

import (
	"reflect"
	"sort"
	"strings"
	"sync"
)

// EnvMapping ties an environment variable to the config path it feeds.
type EnvMapping struct {
	EnvVar     string
	ConfigPath string
}

var (
	cachedMappings []EnvMapping
	mappingsOnce   sync.Once
)

// EnvMappings derives the environment surface from the Config struct's env
// tags, so the table can never drift from the struct.
func EnvMappings() []EnvMapping {
	mappingsOnce.Do(func() {
		cachedMappings = extractMappings(reflect.TypeOf(Config{}), "")
	})
	return cachedMappings
}

func extractMappings(t reflect.Type, prefix string) []EnvMapping {
	var mappings []EnvMapping
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		koanfTag := field.Tag.Get("koanf")
		if koanfTag == "" || koanfTag == "-" {
			continue
		}
		configPath := koanfTag
		if prefix != "" {
			configPath = prefix + "." + koanfTag
		}
		if envTag := field.Tag.Get("env"); envTag != "" && envTag != "-" {
			mappings = append(mappings, EnvMapping{EnvVar: envTag, ConfigPath: configPath})
		}
		if field.Type.Kind() == reflect.Struct && field.Type.PkgPath() != "time" {
			mappings = append(mappings, extractMappings(field.Type, configPath)...)
		}
	}
	return mappings
}

// EnvToConfigPaths returns the env-var → config-path lookup used by the env
// layer and by flat key=value files.
func EnvToConfigPaths() map[string]string {
	mappings := EnvMappings()
	result := make(map[string]string, len(mappings))
	for _, m := range mappings {
		result[m.EnvVar] = m.ConfigPath
	}
	return result
}

// KnownPaths lists every addressable leaf config path, sorted.
func KnownPaths() []string {
	mappings := EnvMappings()
	paths := make([]string, 0, len(mappings))
	for _, m := range mappings {
		paths = append(paths, m.ConfigPath)
	}
	sort.Strings(paths)
	return paths
}

// EnvVarFor returns the environment variable feeding a config path, or "".
func EnvVarFor(configPath string) string {
	for _, m := range EnvMappings() {
		if m.ConfigPath == configPath {
			return m.EnvVar
		}
	}
	return ""
}

// IsSensitivePath reports whether a config path holds a secret, either by
// type or by an explicit sensitive tag.
func IsSensitivePath(configPath string) bool {
	return checkSensitiveField(reflect.TypeOf(Config{}), strings.Split(configPath, "."))
}

func checkSensitiveField(t reflect.Type, pathParts []string) bool {
	if len(pathParts) == 0 {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Tag.Get("koanf") != pathParts[0] {
			continue
		}
		if len(pathParts) == 1 {
			if field.Type == reflect.TypeOf(SensitiveString("")) {
				return true
			}
			return field.Tag.Get("sensitive") == "true"
		}
		if field.Type.Kind() == reflect.Struct && field.Type.PkgPath() != "time" {
			return checkSensitiveField(field.Type, pathParts[1:])
		}
	}
	return false
}
