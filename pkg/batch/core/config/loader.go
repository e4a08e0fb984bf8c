package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/stepcore/pkg/batch/support/util/exception"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/logger"
)

const moduleName = "config"

const (
	// ResourceEnvVar names the environment variable that points at the configuration resource.
	ResourceEnvVar = "BATCHCORE_CONFIG"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "BATCHCORE_"
	// DefaultEnvFile is the dotenv file consulted when none is configured.
	DefaultEnvFile = ".env"
)

// DefaultResourceNames are the resource file names searched for in the search directories.
var DefaultResourceNames = []string{"batchcore.yaml", "batchcore.yml"}

// Loader builds the effective configuration by merging, in increasing precedence:
// defaults, the configuration resource, caller overrides and the environment.
type Loader struct {
	resourcePath string
	searchDirs   []string
	envFile      string
	lookupEnv    func(string) (string, bool)
	expander     EnvironmentExpander
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithResourcePath sets an explicit resource path. A missing file is an error.
func WithResourcePath(path string) LoaderOption {
	return func(l *Loader) { l.resourcePath = path }
}

// WithSearchDirs replaces the directories searched for DefaultResourceNames.
func WithSearchDirs(dirs ...string) LoaderOption {
	return func(l *Loader) { l.searchDirs = dirs }
}

// WithEnvFile sets the dotenv file whose entries back the environment layer.
func WithEnvFile(path string) LoaderOption {
	return func(l *Loader) { l.envFile = path }
}

// WithLookupEnv replaces os.LookupEnv as the environment source.
func WithLookupEnv(lookup func(string) (string, bool)) LoaderOption {
	return func(l *Loader) { l.lookupEnv = lookup }
}

// WithExpander sets the expander applied to the raw resource.
func WithExpander(e EnvironmentExpander) LoaderOption {
	return func(l *Loader) { l.expander = e }
}

// NewLoader creates a Loader that searches the working directory by default.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		searchDirs: []string{"."},
		lookupEnv:  os.LookupEnv,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.expander == nil {
		l.expander = NewLookupEnvironmentExpander(l.lookupEnv)
	}
	return l
}

// Load merges the four configuration layers and returns the effective configuration.
// knownKeys lists keys that may be supplied only through the environment
// (typically every registered capability name).
func (l *Loader) Load(defaults Properties, overrides map[string]string, knownKeys ...string) (Properties, error) {
	lookup := l.environmentLookup()

	effective := defaults.Clone()

	resource, err := l.readResource(lookup)
	if err != nil {
		return nil, err
	}
	effective.Merge(resource)
	effective.Merge(overrides)

	keys := make(map[string]struct{}, len(effective)+len(knownKeys))
	for k := range effective {
		keys[k] = struct{}{}
	}
	for _, k := range knownKeys {
		keys[k] = struct{}{}
	}
	for k := range keys {
		if v, ok := lookup(EnvName(k)); ok {
			logger.Debugf("Configuration key '%s' overridden by environment variable %s.", k, EnvName(k))
			effective[k] = v
		}
	}
	return effective, nil
}

// Environment returns the lookup used for the environment layer: the process
// environment first, then the dotenv file as it was when Environment was called.
func (l *Loader) Environment() func(string) (string, bool) {
	return l.environmentLookup()
}

// EnvName derives the environment variable name for a configuration key.
// Letters are upper-cased, every other non-alphanumeric rune becomes '_', and
// EnvPrefix is prepended unless already present.
// For example "batchcore.threadpool.max-size" becomes BATCHCORE_THREADPOOL_MAX_SIZE.
func EnvName(key string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(key) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	name := b.String()
	if !strings.HasPrefix(name, EnvPrefix) {
		name = EnvPrefix + name
	}
	return name
}

// environmentLookup returns a lookup consulting the process environment first
// and the dotenv file second, so real variables win over the file.
func (l *Loader) environmentLookup() func(string) (string, bool) {
	path := l.envFile
	explicit := path != ""
	if !explicit && len(l.searchDirs) > 0 {
		path = filepath.Join(l.searchDirs[0], DefaultEnvFile)
	}
	fileEnv, err := godotenv.Read(path)
	if err != nil {
		if explicit {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", path, err)
		} else {
			logger.Debugf(".env file not found or could not be loaded: %v", err)
		}
		fileEnv = nil
	}
	return func(name string) (string, bool) {
		if v, ok := l.lookupEnv(name); ok {
			return v, true
		}
		v, ok := fileEnv[name]
		return v, ok
	}
}

func (l *Loader) readResource(lookup func(string) (string, bool)) (Properties, error) {
	path, required := l.resourcePath, l.resourcePath != ""
	if !required {
		if p, ok := lookup(ResourceEnvVar); ok && p != "" {
			path, required = p, true
		}
	}
	if !required {
		path = l.discoverResource()
		if path == "" {
			logger.Debugf("No configuration resource found; using defaults, overrides and environment only.")
			return Properties{}, nil
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to read configuration resource %s", path), err, false, false)
	}
	props, err := l.parseResource(raw)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to parse configuration resource %s", path), err, false, false)
	}
	logger.Debugf("Loaded %d configuration entries from %s.", len(props), path)
	return props, nil
}

func (l *Loader) discoverResource() string {
	for _, dir := range l.searchDirs {
		for _, name := range DefaultResourceNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			} else if !errors.Is(err, fs.ErrNotExist) {
				logger.Warnf("Could not stat configuration resource %s: %v", candidate, err)
			}
		}
	}
	return ""
}

func (l *Loader) parseResource(raw []byte) (Properties, error) {
	expanded, err := l.expander.Expand(raw)
	if err != nil {
		return nil, err
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(expanded, &tree); err != nil {
		return nil, err
	}
	props := Properties{}
	flatten("", tree, props)
	return props, nil
}

// flatten turns nested YAML mappings into dotted keys. Sequences are joined with ",".
func flatten(prefix string, node map[string]interface{}, out Properties) {
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch v := node[k].(type) {
		case map[string]interface{}:
			flatten(key, v, out)
		case []interface{}:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(v)
		}
	}
}
