// Package config loads and hot-reloads the search service's configuration:
// per-request defaults, parser defaults, global log sources, and the
// transport's serving mode. The core search pipeline only ever sees the
// resolved Config values through a read-locked Store snapshot.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"

	logerrors "github.com/standardbeagle/logsearch-mcp/internal/errors"
)

// ServerMode selects which transport(s) the service runs.
type ServerMode string

const (
	ServerModeStdio ServerMode = "stdio"
	ServerModeHTTP  ServerMode = "http"
	ServerModeBoth  ServerMode = "both"
)

// SearchConfig holds the per-request defaults consumed directly by Engine.
type SearchConfig struct {
	DefaultPageSize    int `kdl:"default-page-size" env:"DEFAULT_PAGE_SIZE"`
	MaxPageSize        int `kdl:"max-page-size" env:"MAX_PAGE_SIZE"`
	DefaultTimeoutMs   int `kdl:"default-timeout-ms" env:"DEFAULT_TIMEOUT_MS"`
	MaxConcurrentFiles int `kdl:"max-concurrent-files" env:"MAX_CONCURRENT_FILES"`
	BufferSize         int `kdl:"buffer-size" env:"BUFFER_SIZE"`
}

// LogParserConfig holds server-wide parser defaults.
type LogParserConfig struct {
	DefaultLogStartPattern string `kdl:"default-log-start-pattern" env:"DEFAULT_LOG_START_PATTERN"`
	DefaultTimestampRegex  string `kdl:"default-timestamp-regex" env:"DEFAULT_TIMESTAMP_REGEX"`
}

// LogSourceConfig holds the globally configured explicit file list, used
// when a request omits scan_config.root_path entirely.
type LogSourceConfig struct {
	LogFilePaths []string `kdl:"log-file-paths" env:"LOG_FILE_PATHS"`
}

// TransportConfig configures the stdio/HTTP front-ends (external to the
// core pipeline, but resolved through the same config layer).
type TransportConfig struct {
	Mode     ServerMode `kdl:"mode" env:"MODE"`
	HTTPAddr string     `kdl:"http-addr" env:"HTTP_ADDR"`
	HTTPPort int        `kdl:"http-port" env:"HTTP_PORT"`
}

// Config is the fully resolved configuration tree.
type Config struct {
	Search     SearchConfig
	LogParser  LogParserConfig
	LogSources LogSourceConfig
	Server     TransportConfig
}

// EnvPrefix is the prefix used for double-underscore-delimited environment
// overrides, e.g. LOG_SEARCH_MCP__SEARCH__BUFFER_SIZE.
const EnvPrefix = "LOG_SEARCH_MCP"

// Default returns the hardcoded baseline configuration. It is always the
// starting point for Load, then layered with a global file, a project
// file, and finally environment overrides.
func Default() *Config {
	return &Config{
		Search: SearchConfig{
			DefaultPageSize:    50,
			MaxPageSize:        500,
			DefaultTimeoutMs:   5000,
			MaxConcurrentFiles: 8,
			BufferSize:         64 * 1024,
		},
		LogParser: LogParserConfig{},
		LogSources: LogSourceConfig{
			LogFilePaths: []string{},
		},
		Server: TransportConfig{
			Mode:     ServerModeStdio,
			HTTPAddr: "0.0.0.0",
			HTTPPort: 3000,
		},
	}
}

// Validate enforces the one config-load-time invariant spec.md calls out
// explicitly: a max_page_size smaller than default_page_size is rejected.
func (c *Config) Validate() error {
	if c.Search.MaxPageSize < c.Search.DefaultPageSize {
		return logerrors.NewConfigError(
			"search.max_page_size",
			strconv.Itoa(c.Search.MaxPageSize),
			fmt.Errorf("must be >= search.default_page_size (%d)", c.Search.DefaultPageSize),
		)
	}
	return nil
}

// Load resolves the global (~/.logsearch-mcp.kdl), project-local
// (projectPath, if non-empty and present), and environment-variable layers
// into one Config, validating the result.
func Load(projectPath string) (*Config, error) {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		globalPath := filepath.Join(home, ".logsearch-mcp.kdl")
		if err := mergeFile(cfg, globalPath); err != nil {
			return nil, err
		}
	}

	if projectPath != "" {
		if err := mergeFile(cfg, projectPath); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return logerrors.NewConfigError(path, "", err)
	}
	return mergeKDL(cfg, string(content))
}

func mergeKDL(cfg *Config, content string) error {
	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return logerrors.NewConfigError("<kdl>", "", fmt.Errorf("parse failed: %w", err))
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "search":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "default-page-size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.DefaultPageSize = v
					}
				case "max-page-size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.MaxPageSize = v
					}
				case "default-timeout-ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.DefaultTimeoutMs = v
					}
				case "max-concurrent-files":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.MaxConcurrentFiles = v
					}
				case "buffer-size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.BufferSize = v
					}
				}
			}
		case "log-parser":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "default-log-start-pattern":
					if v, ok := firstStringArg(cn); ok {
						cfg.LogParser.DefaultLogStartPattern = v
					}
				case "default-timestamp-regex":
					if v, ok := firstStringArg(cn); ok {
						cfg.LogParser.DefaultTimestampRegex = v
					}
				}
			}
		case "log-sources":
			for _, cn := range n.Children {
				if nodeName(cn) == "log-file-paths" {
					paths := collectStringArgs(cn)
					cfg.LogSources.LogFilePaths = dedupeStrings(append(cfg.LogSources.LogFilePaths, paths...))
				}
			}
		case "server":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "mode":
					if v, ok := firstStringArg(cn); ok {
						cfg.Server.Mode = ServerMode(v)
					}
				case "http-addr":
					if v, ok := firstStringArg(cn); ok {
						cfg.Server.HTTPAddr = v
					}
				case "http-port":
					if v, ok := firstIntArg(cn); ok {
						cfg.Server.HTTPPort = v
					}
				}
			}
		}
	}
	return nil
}

// applyEnvOverrides walks the config struct's `env` tags and applies
// LOG_SEARCH_MCP__<SECTION>__<FIELD>-style overrides, where <SECTION> is
// the struct field name of the top-level Config section (upper-cased) and
// <FIELD> is the field's own env tag.
func applyEnvOverrides(cfg *Config) {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		sectionVal := v.Field(i)
		if sectionVal.Kind() != reflect.Struct {
			continue
		}
		st := sectionVal.Type()
		for j := 0; j < st.NumField(); j++ {
			field := st.Field(j)
			tag := field.Tag.Get("env")
			if tag == "" {
				continue
			}
			envName := fmt.Sprintf("%s__%s__%s", EnvPrefix, strings.ToUpper(section.Name), tag)
			raw, ok := os.LookupEnv(envName)
			if !ok {
				continue
			}
			setFieldFromEnv(sectionVal.Field(j), raw)
		}
	}
}

func setFieldFromEnv(fv reflect.Value, raw string) {
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int, reflect.Int64:
		if n, err := strconv.Atoi(raw); err == nil {
			fv.SetInt(int64(n))
		}
	case reflect.Bool:
		if b, err := strconv.ParseBool(raw); err == nil {
			fv.SetBool(b)
		}
	case reflect.Slice:
		if fv.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(raw, ",")
			fv.Set(reflect.ValueOf(parts))
		}
	}
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// --- small KDL document helpers, in the teacher's hand-walked-document
// style rather than a generic struct-tag unmarshaler. ---

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 && len(n.Children) > 0 {
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
