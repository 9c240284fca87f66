package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/gillix/symfony-container-loader/container"
)

// YAMLLoader parses the services.yaml dialect:
//
//	parameters:
//	  http.port: 8080
//	  app.greeting: "hello %app.name%"
//
//	services:
//	  _defaults:
//	    public: false
//	  app.mailer:
//	    factory: mailer
//	    arguments: ['@logger', '%mail.dsn%']
//	    tags: [mail]
//	  mailer:
//	    alias: app.mailer
//	    public: true
//
// Unknown keys are rejected: a typo in a service definition should fail the
// compile, not silently configure nothing.
type YAMLLoader struct{}

// NewYAMLLoader returns the YAML FileLoader.
func NewYAMLLoader() *YAMLLoader {
	return &YAMLLoader{}
}

type rawFile struct {
	Parameters map[string]any        `yaml:"parameters"`
	Services   map[string]rawService `yaml:"services"`
}

// rawService covers both service and alias entries. Public and Shared are
// pointers so "absent" and "false" stay distinguishable until defaults apply.
type rawService struct {
	Factory   string   `yaml:"factory"`
	Arguments []any    `yaml:"arguments"`
	Public    *bool    `yaml:"public"`
	Shared    *bool    `yaml:"shared"`
	Tags      []string `yaml:"tags"`
	Alias     string   `yaml:"alias"`
}

// Load implements FileLoader.
func (l *YAMLLoader) Load(path string, src []byte) (*Fragment, error) {
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)

	var raw rawFile
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return emptyFragment(), nil
		}
		return nil, fmt.Errorf("compile: parsing %s: %w", strconv.Quote(path), err)
	}

	frag := emptyFragment()
	for name, value := range raw.Parameters {
		frag.Parameters[name] = normalizeValue(value)
	}

	defaults := rawService{}
	if d, ok := raw.Services["_defaults"]; ok {
		if d.Factory != "" || d.Alias != "" || len(d.Arguments) > 0 {
			return nil, &container.InvalidParameterError{
				Param:  "services._defaults",
				Reason: "only public, shared and tags may be defaulted",
			}
		}
		defaults = d
		delete(raw.Services, "_defaults")
	}

	for id, svc := range raw.Services {
		if svc.Alias != "" {
			if svc.Factory != "" || len(svc.Arguments) > 0 || len(svc.Tags) > 0 || svc.Shared != nil {
				return nil, &container.InvalidParameterError{
					Param:  "services." + id,
					Reason: "an alias entry may only set alias and public",
				}
			}
			frag.Aliases[id] = container.Alias{
				Target: svc.Alias,
				Public: boolOr(svc.Public, defaults.Public, true),
			}
			continue
		}
		if svc.Factory == "" {
			return nil, &container.InvalidParameterError{
				Param:  "services." + id,
				Reason: "missing factory",
			}
		}

		args := make([]any, len(svc.Arguments))
		for i, a := range svc.Arguments {
			args[i] = normalizeValue(a)
		}
		tags := svc.Tags
		if tags == nil {
			tags = defaults.Tags
		}
		frag.Definitions[id] = container.Definition{
			Factory:   svc.Factory,
			Arguments: args,
			Public:    boolOr(svc.Public, defaults.Public, true),
			Shared:    boolOr(svc.Shared, defaults.Shared, true),
			Tags:      tags,
		}
	}
	return frag, nil
}

func emptyFragment() *Fragment {
	return &Fragment{
		Parameters:  make(map[string]any),
		Definitions: make(map[string]container.Definition),
		Aliases:     make(map[string]container.Alias),
	}
}

// boolOr picks the first set value: explicit, then per-file default, then the
// package default.
func boolOr(explicit, fileDefault *bool, fallback bool) bool {
	if explicit != nil {
		return *explicit
	}
	if fileDefault != nil {
		return *fileDefault
	}
	return fallback
}

// normalizeValue rewrites every number in a config value to float64. The
// compiled table round-trips through JSON, where numbers come back as
// float64; normalizing at parse time makes a fresh compile and a cache hit
// produce identical containers.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	case []any:
		out := make([]any, len(val))
		for i, el := range val {
			out[i] = normalizeValue(el)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, el := range val {
			out[k] = normalizeValue(el)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, el := range val {
			out[fmt.Sprint(k)] = normalizeValue(el)
		}
		return out
	default:
		return v
	}
}
