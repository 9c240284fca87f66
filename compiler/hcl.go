package compiler

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/gillix/symfony-container-loader/container"
)

// HCLLoader parses the HCL rendering of the same configuration model:
//
//	parameters = {
//	  "http.port" = 8080
//	}
//
//	service "app.mailer" {
//	  factory   = "mailer"
//	  arguments = ["@logger", "%mail.dsn%"]
//	  tags      = ["mail"]
//	}
//
//	alias "mailer" {
//	  target = "app.mailer"
//	  public = true
//	}
type HCLLoader struct{}

// NewHCLLoader returns the HCL FileLoader.
func NewHCLLoader() *HCLLoader {
	return &HCLLoader{}
}

type hclRoot struct {
	Parameters hcl.Expression `hcl:"parameters,optional"`
	Services   []*hclService  `hcl:"service,block"`
	Aliases    []*hclAlias    `hcl:"alias,block"`
}

type hclService struct {
	ID        string         `hcl:"id,label"`
	Factory   string         `hcl:"factory"`
	Arguments hcl.Expression `hcl:"arguments,optional"`
	Public    *bool          `hcl:"public,optional"`
	Shared    *bool          `hcl:"shared,optional"`
	Tags      []string       `hcl:"tags,optional"`
}

type hclAlias struct {
	ID     string `hcl:"id,label"`
	Target string `hcl:"target"`
	Public *bool  `hcl:"public,optional"`
}

// Load implements FileLoader.
func (l *HCLLoader) Load(path string, src []byte) (*Fragment, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("compile: parsing %s: %w", strconv.Quote(path), diags)
	}

	var root hclRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("compile: decoding %s: %w", strconv.Quote(path), diags)
	}

	frag := emptyFragment()

	// gohcl fills absent expression attributes with a synthetic null, so the
	// absence check is on the value, not the field.
	if root.Parameters != nil {
		val, diags := root.Parameters.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("compile: %s: evaluating parameters: %w", strconv.Quote(path), diags)
		}
		if !val.IsNull() {
			native, err := nativeFromCty(val)
			if err != nil {
				return nil, fmt.Errorf("compile: %s: parameters: %w", strconv.Quote(path), err)
			}
			params, ok := native.(map[string]any)
			if !ok {
				return nil, &container.InvalidParameterError{
					Param:  "parameters",
					Reason: fmt.Sprintf("must be an object, got %T (%s)", native, path),
				}
			}
			for name, value := range params {
				frag.Parameters[name] = value
			}
		}
	}

	for _, svc := range root.Services {
		args, err := argumentsFromExpr(svc.Arguments)
		if err != nil {
			return nil, fmt.Errorf("compile: %s: service %s: %w", strconv.Quote(path), strconv.Quote(svc.ID), err)
		}
		frag.Definitions[svc.ID] = container.Definition{
			Factory:   svc.Factory,
			Arguments: args,
			Public:    boolOr(svc.Public, nil, true),
			Shared:    boolOr(svc.Shared, nil, true),
			Tags:      svc.Tags,
		}
	}

	for _, alias := range root.Aliases {
		frag.Aliases[alias.ID] = container.Alias{
			Target: alias.Target,
			Public: boolOr(alias.Public, nil, true),
		}
	}
	return frag, nil
}

func argumentsFromExpr(expr hcl.Expression) ([]any, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("evaluating arguments: %w", diags)
	}
	if val.IsNull() {
		return nil, nil
	}
	native, err := nativeFromCty(val)
	if err != nil {
		return nil, err
	}
	args, ok := native.([]any)
	if !ok {
		return nil, fmt.Errorf("arguments must be a list, got %T", native)
	}
	return args, nil
}

// nativeFromCty converts a cty.Value into its natural Go counterpart.
// Numbers become float64, matching the normalization the YAML loader applies,
// so both formats compile to identical tables.
func nativeFromCty(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("converting number: %w", err)
		}
		return f, nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, el := it.Element()
			native, err := nativeFromCty(el)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		for it := v.ElementIterator(); it.Next(); {
			key, el := it.Element()
			native, err := nativeFromCty(el)
			if err != nil {
				return nil, fmt.Errorf("in attribute %s: %w", strconv.Quote(key.AsString()), err)
			}
			out[key.AsString()] = native
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
