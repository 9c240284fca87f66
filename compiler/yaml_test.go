package compiler_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/gillix/symfony-container-loader/compiler"
	"github.com/gillix/symfony-container-loader/container"
)

func loadYAML(t *testing.T, content string) *compiler.Fragment {
	t.Helper()
	frag, err := compiler.NewYAMLLoader().Load("services.yaml", []byte(content))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return frag
}

func TestYAMLLoader_Load_FullService(t *testing.T) {
	frag := loadYAML(t, `
services:
  app.mailer:
    factory: mailer
    arguments: ['@logger', '%mail.dsn%', 25]
    public: false
    shared: false
    tags: [mail, transport]
`)

	def, ok := frag.Definitions["app.mailer"]
	if !ok {
		t.Fatal("app.mailer should be defined")
	}
	if def.Factory != "mailer" {
		t.Errorf("factory: got %q", def.Factory)
	}
	if def.Public || def.Shared {
		t.Error("explicit false should override the defaults")
	}
	if len(def.Arguments) != 3 || def.Arguments[2] != float64(25) {
		t.Errorf("arguments: got %v, want the number normalized to float64", def.Arguments)
	}
	if !def.HasTag("mail") || !def.HasTag("transport") {
		t.Errorf("tags: got %v", def.Tags)
	}
}

func TestYAMLLoader_Load_DefaultsPublicShared(t *testing.T) {
	frag := loadYAML(t, `
services:
  app.svc:
    factory: f
`)

	def := frag.Definitions["app.svc"]
	if !def.Public || !def.Shared {
		t.Errorf("got public=%v shared=%v, want both true by default", def.Public, def.Shared)
	}
}

func TestYAMLLoader_Load_FileDefaultsApply(t *testing.T) {
	frag := loadYAML(t, `
services:
  _defaults:
    public: false
    tags: [internal]
  app.private:
    factory: f
  app.public:
    factory: f
    public: true
`)

	if frag.Definitions["app.private"].Public {
		t.Error("app.private should inherit public: false from _defaults")
	}
	if !frag.Definitions["app.public"].Public {
		t.Error("app.public sets public: true explicitly")
	}
	if !frag.Definitions["app.private"].HasTag("internal") {
		t.Error("untagged services should inherit _defaults tags")
	}
	if _, ok := frag.Definitions["_defaults"]; ok {
		t.Error("_defaults itself must not become a service")
	}
}

func TestYAMLLoader_Load_DefaultsWithFactory_Rejected(t *testing.T) {
	_, err := compiler.NewYAMLLoader().Load("services.yaml", []byte(`
services:
  _defaults:
    factory: f
`))

	var invalid *container.InvalidParameterError
	if !errors.As(err, &invalid) {
		t.Fatalf("got %v, want InvalidParameterError", err)
	}
}

func TestYAMLLoader_Load_Alias(t *testing.T) {
	frag := loadYAML(t, `
services:
  mailer:
    alias: app.mailer
    public: false
`)

	alias, ok := frag.Aliases["mailer"]
	if !ok {
		t.Fatal("mailer should be an alias")
	}
	if alias.Target != "app.mailer" || alias.Public {
		t.Errorf("got %+v", alias)
	}
}

func TestYAMLLoader_Load_AliasWithFactory_Rejected(t *testing.T) {
	_, err := compiler.NewYAMLLoader().Load("services.yaml", []byte(`
services:
  mailer:
    alias: app.mailer
    factory: f
`))

	var invalid *container.InvalidParameterError
	if !errors.As(err, &invalid) {
		t.Fatalf("got %v, want InvalidParameterError", err)
	}
	if invalid.Param != "services.mailer" {
		t.Errorf("Param: got %q", invalid.Param)
	}
}

func TestYAMLLoader_Load_MissingFactory_Rejected(t *testing.T) {
	_, err := compiler.NewYAMLLoader().Load("services.yaml", []byte(`
services:
  broken: {}
`))

	var invalid *container.InvalidParameterError
	if !errors.As(err, &invalid) {
		t.Fatalf("got %v, want InvalidParameterError", err)
	}
	if !strings.Contains(invalid.Reason, "factory") {
		t.Errorf("Reason: got %q", invalid.Reason)
	}
}

func TestYAMLLoader_Load_UnknownKey_Rejected(t *testing.T) {
	_, err := compiler.NewYAMLLoader().Load("services.yaml", []byte(`
services:
  app.svc:
    factory: f
    argument: [oops]
`))

	if err == nil {
		t.Fatal("a typo'd key should fail the parse")
	}
	if !strings.Contains(err.Error(), "argument") {
		t.Errorf("error should name the unknown key, got %v", err)
	}
}

func TestYAMLLoader_Load_NestedNumbersNormalized(t *testing.T) {
	frag := loadYAML(t, `
parameters:
  limits:
    max: 10
    window: [1, 2.5]
`)

	limits := frag.Parameters["limits"].(map[string]any)
	if limits["max"] != float64(10) {
		t.Errorf("max: got %v (%T), want float64", limits["max"], limits["max"])
	}
	window := limits["window"].([]any)
	if window[0] != float64(1) || window[1] != float64(2.5) {
		t.Errorf("window: got %v", window)
	}
}

func TestYAMLLoader_Load_EmptyFile(t *testing.T) {
	frag := loadYAML(t, "")
	if len(frag.Parameters)+len(frag.Definitions)+len(frag.Aliases) != 0 {
		t.Error("an empty file should produce an empty fragment")
	}
}

func TestYAMLLoader_Load_MalformedYAML_Fails(t *testing.T) {
	_, err := compiler.NewYAMLLoader().Load("broken.yaml", []byte("services: ["))
	if err == nil {
		t.Fatal("malformed YAML should fail")
	}
	if !strings.Contains(err.Error(), "broken.yaml") {
		t.Errorf("error should name the file, got %v", err)
	}
}
