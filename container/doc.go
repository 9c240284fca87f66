// Package container provides the compiled, Symfony-compatible service
// container: the runtime that a compiled definition table is loaded into.
//
// # Overview
//
// A Container holds three frozen tables (parameters, service definitions,
// and aliases) plus a registry of Go factory functions. Services are built
// lazily on first Get; shared services are cached for the life of the
// container, prototypes are rebuilt per call.
//
// It mirrors the read side of Symfony's
// Symfony\Component\DependencyInjection\Container as closely as Go allows.
// Because Go has no runtime constructor reflection, autowiring is replaced by
// named factories: every definition carries a factory name which is looked up
// in a FactoryRegistry at build time.
//
// # Definitions
//
//	// Symfony services.yaml:
//	//   app.mailer:
//	//     factory: mailer
//	//     arguments: ['@logger', '%mail.dsn%']
//	defs := map[string]container.Definition{
//	    "app.mailer": container.NewDefinition("mailer", "@logger", "%mail.dsn%"),
//	}
//
// # Resolving
//
//	// Symfony: $container->get('app.mailer')
//	raw, err := c.Get("app.mailer")
//
//	// Generic (preferred, no type assertion required)
//	mailer, err := container.Resolve[*Mailer](c, "app.mailer")
//
// Private services (public: false) cannot be fetched through Get; they exist
// to be injected into other services via "@id" arguments.
//
// # Arguments
//
// Arguments are resolved when the service is built:
//
//	"@logger"        injects the logger service (error if missing)
//	"@?profiler"     injects the profiler service, or nil if missing
//	"%kernel.debug%" substitutes a parameter; a whole-string placeholder
//	                 keeps the parameter's type
//	"%env(APP_ENV)%" reads the process environment at build time
//	"@@literal"      escapes to the literal string "@literal"
//	"100%%"          escapes to the literal string "100%"
//
// Slices and maps are resolved element by element.
//
// # Tags
//
//	// Symfony: tagged_iterator('app.report')
//	reports, err := c.Tagged("app.report")
//
// # Parameters
//
//	// Symfony: $container->getParameter('project.root')
//	root, err := c.Parameter("project.root")
//
// Containers in this package are assembled by the compiler and cache layers;
// most applications never call New directly and instead go through the
// top-level loader.
package container
