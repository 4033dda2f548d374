package vfo

import "github.com/gofiber/fiber/v2"

// Module is a mountable API component.
type Module interface {
	// Name returns the module identifier.
	Name() string

	// RegisterRoutes adds the module's HTTP routes to the app.
	RegisterRoutes(app *fiber.App)
}

// Deps are the shared objects API modules are built from.
type Deps struct {
	Tracker *Tracker
	Synth   *Synth
	Store   *CalStore

	// ReferenceHz is the calibration reference used when a run request
	// does not specify one.
	ReferenceHz float64
}

// ModuleFactory creates a module instance from the shared dependencies.
type ModuleFactory func(deps *Deps) (Module, error)

var registry = make(map[string]ModuleFactory)

// RegisterModule adds a module factory to the registry.
func RegisterModule(name string, factory ModuleFactory) {
	registry[name] = factory
}

// GetModule retrieves a module factory by name.
func GetModule(name string) (ModuleFactory, bool) {
	factory, exists := registry[name]
	return factory, exists
}
