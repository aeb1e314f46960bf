// Package factory provides a small generic registry used to build pluggable
// components (metrics sinks, charger selection policies, snapshot
// publishers) from configuration. A component is described by a type
// string and a raw settings map which the factory decodes into its own
// typed struct.
//
// Example usage:
//
//	reg := factory.NewRegistry[Policy]()
//	reg.Register("first", func(map[string]any) (Policy, error) { return First{}, nil })
//	p, err := reg.Create(factory.ModuleConfig{Type: "first"})
package factory
