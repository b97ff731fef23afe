package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// The optional lifecycle interfaces below are detected with type
// assertions. LoadModule runs Configure, Provision and Validate in that
// order; App.Start and App.Stop drive the rest.

// Configurable modules receive their section of the modules: map, e.g.
// modules.preset.sqlite. Configure is skipped when the section is absent.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner modules apply defaults, open resources and register the
// services other modules look up (the preset store, the tracer provider).
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator modules check the provisioned configuration without side effects.
type Validator interface {
	Validate() error
}

// Starter modules begin serving, such as the gateway's HTTP listener.
type Starter interface {
	Start() error
}

// Stopper modules release what Provision or Start acquired. Stop runs in
// reverse load order and must respect ctx's deadline.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader modules apply a new configuration in place. ctx carries the
// new module sections and the new assembly settings.
type Reloader interface {
	Reload(ctx *AppContext) error
}
