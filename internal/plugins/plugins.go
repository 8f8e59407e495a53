// Package plugins is the registry of in-tree integrations. The hub
// loads the ones named in plugins.enabled.
package plugins

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nerrad567/gray-logic-hub/internal/integrations"
	"github.com/nerrad567/gray-logic-hub/internal/plugins/blebeacon"
	"github.com/nerrad567/gray-logic-hub/internal/plugins/mock"
	"github.com/nerrad567/gray-logic-hub/internal/plugins/mqttthing"
	"github.com/nerrad567/gray-logic-hub/internal/plugins/netdevice"
)

// ErrUnknownPlugin is returned by New for a name with no factory.
var ErrUnknownPlugin = errors.New("plugins: unknown plugin")

var factories = map[string]func() integrations.Plugin{
	"mock":      func() integrations.Plugin { return mock.New() },
	"mqttthing": func() integrations.Plugin { return mqttthing.New() },
	"netdevice": func() integrations.Plugin { return netdevice.New() },
	"blebeacon": func() integrations.Plugin { return blebeacon.New() },
}

// New creates a fresh instance of the named plugin.
func New(name string) (integrations.Plugin, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, name)
	}
	return f(), nil
}

// Names lists the available plugins in sorted order.
func Names() []string {
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
