// Package builtin provides the stock tool set registered by default:
// current time, arithmetic, and web fetch.
package builtin

import (
	"github.com/unillm/unillm/internal/tool"
)

// RegisterAll adds every builtin tool to the registry.
func RegisterAll(r *tool.Registry) error {
	defs := []tool.Definition{
		timeTool(),
		calculateTool(),
		webFetchTool(),
	}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}
