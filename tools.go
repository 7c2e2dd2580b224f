//go:build tools

// Package tools tracks tool dependencies invoked through go generate.
package roomcast

import (
	_ "go.uber.org/mock/mockgen"
)
