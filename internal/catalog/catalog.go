// Package catalog holds the built-in entity models.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"github.com/roach88/orgadmin/internal/compiler"
	"github.com/roach88/orgadmin/internal/model"
)

//go:embed org.cue
var orgSource string

// Entity names of the built-in models.
const (
	User              = "User"
	NaturalPerson     = "NaturalPerson"
	OrganizationType  = "OrganizationType"
	Organization      = "Organization"
	Position          = "Position"
	TransferRecord    = "TransferRecord"
	PointDistribution = "PointDistribution"
)

var (
	defaultOnce sync.Once
	defaultReg  *model.Registry
	defaultErr  error
)

// Source returns the embedded CUE definitions.
func Source() string {
	return orgSource
}

// Default returns the registry compiled from the embedded models.
// It is compiled once and shared.
func Default() (*model.Registry, error) {
	defaultOnce.Do(func() {
		defaultReg, defaultErr = compiler.CompileSource("org.cue", orgSource)
	})
	return defaultReg, defaultErr
}

// MustDefault is like Default but panics on error.
func MustDefault() *model.Registry {
	reg, err := Default()
	if err != nil {
		panic(err)
	}
	return reg
}

// Load compiles models from path, or returns Default when path is empty.
func Load(path string) (*model.Registry, error) {
	if path == "" {
		return Default()
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read models: %w", err)
	}
	return compiler.CompileSource(path, string(src))
}
