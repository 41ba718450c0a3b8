// Package gmat runs the GMAT console on a generated script and collects
// the report it writes. LocalRunner drives a console on this machine;
// RemoteRunner drives one on another host over SSH.
package gmat

import (
	"context"
	"time"
)

// Engine runs a script and returns the path of the report copied into outDir.
type Engine interface {
	Run(ctx context.Context, script, outDir string) (string, error)
}

// DefaultTimeout bounds a single engine run.
const DefaultTimeout = 10 * time.Minute

var (
	_ Engine = (*LocalRunner)(nil)
	_ Engine = (*RemoteRunner)(nil)
)
