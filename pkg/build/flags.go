// SPDX-License-Identifier: MIT
//
// Package build provides functionality to manage and retrieve build information
// for a Go application. It allows embedding metadata such as the application
// name, build timestamp, Git commit hash, and semantic version into the binary
// at compile time using linker flags:
//
//	go build -ldflags "-X audiovis/pkg/build.buildVersion=0.1.0 ..."
package build

import (
	"errors"
	"fmt"
)

// Description is the one-line summary shown in help output.
const Description = "Real-time audio visualization from playback, system loopback and microphone"

type ldFlags struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// String formats the flags for --version output.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", f.Version, f.Commit, f.Time)
}

// Package-level variables for build information. These are populated by -ldflags
// during compilation. Default values of "unknown" are used during development.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:    "audiovis",
		Time:    "unknown",
		Commit:  "unknown",
		Version: "dev",
	}
)

// Initialize copies whichever ldflags variables are set into the build
// information. It returns an error naming every missing flag; the defaults
// stay in place for those, so development builds can ignore the error.
func Initialize() error {
	var errs []error
	set := func(dst *string, src, name string) {
		if src == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
			return
		}
		*dst = src
	}

	set(&buildFlags.Name, buildName, "BuildName")
	set(&buildFlags.Time, buildTime, "BuildTime")
	set(&buildFlags.Commit, buildCommit, "BuildCommit")
	set(&buildFlags.Version, buildVersion, "BuildVersion")

	return errors.Join(errs...)
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}
