// Package appversion provides build-time version information.
package appversion

import "runtime/debug"

// version is set at build time via -ldflags.
var version = "dev" //nolint:gochecknoglobals // ldflags requires package-level var

// String returns the current version. Without ldflags it falls back to the
// module version recorded by `go install`.
func String() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return version
}

// Commit returns the VCS revision the binary was built from, shortened, or
// "" when unknown.
func Commit() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return ""
}
