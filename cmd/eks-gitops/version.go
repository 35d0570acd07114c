package main

import "runtime/debug"

// version is set by release builds: -ldflags "-X main.version=v1.0.0".
var version = ""

// getVersion prefers the linker-set version, then the module version of a
// "go install pkg@version" build, and falls back to "dev".
func getVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
