package config

import "runtime/debug"

// Overridden at link time, e.g.
//
//	-ldflags "-X matchpass/internal/config.version=1.4.0 -X matchpass/internal/config.commit=abc123"
var (
	version   = "dev"
	commit    = ""
	buildTime = ""
)

// NewBuildInfo reports the linker values, falling back to the VCS stamp the
// go command embeds when they were not set.
func NewBuildInfo() BuildInfo {
	info := BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fillFromVCS(&info, bi.Settings)
	}
	if info.Commit == "" {
		info.Commit = "none"
	}
	if info.BuildTime == "" {
		info.BuildTime = "unknown"
	}
	return info
}

func fillFromVCS(info *BuildInfo, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value[:min(len(s.Value), 12)]
			}
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = s.Value
			}
		}
	}
}
