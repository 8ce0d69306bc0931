// Package version reports the build identity of the neon player backend.
//
// Release builds stamp it through the linker:
//
//	go build -ldflags "-X github.com/edumarques81/neon-player-backend/internal/version.Version=0.2.0 \
//	  -X github.com/edumarques81/neon-player-backend/internal/version.GitCommit=$(git rev-parse HEAD) \
//	  -X github.com/edumarques81/neon-player-backend/internal/version.BuildTime=$(date -u +%FT%TZ)" ./cmd/neonplayer
//
// A plain go build from a checkout still reports the commit, its time and a
// dirty flag, taken from the VCS stamp the toolchain embeds.
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	Name      = "Neon Player"
	Version   = "0.1.0"
	BuildTime = ""
	GitCommit = ""
)

// Info is what /api/v1/version and the version command report.
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	BuildTime string `json:"buildTime,omitempty"`
	GitCommit string `json:"gitCommit,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"goVersion,omitempty"`
}

func GetInfo() Info {
	info := Info{
		Name:      Name,
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = withBuildInfo(info, bi)
	}
	return info
}

// withBuildInfo fills the fields the linker left empty from the toolchain's
// build stamp. Linker values win.
func withBuildInfo(info Info, bi *debug.BuildInfo) Info {
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// String formats the info as "Name vX.Y.Z (commit[-dirty]) built TIME".
func (i Info) String() string {
	s := fmt.Sprintf("%s v%s", i.Name, i.Version)
	if i.GitCommit != "" {
		commit := i.GitCommit[:min(7, len(i.GitCommit))]
		if i.Modified {
			commit += "-dirty"
		}
		s += fmt.Sprintf(" (%s)", commit)
	}
	if i.BuildTime != "" {
		s += " built " + i.BuildTime
	}
	return s
}
