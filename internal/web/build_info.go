// internal/web/build_info.go
package web

import (
	"runtime"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// BuildInfo holds build-time information
type BuildInfo struct {
	Version   string   `json:"version"`
	GitCommit string   `json:"gitCommit"`
	BuildTime string   `json:"buildTime"`
	GoVersion string   `json:"goVersion"`
	GoOS      string   `json:"goOs"`
	GoArch    string   `json:"goArch"`
	Modules   []Module `json:"modules"`
}

type Module struct {
	Path    string `json:"path"`
	Version string `json:"version"`
}

// Set at build time with -ldflags "-X .../internal/web.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func (s *Server) getBuildInfo(c *gin.Context) {
	c.JSON(200, gin.H{"data": CurrentBuildInfo()})
}

// CurrentBuildInfo reports the linker-set version plus the module graph
// embedded by the Go toolchain.
func CurrentBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		GoOS:      runtime.GOOS,
		GoArch:    runtime.GOARCH,
		Modules:   []Module{},
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range bi.Deps {
			info.Modules = append(info.Modules, Module{Path: dep.Path, Version: dep.Version})
		}
		if GitCommit == "unknown" {
			for _, setting := range bi.Settings {
				if setting.Key == "vcs.revision" {
					info.GitCommit = setting.Value
				}
			}
		}
	}
	return info
}
