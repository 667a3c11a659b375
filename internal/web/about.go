package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"slices"
	"strings"
	"time"
)

// chargingStack lists the modules whose versions decide how charging nodes
// and the control socket behave; /api/about reports what was linked.
var chargingStack = []string{
	"github.com/warthog618/go-gpiocdev",
	"github.com/fxamacker/cbor/v2",
	"github.com/spf13/afero",
	"golang.org/x/sys",
}

type AboutResponse struct {
	Service    string            `json:"service"`
	NowUTC     string            `json:"now_utc"`
	GoVersion  string            `json:"go_version"`
	Platform   string            `json:"platform"`
	ModulePath string            `json:"module_path,omitempty"`
	Version    string            `json:"version,omitempty"`
	Commit     string            `json:"commit,omitempty"`
	Dirty      bool              `json:"dirty,omitempty"`
	BuildTime  string            `json:"build_time,omitempty"`
	Modules    map[string]string `json:"modules,omitempty"`
}

// BuildInfo describes the running binary.
func BuildInfo() AboutResponse {
	bi, _ := debug.ReadBuildInfo()
	return aboutFrom(bi, time.Now())
}

func aboutFrom(bi *debug.BuildInfo, now time.Time) AboutResponse {
	resp := AboutResponse{
		Service:   serviceName,
		NowUTC:    now.UTC().Format(time.RFC3339Nano),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi == nil {
		return resp
	}
	resp.ModulePath = bi.Main.Path
	resp.Version = bi.Main.Version

	vcs := make(map[string]string)
	for _, s := range bi.Settings {
		if k, ok := strings.CutPrefix(s.Key, "vcs."); ok {
			vcs[k] = s.Value
		}
	}
	resp.Commit = vcs["revision"]
	resp.Dirty = vcs["modified"] == "true"
	resp.BuildTime = vcs["time"]

	for _, d := range bi.Deps {
		if !slices.Contains(chargingStack, d.Path) {
			continue
		}
		if resp.Modules == nil {
			resp.Modules = make(map[string]string)
		}
		v := d.Version
		if d.Replace != nil {
			v += " => " + d.Replace.Path + " " + d.Replace.Version
		}
		resp.Modules[d.Path] = v
	}
	return resp
}

func AboutHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, BuildInfo())
	})
}
