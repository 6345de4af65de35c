package internal

import (
	"runtime/debug"
	"strconv"
	"time"
)

// Build describes the version control state the binary was built from.
type Build struct {
	Revision      string
	RevisionTime  time.Time
	LocalModified bool
}

// CurrentBuild is read from the build info embedded by the go toolchain.
// Its Revision is "unknown" when no version control info was embedded,
// for example in tests.
var CurrentBuild = readBuild()

func readBuild() Build {
	b := Build{Revision: "unknown"}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			b.Revision = setting.Value
		case "vcs.time":
			t, err := time.Parse(time.RFC3339, setting.Value)
			if err == nil {
				b.RevisionTime = t
			}
		case "vcs.modified":
			b.LocalModified, _ = strconv.ParseBool(setting.Value)
		}
	}

	return b
}
