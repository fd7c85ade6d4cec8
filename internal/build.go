package internal

import (
	"log/slog"
	"runtime/debug"
	"time"
)

// Build describes the version control state the binary was built from.
type Build struct {
	Revision      string
	RevisionTime  time.Time
	LocalModified bool
}

// BuildInfo is read from the build info embedded by the Go toolchain.
var BuildInfo = readBuild(debug.ReadBuildInfo)

func readBuild(read func() (*debug.BuildInfo, bool)) Build {
	b := Build{
		Revision: "unknown",
	}

	info, ok := read()
	if !ok {
		return b
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			b.Revision = setting.Value
		case "vcs.time":
			// an unparseable time is left zero, it's informational only.
			t, err := time.Parse(time.RFC3339, setting.Value)
			if err == nil {
				b.RevisionTime = t
			}
		case "vcs.modified":
			b.LocalModified = setting.Value == "true"
		}
	}

	return b
}

// AppVersion is the revision, suffixed with "-modified" when the
// working tree had local changes.
func (b Build) AppVersion() string {
	if b.LocalModified {
		return b.Revision + "-modified"
	}
	return b.Revision
}

// LogValue implements the slog.LogValuer interface.
func (b Build) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("revision", b.Revision),
		slog.Time("revisionTime", b.RevisionTime),
		slog.Bool("localModified", b.LocalModified),
	)
}
