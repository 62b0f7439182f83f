// Command camwatch toggles Do Not Disturb and runs user scripts when a
// video-conferencing app starts or stops using the camera.
package main

import "github.com/camwatch/camwatch/internal/cli"

// Build information set via ldflags
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	cli.Execute(cli.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    buildDate,
	})
}
