package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

var startTime = time.Now()

const (
	colorReset    = "\033[0m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

var radarFrames = []string{"◜", "◝", "◞", "◟"}

// termMu synchronizes ALL terminal output so that the cursor
// save/restore in RunDashboard can never be interrupted by a log write.
var termMu sync.Mutex

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

const banner = `
    __             _ __________  ______
   / /   ___  _  _(_) ____/ __ \/_  __/
  / /   / _ \| |/_/ / / __/ /_/ / / /
 / /___/  __/>  </ / /_/ / ____/ / /
/_____/\___/_/|_/_/\____/_/     /_/

      >> legal research agent <<
`

// PrintBanner writes the centred logo and the listen address.
func PrintBanner(w io.Writer, addr string) {
	width := termWidth()

	termMu.Lock()
	defer termMu.Unlock()
	for _, l := range strings.Split(banner, "\n") {
		padding := max((width-len(l))/2, 0)
		fmt.Fprintf(w, "%s%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan, l, colorReset)
	}
	if addr != "" {
		fmt.Fprintf(w, "%slistening on %s%s\n\n", colorPurple, addr, colorReset)
	}
}

// StatusLine renders one dashboard line for snap.
func StatusLine(snap Snapshot, frame int) string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	memMB := float64(m.Alloc) / 1024 / 1024

	phaseColor := colorNeonCyan
	if snap.Phase != PhaseIdle {
		phaseColor = colorNeonMag
	}

	radar := " "
	if snap.Phase != PhaseIdle {
		radar = radarFrames[frame%len(radarFrames)]
	}

	step := snap.CurrentStep
	if step == "" {
		step = "Waiting..."
	}
	if r := []rune(step); len(r) > 25 {
		step = string(r[:22]) + "..."
	}

	return fmt.Sprintf("%s%-9s%s %s%s%s runs:%d done:%d failed:%d [%s] up %v %.1fMB",
		phaseColor, snap.Phase, colorReset,
		colorPurple, radar, colorReset,
		snap.ActiveRuns, snap.CompletedRuns, snap.FailedRuns,
		step,
		time.Since(startTime).Round(time.Second),
		memMB,
	)
}

// RunDashboard redraws the status line on the terminal's first row every
// interval until ctx ends.
func RunDashboard(ctx context.Context, status *Status, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			line := StatusLine(status.Snapshot(), frame)
			// Lock, write the ENTIRE escape sequence atomically, unlock.
			termMu.Lock()
			fmt.Printf("\033[s\033[1;1H\033[K%s\033[u", line)
			termMu.Unlock()
		}
	}
}
