package observability

import (
	"fmt"
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
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

// termMu synchronizes all terminal output so banner writes and log
// writes never interleave mid-line.
var termMu sync.Mutex

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// ------------------------------------------------------------
// TermWriter – a mutex-guarded io.Writer for log output.
// ------------------------------------------------------------

type termWriter struct{}

func (tw termWriter) Write(p []byte) (n int, err error) {
	termMu.Lock()
	defer termMu.Unlock()
	return os.Stderr.Write(p)
}

// NewTermWriter returns an io.Writer suitable for log.SetOutput().
func NewTermWriter() *termWriter {
	return &termWriter{}
}

// ------------------------------------------------------------
// Banner
// ------------------------------------------------------------

func PrintBanner() {
	banner := `
    ____  ___  _________    ____  ____  ____  __  ___
   / __ \/   |/_  __/   |  / __ \/ __ \/ __ \/  |/  /
  / / / / /| | / / / /| | / /_/ / / / / / / / /|_/ /
 / /_/ / ___ |/ / / ___ |/ _, _/ /_/ / /_/ / /  / /
/_____/_/  |_/_/ /_/  |_/_/ |_|\____/\____/_/  /_/

        >> CONVERSATIONAL DATA ANALYSIS <<
`

	width := termWidth()
	lines := strings.Split(banner, "\n")

	termMu.Lock()
	defer termMu.Unlock()
	for _, l := range lines {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Printf("%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan+l, colorReset)
	}
}

// PrintStartupStatus emits a one-line runtime summary below the banner.
func PrintStartupStatus(provider, model string) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	termMu.Lock()
	defer termMu.Unlock()
	fmt.Printf("%s[ BOOT ]%s provider=%s model=%s goroutines=%d heap=%dKB uptime=%s\n",
		colorNeonMag, colorReset,
		provider, model,
		runtime.NumGoroutine(), mem.HeapAlloc/1024,
		time.Since(startTime).Round(time.Millisecond))
}
