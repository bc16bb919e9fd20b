package logging

import "runtime"

// ANSI escapes used by the pretty writer. Blank on Windows consoles.
var (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"

	colorRed  = "\033[31m"
	colorBlue = "\033[34m"
	colorGray = "\033[37m"

	colorBgRed    = "\033[41m"
	colorBgYellow = "\033[43m"
	colorBgBlue   = "\033[44m"
)

func init() {
	if runtime.GOOS == "windows" {
		colorReset = ""
		colorBold = ""
		colorRed = ""
		colorBlue = ""
		colorGray = ""
		colorBgRed = ""
		colorBgYellow = ""
		colorBgBlue = ""
	}
}
