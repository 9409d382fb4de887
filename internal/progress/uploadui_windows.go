//go:build windows

package progress

import (
	"os"

	"golang.org/x/sys/windows"
)

// enableVirtualTerminalProcessing is ENABLE_VIRTUAL_TERMINAL_PROCESSING.
const enableVirtualTerminalProcessing = 0x0004

// enableWindowsANSI turns on VT processing so mpb's cursor movement works
// in cmd.exe and PowerShell consoles.
func enableWindowsANSI(f *os.File) {
	handle := windows.Handle(f.Fd())
	var mode uint32
	if err := windows.GetConsoleMode(handle, &mode); err != nil {
		return
	}
	_ = windows.SetConsoleMode(handle, mode|enableVirtualTerminalProcessing)
}
