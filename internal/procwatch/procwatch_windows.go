package procwatch

import "golang.org/x/sys/windows"

const stillActive = 259 // STILL_ACTIVE, per the Windows GetExitCodeProcess docs

// Alive reports whether pid names a live process. There is no Windows
// equivalent of a signal-0 probe, so this opens the process handle with
// just enough rights to read its exit code and checks for STILL_ACTIVE.
func Alive(pid int64) bool {
	if pid <= 0 {
		return true
	}

	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == stillActive
}
