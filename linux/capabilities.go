// Package linux provides Linux capability management.
package linux

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"unsafe"

	jerrors "judger-go/errors"
)

var (
	// lastCapOnce ensures we only detect the last capability once.
	lastCapOnce sync.Once
	// lastCapValue holds the detected last capability value.
	lastCapValue int = 40 // default fallback, matches CAP_CHECKPOINT_RESTORE
)

// getLastCap returns the highest capability supported by the kernel. This
// is detected dynamically to support newer kernels with more capabilities.
func getLastCap() int {
	lastCapOnce.Do(func() {
		if data, err := os.ReadFile("/proc/sys/kernel/cap_last_cap"); err == nil {
			if val, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && val >= 0 {
				lastCapValue = val
				return
			}
		}

		for cap := 40; cap <= 63; cap++ {
			ret, _, _ := syscall.Syscall(syscall.SYS_PRCTL, PR_CAPBSET_READ, uintptr(cap), 0)
			if ret == ^uintptr(0) {
				lastCapValue = cap - 1
				return
			}
		}
		lastCapValue = 63
	})
	return lastCapValue
}

// prctl constants
const (
	PR_CAPBSET_READ = 23
	PR_CAPBSET_DROP = 24

	PR_CAP_AMBIENT       = 47
	PR_CAP_AMBIENT_CLEAR = 4
)

// Capability header and data structures (linux/capability.h, v3 format).
const linuxCapabilityVersion3 = 0x20080522

type capHeader struct {
	Version uint32
	Pid     int32
}

type capData struct {
	Effective   uint32
	Permitted   uint32
	Inheritable uint32
}

// DropAll removes every capability from the bounding set and clears the
// effective, permitted, and inheritable sets, leaving the calling thread
// with no privileged capabilities at all. It is the sandbox's capability
// posture for every guest run — there is no allow-list, since a judged
// program is never meant to hold any capability.
func DropAll() error {
	clearAmbient()

	lastCap := getLastCap()
	for cap := 0; cap <= lastCap; cap++ {
		_, _, errno := syscall.Syscall(syscall.SYS_PRCTL, PR_CAPBSET_DROP, uintptr(cap), 0)
		if errno != 0 && errno != syscall.EINVAL {
			return jerrors.Wrap(errno, jerrors.ErrSetuidFailed, "drop bounding capability")
		}
	}

	header := capHeader{Version: linuxCapabilityVersion3, Pid: 0}
	data := [2]capData{}
	_, _, errno := syscall.Syscall(syscall.SYS_CAPSET,
		uintptr(unsafe.Pointer(&header)),
		uintptr(unsafe.Pointer(&data[0])),
		0)
	if errno != 0 {
		return jerrors.Wrap(errno, jerrors.ErrSetuidFailed, "clear capability sets")
	}
	return nil
}

// clearAmbient clears all ambient capabilities. Best-effort: the ambient
// set is a no-op on kernels predating its introduction (Linux 4.3), and
// DropAll's caller already treats the whole operation as non-fatal.
func clearAmbient() {
	syscall.Syscall(syscall.SYS_PRCTL, PR_CAP_AMBIENT, PR_CAP_AMBIENT_CLEAR, 0)
}
