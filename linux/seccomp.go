// Package linux provides seccomp BPF filter support and other
// Linux-specific sandbox primitives.
package linux

import (
	"fmt"
	"syscall"
	"unsafe"

	jerrors "judger-go/errors"
)

// Seccomp constants
const (
	SECCOMP_MODE_FILTER      = 2
	SECCOMP_RET_KILL_PROCESS = 0x80000000
	SECCOMP_RET_KILL_THREAD  = 0x00000000
	SECCOMP_RET_ERRNO        = 0x00050000
	SECCOMP_RET_ALLOW        = 0x7fff0000

	PR_SET_NO_NEW_PRIVS = 38
	PR_SET_SECCOMP      = 22
)

// BPF constants
const (
	BPF_LD  = 0x00
	BPF_JMP = 0x05
	BPF_RET = 0x06
	BPF_ALU = 0x04
	BPF_W   = 0x00
	BPF_ABS = 0x20
	BPF_JEQ = 0x10
	BPF_K   = 0x00
	BPF_AND = 0x50
)

// seccomp_data offsets. The struct is {nr int32; arch uint32;
// instruction_pointer uint64; args[6] uint64}, so each argument is an
// 8-byte slot starting at offset 16; on a little-endian x86_64 host the
// low 32 bits (the half a flags argument lives in) come first.
const (
	offsetNR   = 0
	offsetArch = 4
)

func offsetArgLow(n int) uint32 {
	return uint32(16 + n*8)
}

// Architecture audit value for the only architecture this sandbox targets.
const auditArchX86_64 = 0xc000003e

// O_* flag bits relevant to the conditional open/openat rules below.
const (
	oWRONLY  = 0x1
	oRDWR    = 0x2
	oACCMODE = 0x3
)

// sockFprog is the BPF program structure passed to PR_SET_SECCOMP.
type sockFprog struct {
	Len    uint16
	Filter *sockFilter
}

// sockFilter is a single BPF instruction.
type sockFilter struct {
	Code uint16
	Jt   uint8
	Jf   uint8
	K    uint32
}

// syscallMap maps x86_64 syscall names to numbers.
var syscallMap = map[string]int{
	"read": 0, "write": 1, "open": 2, "close": 3, "stat": 4,
	"fstat": 5, "lstat": 6, "poll": 7, "lseek": 8, "mmap": 9,
	"mprotect": 10, "munmap": 11, "brk": 12, "ioctl": 16,
	"pread64": 17, "readv": 19, "writev": 20,
	"access": 21, "pipe": 22, "select": 23, "sched_yield": 24,
	"mremap": 25, "msync": 26, "mincore": 27, "madvise": 28,
	"dup": 32, "dup2": 33, "pause": 34, "nanosleep": 35,
	"getpid": 39, "socket": 41, "connect": 42, "accept": 43,
	"sendto": 44, "recvfrom": 45, "sendmsg": 46, "recvmsg": 47,
	"shutdown": 48, "bind": 49, "listen": 50, "getsockname": 51,
	"getpeername": 52, "socketpair": 53, "setsockopt": 54,
	"getsockopt": 55, "clone": 56, "fork": 57, "vfork": 58,
	"execve": 59, "exit": 60, "wait4": 61, "kill": 62,
	"uname": 63, "fcntl": 72, "flock": 73, "fsync": 74,
	"fdatasync": 75, "truncate": 76, "ftruncate": 77,
	"getdents": 78, "getcwd": 79, "chdir": 80, "fchdir": 81,
	"rename": 82, "mkdir": 83, "rmdir": 84, "creat": 85,
	"link": 86, "unlink": 87, "symlink": 88, "readlink": 89,
	"chmod": 90, "fchmod": 91, "chown": 92, "fchown": 93,
	"lchown": 94, "umask": 95, "gettimeofday": 96, "getrlimit": 97,
	"getrusage": 98, "sysinfo": 99, "times": 100,
	"ptrace": 101, "getuid": 102, "syslog": 103, "getgid": 104,
	"setuid": 105, "setgid": 106, "geteuid": 107, "getegid": 108,
	"setpgid": 109, "getppid": 110, "getpgrp": 111, "setsid": 112,
	"setreuid": 113, "setregid": 114, "getgroups": 115, "setgroups": 116,
	"setresuid": 117, "getresuid": 118, "setresgid": 119, "getresgid": 120,
	"getpgid": 121, "setfsuid": 122, "setfsgid": 123, "getsid": 124,
	"capget": 125, "capset": 126, "rt_sigpending": 127,
	"rt_sigtimedwait": 128, "rt_sigqueueinfo": 129, "rt_sigsuspend": 130,
	"sigaltstack": 131, "utime": 132, "mknod": 133,
	"personality": 135, "ustat": 136, "statfs": 137, "fstatfs": 138,
	"sysfs": 139, "getpriority": 140, "setpriority": 141,
	"sched_setparam": 142, "sched_getparam": 143,
	"sched_setscheduler": 144, "sched_getscheduler": 145,
	"sched_get_priority_max": 146, "sched_get_priority_min": 147,
	"sched_rr_get_interval": 148, "mlock": 149, "munlock": 150,
	"mlockall": 151, "munlockall": 152, "vhangup": 153,
	"modify_ldt": 154, "pivot_root": 155, "_sysctl": 156,
	"prctl": 157, "arch_prctl": 158, "adjtimex": 159,
	"setrlimit": 160, "chroot": 161, "sync": 162, "acct": 163,
	"settimeofday": 164, "mount": 165, "umount2": 166,
	"swapon": 167, "swapoff": 168, "reboot": 169,
	"sethostname": 170, "setdomainname": 171, "iopl": 172, "ioperm": 173,
	"init_module": 175, "delete_module": 176,
	"quotactl": 179, "nfsservctl": 180,
	"gettid": 186, "readahead": 187, "setxattr": 188,
	"getxattr": 191, "listxattr": 194, "removexattr": 197,
	"tkill": 200, "time": 201, "futex": 202,
	"sched_setaffinity": 203, "sched_getaffinity": 204,
	"io_setup": 206, "io_destroy": 207, "io_getevents": 208,
	"io_submit": 209, "io_cancel": 210, "lookup_dcookie": 212,
	"epoll_create": 213, "remap_file_pages": 216,
	"getdents64": 217, "set_tid_address": 218, "restart_syscall": 219,
	"semtimedop": 220, "fadvise64": 221, "timer_create": 222,
	"timer_settime": 223, "timer_gettime": 224, "timer_getoverrun": 225,
	"timer_delete": 226, "clock_settime": 227, "clock_gettime": 228,
	"clock_getres": 229, "clock_nanosleep": 230, "exit_group": 231,
	"epoll_wait": 232, "epoll_ctl": 233, "tgkill": 234,
	"utimes": 235, "mbind": 237, "set_mempolicy": 238,
	"get_mempolicy": 239, "mq_open": 240, "mq_unlink": 241,
	"mq_timedsend": 242, "mq_timedreceive": 243, "mq_notify": 244,
	"mq_getsetattr": 245, "kexec_load": 246, "waitid": 247,
	"add_key": 248, "request_key": 249, "keyctl": 250,
	"ioprio_set": 251, "ioprio_get": 252, "inotify_init": 253,
	"inotify_add_watch": 254, "inotify_rm_watch": 255,
	"migrate_pages": 256, "openat": 257, "mkdirat": 258,
	"mknodat": 259, "fchownat": 260, "futimesat": 261,
	"newfstatat": 262, "unlinkat": 263, "renameat": 264,
	"linkat": 265, "symlinkat": 266, "readlinkat": 267,
	"fchmodat": 268, "faccessat": 269, "pselect6": 270,
	"ppoll": 271, "unshare": 272, "set_robust_list": 273,
	"get_robust_list": 274, "splice": 275, "tee": 276,
	"sync_file_range": 277, "vmsplice": 278, "move_pages": 279,
	"utimensat": 280, "epoll_pwait": 281, "signalfd": 282,
	"timerfd_create": 283, "eventfd": 284, "fallocate": 285,
	"timerfd_settime": 286, "timerfd_gettime": 287, "accept4": 288,
	"signalfd4": 289, "eventfd2": 290, "epoll_create1": 291,
	"dup3": 292, "pipe2": 293, "inotify_init1": 294,
	"preadv": 295, "pwritev": 296, "rt_tgsigqueueinfo": 297,
	"perf_event_open": 298, "recvmmsg": 299, "fanotify_init": 300,
	"fanotify_mark": 301, "prlimit64": 302, "name_to_handle_at": 303,
	"open_by_handle_at": 304, "clock_adjtime": 305, "syncfs": 306,
	"sendmmsg": 307, "setns": 308, "getcpu": 309, "process_vm_readv": 310,
	"process_vm_writev": 311, "kcmp": 312, "finit_module": 313,
	"sched_setattr": 314, "sched_getattr": 315, "renameat2": 316,
	"seccomp": 317, "getrandom": 318, "memfd_create": 319,
	"kexec_file_load": 320, "bpf": 321, "execveat": 322,
	"userfaultfd": 323, "membarrier": 324, "mlock2": 325,
	"copy_file_range": 326, "preadv2": 327, "pwritev2": 328,
	"pkey_mprotect": 329, "pkey_alloc": 330, "pkey_free": 331,
	"statx": 332, "io_pgetevents": 333, "rseq": 334,
}

// SyscallNumber returns the x86_64 syscall number for a name.
func SyscallNumber(name string) (int, bool) {
	nr, ok := syscallMap[name]
	return nr, ok
}

// ccppWhitelist is the syscall set unconditionally allowed by the CCpp and
// CCppFileIO policies, excluding open/openat which have their own
// conditional rule (and excluding dup/dup2/dup3 in the strict CCpp case).
var ccppWhitelist = []string{
	"access", "arch_prctl", "brk", "clock_gettime", "close", "exit_group",
	"faccessat", "fstat", "futex", "getrandom", "lseek", "mmap", "mprotect",
	"munmap", "newfstatat", "pread64", "prlimit64", "read", "readlink",
	"readv", "rseq", "set_robust_list", "set_tid_address", "write", "writev",
	"execve",
}

// InstallSeccomp builds and installs the named policy's BPF filter in the
// calling thread, which must be the guest's initializer running just
// before execve. name == "" installs nothing.
func InstallSeccomp(name string) error {
	if name == "" {
		return nil
	}

	filter, err := buildPolicy(name)
	if err != nil {
		return jerrors.WrapWithDetail(err, jerrors.ErrLoadSeccompFailed, "build seccomp filter", string(name))
	}

	if _, _, errno := syscall.Syscall(syscall.SYS_PRCTL, PR_SET_NO_NEW_PRIVS, 1, 0); errno != 0 {
		return jerrors.Wrap(fmt.Errorf("prctl(PR_SET_NO_NEW_PRIVS): %v", errno), jerrors.ErrLoadSeccompFailed, "prctl no_new_privs")
	}

	prog := sockFprog{
		Len:    uint16(len(filter)),
		Filter: &filter[0],
	}
	if _, _, errno := syscall.Syscall(syscall.SYS_PRCTL, PR_SET_SECCOMP, SECCOMP_MODE_FILTER, uintptr(unsafe.Pointer(&prog))); errno != 0 {
		return jerrors.Wrap(fmt.Errorf("prctl(PR_SET_SECCOMP): %v", errno), jerrors.ErrLoadSeccompFailed, "prctl seccomp")
	}
	return nil
}

// buildPolicy dispatches to one of the five named policy builders.
func buildPolicy(name string) ([]sockFilter, error) {
	switch name {
	case "c_cpp":
		return buildCCpp(false), nil
	case "c_cpp_file_io":
		return buildCCpp(true), nil
	case "golang":
		return buildBlacklist([]string{"socket", "fork", "vfork", "kill", "execveat"}, nil), nil
	case "node":
		return buildBlacklist([]string{"socket", "fork", "vfork", "kill", "execveat"}, nil), nil
	case "general":
		return buildGeneral(), nil
	default:
		return nil, fmt.Errorf("unknown seccomp rule name %q", name)
	}
}

// archCheck emits the leading architecture gate shared by every policy:
// kill the process outright if the syscall was not made from x86_64.
func archCheck() []sockFilter {
	return []sockFilter{
		bpfStmt(BPF_LD|BPF_W|BPF_ABS, offsetArch),
		bpfJump(BPF_JMP|BPF_JEQ|BPF_K, auditArchX86_64, 1, 0),
		bpfStmt(BPF_RET|BPF_K, SECCOMP_RET_KILL_PROCESS),
	}
}

// loadSyscallNR emits the instruction that loads the syscall number into
// the accumulator; every per-syscall rule below compares against it.
func loadSyscallNR() sockFilter {
	return bpfStmt(BPF_LD|BPF_W|BPF_ABS, offsetNR)
}

// buildCCpp builds the CCpp strict whitelist policy. When fileIO is true,
// open/openat/dup/dup2/dup3 are allowed unconditionally (CCppFileIO);
// otherwise open/openat are allowed only when opened without write access.
func buildCCpp(fileIO bool) []sockFilter {
	var f []sockFilter
	f = append(f, archCheck()...)
	f = append(f, loadSyscallNR())

	whitelist := append([]string{}, ccppWhitelist...)
	if fileIO {
		whitelist = append(whitelist, "open", "openat", "dup", "dup2", "dup3")
	}
	for _, name := range whitelist {
		nr, ok := syscallMap[name]
		if !ok {
			continue
		}
		f = append(f, bpfJump(BPF_JMP|BPF_JEQ|BPF_K, uint32(nr), 0, 1))
		f = append(f, bpfStmt(BPF_RET|BPF_K, SECCOMP_RET_ALLOW))
	}

	if !fileIO {
		for _, name := range []string{"open", "openat"} {
			nr, ok := syscallMap[name]
			if !ok {
				continue
			}
			argIdx := 1 // open(path, flags)
			if name == "openat" {
				argIdx = 2 // openat(dirfd, path, flags)
			}
			f = append(f, bpfJump(BPF_JMP|BPF_JEQ|BPF_K, uint32(nr), 0, 5))
			f = append(f, maskedEqualArg(argIdx, oACCMODE, 0, SECCOMP_RET_ALLOW, SECCOMP_RET_KILL_PROCESS)...)
		}
	}

	f = append(f, bpfStmt(BPF_RET|BPF_K, SECCOMP_RET_KILL_PROCESS))
	return f
}

// buildBlacklist builds a default-ALLOW policy that kills on any of the
// given syscall names, plus any conditional rules supplied.
func buildBlacklist(killNames []string, conditionals []sockFilter) []sockFilter {
	var f []sockFilter
	f = append(f, archCheck()...)
	f = append(f, loadSyscallNR())

	for _, name := range killNames {
		nr, ok := syscallMap[name]
		if !ok {
			continue
		}
		f = append(f, bpfJump(BPF_JMP|BPF_JEQ|BPF_K, uint32(nr), 0, 1))
		f = append(f, bpfStmt(BPF_RET|BPF_K, SECCOMP_RET_KILL_PROCESS))
	}
	f = append(f, conditionals...)

	f = append(f, bpfStmt(BPF_RET|BPF_K, SECCOMP_RET_ALLOW))
	return f
}

// buildGeneral builds the General policy: default ALLOW, a fixed
// syscall blacklist, and open/openat killed when opened with O_WRONLY or
// O_RDWR set (checked as two independent mask rules).
func buildGeneral() []sockFilter {
	var f []sockFilter
	f = append(f, archCheck()...)
	f = append(f, loadSyscallNR())

	for _, name := range []string{"clone", "fork", "vfork", "kill", "execveat", "socket"} {
		nr, ok := syscallMap[name]
		if !ok {
			continue
		}
		f = append(f, bpfJump(BPF_JMP|BPF_JEQ|BPF_K, uint32(nr), 0, 1))
		f = append(f, bpfStmt(BPF_RET|BPF_K, SECCOMP_RET_KILL_PROCESS))
	}

	for _, name := range []string{"open", "openat"} {
		nr, ok := syscallMap[name]
		if !ok {
			continue
		}
		argIdx := 1
		if name == "openat" {
			argIdx = 2
		}
		f = append(f, bpfJump(BPF_JMP|BPF_JEQ|BPF_K, uint32(nr), 0, 8))
		f = append(f, maskedEqualArg(argIdx, oWRONLY, oWRONLY, SECCOMP_RET_KILL_PROCESS, 0)...)
		f = append(f, maskedEqualArg(argIdx, oRDWR, oRDWR, SECCOMP_RET_KILL_PROCESS, 0)...)
	}

	f = append(f, bpfStmt(BPF_RET|BPF_K, SECCOMP_RET_ALLOW))
	return f
}

// maskedEqualArg emits the raw-BPF sequence for a libseccomp-style
// SCMP_CMP_MASKED_EQ check against the low 32 bits of argument argIdx:
// load the argument, AND it with mask, and return onTrue if the result
// equals value, falling through to the next instruction otherwise. If
// onFalse is non-zero it is returned explicitly instead of falling
// through (used by rules with no further checks to perform).
func maskedEqualArg(argIdx int, mask, value, onTrue, onFalse uint32) []sockFilter {
	instrs := []sockFilter{
		bpfStmt(BPF_LD|BPF_W|BPF_ABS, offsetArgLow(argIdx)),
		bpfStmt(BPF_ALU|BPF_AND|BPF_K, mask),
	}
	if onFalse == 0 {
		// Fall through on mismatch (jf=1 skips the return); caller
		// supplies the next instruction as the mismatch path.
		instrs = append(instrs, bpfJump(BPF_JMP|BPF_JEQ|BPF_K, value, 0, 1))
		instrs = append(instrs, bpfStmt(BPF_RET|BPF_K, onTrue))
		return instrs
	}
	instrs = append(instrs, bpfJump(BPF_JMP|BPF_JEQ|BPF_K, value, 0, 1))
	instrs = append(instrs, bpfStmt(BPF_RET|BPF_K, onTrue))
	instrs = append(instrs, bpfStmt(BPF_RET|BPF_K, onFalse))
	return instrs
}

// bpfStmt creates a non-jumping BPF instruction.
func bpfStmt(code uint16, k uint32) sockFilter {
	return sockFilter{Code: code, Jt: 0, Jf: 0, K: k}
}

// bpfJump creates a BPF jump instruction.
func bpfJump(code uint16, k uint32, jt, jf uint8) sockFilter {
	return sockFilter{Code: code, Jt: jt, Jf: jf, K: k}
}
