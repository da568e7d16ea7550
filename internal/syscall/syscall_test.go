package syscall

import (
	"testing"
	"unsafe"

	"github.com/aurora-os/aurora/internal/kconfig"
	"github.com/aurora-os/aurora/internal/keyboard"
	"github.com/aurora-os/aurora/internal/process"
	"github.com/aurora-os/aurora/internal/sched"
	"github.com/stretchr/testify/assert"
)

// quiesceScheduler points Global at no-op context-switch primitives so
// sysExit/sysYield can be exercised without jumping to real machine
// code, and seeds it with a process/thread so Current() is non-nil.
func quiesceScheduler(t *testing.T) (*process.PCB, *process.TCB) {
	t.Helper()
	sched.Global().SetMachine(
		func(prev, next *process.Context) {},
		func(next *process.Context) {},
	)
	tbl := process.NewTable()
	p, tcb := tbl.Create("test", 0x1000)
	tcb.SetStack(0x9000, 4096, 0x1000)
	sched.Global().SetIdle(tcb)
	sched.Global().Enqueue(tcb)
	sched.Global().Start()
	return p, tcb
}

func TestDispatchRejectsOutOfRangeNumber(t *testing.T) {
	assert.Equal(t, int64(-kconfig.ENOSYS), Dispatch(kconfig.MaxSyscallNumber+1, 0, 0, 0, 0, 0, 0))
}

func TestDispatchReturnsENOSYSForUnimplementedSlot(t *testing.T) {
	assert.Equal(t, int64(-kconfig.ENOSYS), Dispatch(kconfig.SysUnimpl3, 0, 0, 0, 0, 0, 0))
}

func TestDispatchCountsCalls(t *testing.T) {
	before := CallCount(kconfig.SysGetpid)
	quiesceScheduler(t)
	Dispatch(kconfig.SysGetpid, 0, 0, 0, 0, 0, 0)
	assert.Equal(t, before+1, CallCount(kconfig.SysGetpid))
}

func TestSysWriteRejectsBadFD(t *testing.T) {
	assert.Equal(t, int64(-kconfig.EBADF), Dispatch(kconfig.SysWrite, 3, 0, 0, 0, 0, 0))
}

func TestSysWriteRejectsNilBuffer(t *testing.T) {
	assert.Equal(t, int64(-kconfig.EINVAL), Dispatch(kconfig.SysWrite, 1, 0, 5, 0, 0, 0))
}

func TestSysWriteReturnsByteCountOnSuccess(t *testing.T) {
	msg := []byte("hi\n")
	addr := uintptr(unsafe.Pointer(&msg[0]))
	n := Dispatch(kconfig.SysWrite, 1, uint64(addr), uint64(len(msg)), 0, 0, 0)
	assert.Equal(t, int64(len(msg)), n)
}

func TestSysReadRejectsNonStdinFD(t *testing.T) {
	assert.Equal(t, int64(-kconfig.EBADF), Dispatch(kconfig.SysRead, 1, 0, 1, 0, 0, 0))
}

func TestSysReadRejectsNilBuffer(t *testing.T) {
	assert.Equal(t, int64(-kconfig.EINVAL), Dispatch(kconfig.SysRead, 0, 0, 1, 0, 0, 0))
}

func TestSysReadDrainsPendingKeyboardBytesWithoutBlocking(t *testing.T) {
	keyboard.Global().HandleScancode(0x1E) // 'a' press, already queued
	var out [1]byte
	addr := uintptr(unsafe.Pointer(&out[0]))
	n := Dispatch(kconfig.SysRead, 0, uint64(addr), 1, 0, 0, 0)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, byte('a'), out[0])
}

func TestSysGetpidReturnsCurrentProcessID(t *testing.T) {
	p, _ := quiesceScheduler(t)
	got := Dispatch(kconfig.SysGetpid, 0, 0, 0, 0, 0, 0)
	assert.Equal(t, int64(p.PID), got)
}

func TestSysYieldInvokesScheduler(t *testing.T) {
	_, tcb := quiesceScheduler(t)
	tcb.TimeSlice = 5
	Dispatch(kconfig.SysYield, 0, 0, 0, 0, 0, 0)
	assert.Equal(t, kconfig.DefaultTimeSliceTicks, tcb.TimeSlice)
}

func TestUnimplementedSlotsAllReturnENOSYS(t *testing.T) {
	for _, n := range []uint64{3, 4, 6, 7, 8, 9, 12, 13, 14, 15} {
		assert.Equal(t, int64(-kconfig.ENOSYS), Dispatch(n, 0, 0, 0, 0, 0, 0), "syscall %d", n)
	}
}
