package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateAssignsIncreasingPIDs(t *testing.T) {
	tbl := NewTable()
	p0, _ := tbl.Create("idle", 0x1000)
	p1, _ := tbl.Create("init", 0x1000)

	assert.Equal(t, uint64(0), p0.PID)
	assert.Equal(t, uint64(1), p1.PID)
}

func TestCreateSetsMainThreadAndLinksIntoThreadList(t *testing.T) {
	tbl := NewTable()
	p, main := tbl.Create("init", 0x1000)

	assert.Same(t, main, p.MainThread)
	assert.Same(t, p, main.Process)

	var seen []*TCB
	p.EachThread(func(tc *TCB) { seen = append(seen, tc) })
	assert.ElementsMatch(t, []*TCB{main}, seen)
}

func TestCreateThreadAddsToExistingProcess(t *testing.T) {
	tbl := NewTable()
	p, main := tbl.Create("init", 0x1000)
	worker := tbl.CreateThread(p, 5)

	var seen []*TCB
	p.EachThread(func(tc *TCB) { seen = append(seen, tc) })
	assert.ElementsMatch(t, []*TCB{main, worker}, seen)
	assert.Equal(t, 5, worker.Priority)
}

func TestCreateFailsWhenTableFull(t *testing.T) {
	tbl := NewTable()
	var last *PCB
	for i := 0; i < len(tbl.procs); i++ {
		p, _ := tbl.Create("p", 0x1000)
		last = p
	}
	assert.NotNil(t, last)

	p, tc := tbl.Create("overflow", 0x1000)
	assert.Nil(t, p)
	assert.Nil(t, tc)
}

func TestSetNameTruncatesAndNulTerminates(t *testing.T) {
	p := &PCB{}
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	p.SetName(string(long))
	assert.LessOrEqual(t, len(p.NameString()), 63)
}

func TestSetNameRoundTripsShortNames(t *testing.T) {
	p := &PCB{}
	p.SetName("idle")
	assert.Equal(t, "idle", p.NameString())
}

func TestSetStackSeedsContextPerSpec(t *testing.T) {
	tcb := &TCB{}
	const base = uintptr(0x2000)
	const size = uint64(8192)
	const entry = uintptr(0xABCD0000)
	tcb.SetStack(base, size, entry)

	assert.Equal(t, uint64(base)+size-16, tcb.Saved.RSP)
	assert.Equal(t, uint64(entry), tcb.Saved.RIP)
	assert.Equal(t, uint64(0x202), tcb.Saved.RFLAGS)
}

func TestProcessExitMarksAllThreadsZombie(t *testing.T) {
	tbl := NewTable()
	p, main := tbl.Create("init", 0x1000)
	worker := tbl.CreateThread(p, 0)

	p.Exit(7)

	assert.Equal(t, 7, p.ExitCode)
	assert.Equal(t, ThreadZombie, main.State)
	assert.Equal(t, ThreadZombie, worker.State)
}

func TestProcessExitIsIdempotent(t *testing.T) {
	p := &PCB{}
	p.Exit(1)
	p.Exit(2)
	assert.Equal(t, 1, p.ExitCode)
}

func TestThreadExitOnlyAffectsItself(t *testing.T) {
	tbl := NewTable()
	p, main := tbl.Create("init", 0x1000)
	worker := tbl.CreateThread(p, 0)

	worker.Exit()

	assert.Equal(t, ThreadNew, main.State)
	assert.Equal(t, ThreadZombie, worker.State)
}

func TestThreadStateStringCoversEveryValue(t *testing.T) {
	for s := ThreadNew; s <= ThreadDead; s++ {
		assert.NotEqual(t, "unknown", s.String())
	}
	assert.Equal(t, "unknown", ThreadState(99).String())
}
