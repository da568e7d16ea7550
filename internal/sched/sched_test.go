package sched

import (
	"testing"

	"github.com/aurora-os/aurora/internal/kconfig"
	"github.com/aurora-os/aurora/internal/process"
	"github.com/stretchr/testify/assert"
)

// fakeMachine records switch/jump calls instead of touching real
// registers, so the FIFO and slice-accounting logic can be exercised
// without executing a single instruction of sched_amd64.s.
type fakeMachine struct {
	switches int
	jumps    int
	lastNext *process.Context
}

func newTestScheduler() (*Scheduler, *fakeMachine) {
	m := &fakeMachine{}
	s := New(
		func(prev, next *process.Context) { m.switches++; m.lastNext = next },
		func(next *process.Context) { m.jumps++; m.lastNext = next },
	)
	return s, m
}

func newThread(tbl *process.Table, p *process.PCB) *process.TCB {
	t := tbl.CreateThread(p, 0)
	t.SetStack(0x4000, 8192, 0x1000)
	return t
}

func TestEnqueueRejectsDuplicates(t *testing.T) {
	s, _ := newTestScheduler()
	tbl := process.NewTable()
	p, _ := tbl.Create("p", 0x1000)
	th := newThread(tbl, p)

	s.Enqueue(th)
	s.Enqueue(th)

	assert.Len(t, s.ready, 1)
}

func TestStartPicksFirstReadyThreadAndJumps(t *testing.T) {
	s, m := newTestScheduler()
	tbl := process.NewTable()
	p, _ := tbl.Create("p", 0x1000)
	th := newThread(tbl, p)
	s.Enqueue(th)

	s.Start()

	assert.Equal(t, 1, m.jumps)
	assert.Same(t, th, s.Current())
	assert.Equal(t, process.ThreadRunning, th.State)
	assert.Equal(t, kconfig.DefaultTimeSliceTicks, th.TimeSlice)
}

func TestStartFallsBackToIdleWhenQueueEmpty(t *testing.T) {
	s, m := newTestScheduler()
	tbl := process.NewTable()
	idleProc, idle := tbl.Create("idle", 0x1000)
	_ = idleProc
	s.SetIdle(idle)

	s.Start()

	assert.Equal(t, 1, m.jumps)
	assert.Same(t, idle, s.Current())
}

func TestTickDecrementsSliceAndRunsOnlyAtZero(t *testing.T) {
	s, m := newTestScheduler()
	tbl := process.NewTable()
	p, _ := tbl.Create("p", 0x1000)
	th := newThread(tbl, p)
	s.Enqueue(th)
	s.Start()

	for i := 0; i < kconfig.DefaultTimeSliceTicks-1; i++ {
		s.Tick()
		assert.Equal(t, 0, m.switches, "must not reschedule before slice exhausted")
	}
}

func TestTickReschedulesWhenSliceExhaustedAndQueueHasWork(t *testing.T) {
	s, m := newTestScheduler()
	tbl := process.NewTable()
	p, _ := tbl.Create("p", 0x1000)
	a := newThread(tbl, p)
	b := newThread(tbl, p)
	s.Enqueue(a)
	s.Enqueue(b)
	s.Start() // a runs, b stays ready

	for i := 0; i < kconfig.DefaultTimeSliceTicks; i++ {
		s.Tick()
	}

	assert.Equal(t, 1, m.switches)
	assert.Same(t, b, s.Current())
	assert.Equal(t, process.ThreadReady, a.State)
	assert.True(t, a.Queued)
}

func TestRoundRobinFairnessAcrossManySlices(t *testing.T) {
	s, _ := newTestScheduler()
	tbl := process.NewTable()
	p, _ := tbl.Create("p", 0x1000)
	threads := []*process.TCB{newThread(tbl, p), newThread(tbl, p), newThread(tbl, p)}
	for _, th := range threads {
		s.Enqueue(th)
	}
	s.Start()

	var order []*process.TCB
	order = append(order, s.Current())
	for round := 0; round < 6; round++ {
		for i := 0; i < kconfig.DefaultTimeSliceTicks; i++ {
			s.Tick()
		}
		order = append(order, s.Current())
	}

	// 3 threads round-robining: every thread appears before any thread
	// repeats, across two full cycles.
	assert.Equal(t, order[0], order[3])
	assert.Equal(t, order[1], order[4])
	assert.Equal(t, order[2], order[5])
	assert.NotEqual(t, order[0], order[1])
	assert.NotEqual(t, order[1], order[2])
}

func TestYieldForcesImmediateReschedule(t *testing.T) {
	s, m := newTestScheduler()
	tbl := process.NewTable()
	p, _ := tbl.Create("p", 0x1000)
	a := newThread(tbl, p)
	b := newThread(tbl, p)
	s.Enqueue(a)
	s.Enqueue(b)
	s.Start()

	s.Yield()

	assert.Equal(t, 1, m.switches)
	assert.Same(t, b, s.Current())
}

func TestYieldOnSoleRunnableThreadDoesNotSwitch(t *testing.T) {
	s, m := newTestScheduler()
	tbl := process.NewTable()
	p, _ := tbl.Create("p", 0x1000)
	a := newThread(tbl, p)
	s.Enqueue(a)
	s.Start()

	s.Yield()

	assert.Equal(t, 0, m.switches)
	assert.Same(t, a, s.Current())
	assert.Equal(t, kconfig.DefaultTimeSliceTicks, a.TimeSlice)
}

func TestIdleIsReselectedWhenReadyQueueDrains(t *testing.T) {
	s, _ := newTestScheduler()
	tbl := process.NewTable()
	_, idle := tbl.Create("idle", 0x1000)
	p, _ := tbl.Create("p", 0x1000)
	worker := newThread(tbl, p)

	s.SetIdle(idle)
	s.Enqueue(worker)
	s.Start()
	assert.Same(t, worker, s.Current())

	s.Yield() // worker yields, requeues itself, nothing else ready -> idle
	assert.Same(t, idle, s.Current())

	s.Yield() // idle yields, requeues itself, worker is waiting -> worker
	assert.Same(t, worker, s.Current())

	s.Yield() // worker yields again -> back to idle
	assert.Same(t, idle, s.Current())
}
