// Package sched implements the round-robin thread scheduler: a FIFO
// ready queue, the timer-tick and yield entry points, and the
// assembly context-switch primitive. Grounded on
// mazboot/golang/main/scheduler_bootstrap.go's "there is no current
// thread yet, build one specially" idiom for the bootstrap path
// (Start), generalized from hijacking the host Go runtime's g0/m0
// into Aurora's own TCB/Context per original_source/kernel/
// scheduler.c's pick_next/FIFO design (SPEC_FULL.md supplemented
// feature 4).
package sched

import (
	"github.com/aurora-os/aurora/internal/gdt"
	"github.com/aurora-os/aurora/internal/kconfig"
	"github.com/aurora-os/aurora/internal/process"
)

// Scheduler owns the ready queue and the notion of which thread is
// currently running. There is exactly one instance per CPU; Aurora is
// uniprocessor, so Global is the only one that exists.
type Scheduler struct {
	ready   []*process.TCB
	current *process.TCB
	idle    *process.TCB

	switcher func(prev, next *process.Context)
	jumper   func(next *process.Context)
}

var global = Scheduler{
	switcher: contextSwitch,
	jumper:   bootstrapJump,
}

// Global returns the kernel's single scheduler instance.
func Global() *Scheduler { return &global }

// New returns a scheduler with its context-switch primitives
// overridden, for hosted tests that exercise Tick/Yield/Enqueue logic
// without ever jumping to real machine code.
func New(switcher func(prev, next *process.Context), jumper func(next *process.Context)) *Scheduler {
	return &Scheduler{switcher: switcher, jumper: jumper}
}

// SetMachine overrides the context-switch primitives a scheduler
// uses, including Global's. Production boot code never calls this
// (the package-level defaults already point at sched_amd64.s); hosted
// tests of anything built atop Global (like internal/syscall's
// handlers) call it to substitute recording fakes for real jumps.
func (s *Scheduler) SetMachine(switcher func(prev, next *process.Context), jumper func(next *process.Context)) {
	s.switcher = switcher
	s.jumper = jumper
}

// SetIdle designates the fallback thread selected when the ready
// queue is empty. spec.md requires pid 0's sole thread to always be
// in the ready set or running; callers enqueue it once at boot and
// this scheduler never lets it leave the ready/running rotation on
// its own.
func (s *Scheduler) SetIdle(t *process.TCB) {
	s.idle = t
}

// Current returns the thread presently marked running, or nil before
// the first Start.
func (s *Scheduler) Current() *process.TCB {
	return s.current
}

// Enqueue appends t to the tail of the ready queue if it is not
// already a member, and marks it ready.
func (s *Scheduler) Enqueue(t *process.TCB) {
	if t == nil || t.Queued {
		return
	}
	t.State = process.ThreadReady
	t.Queued = true
	s.ready = append(s.ready, t)
}

// dequeue pops the head of the ready queue, the FIFO's pick_next.
func (s *Scheduler) dequeue() *process.TCB {
	if len(s.ready) == 0 {
		return nil
	}
	t := s.ready[0]
	s.ready = s.ready[1:]
	t.Queued = false
	return t
}

// pickNext returns the next thread to run: the ready queue's head, the
// idle thread if the queue is empty, or (only possible before idle
// exists) whatever is already running, so a lone thread never stalls
// the scheduler.
func (s *Scheduler) pickNext() *process.TCB {
	if t := s.dequeue(); t != nil {
		return t
	}
	if s.idle != nil {
		return s.idle
	}
	return s.current
}

// Start performs the initial scheduling crossing from "no current
// thread" into the first pick, per spec.md §4.7: it does not return,
// since there is no caller context to resume.
func (s *Scheduler) Start() {
	first := s.pickNext()
	if first == nil {
		return
	}
	first.State = process.ThreadRunning
	first.TimeSlice = kconfig.DefaultTimeSliceTicks
	s.current = first
	gdt.SetKernelStack(first.StackBase + uintptr(first.StackSize))
	s.jumper(&first.Saved)
}

// Tick is called once per timer interrupt. It decrements the running
// thread's slice and invokes the scheduler when it reaches zero.
func (s *Scheduler) Tick() {
	if s.current == nil {
		return
	}
	s.current.RuntimeTicks++
	s.current.TimeSlice--
	if s.current.TimeSlice <= 0 {
		s.schedule()
	}
}

// Yield forces an immediate reschedule of the calling thread.
func (s *Scheduler) Yield() {
	if s.current != nil {
		s.current.TimeSlice = 0
	}
	s.schedule()
}

// schedule picks the next thread, requeues the outgoing one if it is
// still runnable, and performs the context switch if the current
// thread actually changes.
func (s *Scheduler) schedule() {
	next := s.pickNext()
	if next == nil {
		return
	}

	prev := s.current
	if next == prev {
		next.State = process.ThreadRunning
		next.TimeSlice = kconfig.DefaultTimeSliceTicks
		return
	}

	if prev != nil && prev.State == process.ThreadRunning {
		prev.State = process.ThreadReady
		s.Enqueue(prev)
	}

	next.State = process.ThreadRunning
	next.TimeSlice = kconfig.DefaultTimeSliceTicks
	s.current = next
	// Every thread potentially re-enters the kernel from ring 3 on its
	// own stack, so RSP0 must track whichever thread is about to run,
	// not just the one the task was launched with.
	gdt.SetKernelStack(next.StackBase + uintptr(next.StackSize))

	if prev == nil {
		s.jumper(&next.Saved)
		return
	}
	s.switcher(&prev.Saved, &next.Saved)
}

// contextSwitch and bootstrapJump are implemented in sched_amd64.s.
func contextSwitch(prev, next *process.Context)
func bootstrapJump(next *process.Context)
