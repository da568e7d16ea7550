// Package process defines the process- and thread-control blocks the
// scheduler operates on and the fixed-capacity tables that own them.
// Grounded on the teacher's runtimeG (mazboot/golang/main/
// runtime_types.go) for the shape a control block needs — a stack
// range, a saved context, a status, an identity number — stripped
// down from the full Go runtime's g struct to exactly what a
// from-scratch round-robin scheduler needs, per
// original_source/kernel/process.c's PCB-owns-threads layout.
package process

import "github.com/aurora-os/aurora/internal/kconfig"

// ThreadState is one of the lifecycle states a TCB can be in.
type ThreadState int

const (
	ThreadNew ThreadState = iota
	ThreadReady
	ThreadRunning
	ThreadBlocked
	ThreadSleeping
	ThreadZombie
	ThreadDead
)

func (s ThreadState) String() string {
	switch s {
	case ThreadNew:
		return "new"
	case ThreadReady:
		return "ready"
	case ThreadRunning:
		return "running"
	case ThreadBlocked:
		return "blocked"
	case ThreadSleeping:
		return "sleeping"
	case ThreadZombie:
		return "zombie"
	case ThreadDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Context holds the callee-saved integer registers a voluntary
// context switch needs to resume a thread: enough for a function-call
// handoff, not the full interrupt frame idt.Frame carries.
type Context struct {
	RSP, RBP               uint64
	RBX, R12, R13, R14, R15 uint64
	RIP                    uint64
	RFLAGS                 uint64
}

// TCB is a thread control block: spec.md's
// {tid, state, saved_context, stack_base, stack_size, process,
// priority, time_slice, runtime, siblings}.
type TCB struct {
	TID         uint64
	State       ThreadState
	Saved       Context
	StackBase   uintptr
	StackSize   uint64
	Process     *PCB
	Priority    int
	TimeSlice   int
	RuntimeTicks uint64

	// Queued tracks ready-queue membership so the scheduler can reject
	// a second enqueue of the same thread, per the "no duplicates"
	// ready-queue invariant.
	Queued bool

	next *TCB // intrusive link for the process's thread list
}

// PCB is a process control block: spec.md's
// {pid, name, page-table-root, heap bounds, main_thread, thread_list,
// parent, children, exit_code}. Parent is kept; the children link is
// not, since nothing in this table ever walks a process's children
// (no wait()/reap operation exists yet) and a parent pointer alone is
// enough for every exit-code and table-bookkeeping path Create/Exit
// use today.
type PCB struct {
	PID           uint64
	Name          [64]byte
	PageTableRoot uintptr
	HeapBase      uintptr
	HeapTop       uintptr
	MainThread    *TCB
	Threads       *TCB // head of an intrusive singly linked list
	Parent        *PCB
	ExitCode      int
	exited        bool
}

// SetName copies name into the fixed-size field, bounded to 63 bytes
// plus a trailing NUL, per spec.md's process_create contract.
func (p *PCB) SetName(name string) {
	n := copy(p.Name[:len(p.Name)-1], name)
	p.Name[n] = 0
}

// NameString returns the process name up to its NUL terminator.
func (p *PCB) NameString() string {
	n := 0
	for n < len(p.Name) && p.Name[n] != 0 {
		n++
	}
	return string(p.Name[:n])
}

// addThread links t onto p's thread list (most-recently-created
// first; order is not load-bearing since the ready queue, not this
// list, determines scheduling order).
func (p *PCB) addThread(t *TCB) {
	t.next = p.Threads
	p.Threads = t
}

// EachThread iterates a process's thread list; order is unspecified.
func (p *PCB) EachThread(fn func(*TCB)) {
	for t := p.Threads; t != nil; t = t.next {
		fn(t)
	}
}

// Table is the fixed-capacity global process table. Grounded on
// original_source/kernel/process.c's static array of PCBs; Aurora
// bounds it the same way via kconfig.MaxProcesses rather than
// allocating PCBs from the kernel heap, so process creation never
// competes with the allocator it may itself be debugging.
type Table struct {
	procs    [kconfig.MaxProcesses]PCB
	used     [kconfig.MaxProcesses]bool
	nextPID  uint64
	nextTID  uint64
}

// NewTable returns an empty process table. pid 0 / the idle process
// is created by the caller via Create, matching spec.md's "the first
// process (pid 0) is the idle process" invariant rather than this
// package special-casing pid 0 internally.
func NewTable() *Table {
	return &Table{}
}

// Create allocates a PCB for name, inheriting the kernel page-table
// root (no per-process address space yet) and creating a main thread
// with default priority. The caller must still call SetStack on the
// returned thread once a kernel stack has been allocated from the
// heap. Returns nil, nil if the table is full.
func (t *Table) Create(name string, kernelPageTableRoot uintptr) (*PCB, *TCB) {
	slot := -1
	for i, used := range t.used {
		if !used {
			slot = i
			break
		}
	}
	if slot == -1 {
		return nil, nil
	}

	p := &t.procs[slot]
	*p = PCB{}
	p.PID = t.nextPID
	t.nextPID++
	p.SetName(name)
	p.PageTableRoot = kernelPageTableRoot
	t.used[slot] = true

	tcb := t.newThread(p, 0)
	p.MainThread = tcb
	return p, tcb
}

// CreateThread allocates an additional thread within an existing
// process, per spec.md's thread_create(proc, entry, priority); the
// caller installs the entry point and stack via SetStack.
func (t *Table) CreateThread(p *PCB, priority int) *TCB {
	return t.newThread(p, priority)
}

func (t *Table) newThread(p *PCB, priority int) *TCB {
	tcb := &TCB{
		TID:       t.nextTID,
		State:     ThreadNew,
		Process:   p,
		Priority:  priority,
		TimeSlice: kconfig.DefaultTimeSliceTicks,
	}
	t.nextTID++
	p.addThread(tcb)
	return tcb
}

// SetStack records a thread's kernel stack range and seeds its saved
// context so the first context switch into it starts at entry with a
// 16-byte-aligned stack and IF set, per spec.md §4.8:
// rsp = top_of_stack - 16, rflags = 0x202.
func (tcb *TCB) SetStack(base uintptr, size uint64, entry uintptr) {
	tcb.StackBase = base
	tcb.StackSize = size
	top := base + uintptr(size)
	tcb.Saved = Context{
		RSP:    uint64(top) - 16,
		RIP:    uint64(entry),
		RFLAGS: 0x202,
	}
}

// Exit marks every thread of p zombie and records the exit code.
// Reclamation of zombie processes/threads is not implemented, per
// spec.md §4.8's explicit stub.
func (p *PCB) Exit(code int) {
	if p.exited {
		return
	}
	p.exited = true
	p.ExitCode = code
	p.EachThread(func(t *TCB) {
		t.State = ThreadZombie
	})
}

// Exit marks a single thread zombie without affecting its
// siblings, for thread_exit() distinct from process_exit(code).
func (tcb *TCB) Exit() {
	tcb.State = ThreadZombie
}
