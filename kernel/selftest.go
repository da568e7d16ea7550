// In-kernel smoke tests, run once at the tail of Boot before
// interrupts are enabled. Grounded on original_source/kernel/
// kthread_test.c's kthread_test_init/kthread_test_start pair — three
// named threads spun up and driven through the scheduler right after
// bring-up, before the first real user program runs — generalized
// from "print a letter forever and eyeball the output" into assertions
// a freestanding kernel can act on without a human reading a serial
// log.
package kernel

import (
	"github.com/aurora-os/aurora/internal/console"
	"github.com/aurora-os/aurora/internal/cpu"
	"github.com/aurora-os/aurora/internal/heap"
	"github.com/aurora-os/aurora/internal/pmm"
	"github.com/aurora-os/aurora/internal/process"
	"github.com/aurora-os/aurora/internal/sched"
)

// SelfTest exercises the physical allocator and the heap against the
// live subsystems Boot just brought up, and the round-robin scheduler
// logic on a scratch scheduler, distinct from the hosted go test suite which exercises the same
// algorithms against simulated memory. It halts the machine on the
// first failed check, the same fail-fast posture handleException
// takes for a CPU exception: a self-test failing this early means
// bring-up itself cannot be trusted.
func SelfTest() {
	console.Trace("selftest: starting")
	selfTestPMMRoundTrip()
	selfTestHeapSplitCoalesce()
	selfTestSchedulerFairness()
	console.Trace("selftest: passed")
}

func selfTestFail(reason string) {
	console.Panic("selftest failed: " + reason)
	for {
		cpu.Halt()
	}
}

// selfTestPMMRoundTrip allocates a handful of frames, frees them, and
// checks the free count returns to where it started — spec.md §8
// scenario S1, run against pmm.Global() instead of a fresh Manager.
func selfTestPMMRoundTrip() {
	freeBefore, _ := pmm.Global().Stats()

	const n = 8
	var frames [n]uint64
	for i := range frames {
		frames[i] = pmm.Global().AllocFrame()
		if frames[i] == 0 {
			selfTestFail("pmm: alloc_frame returned 0 with free frames remaining")
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if frames[i] == frames[j] {
				selfTestFail("pmm: alloc_frame returned the same frame twice")
			}
		}
	}
	for _, f := range frames {
		pmm.Global().FreeFrame(f)
	}

	freeAfter, _ := pmm.Global().Stats()
	if freeAfter != freeBefore {
		selfTestFail("pmm: free count did not return to baseline after round trip")
	}
	console.Trace("selftest: pmm round trip ok")
}

// selfTestHeapSplitCoalesce mallocs two blocks (each split off a
// larger free block), frees the first, then frees the second (which
// coalesces with its free neighbors), confirming Validate sees a
// consistent list after each free and that the used total returns to
// its starting value — spec.md §8 scenario S2, run against
// heap.Global() instead of a test arena.
func selfTestHeapSplitCoalesce() {
	freeBefore, usedBefore := heap.Global().Stats()

	a := heap.Global().Malloc(64)
	b := heap.Global().Malloc(64)
	if a == nil || b == nil {
		selfTestFail("heap: malloc returned nil with room to grow")
	}

	heap.Global().Free(a)
	if !heap.Global().Validate() {
		selfTestFail("heap: block list inconsistent after freeing a")
	}

	heap.Global().Free(b)
	if !heap.Global().Validate() {
		selfTestFail("heap: block list inconsistent after freeing b")
	}

	freeAfter, usedAfter := heap.Global().Stats()
	if usedAfter != usedBefore || freeAfter < freeBefore {
		selfTestFail("heap: free/used totals did not return to baseline after round trip")
	}
	console.Trace("selftest: heap split/coalesce ok")
}

// selfTestSchedulerFairness drives three ready threads through enough
// timer ticks to complete several full rotations and checks each one
// ran at least once and that their quanta counts differ by at most
// one (the first thread also gets the Start dispatch), spec.md §8 scenario S4's round-robin
// fairness property. It runs on a scratch Scheduler and process.Table
// built with sched.New's recording fakes in place of the real
// context-switch primitives, the same isolation internal/sched's own
// tests use, so this check never actually jumps to machine code and
// never touches the live scheduler threads Boot already enqueued.
func selfTestSchedulerFairness() {
	runs := map[uint64]int{}
	s := sched.New(
		func(prev, next *process.Context) { runs[next.RIP]++ },
		func(next *process.Context) { runs[next.RIP]++ },
	)

	tbl := process.NewTable()
	p, _ := tbl.Create("selftest", 0)
	threads := [3]*process.TCB{
		tbl.CreateThread(p, 0),
		tbl.CreateThread(p, 0),
		tbl.CreateThread(p, 0),
	}
	for i, t := range threads {
		t.SetStack(0x1000, 4096, uintptr(0xA000+i))
		s.Enqueue(t)
	}

	s.Start()
	const rotations = 6
	for i := 0; i < rotations*len(threads)*10; i++ {
		s.Tick()
	}

	for _, t := range threads {
		if runs[t.Saved.RIP] == 0 {
			selfTestFail("sched: a ready thread never ran")
		}
	}
	min, max := -1, -1
	for _, t := range threads {
		c := runs[t.Saved.RIP]
		if min == -1 || c < min {
			min = c
		}
		if max == -1 || c > max {
			max = c
		}
	}
	if max-min > 1 {
		selfTestFail("sched: round robin ran threads unevenly")
	}
	console.Trace("selftest: scheduler fairness ok")
}
