package compiler

import (
	"fmt"

	"escargot/pkg/vm"
)

// Debug flag for register allocation tracing.
const debugRegAlloc = false

// Register is a virtual machine register index. Registers below
// vm.RegularRegisterLimit are expression temporaries; registers at and
// above it name stack-allocated locals directly as limit + slot.
type Register uint8

// BadRegister is the sentinel for "no register".
const BadRegister Register = 255

// RegisterAllocator manages the temporary register stack of one function
// body. Temporaries are pushed for subexpressions and popped once their
// consumer has read them; stack-slot registers are never handed out here.
type RegisterAllocator struct {
	nextReg  Register
	maxReg   Register
	freeRegs []Register
}

// NewRegisterAllocator creates an allocator for one function scope.
func NewRegisterAllocator() *RegisterAllocator {
	return &RegisterAllocator{freeRegs: make([]Register, 0, 16)}
}

// Alloc allocates the next available temporary.
func (ra *RegisterAllocator) Alloc() Register {
	var reg Register
	if len(ra.freeRegs) > 0 {
		last := len(ra.freeRegs) - 1
		reg = ra.freeRegs[last]
		ra.freeRegs = ra.freeRegs[:last]
	} else {
		if ra.nextReg >= vm.RegularRegisterLimit {
			panic("compiler: out of temporary registers")
		}
		reg = ra.nextReg
		ra.nextReg++
	}
	if reg > ra.maxReg {
		ra.maxReg = reg
	}
	if debugRegAlloc {
		fmt.Printf("[regalloc] alloc R%d (%d free)\n", reg, len(ra.freeRegs))
	}
	return reg
}

// AllocContiguous allocates count consecutive temporaries and returns the
// first. Call and MakeArray operands must be contiguous.
func (ra *RegisterAllocator) AllocContiguous(count int) Register {
	if count == 0 {
		return ra.nextReg
	}
	// Contiguity comes from the bump pointer; the free list is bypassed.
	start := ra.nextReg
	if int(start)+count > vm.RegularRegisterLimit {
		panic("compiler: out of temporary registers for argument block")
	}
	ra.nextReg += Register(count)
	if ra.nextReg-1 > ra.maxReg {
		ra.maxReg = ra.nextReg - 1
	}
	if debugRegAlloc {
		fmt.Printf("[regalloc] alloc contiguous R%d..R%d\n", start, ra.nextReg-1)
	}
	return start
}

// Free returns a temporary to the pool. Freeing a stack-slot register is a
// no-op so callers can free unconditionally.
func (ra *RegisterAllocator) Free(reg Register) {
	if reg >= vm.RegularRegisterLimit || reg == BadRegister {
		return
	}
	if reg == ra.nextReg-1 {
		ra.nextReg--
		// Collapse any free-list suffix that now tops the stack.
		for {
			found := false
			for i, fr := range ra.freeRegs {
				if fr == ra.nextReg-1 && ra.nextReg > 0 {
					ra.freeRegs = append(ra.freeRegs[:i], ra.freeRegs[i+1:]...)
					ra.nextReg--
					found = true
					break
				}
			}
			if !found {
				break
			}
		}
		return
	}
	ra.freeRegs = append(ra.freeRegs, reg)
}

// FreeContiguous returns an argument block.
func (ra *RegisterAllocator) FreeContiguous(start Register, count int) {
	for i := count - 1; i >= 0; i-- {
		ra.Free(start + Register(i))
	}
}

// MaxUsed returns the highest temporary handed out.
func (ra *RegisterAllocator) MaxUsed() Register { return ra.maxReg }
