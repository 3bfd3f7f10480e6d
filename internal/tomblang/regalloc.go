package tomblang

// RegisterBank is a fixed-size pool of VM registers with lifetimes tied to
// AST nodes. One bank exists per method body being compiled; it never
// survives across methods or across compilations.
type RegisterBank struct {
	size   int
	free   []RegID // free-list, popped from the back
	alias  map[RegID]string
	inUse  map[RegID]bool
	hiWater int
}

const defaultRegisterBankSize = 32

func NewRegisterBank(size int) *RegisterBank {
	if size <= 0 {
		size = defaultRegisterBankSize
	}
	b := &RegisterBank{
		size:  size,
		alias: make(map[RegID]string),
		inUse: make(map[RegID]bool),
	}
	for i := size - 1; i >= 0; i-- {
		b.free = append(b.free, RegID(i))
	}
	return b
}

// Alloc acquires a register, recording hint as its debug alias. Fails
// fatally with "register pressure exceeded" on exhaustion.
func (b *RegisterBank) Alloc(hint string) (RegID, error) {
	if len(b.free) == 0 {
		return NoRegister, newError(PhaseCodeGen, Position{}, "register pressure exceeded (bank size %d)", b.size)
	}
	r := b.free[len(b.free)-1]
	b.free = b.free[:len(b.free)-1]
	b.inUse[r] = true
	b.alias[r] = hint
	if used := b.size - len(b.free); used > b.hiWater {
		b.hiWater = used
	}
	return r, nil
}

// Dealloc releases a register back to the free-list. Double-free is a
// compiler bug, not a user error, and panics to surface it immediately.
func (b *RegisterBank) Dealloc(r RegID) {
	if r == NoRegister {
		return
	}
	if !b.inUse[r] {
		panic("tomblang: register double free")
	}
	delete(b.inUse, r)
	delete(b.alias, r)
	b.free = append(b.free, r)
}

// With runs body with a scoped register, guaranteeing it is released
// afterward regardless of how body returns.
func (b *RegisterBank) With(hint string, body func(RegID) error) error {
	r, err := b.Alloc(hint)
	if err != nil {
		return err
	}
	defer b.Dealloc(r)
	return body(r)
}

// AssertNoLeaks enforces the allocator invariant that a compiled method
// leaves no registers bound at RET.
func (b *RegisterBank) AssertNoLeaks() error {
	if len(b.inUse) != 0 {
		return newError(PhaseCodeGen, Position{}, "register leak: %d register(s) still held at method exit", len(b.inUse))
	}
	return nil
}

// Alias returns the debug hint recorded for r, or "" if none/free.
func (b *RegisterBank) Alias(r RegID) string {
	return b.alias[r]
}
