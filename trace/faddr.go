package trace

import (
	"fmt"

	"github.com/google/btree"
)

type symAddr struct {
	name string
	addr uint64
}

func symAddrLess(a, b symAddr) bool { return a.name < b.name }

// FuncAddrs maps symbol names to runtime virtual addresses. The trace
// assembler consults it when it outlines a recursive call, so the backend can
// bind the callee's declaration to a concrete address; calls to external
// declarations are not looked up here.
type FuncAddrs struct {
	tree *btree.BTreeG[symAddr]
}

// NewFuncAddrs builds the table from parallel name/address arrays. Duplicate
// names are resolved last-writer-wins.
func NewFuncAddrs(names []string, addrs []uint64) (*FuncAddrs, error) {
	if len(names) != len(addrs) {
		return nil, fmt.Errorf("function address arrays have mismatched lengths: %d != %d", len(names), len(addrs))
	}
	f := &FuncAddrs{tree: btree.NewG(2, symAddrLess)}
	for i, name := range names {
		f.tree.ReplaceOrInsert(symAddr{name: name, addr: addrs[i]})
	}
	return f, nil
}

// Lookup returns the address bound to name.
func (f *FuncAddrs) Lookup(name string) (addr uint64, ok bool) {
	item, ok := f.tree.Get(symAddr{name: name})
	if !ok {
		return 0, false
	}
	return item.addr, true
}

// Len returns the number of bindings.
func (f *FuncAddrs) Len() int { return f.tree.Len() }

// Walk visits every binding in name order, stopping early if fn returns
// false.
func (f *FuncAddrs) Walk(fn func(name string, addr uint64) bool) {
	f.tree.Ascend(func(item symAddr) bool {
		return fn(item.name, item.addr)
	})
}
