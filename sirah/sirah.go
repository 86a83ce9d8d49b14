/*
 * sirah.go, part of backmap.
 *
 * Copyright 2025 Raul Mera <rmeraa{at}academicos(dot)uta(dot)cl>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

//Package sirah implements the static reconstruction-template database used
//to rebuild all-atom residues from coarse-grained beads. Each residue type
//maps to an Entry: an ordered list of named build instructions (copy a bead
//position, or place a new atom from internal coordinates), a print list
//with the atoms that actually reach the output, optional variants for
//first/last residues of a chain, and bridge rules for non-sequential bonds
//such as disulfides or circular-chain closures.
//
//The database is built once, compiled, and never mutated afterwards.
//Compilation precomputes, for every entry and every terminal-variant
//combination, the execution order of the build instructions, so that
//rebuilding a residue is a single forward pass with no dependency
//resolution at runtime.
package sirah

import "fmt"

//Boundary tells a copy instruction which residue to take the source
//bead from.
type Boundary int

const (
	Self Boundary = iota
	Prev
	Next
)

//Kind of a build instruction.
type Kind int

const (
	Copy Kind = iota
	Place
)

//Instruction is one step in the reconstruction of a residue. Copy
//instructions take the coordinate of the bead Source from the residue
//given by Boundary. Place instructions build a new position from the
//three already-resolved Anchors plus bond length (A), angle and
//dihedral (degrees). The angle follows the template convention: it is
//measured from the reference axis, i.e. 180 minus the geometric bond
//angle.
type Instruction struct {
	Name     string
	Kind     Kind
	Source   string
	Boundary Boundary
	Anchors  [3]string
	Length   float64
	Angle    float64
	Dihedral float64
}

//BridgeKey identifies a bridge rule: a bond from the local atom to a
//given atom of a given neighboring residue type.
type BridgeKey struct {
	LocalAtom    string
	NeighborType string
	NeighborAtom string
}

//BridgeRule tells the graph builder what to do with a bond that matches
//its key: which atoms of the rebuilt residues are to be bonded during
//refinement, whether the local residue switches to an alternate template
//(say, CYS to CYX upon forming a disulfide) and whether the bond closes
//a circular chain (wrap-around) instead of linking sequential residues.
type BridgeRule struct {
	BondLocal    string
	BondNeighbor string
	AltEntry     string
	WrapAround   bool
}

//Entry is the reconstruction template for one residue type.
//First and Last contain instruction overrides applied only when the
//residue has no previous or no next neighbor, respectively; an override
//with the name of an existing instruction replaces it, anything else is
//appended. FirstOut/LastOut optionally substitute the output residue
//name for those variants.
type Entry struct {
	Name     string
	OutName  string
	Build    []Instruction
	First    []Instruction
	FirstOut string
	Last     []Instruction
	LastOut  string
	Print    []string
	Chop     bool
	NoMap    bool
	Bridges  map[BridgeKey]BridgeRule
	programs [4][]Instruction
	compiled bool
}

//Clone returns a deep copy of the entry. Editing the copy (or deriving
//further variants from it) never affects the original.
func (E *Entry) Clone() *Entry {
	N := new(Entry)
	N.Name = E.Name
	N.OutName = E.OutName
	N.FirstOut = E.FirstOut
	N.LastOut = E.LastOut
	N.Chop = E.Chop
	N.NoMap = E.NoMap
	N.Build = append([]Instruction{}, E.Build...)
	if E.First != nil {
		N.First = append([]Instruction{}, E.First...)
	}
	if E.Last != nil {
		N.Last = append([]Instruction{}, E.Last...)
	}
	N.Print = append([]string{}, E.Print...)
	if E.Bridges != nil {
		N.Bridges = make(map[BridgeKey]BridgeRule, len(E.Bridges))
		for k, v := range E.Bridges {
			N.Bridges[k] = v
		}
	}
	return N
}

//Bridge returns the bridge rule for a bond from the local atom local to
//the atom natom of a neighboring residue of type ntype, if the entry
//declares one.
func (E *Entry) Bridge(local, ntype, natom string) (BridgeRule, bool) {
	if E.Bridges == nil {
		return BridgeRule{}, false
	}
	r, ok := E.Bridges[BridgeKey{local, ntype, natom}]
	return r, ok
}

//AddBridge declares a bridge rule on the entry.
func (E *Entry) AddBridge(k BridgeKey, r BridgeRule) {
	if E.Bridges == nil {
		E.Bridges = make(map[BridgeKey]BridgeRule, 1)
	}
	E.Bridges[k] = r
}

//merged returns the instruction list for the given terminal combination,
//before ordering. Overrides win on name collision and keep the position
//of the instruction they replace.
func (E *Entry) merged(first, last bool) []Instruction {
	ins := append([]Instruction{}, E.Build...)
	apply := func(over []Instruction) {
		for _, o := range over {
			replaced := false
			for i, v := range ins {
				if v.Name == o.Name {
					ins[i] = o
					replaced = true
					break
				}
			}
			if !replaced {
				ins = append(ins, o)
			}
		}
	}
	if first {
		apply(E.First)
	}
	if last {
		apply(E.Last)
	}
	return ins
}

//Program returns the compiled instruction list and the output residue
//name for a residue with the given terminal condition. The entry must
//belong to a compiled database.
func (E *Entry) Program(first, last bool) ([]Instruction, string) {
	out := E.OutName
	if first && E.FirstOut != "" {
		out = E.FirstOut
	} else if last && E.LastOut != "" {
		out = E.LastOut
	}
	if !E.compiled {
		//Uncompiled entries are only reachable through programming
		//errors, so failing loudly is warranted.
		panic("sirah: Program called on an uncompiled entry: " + E.Name)
	}
	return E.programs[progIndex(first, last)], out
}

func progIndex(first, last bool) int {
	i := 0
	if first {
		i |= 1
	}
	if last {
		i |= 2
	}
	return i
}

//orderProgram prunes the instructions not needed (directly or as anchors)
//by the print list and sorts the rest in a stable topological order, so
//that every place instruction comes after its in-template anchors. Anchor
//names with no instruction are left to fail at build time.
func orderProgram(ins []Instruction, print []string) ([]Instruction, error) {
	byName := make(map[string]int, len(ins))
	for i, v := range ins {
		byName[v.Name] = i //on a repeated name, the last instruction wins
	}
	needed := make(map[string]bool, len(ins))
	stack := append([]string{}, print...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if needed[n] {
			continue
		}
		needed[n] = true
		if i, ok := byName[n]; ok && ins[i].Kind == Place {
			stack = append(stack, ins[i].Anchors[0], ins[i].Anchors[1], ins[i].Anchors[2])
		}
	}
	done := make(map[string]bool, len(ins))
	prog := make([]Instruction, 0, len(ins))
	remaining := len(needed)
	for remaining > 0 {
		emitted := 0
		for i, v := range ins {
			if !needed[v.Name] || done[v.Name] || byName[v.Name] != i {
				continue
			}
			ready := true
			if v.Kind == Place {
				for _, a := range v.Anchors {
					if j, ok := byName[a]; ok && needed[a] && !done[a] && a != v.Name && j != i {
						ready = false
						break
					}
				}
			}
			if ready {
				prog = append(prog, v)
				done[v.Name] = true
				emitted++
			}
		}
		remaining = 0
		for n := range needed {
			if !done[n] {
				if _, ok := byName[n]; ok {
					remaining++
				} else {
					done[n] = true //no instruction builds it; a build-time problem, not ours
				}
			}
		}
		if emitted == 0 && remaining > 0 {
			return nil, fmt.Errorf("sirah: cyclic anchor dependency among build instructions")
		}
	}
	return prog, nil
}

//DB is the mapping database: residue type name to reconstruction entry.
type DB struct {
	entries map[string]*Entry
}

//NewDB returns an empty mapping database.
func NewDB() *DB {
	return &DB{entries: make(map[string]*Entry)}
}

//Register adds the entry under its residue-type name. Registering a name
//twice overwrites the previous entry.
func (D *DB) Register(e *Entry) {
	if e.OutName == "" {
		e.OutName = e.Name
	}
	D.entries[e.Name] = e
}

//Derive registers, under name, a deep copy of the entry src with the
//changes applied by mod. The source entry is not affected.
func (D *DB) Derive(src, name string, mod func(*Entry)) error {
	e, ok := D.entries[src]
	if !ok {
		return fmt.Errorf("sirah: Derive: no entry for residue type %s", src)
	}
	n := e.Clone()
	n.Name = name
	n.compiled = false
	if mod != nil {
		mod(n)
	}
	D.Register(n)
	return nil
}

//Lookup returns the entry for a residue type name.
func (D *DB) Lookup(name string) (*Entry, bool) {
	e, ok := D.entries[name]
	return e, ok
}

//Len returns the number of registered residue types.
func (D *DB) Len() int {
	return len(D.entries)
}

//Compile precomputes the execution order of every entry for the four
//terminal-variant combinations. After a successful Compile the database
//must be treated as immutable; it is then safe for concurrent readers.
func (D *DB) Compile() error {
	for name, e := range D.entries {
		for _, fl := range [4][2]bool{{false, false}, {true, false}, {false, true}, {true, true}} {
			prog, err := orderProgram(e.merged(fl[0], fl[1]), e.Print)
			if err != nil {
				return fmt.Errorf("sirah: compiling entry %s: %w", name, err)
			}
			e.programs[progIndex(fl[0], fl[1])] = prog
		}
		e.compiled = true
	}
	return nil
}
