/*
 * graph.go, part of backmap.
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

package backmap

import (
	"fmt"
	"log"
	"strings"

	"github.com/rmera/backmap/sirah"
)

// Residue is one coarse-grained residue of the input topology: its bead
// names mapped to global coordinate indexes, its neighbor links and the
// fragment it belongs to. Residues are built once per run and reused
// across frames.
type Residue struct {
	Name     string //residue type name
	MapAs    string //alternate template set by a bridge rule, empty otherwise
	Chain    string
	MolID    int
	Fragment int
	names    []string       //bead names in insertion order
	index    map[string]int //bead name to global coordinate index
	prev     *Residue
	next     *Residue
	id       int //construction order
}

// Template returns the name of the mapping entry to rebuild this residue
// with.
func (R *Residue) Template() string {
	if R.MapAs != "" {
		return R.MapAs
	}
	return R.Name
}

// AtomIndex returns the global coordinate index for a bead of the
// residue.
func (R *Residue) AtomIndex(name string) (int, bool) {
	i, ok := R.index[name]
	return i, ok
}

// Beads returns the bead names of the residue, in input order.
func (R *Residue) Beads() []string {
	return R.names
}

func (R *Residue) addBead(name string, gindex int) error {
	if _, dup := R.index[name]; dup {
		return fmt.Errorf("bead name %s repeated in residue %s %d", name, R.Name, R.MolID)
	}
	R.names = append(R.names, name)
	R.index[name] = gindex
	return nil
}

// Crosslink is a declared non-sequential bond between two residues, such
// as a disulfide or a glycosidic linkage. AtomA/AtomB name the rebuilt
// atoms to be bonded during refinement.
type Crosslink struct {
	A     *Residue
	B     *Residue
	AtomA string
	AtomB string
}

// Summary tallies the non-fatal diagnostics: residues excluded on
// purpose (no-map types), residues of types absent from the database,
// and per-residue placement failures. The graph holds only the
// build-time tallies; each run extends its own copy.
type Summary struct {
	NoMap         map[string]int
	Unmapped      map[string]int
	PlaceFailures int
}

func newSummary() *Summary {
	return &Summary{NoMap: make(map[string]int), Unmapped: make(map[string]int)}
}

func (S *Summary) clone() *Summary {
	N := newSummary()
	N.PlaceFailures = S.PlaceFailures
	for k, v := range S.NoMap {
		N.NoMap[k] = v
	}
	for k, v := range S.Unmapped {
		N.Unmapped[k] = v
	}
	return N
}

func (S *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "placement failures: %d", S.PlaceFailures)
	for name, n := range S.Unmapped {
		fmt.Fprintf(&b, ", unmapped %s: %d", name, n)
	}
	for name, n := range S.NoMap {
		fmt.Fprintf(&b, ", excluded %s: %d", name, n)
	}
	return b.String()
}

// Graph is the residue-level view of the coarse-grained topology,
// built once per run. It is immutable afterwards and safe for
// concurrent readers.
type Graph struct {
	Residues   []*Residue
	Crosslinks []Crosslink
	Summary    *Summary
	db         *sirah.DB
}

// DB returns the mapping database the graph was built against.
func (G *Graph) DB() *sirah.DB {
	return G.db
}

// NewGraph scans the topology once and builds the residue graph:
// residues in input order, neighbor links and crosslinks from the
// bonded lists, and fragment assignments. Residues whose type is
// marked no-map in the database, or absent from it, are excluded and
// tallied. An empty graph after exclusions is an error, as is a
// repeated bead name within one residue.
func NewGraph(top Atomer, db *sirah.DB) (*Graph, error) {
	G := &Graph{Summary: newSummary(), db: db}
	byatom := make(map[int]*Residue) //global atom index to kept residue
	var cur *Residue
	excluded := false
	prevMolID := 0
	for i := 0; i < top.Len(); i++ {
		at := top.Atom(i)
		if cur == nil || at.MolID != prevMolID {
			prevMolID = at.MolID
			e, found := db.Lookup(at.MolName)
			excluded = false
			switch {
			case !found:
				G.Summary.Unmapped[at.MolName]++
				excluded = true
			case e.NoMap:
				G.Summary.NoMap[at.MolName]++
				excluded = true
			}
			if excluded {
				cur = &Residue{} //placeholder, not registered
				continue
			}
			cur = &Residue{Name: at.MolName, Chain: at.Chain, MolID: at.MolID,
				index: make(map[string]int), id: len(G.Residues)}
			G.Residues = append(G.Residues, cur)
		}
		if excluded {
			continue
		}
		if err := cur.addBead(at.Name, i); err != nil {
			return nil, NewError(err.Error(), "NewGraph")
		}
		byatom[i] = cur
	}
	if len(G.Residues) == 0 {
		return nil, NewError("no residues to process after exclusions", "NewGraph")
	}
	G.linkResidues(top, byatom)
	G.assignFragments()
	return G, nil
}

// linkResidues walks every bond crossing a residue boundary, from both
// ends. A bond matching a bridge rule of the local residue's type
// registers a crosslink (at most one per unordered residue pair, first
// wins) and, if the rule says so, an alternate template for the local
// residue; only wrap-around bridges and plain bonds set neighbor links,
// according to the signed residue-id distance.
func (G *Graph) linkResidues(top Atomer, byatom map[int]*Residue) {
	seen := make(map[[2]int]bool)
	for i := 0; i < top.Len(); i++ {
		res := byatom[i]
		if res == nil {
			continue
		}
		at := top.Atom(i)
		for _, j := range at.Bonded {
			other := byatom[j]
			if other == nil || other == res {
				continue
			}
			oat := top.Atom(j)
			entry, _ := G.db.Lookup(res.Name)
			rule, bridged := entry.Bridge(at.Name, other.Name, oat.Name)
			if bridged {
				key := [2]int{res.id, other.id}
				if key[0] > key[1] {
					key[0], key[1] = key[1], key[0]
				}
				if !seen[key] {
					seen[key] = true
					G.Crosslinks = append(G.Crosslinks, Crosslink{A: res, B: other,
						AtomA: rule.BondLocal, AtomB: rule.BondNeighbor})
				}
				if rule.AltEntry != "" {
					if _, ok := G.db.Lookup(rule.AltEntry); ok {
						res.MapAs = rule.AltEntry
					} else {
						log.Printf("bridge on %s %d asks for the missing template %s, keeping %s", res.Name, res.MolID, rule.AltEntry, res.Name)
					}
				}
				if !rule.WrapAround {
					continue
				}
			}
			switch d := other.MolID - res.MolID; {
			case d == 1 || d < -1:
				res.next = other
			case d == -1 || d > 1:
				res.prev = other
			}
		}
	}
}

// assignFragments gives every residue a fragment id, in construction
// order. A new fragment starts when the previous residue has no forward
// link to the current one; a chop in the previous residue's template
// additionally isolates it in a fragment of its own.
func (G *Graph) assignFragments() {
	frag := 0
	for i, r := range G.Residues {
		if i > 0 {
			prev := G.Residues[i-1]
			if G.chopped(prev) {
				frag += 2
			} else if prev.next != r {
				frag++
			}
		}
		r.Fragment = frag
	}
}

func (G *Graph) chopped(r *Residue) bool {
	e, ok := G.db.Lookup(r.Template())
	return ok && e.Chop
}
