/*
 * atoms.go, part of backmap.
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

	"github.com/rmera/backmap/v3"
)

// Atom contains the per-bead metadata read from the coarse-grained
// structure. Coordinates live in v3.Matrix objects, aligned to the atom
// order, so one topology can serve many frames.
type Atom struct {
	Name    string //PDB atom/bead name
	ID      int    //the serial in the input file
	MolName string //residue type name, 3 or 4 letters
	MolID   int    //the residue id in the input file
	Chain   string
	Symbol  string
	Het     bool
	Tag     int   //multipurpose. The graph builder stores the fragment id of the bead's residue here.
	Bonded  []int //indexes (not serials) of the atoms bonded to this one
}

// Copy returns a deep copy of the atom.
func (A *Atom) Copy() *Atom {
	N := new(Atom)
	*N = *A
	N.Bonded = append([]int{}, A.Bonded...)
	return N
}

// Atomer is the read-only interface for a set of atoms.
type Atomer interface {
	Atom(i int) *Atom
	Len() int
}

// Readable tells whether a trajectory is open for reading.
type Readable interface {
	Readable() bool
}

// Traj is an object that delivers coordinate frames one at a time. Next
// fills the given matrix with the coordinates of the next frame, or skips
// the frame if given nil. When no frames remain it returns an error
// implementing LastFrameError. Len returns the number of atoms per frame.
type Traj interface {
	Readable
	Next(output *v3.Matrix) error
	Len() int
}

// Topology is a set of atoms with no coordinates.
type Topology struct {
	atoms []*Atom
}

// NewTopology builds a topology from a slice of atoms. The slice is used
// directly, not copied.
func NewTopology(atoms []*Atom) *Topology {
	return &Topology{atoms: atoms}
}

// Atom returns the ith atom. It panics if the index is out of range, as
// corresponding gonum matrix accesses do.
func (T *Topology) Atom(i int) *Atom {
	return T.atoms[i]
}

// Len returns the number of atoms in the topology.
func (T *Topology) Len() int {
	return len(T.atoms)
}

// AppendAtom adds an atom at the end of the topology.
func (T *Topology) AppendAtom(at *Atom) {
	T.atoms = append(T.atoms, at)
}

// Molecule is a topology plus one or more coordinate sets read from a
// multi-model structure file. It implements both Atomer and, for the
// stored frames, Traj.
type Molecule struct {
	*Topology
	Coords  []*v3.Matrix
	current int
}

// NewMolecule assembles a molecule. Every coordinate set must have one
// vector per atom.
func NewMolecule(top *Topology, coords []*v3.Matrix) (*Molecule, error) {
	for i, c := range coords {
		if c.NVecs() != top.Len() {
			return nil, NewError(fmt.Sprintf("mismatch between %d atoms and %d coordinates in frame %d", top.Len(), c.NVecs(), i), "NewMolecule")
		}
	}
	return &Molecule{Topology: top, Coords: coords}, nil
}

// Readable returns true while stored frames remain to be delivered.
func (M *Molecule) Readable() bool {
	return M.current < len(M.Coords)
}

// Next copies the next stored frame into output, or skips it if output is
// nil. Returns a LastFrameError after the last frame.
func (M *Molecule) Next(output *v3.Matrix) error {
	if M.current >= len(M.Coords) {
		return newlastFrameError("", "Molecule.Next")
	}
	if output != nil {
		output.Copy(M.Coords[M.current])
	}
	M.current++
	return nil
}

// NFrames returns the number of stored frames.
func (M *Molecule) NFrames() int {
	return len(M.Coords)
}

// Rewind makes the molecule deliver its frames from the beginning again.
func (M *Molecule) Rewind() {
	M.current = 0
}
