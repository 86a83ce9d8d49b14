/*
 * place.go, part of backmap.
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
	"math"

	"github.com/rmera/backmap/sirah"
	"github.com/rmera/backmap/v3"
)

const appzero float64 = 0.0000001 //used to correct floating point errors. Everything equal or less than this is considered zero.

const deg2rad = math.Pi / 180

// PlacedAtom is one rebuilt atom: its name, the output residue name of
// the template that built it, and its position.
type PlacedAtom struct {
	Name    string
	MolName string
	Coord   [3]float64
}

// PlaceResidue rebuilds one residue against one frame of coarse-grained
// coordinates, returning the atoms of the template's print list, in
// print-list order. An error means the whole residue failed and is to be
// omitted from the frame, without stopping the run.
func PlaceResidue(r *Residue, e *sirah.Entry, frame *v3.Matrix) ([]PlacedAtom, error) {
	prog, outname := e.Program(r.prev == nil, r.next == nil)
	memo := make(map[string]*v3.Matrix, len(prog))
	for _, in := range prog {
		switch in.Kind {
		case sirah.Copy:
			var src *Residue
			switch in.Boundary {
			case sirah.Self:
				src = r
			case sirah.Prev:
				src = r.prev
			case sirah.Next:
				src = r.next
			}
			if src == nil {
				return nil, NewError(fmt.Sprintf("residue %s %d: no linked neighbor residue to copy bead %s from", r.Name, r.MolID, in.Source), "PlaceResidue")
			}
			idx, ok := src.AtomIndex(in.Source)
			if !ok {
				return nil, NewError(fmt.Sprintf("residue %s %d: bead %s not present in residue %s %d", r.Name, r.MolID, in.Source, src.Name, src.MolID), "PlaceResidue")
			}
			memo[in.Name] = frame.VecView(idx)
		case sirah.Place:
			anchors := make([]*v3.Matrix, 3)
			for i, a := range in.Anchors {
				p, ok := memo[a]
				if !ok {
					return nil, NewError(fmt.Sprintf("residue %s %d: unresolved anchor %s for atom %s", r.Name, r.MolID, a, in.Name), "PlaceResidue")
				}
				anchors[i] = p
			}
			pos, err := place(anchors[0], anchors[1], anchors[2], in.Length, in.Angle, in.Dihedral)
			if err != nil {
				return nil, NewError(fmt.Sprintf("residue %s %d, atom %s: %v", r.Name, r.MolID, in.Name, err), "PlaceResidue")
			}
			memo[in.Name] = pos
		}
	}
	ret := make([]PlacedAtom, 0, len(e.Print))
	for _, name := range e.Print {
		pos, ok := memo[name]
		if !ok {
			return nil, NewError(fmt.Sprintf("residue %s %d: printed atom %s has no build instruction", r.Name, r.MolID, name), "PlaceResidue")
		}
		ret = append(ret, PlacedAtom{Name: name, MolName: outname,
			Coord: [3]float64{pos.At(0, 0), pos.At(0, 1), pos.At(0, 2)}})
	}
	return ret, nil
}

// place builds a position from the anchors p1 (nearest), p2, p3 and the
// internal coordinates r (A), ang and dih (degrees). The angle follows
// the template convention: 180 degrees minus the geometric bend angle
// over p2, p1 and the new atom.
func place(p1, p2, p3 *v3.Matrix, r, ang, dih float64) (*v3.Matrix, error) {
	bc := v3.Zeros(1)
	bc.Sub(p1, p2)
	if bc.Norm(2) <= appzero {
		return nil, fmt.Errorf("anchors 1 and 2 coincide")
	}
	bc.Unit(bc)
	ab := v3.Zeros(1)
	ab.Sub(p2, p3)
	n := v3.Zeros(1)
	n.Cross(ab, bc)
	if n.Norm(2) <= appzero {
		return nil, fmt.Errorf("colinear anchors")
	}
	n.Unit(n)
	m := v3.Zeros(1)
	m.Cross(n, bc)
	sa, ca := math.Sincos(ang * deg2rad)
	sd, cd := math.Sincos(dih * deg2rad)
	pos := v3.Zeros(1)
	for j := 0; j < 3; j++ {
		pos.Set(0, j, p1.At(0, j)+r*(ca*bc.At(0, j)+sa*cd*m.At(0, j)+sa*sd*n.At(0, j)))
	}
	return pos, nil
}

// Angle returns the angle (radians) between the vectors v1 and v2.
func Angle(v1, v2 *v3.Matrix) float64 {
	normproduct := v1.Norm(2) * v2.Norm(2)
	dotprod := v1.Dot(v2)
	argument := dotprod / normproduct
	//Take care of floating point math errors
	if math.Abs(argument-1) <= appzero {
		argument = 1
	} else if math.Abs(argument+1) <= appzero {
		argument = -1
	}
	angle := math.Acos(argument)
	if math.Abs(angle) <= appzero {
		return 0.00
	}
	return angle
}

// Dihedral returns the dihedral angle (radians) defined by the points
// a, b, c and d.
func Dihedral(a, b, c, d *v3.Matrix) float64 {
	bma := v3.Zeros(1)
	cmb := v3.Zeros(1)
	dmc := v3.Zeros(1)
	bmascaled := v3.Zeros(1)
	bma.Sub(b, a)
	cmb.Sub(c, b)
	dmc.Sub(d, c)
	bmascaled.Scale(cmb.Norm(2), bma)
	t1 := v3.Zeros(1)
	t1.Cross(cmb, dmc)
	first := bmascaled.Dot(t1)
	v1 := v3.Zeros(1)
	v2 := v3.Zeros(1)
	v1.Cross(bma, cmb)
	v2.Cross(cmb, dmc)
	second := v1.Dot(v2)
	return math.Atan2(first, second)
}
