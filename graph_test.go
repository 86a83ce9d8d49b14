/*
 * graph_test.go, part of backmap.
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
	"testing"

	"github.com/rmera/backmap/sirah"
	"github.com/rmera/backmap/v3"
)

// testDB builds a small mapping database: ALA-like residues with three
// beads, a CYS variant with a sulfur bead and a disulfide bridge rule, a
// chopped type and a no-map type.
func testDB(t *testing.T) *sirah.DB {
	db := sirah.NewDB()
	ala := &sirah.Entry{
		Name: "ALA",
		Build: []sirah.Instruction{
			{Name: "N", Kind: sirah.Copy, Source: "GN", Boundary: sirah.Self},
			{Name: "C", Kind: sirah.Copy, Source: "GC", Boundary: sirah.Self},
			{Name: "O", Kind: sirah.Copy, Source: "GO", Boundary: sirah.Self},
			{Name: "CB", Kind: sirah.Place, Anchors: [3]string{"N", "C", "O"}, Length: 1.53, Angle: 70, Dihedral: -120},
		},
		Print: []string{"N", "CB", "C", "O"},
	}
	db.Register(ala)
	cys := ala.Clone()
	cys.Name = "CYS"
	cys.OutName = "CYS"
	cys.Build = append(cys.Build, sirah.Instruction{Name: "SG", Kind: sirah.Copy, Source: "GS", Boundary: sirah.Self})
	cys.Print = append(cys.Print, "SG")
	cys.AddBridge(sirah.BridgeKey{LocalAtom: "GS", NeighborType: "CYS", NeighborAtom: "GS"},
		sirah.BridgeRule{BondLocal: "SG", BondNeighbor: "SG", AltEntry: "CYX"})
	db.Register(cys)
	if err := db.Derive("CYS", "CYX", func(e *sirah.Entry) { e.OutName = "CYX" }); err != nil {
		t.Fatal(err)
	}
	chp := ala.Clone()
	chp.Name = "CHP"
	chp.OutName = "CHP"
	chp.Chop = true
	db.Register(chp)
	db.Register(&sirah.Entry{Name: "WAT", NoMap: true})
	if err := db.Compile(); err != nil {
		t.Fatal(err)
	}
	return db
}

// testChain builds a topology with one residue per entry of types, with
// beads GN, GC and GO (plus GS for CYS/CYX), and a GC to GN bond between
// consecutive residues wherever link is true. It returns the topology,
// one frame of coordinates and the starting atom index of each residue.
func testChain(types []string, link []bool) (*Topology, *v3.Matrix, []int) {
	var atoms []*Atom
	var data []float64
	offsets := make([]int, len(types))
	for i, typ := range types {
		offsets[i] = len(atoms)
		x := 3.0 * float64(i)
		beads := []string{"GN", "GC", "GO"}
		pos := [][3]float64{{x, 0, 0}, {x + 1.4, 0, 0}, {x + 0.7, 1.1, 0}}
		if typ == "CYS" || typ == "CYX" {
			beads = append(beads, "GS")
			pos = append(pos, [3]float64{x + 0.7, -1.3, 0.4})
		}
		for b, name := range beads {
			atoms = append(atoms, &Atom{Name: name, ID: len(atoms) + 1, MolName: typ,
				MolID: i + 1, Chain: "A", Symbol: name[1:2]})
			data = append(data, pos[b][0], pos[b][1], pos[b][2])
		}
	}
	bond := func(a, b int) {
		atoms[a].Bonded = append(atoms[a].Bonded, b)
		atoms[b].Bonded = append(atoms[b].Bonded, a)
	}
	for i, l := range link {
		if l {
			bond(offsets[i]+1, offsets[i+1]) //GC of i to GN of i+1
		}
	}
	coord, err := v3.NewMatrix(data)
	if err != nil {
		panic(err)
	}
	return NewTopology(atoms), coord, offsets
}

func TestGraphLinear(t *testing.T) {
	top, _, _ := testChain([]string{"ALA", "ALA", "ALA"}, []bool{true, true})
	g, err := NewGraph(top, testDB(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Residues) != 3 {
		t.Fatalf("expected 3 residues, got %d", len(g.Residues))
	}
	for i, r := range g.Residues {
		if r.Fragment != 0 {
			t.Errorf("residue %d in fragment %d, the chain has no breaks", i, r.Fragment)
		}
	}
	if g.Residues[0].next != g.Residues[1] || g.Residues[1].prev != g.Residues[0] {
		t.Error("sequential neighbor links not set")
	}
	if g.Residues[0].prev != nil || g.Residues[2].next != nil {
		t.Error("terminal residues should have no outward links")
	}
	if len(g.Crosslinks) != 0 {
		t.Errorf("expected no crosslinks, got %d", len(g.Crosslinks))
	}
}

func TestGraphBreakAndChop(t *testing.T) {
	top, _, _ := testChain([]string{"ALA", "CHP", "ALA", "ALA"}, []bool{true, true, false})
	g, err := NewGraph(top, testDB(t))
	if err != nil {
		t.Fatal(err)
	}
	want := []int{0, 0, 2, 3}
	prev := -1
	for i, r := range g.Residues {
		if r.Fragment != want[i] {
			t.Errorf("residue %d in fragment %d, want %d", i, r.Fragment, want[i])
		}
		if r.Fragment < prev {
			t.Error("fragment ids must be non-decreasing")
		}
		prev = r.Fragment
	}
}

func TestGraphCircular(t *testing.T) {
	top, _, off := testChain([]string{"ALA", "ALA", "ALA", "ALA"}, []bool{true, true, true})
	//close the circle: GC of the last residue to GN of the first
	last := off[3] + 1
	top.Atom(last).Bonded = append(top.Atom(last).Bonded, off[0])
	top.Atom(off[0]).Bonded = append(top.Atom(off[0]).Bonded, last)
	g, err := NewGraph(top, testDB(t))
	if err != nil {
		t.Fatal(err)
	}
	if g.Residues[3].next != g.Residues[0] {
		t.Error("wrap-around bond should link the last residue forward to the first")
	}
	if g.Residues[0].prev != g.Residues[3] {
		t.Error("wrap-around bond should link the first residue backward to the last")
	}
	for i, r := range g.Residues {
		if r.Fragment != 0 {
			t.Errorf("residue %d in fragment %d, a circular chain has no breaks", i, r.Fragment)
		}
	}
}

func TestCrosslink(t *testing.T) {
	top, _, off := testChain([]string{"CYS", "ALA", "CYS"}, []bool{true, true})
	//disulfide between the GS beads of residues 1 and 3
	sg1, sg2 := off[0]+3, off[2]+3
	top.Atom(sg1).Bonded = append(top.Atom(sg1).Bonded, sg2)
	top.Atom(sg2).Bonded = append(top.Atom(sg2).Bonded, sg1)
	g, err := NewGraph(top, testDB(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Crosslinks) != 1 {
		t.Fatalf("the bond is seen from both ends but only one crosslink may be stored, got %d", len(g.Crosslinks))
	}
	c := g.Crosslinks[0]
	if c.AtomA != "SG" || c.AtomB != "SG" {
		t.Errorf("wrong bonded atoms %s %s", c.AtomA, c.AtomB)
	}
	for _, i := range []int{0, 2} {
		if g.Residues[i].Template() != "CYX" {
			t.Errorf("bridged residue %d should map as CYX, maps as %s", i, g.Residues[i].Template())
		}
	}
	//a non-wrap bridge must not touch the sequential links
	if g.Residues[0].prev != nil || g.Residues[2].next != nil {
		t.Error("disulfide bridge should not set neighbor links")
	}
	if g.Residues[0].Fragment != 0 || g.Residues[2].Fragment != 0 {
		t.Error("disulfide bridge should not break the chain")
	}
}

func TestGraphExclusions(t *testing.T) {
	top, _, _ := testChain([]string{"ALA", "XYZ", "WAT", "ALA"}, []bool{false, false, false})
	g, err := NewGraph(top, testDB(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Residues) != 2 {
		t.Fatalf("expected 2 kept residues, got %d", len(g.Residues))
	}
	if g.Summary.Unmapped["XYZ"] != 1 {
		t.Errorf("unmapped XYZ should be tallied, got %v", g.Summary.Unmapped)
	}
	if g.Summary.NoMap["WAT"] != 1 {
		t.Errorf("no-map WAT should be tallied separately, got %v", g.Summary.NoMap)
	}
}

func TestGraphEmptyFatal(t *testing.T) {
	top, _, _ := testChain([]string{"WAT", "XYZ"}, []bool{false})
	if _, err := NewGraph(top, testDB(t)); err == nil {
		t.Fatal("a graph with no residues left must be an error")
	}
}

func TestGraphDuplicateBead(t *testing.T) {
	top, _, _ := testChain([]string{"ALA"}, nil)
	top.Atom(2).Name = "GN" //same name as atom 0, same residue
	if _, err := NewGraph(top, testDB(t)); err == nil {
		t.Fatal("a repeated bead name within a residue must be an error")
	}
}
