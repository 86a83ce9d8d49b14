/*
 * pipeline_test.go, part of backmap.
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
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rmera/backmap/sirah"
	"github.com/rmera/backmap/v3"
)

type fakeRefiner struct {
	calls  int
	failAt int //fail on this call, 1-based; 0 never fails
	bonds  []BondSpec
}

func (f *fakeRefiner) Available() error { return nil }

func (f *fakeRefiner) Refine(ctx context.Context, name string, mol Atomer, coord *v3.Matrix, bonds []BondSpec) (*v3.Matrix, error) {
	f.calls++
	f.bonds = bonds
	if f.failAt > 0 && f.calls == f.failAt {
		return nil, fmt.Errorf("forced failure on call %d", f.calls)
	}
	return coord, nil
}

// testMol puts nframes copies of the chain's coordinates in a Molecule.
func testMol(t *testing.T, types []string, link []bool, nframes int) (*Molecule, *Graph) {
	top, coord, _ := testChain(types, link)
	coords := make([]*v3.Matrix, nframes)
	for i := range coords {
		c := v3.Zeros(coord.NVecs())
		c.Copy(coord)
		coords[i] = c
	}
	mol, err := NewMolecule(top, coords)
	if err != nil {
		t.Fatal(err)
	}
	g, err := NewGraph(mol, testDB(t))
	if err != nil {
		t.Fatal(err)
	}
	return mol, g
}

func TestPipelineTripeptide(t *testing.T) {
	mol, g := testMol(t, []string{"ALA", "ALA", "ALA"}, []bool{true, true}, 1)
	var buf bytes.Buffer
	sum, err := NewPipeline(g, nil, nil).Run(context.Background(), mol, NewOutStream(&buf))
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if n := strings.Count(out, "MODEL"); n != 1 {
		t.Errorf("expected 1 model, got %d", n)
	}
	if strings.Contains(out, "TER") {
		t.Error("an unbroken chain should have no TER records")
	}
	if !strings.HasSuffix(out, "END\n") {
		t.Error("output should end with an END record")
	}
	if atoms := strings.Count(out, "ATOM  "); atoms != 12 {
		t.Errorf("expected 12 atoms (3 residues of 4), got %d", atoms)
	}
	//the first residue comes out in print-list order
	want := []string{"N", "CB", "C", "O"}
	lines := strings.Split(out, "\n")
	ai := 0
	for _, l := range lines {
		if !strings.HasPrefix(l, "ATOM") || ai >= len(want) {
			continue
		}
		name := strings.TrimSpace(l[12:16])
		if name != want[ai] {
			t.Errorf("atom %d is %s, want %s", ai, name, want[ai])
		}
		ai++
	}
	if sum.PlaceFailures != 0 {
		t.Errorf("unexpected placement failures: %d", sum.PlaceFailures)
	}
}

func TestPipelineUnmappedSummary(t *testing.T) {
	mol, g := testMol(t, []string{"ALA", "XYZ", "ALA"}, []bool{false, false}, 1)
	var buf bytes.Buffer
	sum, err := NewPipeline(g, nil, nil).Run(context.Background(), mol, NewOutStream(&buf))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Unmapped["XYZ"] != 1 {
		t.Errorf("the summary should report the excluded type, got %v", sum.Unmapped)
	}
	if !strings.Contains(sum.String(), "XYZ") {
		t.Errorf("the printable summary should name the excluded type: %s", sum.String())
	}
	if n := strings.Count(buf.String(), "MODEL"); n != 1 {
		t.Errorf("the run should still produce its model, got %d", n)
	}
}

func TestPipelineRefinementAbort(t *testing.T) {
	mol, g := testMol(t, []string{"ALA", "ALA"}, []bool{true}, 5)
	ref := &fakeRefiner{failAt: 2}
	var buf bytes.Buffer
	_, err := NewPipeline(g, nil, ref).Run(context.Background(), mol, NewOutStream(&buf))
	if err == nil {
		t.Fatal("a refinement failure must abort the run")
	}
	out := buf.String()
	if n := strings.Count(out, "MODEL"); n != 1 {
		t.Errorf("only the frame before the failure may be written, got %d models", n)
	}
	if strings.HasSuffix(out, "END\n") {
		t.Error("an aborted run must not be terminated with END")
	}
}

func TestPipelineCancellation(t *testing.T) {
	mol, g := testMol(t, []string{"ALA", "ALA"}, []bool{true}, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ref := &fakeRefiner{}
	var buf bytes.Buffer
	_, err := NewPipeline(g, nil, ref).Run(ctx, mol, NewOutStream(&buf))
	if err == nil {
		t.Fatal("a cancelled context must abort a refined run")
	}
}

func TestPipelineBridgeBonds(t *testing.T) {
	top, coord, off := testChain([]string{"CYS", "ALA", "CYS"}, []bool{true, true})
	sg1, sg2 := off[0]+3, off[2]+3 //GS beads of the two CYS
	top.Atom(sg1).Bonded = append(top.Atom(sg1).Bonded, sg2)
	top.Atom(sg2).Bonded = append(top.Atom(sg2).Bonded, sg1)
	mol, err := NewMolecule(top, []*v3.Matrix{coord})
	if err != nil {
		t.Fatal(err)
	}
	g, err := NewGraph(mol, testDB(t))
	if err != nil {
		t.Fatal(err)
	}
	ref := &fakeRefiner{}
	pipe := NewPipeline(g, nil, ref)
	var buf bytes.Buffer
	if _, err := pipe.Run(context.Background(), mol, NewOutStream(&buf)); err != nil {
		t.Fatal(err)
	}
	if len(ref.bonds) != 1 {
		t.Fatalf("one crosslink must reach the refiner as one bond, got %d", len(ref.bonds))
	}
	b := ref.bonds[0]
	if b.Atom1 != "SG" || b.Atom2 != "SG" || b.Res1 == b.Res2 {
		t.Errorf("wrong bond declaration %+v", b)
	}
}

func TestPipelineBondOrdinalsSkippedResidue(t *testing.T) {
	db := testDB(t)
	//a type whose only atom comes from the previous residue, so a
	//chain-initial occurrence has nothing to copy from and is skipped
	db.Register(&sirah.Entry{
		Name: "PRX",
		Build: []sirah.Instruction{
			{Name: "N", Kind: sirah.Copy, Source: "GC", Boundary: sirah.Prev},
		},
		Print: []string{"N"},
	})
	if err := db.Compile(); err != nil {
		t.Fatal(err)
	}
	top, coord, off := testChain([]string{"PRX", "CYS", "ALA", "CYS"}, []bool{false, true, true})
	sg1, sg2 := off[1]+3, off[3]+3 //GS beads of the two CYS
	top.Atom(sg1).Bonded = append(top.Atom(sg1).Bonded, sg2)
	top.Atom(sg2).Bonded = append(top.Atom(sg2).Bonded, sg1)
	mol, err := NewMolecule(top, []*v3.Matrix{coord})
	if err != nil {
		t.Fatal(err)
	}
	g, err := NewGraph(mol, db)
	if err != nil {
		t.Fatal(err)
	}
	ref := &fakeRefiner{}
	var buf bytes.Buffer
	sum, err := NewPipeline(g, nil, ref).Run(context.Background(), mol, NewOutStream(&buf))
	if err != nil {
		t.Fatal(err)
	}
	if sum.PlaceFailures != 1 {
		t.Fatalf("the chain-initial PRX must fail placement, got %d failures", sum.PlaceFailures)
	}
	if len(ref.bonds) != 1 {
		t.Fatalf("the disulfide must still reach the refiner, got %d bonds", len(ref.bonds))
	}
	b := ref.bonds[0]
	//with PRX gone the cysteines are the 1st and 3rd residues written
	if b.Res1 != 1 || b.Res2 != 3 {
		t.Errorf("bond must follow the emitted residue ordinals 1 and 3, got %d and %d", b.Res1, b.Res2)
	}
	if g.Summary.PlaceFailures != 0 {
		t.Error("a run must not write its tallies back into the graph")
	}
}

func TestPipelineFrameSelection(t *testing.T) {
	mol, g := testMol(t, []string{"ALA"}, nil, 5)
	opts := DefaultOptions()
	opts.Each = 2
	var buf bytes.Buffer
	if _, err := NewPipeline(g, opts, nil).Run(context.Background(), mol, NewOutStream(&buf)); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(buf.String(), "MODEL"); n != 3 {
		t.Errorf("every 2nd of 5 frames makes 3 models, got %d", n)
	}
	mol.Rewind()
	opts2 := DefaultOptions()
	opts2.Frames = []int{3, 1}
	buf.Reset()
	if _, err := NewPipeline(g, opts2, nil).Run(context.Background(), mol, NewOutStream(&buf)); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(buf.String(), "MODEL"); n != 2 {
		t.Errorf("an explicit 2-frame list makes 2 models, got %d", n)
	}
}
