/*
 * sirah_test.go, part of backmap.
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

package sirah

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//a small template with a deliberate dependency inversion: CA is declared
//after the instruction that anchors on it.
func testEntry() *Entry {
	return &Entry{
		Name: "ALA",
		Build: []Instruction{
			{Name: "CB", Kind: Place, Anchors: [3]string{"CA", "N", "C"}, Length: 1.53, Angle: 70, Dihedral: -120},
			{Name: "N", Kind: Copy, Source: "GN", Boundary: Self},
			{Name: "C", Kind: Copy, Source: "GC", Boundary: Self},
			{Name: "CA", Kind: Place, Anchors: [3]string{"N", "C", "O"}, Length: 1.52, Angle: 68, Dihedral: 180},
			{Name: "O", Kind: Copy, Source: "GO", Boundary: Self},
			{Name: "HB", Kind: Place, Anchors: [3]string{"CB", "CA", "N"}, Length: 1.09, Angle: 70, Dihedral: 60},
		},
		First: []Instruction{
			{Name: "H1", Kind: Place, Anchors: [3]string{"N", "CA", "C"}, Length: 1.01, Angle: 60, Dihedral: 60},
			{Name: "N", Kind: Copy, Source: "GN2", Boundary: Self},
		},
		FirstOut: "NALA",
		Print:    []string{"N", "CA", "C", "O", "CB"},
	}
}

func TestCompileOrder(t *testing.T) {
	db := NewDB()
	db.Register(testEntry())
	require.NoError(t, db.Compile())
	e, ok := db.Lookup("ALA")
	require.True(t, ok)
	prog, out := e.Program(false, false)
	assert.Equal(t, "ALA", out)
	pos := make(map[string]int)
	for i, in := range prog {
		pos[in.Name] = i
	}
	//every printed atom is built, HB was pruned as unprintable and unused
	for _, name := range e.Print {
		_, built := pos[name]
		assert.True(t, built, "print atom %s not in program", name)
	}
	_, hb := pos["HB"]
	assert.False(t, hb, "HB is not printed nor anchors anything printed")
	//anchors come before their dependents
	assert.Less(t, pos["CA"], pos["CB"])
	assert.Less(t, pos["N"], pos["CA"])
	assert.Less(t, pos["O"], pos["CA"])
}

func TestVariantMerge(t *testing.T) {
	db := NewDB()
	db.Register(testEntry())
	require.NoError(t, db.Compile())
	e, _ := db.Lookup("ALA")
	prog, out := e.Program(true, false)
	assert.Equal(t, "NALA", out)
	var nSource string
	h1 := false
	for _, in := range prog {
		if in.Name == "N" {
			nSource = in.Source
		}
		if in.Name == "H1" {
			h1 = true
		}
	}
	//the first-variant N override replaces the base one
	assert.Equal(t, "GN2", nSource)
	//H1 is appended but pruned: it is not in the print list
	assert.False(t, h1)
}

func TestDeriveIsolation(t *testing.T) {
	db := NewDB()
	db.Register(testEntry())
	err := db.Derive("ALA", "ALX", func(e *Entry) {
		e.Build[1].Source = "GNX"
		e.Print = append(e.Print, "HB")
		e.AddBridge(BridgeKey{"SG", "ALX", "SG"}, BridgeRule{BondLocal: "SG", BondNeighbor: "SG"})
	})
	require.NoError(t, err)
	orig, _ := db.Lookup("ALA")
	assert.Equal(t, "GN", orig.Build[1].Source, "deriving must not touch the source entry")
	assert.Len(t, orig.Print, 5)
	assert.Nil(t, orig.Bridges)
	derived, _ := db.Lookup("ALX")
	assert.Equal(t, "GNX", derived.Build[1].Source)
	_, ok := derived.Bridge("SG", "ALX", "SG")
	assert.True(t, ok)
}

func TestCycleDetection(t *testing.T) {
	db := NewDB()
	db.Register(&Entry{
		Name: "BAD",
		Build: []Instruction{
			{Name: "A", Kind: Place, Anchors: [3]string{"B", "X", "Y"}},
			{Name: "B", Kind: Place, Anchors: [3]string{"A", "X", "Y"}},
		},
		Print: []string{"A", "B"},
	})
	assert.Error(t, db.Compile())
}

func TestLoadFile(t *testing.T) {
	text := `# test map
residue CYS
copy  N  GN
copy  C  GC prev
place CA N C SG 1.52 68.0 180.0
copy  SG BSG
first out NCYS
place H1 N CA C 1.01 60.0 60.0
end
bridge SG CYS SG bond SG SG alt CYX
print N CA C SG
endresidue

alias CYS CYX out CYX
`
	fname := filepath.Join(t.TempDir(), "test.map")
	require.NoError(t, os.WriteFile(fname, []byte(text), 0644))
	db := NewDB()
	require.NoError(t, LoadFile(db, fname))
	require.NoError(t, db.Compile())
	e, ok := db.Lookup("CYS")
	require.True(t, ok)
	assert.Equal(t, "CYS", e.OutName)
	r, ok := e.Bridge("SG", "CYS", "SG")
	require.True(t, ok)
	assert.Equal(t, "CYX", r.AltEntry)
	assert.False(t, r.WrapAround)
	var cLine Instruction
	for _, in := range e.Build {
		if in.Name == "C" {
			cLine = in
		}
	}
	assert.Equal(t, Prev, cLine.Boundary)
	prog, out := e.Program(true, false)
	assert.Equal(t, "NCYS", out)
	assert.NotEmpty(t, prog)
	x, ok := db.Lookup("CYX")
	require.True(t, ok)
	assert.Equal(t, "CYX", x.OutName)
	assert.Len(t, x.Build, len(e.Build))
}
