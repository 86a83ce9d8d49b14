/*
 * pdb.go, part of backmap.
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
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/rmera/backmap/v3"
)

// openMaybeZst opens a file for reading, transparently decompressing it
// when the name ends in .zst.
func openMaybeZst(name string) (io.ReadCloser, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(name, ".zst") {
		return f, nil
	}
	zr, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return zr.IOReadCloser(), nil
}

// PDBFileRead reads a (possibly multi-model, possibly zstd-compressed)
// PDB file with the coarse-grained structure. CONECT records, when
// present, fill the Bonded lists of the atoms. Atom metadata is taken
// from the first model only; further models contribute coordinates.
func PDBFileRead(name string) (*Molecule, error) {
	r, err := openMaybeZst(name)
	if err != nil {
		return nil, NewError(fmt.Sprintf("unable to open input file %s: %v", name, err), "PDBFileRead")
	}
	defer r.Close()
	mol, err := PDBRead(r)
	if err != nil {
		return nil, errDecorate(err, "PDBFileRead "+name)
	}
	return mol, nil
}

// PDBRead reads a PDB structure from an io.Reader.
func PDBRead(in io.Reader) (*Molecule, error) {
	buf := bufio.NewReader(in)
	atoms := make([]*Atom, 0, 100)
	coords := [][]float64{make([]float64, 0, 300)}
	var conect [][2]int
	firstModel := true
	nline := 0
	for {
		line, err := buf.ReadString('\n')
		nline++
		if len(line) < 4 {
			if err != nil {
				break
			}
			continue
		}
		switch {
		case strings.HasPrefix(line, "ATOM") || strings.HasPrefix(line, "HETATM"):
			if firstModel {
				at, c, rerr := readPDBLine(line)
				if rerr != nil {
					return nil, NewError(fmt.Sprintf("line %d: %v", nline, rerr), "PDBRead")
				}
				atoms = append(atoms, at)
				coords[len(coords)-1] = append(coords[len(coords)-1], c[0], c[1], c[2])
			} else {
				c, rerr := readPDBCoords(line)
				if rerr != nil {
					return nil, NewError(fmt.Sprintf("line %d: %v", nline, rerr), "PDBRead")
				}
				coords[len(coords)-1] = append(coords[len(coords)-1], c[0], c[1], c[2])
			}
		case strings.HasPrefix(line, "MODEL"):
			n := 0
			if fi := strings.Fields(line); len(fi) > 1 {
				n, _ = strconv.Atoi(fi[1])
			}
			if n > 1 {
				firstModel = false
				coords = append(coords, make([]float64, 0, len(coords[0])))
			}
		case strings.HasPrefix(line, "CONECT"):
			pairs, rerr := readConect(line)
			if rerr != nil {
				return nil, NewError(fmt.Sprintf("line %d: %v", nline, rerr), "PDBRead")
			}
			conect = append(conect, pairs...)
		}
		if err != nil {
			break
		}
	}
	if len(atoms) == 0 {
		return nil, NewError("no atoms in input", "PDBRead")
	}
	frames := make([]*v3.Matrix, 0, len(coords))
	for _, c := range coords {
		if len(c) != 3*len(atoms) {
			if len(c) == 0 { //an empty trailing model is harmless
				continue
			}
			return nil, NewError(fmt.Sprintf("model with %d coordinates for %d atoms", len(c)/3, len(atoms)), "PDBRead")
		}
		m, err := v3.NewMatrix(c)
		if err != nil {
			return nil, errDecorate(&CError{msg: err.Error()}, "PDBRead")
		}
		frames = append(frames, m)
	}
	if err := applyConect(atoms, conect); err != nil {
		return nil, errDecorate(err, "PDBRead")
	}
	return NewMolecule(NewTopology(atoms), frames)
}

func readPDBLine(line string) (*Atom, [3]float64, error) {
	var c [3]float64
	if len(line) < 54 {
		return nil, c, fmt.Errorf("truncated record")
	}
	at := new(Atom)
	at.Het = strings.HasPrefix(line, "HETATM")
	var err error
	at.ID, err = strconv.Atoi(strings.TrimSpace(line[6:11]))
	if err != nil {
		return nil, c, fmt.Errorf("bad serial: %v", err)
	}
	at.Name = strings.TrimSpace(line[12:16])
	//many CG files use 4-letter residue type names, which take the
	//column PDB reserves for the alternate location indicator
	at.MolName = strings.TrimSpace(line[17:21])
	at.Chain = strings.TrimSpace(line[21:22])
	at.MolID, err = strconv.Atoi(strings.TrimSpace(line[22:26]))
	if err != nil {
		return nil, c, fmt.Errorf("bad residue id: %v", err)
	}
	c, err = readPDBCoords(line)
	if err != nil {
		return nil, c, err
	}
	if len(line) >= 78 {
		at.Symbol = strings.TrimSpace(line[76:78])
	}
	if at.Symbol == "" && at.Name != "" {
		at.Symbol = at.Name[:1] //good enough for CG beads
	}
	return at, c, nil
}

func readPDBCoords(line string) ([3]float64, error) {
	var c [3]float64
	if len(line) < 54 {
		return c, fmt.Errorf("truncated record")
	}
	var err error
	for i, r := range [3][2]int{{30, 38}, {38, 46}, {46, 54}} {
		c[i], err = strconv.ParseFloat(strings.TrimSpace(line[r[0]:r[1]]), 64)
		if err != nil {
			return c, fmt.Errorf("bad coordinate: %v", err)
		}
	}
	return c, nil
}

func readConect(line string) ([][2]int, error) {
	fi := strings.Fields(line)
	if len(fi) < 3 {
		return nil, nil //a CONECT with no partners carries no information
	}
	base, err := strconv.Atoi(fi[1])
	if err != nil {
		return nil, fmt.Errorf("bad CONECT serial %q: %v", fi[1], err)
	}
	ret := make([][2]int, 0, len(fi)-2)
	for _, v := range fi[2:] {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("bad CONECT serial %q: %v", v, err)
		}
		ret = append(ret, [2]int{base, n})
	}
	return ret, nil
}

// applyConect resolves serial pairs to atom indexes and fills the Bonded
// lists, both ways, without repetitions.
func applyConect(atoms []*Atom, pairs [][2]int) error {
	byserial := make(map[int]int, len(atoms))
	for i, at := range atoms {
		byserial[at.ID] = i
	}
	addbond := func(a, b int) {
		for _, v := range atoms[a].Bonded {
			if v == b {
				return
			}
		}
		atoms[a].Bonded = append(atoms[a].Bonded, b)
	}
	for _, p := range pairs {
		i, oki := byserial[p[0]]
		j, okj := byserial[p[1]]
		if !oki || !okj {
			return &CError{msg: fmt.Sprintf("CONECT record references missing serial %d or %d", p[0], p[1])}
		}
		addbond(i, j)
		addbond(j, i)
	}
	return nil
}

// PDB serials only have 5 columns, so they wrap back to 1.
const maxPDBSerial = 99999

// PDBWrite writes one coordinate set to out as fixed-width PDB records.
// A TER record separates consecutive atoms whose Tag (fragment id)
// differs. Serials are sequential and wrap to 1 after 99999; residue ids
// are emitted modulo 10000.
func PDBWrite(out io.Writer, mol Atomer, coord *v3.Matrix) error {
	if coord.NVecs() != mol.Len() {
		return NewError(fmt.Sprintf("reference (%d) and coordinates (%d) don't have the same number of atoms", mol.Len(), coord.NVecs()), "PDBWrite")
	}
	serial := 0
	var prevtag int
	for i := 0; i < mol.Len(); i++ {
		at := mol.Atom(i)
		if i > 0 && at.Tag != prevtag {
			if _, err := fmt.Fprintln(out, "TER"); err != nil {
				return NewError(err.Error(), "PDBWrite")
			}
		}
		prevtag = at.Tag
		serial++
		if serial > maxPDBSerial {
			serial = 1
		}
		rec := "ATOM"
		if at.Het {
			rec = "HETATM"
		}
		nameformat := "%-6s%5d  %-3s "
		if len(at.Name) >= 4 {
			nameformat = "%-6s%5d %-4s "
		}
		_, err := fmt.Fprintf(out, nameformat+"%-4s%1s%4d    %8.3f%8.3f%8.3f%6.2f%6.2f          %2s  \n",
			rec, serial, at.Name, at.MolName, at.Chain, at.MolID%10000,
			coord.At(i, 0), coord.At(i, 1), coord.At(i, 2), 1.0, 0.0, at.Symbol)
		if err != nil {
			return NewError(err.Error(), "PDBWrite")
		}
	}
	return nil
}

// OutStream writes a multi-model PDB, one MODEL/ENDMDL block per
// delivered frame, ending with an END record on Close. If given an
// io.Closer it closes it too, after flushing any compression layer.
type OutStream struct {
	w      io.Writer
	zw     *zstd.Encoder
	closer io.Closer
	models int
}

// NewOutStream wraps an already-open writer.
func NewOutStream(w io.Writer) *OutStream {
	return &OutStream{w: w}
}

// NewOutFile creates the named file, compressing the output if the name
// ends in .zst.
func NewOutFile(name string) (*OutStream, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, NewError(fmt.Sprintf("unable to create output file %s: %v", name, err), "NewOutFile")
	}
	o := &OutStream{w: f, closer: f}
	if strings.HasSuffix(name, ".zst") {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, NewError(err.Error(), "NewOutFile")
		}
		o.w = zw
		o.zw = zw
	}
	return o, nil
}

// WModel writes one model block with the given atoms and coordinates.
func (O *OutStream) WModel(mol Atomer, coord *v3.Matrix) error {
	O.models++
	if _, err := fmt.Fprintf(O.w, "MODEL %8d\n", O.models); err != nil {
		return NewError(err.Error(), "OutStream.WModel")
	}
	if err := PDBWrite(O.w, mol, coord); err != nil {
		return errDecorate(err, "OutStream.WModel")
	}
	if _, err := fmt.Fprintln(O.w, "ENDMDL"); err != nil {
		return NewError(err.Error(), "OutStream.WModel")
	}
	return nil
}

// Models returns the number of models written so far.
func (O *OutStream) Models() int {
	return O.models
}

// Close terminates the file with an END record and closes the underlying
// writer, if closable.
func (O *OutStream) Close() error {
	if _, err := fmt.Fprintln(O.w, "END"); err != nil {
		return NewError(err.Error(), "OutStream.Close")
	}
	if O.zw != nil {
		if err := O.zw.Close(); err != nil {
			return NewError(err.Error(), "OutStream.Close")
		}
	}
	if O.closer != nil {
		if err := O.closer.Close(); err != nil {
			return NewError(err.Error(), "OutStream.Close")
		}
	}
	return nil
}
