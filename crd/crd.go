/*
 * crd.go, part of backmap.
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

//Package crd reads Amber text (mdcrd) trajectories of coarse-grained
//coordinates, optionally zstd-compressed. The frames must be aligned to
//the atom ordering of the topology the caller read separately.
package crd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/rmera/backmap"
	"github.com/rmera/backmap/v3"
)

// Crd reads a coordinate trajectory in the Amber text format: a title
// line followed by 10F8.3 coordinate lines, three values per atom, and,
// if the trajectory carries a box, one box line after each frame.
type Crd struct {
	natoms   int
	box      bool
	readable bool
	filename string
	crd      *bufio.Reader
	f        io.Closer
	zr       *zstd.Decoder
}

// New opens the trajectory for reading, consuming the title line. The
// file is transparently decompressed when the name ends in .zst.
func New(filename string, natoms int, box bool) (*Crd, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, Error{message: UnableToOpen, filename: filename, critical: true}
	}
	C := &Crd{natoms: natoms, box: box, filename: filename, f: f}
	var in io.Reader = f
	if strings.HasSuffix(filename, ".zst") {
		C.zr, err = zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, Error{message: err.Error(), filename: filename, critical: true}
		}
		in = C.zr
	}
	C.crd = bufio.NewReader(in)
	if _, err := C.crd.ReadString('\n'); err != nil { //title
		C.Close()
		return nil, Error{message: "trajectory has no title line", filename: filename, critical: true}
	}
	C.readable = true
	return C, nil
}

// Readable returns true if the trajectory is fit for reading.
func (C *Crd) Readable() bool {
	return C.readable
}

// Len returns the number of atoms per frame.
func (C *Crd) Len() int {
	return C.natoms
}

// Close closes the underlying file. Further reads fail.
func (C *Crd) Close() {
	C.readable = false
	if C.zr != nil {
		C.zr.Close()
	}
	if C.f != nil {
		C.f.Close()
	}
}

// Next reads the next frame into keep, or skips the frame if keep is
// nil. It returns a LastFrameError when the trajectory runs out at a
// frame boundary.
func (C *Crd) Next(keep *v3.Matrix) error {
	if !C.readable {
		return Error{message: TrajUnIni, filename: C.filename, critical: true}
	}
	if keep != nil && keep.NVecs() < C.natoms {
		return Error{message: fmt.Sprintf("passed matrix has %d vectors, frame has %d atoms", keep.NVecs(), C.natoms), filename: C.filename, critical: true}
	}
	total := 3 * C.natoms
	read := 0
	for read < total {
		line, err := C.crd.ReadString('\n')
		line = strings.TrimRight(line, "\n")
		if line == "" && err != nil {
			C.Close()
			if read == 0 {
				return newlastFrameError(C.filename, "Next")
			}
			return Error{message: "trajectory ends mid-frame", filename: C.filename, critical: true}
		}
		//Amber writes fixed 8-column fields which can run into each
		//other, so the line is sliced, not split.
		for p := 0; p+8 <= len(line) && read < total; p += 8 {
			val, perr := strconv.ParseFloat(strings.TrimSpace(line[p:p+8]), 64)
			if perr != nil {
				C.Close()
				return Error{message: fmt.Sprintf("%s: %v", WrongFormat, perr), filename: C.filename, critical: true}
			}
			if keep != nil {
				keep.Set(read/3, read%3, val)
			}
			read++
		}
		if err != nil && read < total {
			C.Close()
			return Error{message: "trajectory ends mid-frame", filename: C.filename, critical: true}
		}
	}
	if C.box {
		if _, err := C.crd.ReadString('\n'); err != nil && err != io.EOF {
			C.Close()
			return Error{message: err.Error(), filename: C.filename, critical: true}
		}
	}
	return nil
}

//Errors

// errDecorate is a helper function that asserts that the error
// implements backmap.Error and decorates the error with the caller's
// name before returning it.
func errDecorate(err error, caller string) error {
	err2 := err.(backmap.Error)
	err2.Decorate(caller)
	return err2
}

// Error is the general structure for crd trajectory errors. It fulfills
// backmap.Error and backmap.TrajError.
type Error struct {
	message  string
	filename string //the input file that has problems, or empty string if none.
	deco     []string
	critical bool
}

func (err Error) Error() string {
	return fmt.Sprintf("crd file %s error: %s", err.filename, err.message)
}

// Decorate adds new information to the error.
func (E Error) Decorate(deco string) []string {
	//Even though this method does not use a pointer as a receiver, and tries to alter the receiver,
	//it should work, since E.deco is a slice, and hence a pointer itself.
	if deco != "" {
		E.deco = append(E.deco, deco)
	}
	return E.deco
}

// FileName returns the file to which the failing trajectory was
// associated.
func (err Error) FileName() string { return err.filename }

// Format returns the format of the file associated to the error.
func (err Error) Format() string { return "Amber crd" }

// Critical returns true if the error is critical, false otherwise.
func (err Error) Critical() bool { return err.critical }

const (
	TrajUnIni    = "Traj object uninitialized to read"
	ReadError    = "Error reading frame"
	UnableToOpen = "Unable to open file"
	WrongFormat  = "Wrong format in the trajectory file or frame"
	EOF          = "EOF"
)

// lastFrameError implements backmap.LastFrameError.
type lastFrameError struct {
	deco     []string
	fileName string
}

// lastFrameError does nothing
func (E lastFrameError) NormalLastFrameTermination() {}

func (E lastFrameError) FileName() string { return E.fileName }

func (E lastFrameError) Error() string { return "EOF" }

func (E lastFrameError) Critical() bool { return false }

func (E lastFrameError) Format() string { return "Amber crd" }

func (E lastFrameError) Decorate(deco string) []string {
	//Even though this method does not use a pointer as a receiver, and tries to alter the receiver,
	//it should work, since E.deco is a slice, and hence a pointer itself.
	if deco != "" {
		E.deco = append(E.deco, deco)
	}
	return E.deco
}

func newlastFrameError(filename string, caller string) *lastFrameError {
	e := new(lastFrameError)
	e.fileName = filename
	e.deco = []string{caller}
	return e
}
