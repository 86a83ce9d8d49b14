/*
 * sander.go, part of backmap.
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

package refine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rmera/backmap"
	"github.com/rmera/backmap/v3"
)

// Sander refines rebuilt frames by running tleap to parametrize the
// structure and then a short sander (or pmemd.cuda) minimization. It
// implements backmap.Refiner.
type Sander struct {
	settings *Settings
	wrkdir   string
	tleap    string //resolved program paths, set by Available
	engine   string
	mpirun   string
}

// NewSander returns a refiner with the given settings (nil for the
// defaults) running in wrkdir (empty for the current directory).
func NewSander(settings *Settings, wrkdir string) *Sander {
	if settings == nil {
		settings = DefaultSettings()
	}
	return &Sander{settings: settings, wrkdir: wrkdir}
}

// engineName returns the minimization program required by the settings.
func (S *Sander) engineName() string {
	if S.settings.CUDA {
		return "pmemd.cuda"
	}
	if S.settings.MPI > 1 {
		return "sander.MPI"
	}
	return "sander"
}

// lookProgram finds a program in the PATH or under $AMBERHOME/bin.
func lookProgram(name string) (string, error) {
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	if home := os.Getenv("AMBERHOME"); home != "" {
		p := filepath.Join(home, "bin", name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", Error{message: fmt.Sprintf("program %s not found in PATH or $AMBERHOME/bin", name), critical: true}
}

// Available verifies the settings and locates every external program the
// run will need. It must succeed before Refine is called.
func (S *Sander) Available() error {
	if err := S.settings.Validate(); err != nil {
		return errDecorate(err, "Available")
	}
	var err error
	if S.tleap, err = lookProgram("tleap"); err != nil {
		return errDecorate(err, "Available")
	}
	if S.engine, err = lookProgram(S.engineName()); err != nil {
		return errDecorate(err, "Available")
	}
	if S.settings.MPI > 1 {
		if S.mpirun, err = lookProgram("mpirun"); err != nil {
			return errDecorate(err, "Available")
		}
	}
	return nil
}

// Refine writes the frame out as PDB, parametrizes it with tleap (adding
// an explicit bond command per crosslink), minimizes it and returns the
// coordinates from the restart file. The context bounds both external
// calls.
func (S *Sander) Refine(ctx context.Context, name string, mol backmap.Atomer, coord *v3.Matrix, bonds []backmap.BondSpec) (*v3.Matrix, error) {
	if S.engine == "" {
		return nil, Error{message: "Refine called before a successful Available", critical: true}
	}
	pdb := S.path(name + ".pdb")
	f, err := os.Create(pdb)
	if err != nil {
		return nil, Error{message: err.Error(), filename: pdb, critical: true}
	}
	err = backmap.PDBWrite(f, mol, coord)
	f.Close()
	if err != nil {
		return nil, errDecorate(err, "Refine")
	}
	if err := S.runLeap(ctx, name, bonds); err != nil {
		return nil, errDecorate(err, "Refine")
	}
	if err := S.runMin(ctx, name); err != nil {
		return nil, errDecorate(err, "Refine")
	}
	refined, err := ReadRst(S.path(name+".rst7"), mol.Len())
	if err != nil {
		return nil, errDecorate(err, "Refine")
	}
	return refined, nil
}

func (S *Sander) path(name string) string {
	if S.wrkdir == "" {
		return name
	}
	return filepath.Join(S.wrkdir, name)
}

// runLeap builds the tleap input and runs it, producing name.prmtop and
// name.inpcrd.
func (S *Sander) runLeap(ctx context.Context, name string, bonds []backmap.BondSpec) error {
	var b strings.Builder
	fmt.Fprintf(&b, "source %s\n", S.settings.ForceField)
	fmt.Fprintf(&b, "x = loadpdb %s.pdb\n", name)
	for _, bd := range bonds {
		fmt.Fprintf(&b, "bond x.%d.%s x.%d.%s\n", bd.Res1, bd.Atom1, bd.Res2, bd.Atom2)
	}
	fmt.Fprintf(&b, "saveamberparm x %s.prmtop %s.inpcrd\n", name, name)
	fmt.Fprintf(&b, "quit\n")
	leapin := S.path(name + "_leap.in")
	if err := os.WriteFile(leapin, []byte(b.String()), 0644); err != nil {
		return Error{message: err.Error(), filename: leapin, critical: true}
	}
	cmd := exec.CommandContext(ctx, S.tleap, "-f", name+"_leap.in")
	cmd.Dir = S.wrkdir
	if out, err := cmd.CombinedOutput(); err != nil {
		return Error{message: fmt.Sprintf("tleap failed: %v: %s", err, tail(out)), filename: leapin, critical: true}
	}
	//tleap can exit 0 and still not write the parameters
	if _, err := os.Stat(S.path(name + ".prmtop")); err != nil {
		return Error{message: "tleap did not produce the topology, check the structure and force field", filename: leapin, critical: true}
	}
	return nil
}

// runMin writes the minimization input and runs the engine.
func (S *Sander) runMin(ctx context.Context, name string) error {
	igb := 0
	if S.settings.GBSA {
		igb = 1
	}
	min := fmt.Sprintf("minimization of a rebuilt structure\n&cntrl\nimin=1, maxcyc=%d, ncyc=%d,\ncut=%.1f, igb=%d, ntb=0,\n&end\n",
		S.settings.MaxCyc, S.settings.NCyc, S.settings.Cutoff, igb)
	minin := S.path(name + "_min.in")
	if err := os.WriteFile(minin, []byte(min), 0644); err != nil {
		return Error{message: err.Error(), filename: minin, critical: true}
	}
	args := []string{"-O", "-i", name + "_min.in", "-o", name + ".out",
		"-p", name + ".prmtop", "-c", name + ".inpcrd", "-r", name + ".rst7"}
	var cmd *exec.Cmd
	if S.settings.MPI > 1 {
		margs := append([]string{"-np", strconv.Itoa(S.settings.MPI), S.engine}, args...)
		cmd = exec.CommandContext(ctx, S.mpirun, margs...)
	} else {
		cmd = exec.CommandContext(ctx, S.engine, args...)
	}
	cmd.Dir = S.wrkdir
	if out, err := cmd.CombinedOutput(); err != nil {
		return Error{message: fmt.Sprintf("%s failed: %v: %s", S.engineName(), err, tail(out)), filename: minin, critical: true}
	}
	return nil
}

func tail(out []byte) string {
	const keep = 400
	if len(out) <= keep {
		return string(out)
	}
	return "..." + string(out[len(out)-keep:])
}

// ReadRst reads the coordinates of an Amber text restart file, checking
// that it holds natoms atoms.
func ReadRst(filename string, natoms int) (*v3.Matrix, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, Error{message: err.Error(), filename: filename, critical: true}
	}
	lines := strings.Split(string(raw), "\n")
	if len(lines) < 3 {
		return nil, Error{message: "truncated restart file", filename: filename, critical: true}
	}
	//line 2 holds the atom count, possibly followed by the time
	fields := strings.Fields(lines[1])
	if len(fields) == 0 {
		return nil, Error{message: "empty atom count line", filename: filename, critical: true}
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, Error{message: fmt.Sprintf("bad atom count line: %v", err), filename: filename, critical: true}
	}
	if n != natoms {
		return nil, Error{message: fmt.Sprintf("restart holds %d atoms, expected %d", n, natoms), filename: filename, critical: true}
	}
	data := make([]float64, 0, 3*natoms)
	for _, line := range lines[2:] {
		for _, field := range strings.Fields(line) {
			if len(data) == 3*natoms {
				break //velocities or box, not needed
			}
			f, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, Error{message: fmt.Sprintf("bad coordinate %q: %v", field, err), filename: filename, critical: true}
			}
			data = append(data, f)
		}
	}
	if len(data) < 3*natoms {
		return nil, Error{message: "not enough coordinates in restart file", filename: filename, critical: true}
	}
	m, err := v3.NewMatrix(data)
	if err != nil {
		return nil, Error{message: err.Error(), filename: filename, critical: true}
	}
	return m, nil
}

// errDecorate asserts that the error implements backmap.Error and
// decorates it with the caller's name before returning it.
func errDecorate(err error, caller string) error {
	err2 := err.(backmap.Error)
	err2.Decorate(caller)
	return err2
}
