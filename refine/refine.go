/*
 * refine.go, part of backmap.
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

//Package refine wraps the AmberTools programs (tleap and sander, or their
//pmemd.cuda / sander.MPI variants) used to relax the geometry of a
//rebuilt frame. The programs run as external processes on files written
//in a scratch directory; the refined coordinates are read back from the
//restart file.
package refine

import (
	"fmt"
)

// Settings holds the minimization parameters, mirroring the knobs the
// external programs expose.
type Settings struct {
	ForceField string  //a leaprc name
	GBSA       bool    //implicit solvent
	CUDA       bool    //run pmemd.cuda instead of sander
	Cutoff     float64 //nonbonded cutoff, Angstroms
	MPI        int     //sander.MPI process count, 1 means plain sander
	MaxCyc     int     //total minimization cycles
	NCyc       int     //initial steepest-descent cycles
}

// SetDefaults fills in the usual minimization parameters.
func (S *Settings) SetDefaults() {
	S.ForceField = "leaprc.protein.ff14SB"
	S.Cutoff = 12
	S.MPI = 1
	S.MaxCyc = 150
	S.NCyc = 100
}

// DefaultSettings returns a ready-to-use settings value.
func DefaultSettings() *Settings {
	S := new(Settings)
	S.SetDefaults()
	return S
}

// Validate checks the settings for consistency and applies the
// constraints of the CUDA engine: GBSA forced on, an effectively
// unbounded cutoff, and no multi-process parallelism.
func (S *Settings) Validate() error {
	if S.CUDA && S.MPI > 1 {
		return Error{message: "the CUDA engine cannot run with MPI parallelism", critical: true}
	}
	if S.MaxCyc <= 0 || S.NCyc < 0 {
		return Error{message: fmt.Sprintf("nonsensical cycle counts maxcyc=%d ncyc=%d", S.MaxCyc, S.NCyc), critical: true}
	}
	if S.CUDA {
		S.GBSA = true
		S.Cutoff = 9999
	}
	return nil
}

// Error is the general structure for refinement errors. It fulfills
// backmap.Error.
type Error struct {
	message  string
	filename string //the input file that has problems, or empty string if none.
	deco     []string
	critical bool
}

func (err Error) Error() string {
	if err.filename == "" {
		return fmt.Sprintf("refine error: %s", err.message)
	}
	return fmt.Sprintf("refine file %s error: %s", err.filename, err.message)
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

// FileName returns the file associated to the error, if any.
func (err Error) FileName() string { return err.filename }

// Critical returns true if the error is critical, false otherwise.
func (err Error) Critical() bool { return err.critical }
