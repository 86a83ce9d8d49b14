/*
 * main.go, part of backmap.
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

//backmap rebuilds all-atom structures from a coarse-grained structure
//and, optionally, a trajectory.
//
//	backmap -maps maps/protein.map [flags] structure.pdb [trajectory.crd]
//
//The structure is a PDB (optionally multi-model, optionally .zst
//compressed) whose CONECT records give the bead connectivity. When a
//trajectory is given, frames are taken from it instead of from the PDB
//models. Unless -nomin is given, each rebuilt frame is minimized with
//AmberTools, which must be installed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/rmera/backmap"
	"github.com/rmera/backmap/crd"
	"github.com/rmera/backmap/refine"
	"github.com/rmera/backmap/sirah"
	"github.com/rmera/scu"
)

func main() {
	maps := flag.String("maps", "", "comma-separated residue map files (required)")
	first := flag.Int("first", 0, "first frame to process")
	last := flag.Int("last", -1, "last frame to process, -1 means the last one available")
	each := flag.Int("each", 100, "process every Nth frame")
	frames := flag.String("frames", "", "comma-separated explicit frame list, overrides -first/-last/-each")
	outname := flag.String("o", "backmap", "base name for the output files")
	box := flag.Bool("box", false, "the crd trajectory carries a box line per frame")
	nomin := flag.Bool("nomin", false, "skip the AmberTools minimization")
	loadback := flag.Bool("loadback", false, "re-read the produced structure and report on it")
	dump := flag.Bool("dump", false, "dump the residue graph and exit, for debugging maps")
	cuda := flag.Bool("cuda", false, "minimize with pmemd.cuda (forces implicit solvent, no MPI)")
	gbsa := flag.Bool("gbsa", false, "minimize with implicit solvent")
	cutoff := flag.Float64("cutoff", 12, "nonbonded cutoff for the minimization, A")
	mpi := flag.Int("mpi", 1, "run sander.MPI on this many processes")
	maxcyc := flag.Int("maxcyc", 150, "total minimization cycles")
	ncyc := flag.Int("ncyc", 100, "initial steepest-descent cycles")
	ff := flag.String("ff", "leaprc.protein.ff14SB", "leaprc force field for the minimization")
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 || *maps == "" {
		fmt.Fprintf(os.Stderr, "usage: backmap -maps file[,file...] [flags] structure.pdb [trajectory.crd]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	db := sirah.NewDB()
	for _, m := range strings.Split(*maps, ",") {
		scu.QErr(sirah.LoadFile(db, m))
	}
	scu.QErr(db.Compile())

	mol, err := backmap.PDBFileRead(args[0])
	scu.QErr(err)
	graph, err := backmap.NewGraph(mol, db)
	scu.QErr(err)
	if *dump {
		fmt.Print(spew.Sdump(graph))
		return
	}

	var traj backmap.Traj = mol
	if len(args) > 1 {
		t, err := crd.New(args[1], mol.Len(), *box)
		scu.QErr(err)
		defer t.Close()
		traj = t
	}

	opts := backmap.DefaultOptions()
	opts.First = *first
	opts.Last = *last
	opts.Each = *each
	opts.OutName = *outname
	opts.DisableMin = *nomin
	opts.LoadResultBack = *loadback
	if *frames != "" {
		for _, v := range strings.Split(*frames, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			scu.QErr(err)
			opts.Frames = append(opts.Frames, n)
		}
	}

	var ref backmap.Refiner
	if !*nomin {
		set := refine.DefaultSettings()
		set.ForceField = *ff
		set.GBSA = *gbsa
		set.CUDA = *cuda
		set.Cutoff = *cutoff
		set.MPI = *mpi
		set.MaxCyc = *maxcyc
		set.NCyc = *ncyc
		ref = refine.NewSander(set, "")
	}

	pipe := backmap.NewPipeline(graph, opts, ref)
	sum, result, err := pipe.RunFile(context.Background(), traj)
	scu.QErr(err)
	log.Printf("wrote %s.pdb, %s", *outname, sum.String())
	if result != nil {
		log.Printf("read back %d atoms, %d models", result.Len(), result.NFrames())
	}
}
