/*
 * pipeline.go, part of backmap.
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
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/rmera/backmap/v3"
)

// Options configures a reconstruction run. The zero value is not usable;
// call SetDefaults first and override what you need.
type Options struct {
	First          int   //first frame to process
	Last           int   //last frame to process, -1 means up to the end
	Each           int   //process every Each-th frame
	Frames         []int //explicit frame list; takes precedence over First/Last/Each
	OutName        string
	DisableMin     bool //skip refinement even if a refiner is wired
	LoadResultBack bool //re-read the produced structure after a successful run
}

// SetDefaults fills the option set with the default values: the whole
// trajectory, every frame, output name "backmap".
func (O *Options) SetDefaults() {
	O.First = 0
	O.Last = -1
	O.Each = 1
	O.OutName = "backmap"
}

// DefaultOptions returns a ready-to-use option set.
func DefaultOptions() *Options {
	O := new(Options)
	O.SetDefaults()
	return O
}

// BondSpec declares one explicit bond between rebuilt atoms for the
// refiner, by output residue ordinal (1-based) and atom name.
type BondSpec struct {
	Res1  int
	Atom1 string
	Res2  int
	Atom2 string
}

// Refiner is the external geometry-refinement collaborator. Available
// reports whether the external tooling can run at all; Refine takes one
// rebuilt frame plus the declared crosslink bonds and returns the refined
// coordinates. The context bounds the external call; cancellation is
// treated like any other refinement failure.
type Refiner interface {
	Available() error
	Refine(ctx context.Context, name string, mol Atomer, coord *v3.Matrix, bonds []BondSpec) (*v3.Matrix, error)
}

// Pipeline drives the whole reconstruction: it walks the requested
// frames in ascending order, rebuilds every residue of the graph, has
// the result refined if a refiner is wired, and writes one model per
// frame.
type Pipeline struct {
	graph *Graph
	opts  *Options
	ref   Refiner
}

// NewPipeline assembles a pipeline. ref may be nil for a geometry-only
// run; opts may be nil for the defaults.
func NewPipeline(graph *Graph, opts *Options, ref Refiner) *Pipeline {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Pipeline{graph: graph, opts: opts, ref: ref}
}

// Run processes the trajectory and writes the models to out, which is
// closed (writing the terminal record) only on success. A refinement
// failure, or a cancelled context, aborts the whole run: no models are
// written for the remaining frames. Per-residue placement failures are
// logged, tallied in the returned summary and the residue omitted from
// that frame. The summary is a per-run copy extending the graph's
// build-time tallies; the graph itself is never written to.
func (P *Pipeline) Run(ctx context.Context, traj Traj, out *OutStream) (*Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	refining := P.ref != nil && !P.opts.DisableMin
	if refining {
		if err := P.ref.Available(); err != nil {
			return nil, NewError(fmt.Sprintf("refinement unavailable: %v", err), "Pipeline.Run")
		}
	}
	bonds := P.RefinerBonds()
	sum := P.graph.Summary.clone()
	sel, err := P.selector()
	if err != nil {
		return nil, errDecorate(err, "Pipeline.Run")
	}
	frame := v3.Zeros(traj.Len())
	for idx := 0; ; idx++ {
		wanted, more := sel(idx)
		if !more {
			break
		}
		var rerr error
		if wanted {
			rerr = traj.Next(frame)
		} else {
			rerr = traj.Next(nil)
		}
		if rerr != nil {
			if _, last := rerr.(LastFrameError); last {
				break
			}
			return nil, errDecorate(rerr, "Pipeline.Run")
		}
		if !wanted {
			continue
		}
		top, coord, kept, err := P.buildFrame(frame, sum)
		if err != nil {
			return nil, errDecorate(err, "Pipeline.Run")
		}
		if refining {
			if err := ctx.Err(); err != nil {
				return nil, NewError(fmt.Sprintf("run cancelled at frame %d: %v", idx, err), "Pipeline.Run")
			}
			name := fmt.Sprintf("%s_%d", P.opts.OutName, idx)
			refined, err := P.ref.Refine(ctx, name, top, coord, frameBonds(bonds, kept))
			if err != nil {
				return nil, NewError(fmt.Sprintf("refinement of frame %d failed: %v", idx, err), "Pipeline.Run")
			}
			coord = refined
		}
		if err := out.WModel(top, coord); err != nil {
			return nil, errDecorate(err, "Pipeline.Run")
		}
	}
	if out.Models() == 0 {
		return nil, NewError("no frames selected or present in the trajectory", "Pipeline.Run")
	}
	if err := out.Close(); err != nil {
		return nil, errDecorate(err, "Pipeline.Run")
	}
	return sum, nil
}

// RunFile is a convenience around Run: it writes to OutName.pdb and, if
// the LoadResultBack option is set, reads the produced structure back.
func (P *Pipeline) RunFile(ctx context.Context, traj Traj) (*Summary, *Molecule, error) {
	name := P.opts.OutName + ".pdb"
	out, err := NewOutFile(name)
	if err != nil {
		return nil, nil, errDecorate(err, "Pipeline.RunFile")
	}
	sum, err := P.Run(ctx, traj, out)
	if err != nil {
		return nil, nil, errDecorate(err, "Pipeline.RunFile")
	}
	if !P.opts.LoadResultBack {
		return sum, nil, nil
	}
	mol, err := PDBFileRead(name)
	if err != nil {
		return sum, nil, errDecorate(err, "Pipeline.RunFile")
	}
	return sum, mol, nil
}

// RefinerBonds translates the graph's crosslinks into explicit bond
// declarations, by graph residue ordinal (1-based). This happens once
// per run; Run retargets them to the residues actually written in each
// frame before handing them to the refiner.
func (P *Pipeline) RefinerBonds() []BondSpec {
	var bonds []BondSpec
	for _, c := range P.graph.Crosslinks {
		bonds = append(bonds, BondSpec{Res1: c.A.id + 1, Atom1: c.AtomA,
			Res2: c.B.id + 1, Atom2: c.AtomB})
	}
	return bonds
}

// frameBonds retargets the bond declarations from graph residue ordinals
// to the ordinals of the residues actually emitted for one frame, which
// drift apart whenever a residue fails placement. A bond touching a
// residue absent from the frame is dropped, with a warning.
func frameBonds(bonds []BondSpec, kept map[int]int) []BondSpec {
	ret := make([]BondSpec, 0, len(bonds))
	for _, b := range bonds {
		r1, ok1 := kept[b.Res1-1]
		r2, ok2 := kept[b.Res2-1]
		if !ok1 || !ok2 {
			log.Printf("dropping the %s-%s crosslink for this frame: residue %d or %d was not rebuilt", b.Atom1, b.Atom2, b.Res1, b.Res2)
			continue
		}
		ret = append(ret, BondSpec{Res1: r1, Atom1: b.Atom1, Res2: r2, Atom2: b.Atom2})
	}
	return ret
}

// selector returns a function telling, for each frame index, whether the
// frame is wanted and whether any further frame can be wanted at all.
func (P *Pipeline) selector() (func(int) (bool, bool), error) {
	if len(P.opts.Frames) > 0 {
		list := append([]int{}, P.opts.Frames...)
		sort.Ints(list)
		if list[0] < 0 {
			return nil, NewError(fmt.Sprintf("invalid frame index %d", list[0]), "Pipeline.selector")
		}
		want := make(map[int]bool, len(list))
		for _, v := range list {
			want[v] = true
		}
		max := list[len(list)-1]
		return func(i int) (bool, bool) {
			return want[i], i <= max
		}, nil
	}
	first, last, each := P.opts.First, P.opts.Last, P.opts.Each
	if each < 1 {
		each = 1
	}
	return func(i int) (bool, bool) {
		if last >= 0 && i > last {
			return false, false
		}
		return i >= first && (i-first)%each == 0, true
	}, nil
}

// buildFrame rebuilds every residue of the graph against one frame,
// returning the output topology, the coordinates and a map from graph
// residue id to the 1-based ordinal of the residue in the output.
// Failed residues are logged, counted in sum and left out.
func (P *Pipeline) buildFrame(frame *v3.Matrix, sum *Summary) (*Topology, *v3.Matrix, map[int]int, error) {
	top := NewTopology(nil)
	var data []float64
	kept := make(map[int]int, len(P.graph.Residues))
	for _, r := range P.graph.Residues {
		entry, ok := P.graph.db.Lookup(r.Template())
		if !ok {
			//can only happen on a database edited after the graph was built
			return nil, nil, nil, NewError(fmt.Sprintf("residue %s %d: template %s vanished from the database", r.Name, r.MolID, r.Template()), "buildFrame")
		}
		atoms, err := PlaceResidue(r, entry, frame)
		if err != nil {
			log.Printf("skipping residue for this frame: %v", err)
			sum.PlaceFailures++
			continue
		}
		kept[r.id] = len(kept) + 1
		for _, pa := range atoms {
			at := &Atom{Name: pa.Name, MolName: pa.MolName, MolID: r.MolID,
				Chain: r.Chain, Tag: r.Fragment}
			if pa.Name != "" {
				at.Symbol = pa.Name[:1]
			}
			top.AppendAtom(at)
			data = append(data, pa.Coord[0], pa.Coord[1], pa.Coord[2])
		}
	}
	if top.Len() == 0 {
		return nil, nil, nil, NewError("no residue could be rebuilt for this frame", "buildFrame")
	}
	coord, err := v3.NewMatrix(data)
	if err != nil {
		return nil, nil, nil, NewError(err.Error(), "buildFrame")
	}
	return top, coord, kept, nil
}
