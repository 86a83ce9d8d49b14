/*
 * doc.go, part of backmap.
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

/*
Package backmap rebuilds all-atom molecular structures from
coarse-grained ones, frame by frame.

The reconstruction is driven by a per-residue-type template database
(package sirah): each template either copies a bead coordinate or places
a new atom from internal coordinates (bond length, angle, dihedral)
relative to three already-built anchors. This package provides the
residue graph built from the coarse-grained topology (sequential
neighbor links, chain breaks, crosslinks such as disulfides and
circular-chain closures), the per-residue placement engine, and the
frame pipeline that walks a trajectory, rebuilds every residue, has each
frame relaxed by an external refiner (package refine wraps AmberTools)
and writes a multi-model PDB.

A minimal run looks like:

	db := sirah.NewDB()
	sirah.LoadFile(db, "protein.map")
	db.Compile()
	mol, _ := backmap.PDBFileRead("cg.pdb")
	graph, _ := backmap.NewGraph(mol, db)
	pipe := backmap.NewPipeline(graph, nil, nil)
	sum, _, err := pipe.RunFile(context.Background(), mol)
*/
package backmap
