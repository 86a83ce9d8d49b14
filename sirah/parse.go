/*
 * parse.go, part of backmap.
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
	"fmt"
	"strconv"
	"strings"

	"github.com/rmera/scu"
)

//LoadFile reads a residue-map file into the database. The format is one
//keyword per line:
//
//	residue CYS [out CYS]
//	copy  N   GN
//	copy  C   GC  prev
//	place CA  N C O  1.52  70.0  180.0
//	first [out NCYS]
//	  place H1 N CA C 1.01 60.0 60.0
//	end
//	last [out CCYS]
//	  place OXT C CA N 1.25 60.0 180.0
//	end
//	bridge SG CYS SG bond SG SG alt CYX
//	print N CA C O SG
//	endresidue
//
//	alias HIS HIE
//
//Lines starting with # and blank lines are ignored. A residue block may
//also contain the flags "chop" (the residue ends a fragment and the next
//one starts a new, separate fragment) and "nomap" (the type is known but
//deliberately not rebuilt). A "copy" line defaults to taking the bead
//from the residue itself; "prev" or "next" take it from the linked
//neighbor. Angles are in degrees, lengths in Angstroms. The caller must
//call Compile on the database after loading all files.
func LoadFile(db *DB, filename string) error {
	f, err := scu.NewMustReadFile(filename)
	if err != nil {
		return fmt.Errorf("sirah: %s: %w", filename, err)
	}
	defer f.Close()
	var cur *Entry
	var variant *[]Instruction //First or Last of cur, while inside a block
	nline := 0
	fail := func(format string, a ...interface{}) error {
		msg := fmt.Sprintf(format, a...)
		return fmt.Errorf("sirah: %s, line %d: %s", filename, nline, msg)
	}
	for line := f.Next(); line != "EOF"; line = f.Next() {
		nline++
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fi := strings.Fields(line)
		key := strings.ToLower(fi[0])
		if cur == nil {
			switch key {
			case "residue":
				if len(fi) < 2 {
					return fail("residue line needs a type name")
				}
				cur = &Entry{Name: fi[1]}
				if len(fi) == 4 && strings.ToLower(fi[2]) == "out" {
					cur.OutName = fi[3]
				}
			case "alias":
				if len(fi) < 3 {
					return fail("alias line needs source and new type names")
				}
				var outname string
				if len(fi) == 5 && strings.ToLower(fi[3]) == "out" {
					outname = fi[4]
				}
				err := db.Derive(fi[1], fi[2], func(e *Entry) {
					if outname != "" {
						e.OutName = outname
					} else {
						e.OutName = fi[2]
					}
				})
				if err != nil {
					return fail("%v", err)
				}
			default:
				return fail("keyword %q outside a residue block", fi[0])
			}
			continue
		}
		//inside a residue block
		switch key {
		case "out":
			if len(fi) < 2 {
				return fail("out line needs a name")
			}
			cur.OutName = fi[1]
		case "copy":
			if len(fi) < 3 {
				return fail("copy line needs atom and source bead names")
			}
			in := Instruction{Name: fi[1], Kind: Copy, Source: fi[2], Boundary: Self}
			if len(fi) > 3 {
				switch strings.ToLower(fi[3]) {
				case "prev":
					in.Boundary = Prev
				case "next":
					in.Boundary = Next
				default:
					return fail("copy boundary must be prev or next, got %q", fi[3])
				}
			}
			appendInstruction(cur, variant, in)
		case "place":
			if len(fi) != 8 {
				return fail("place line needs atom, 3 anchors, length, angle and dihedral")
			}
			in := Instruction{Name: fi[1], Kind: Place, Anchors: [3]string{fi[2], fi[3], fi[4]}}
			var err error
			for i, dst := range []*float64{&in.Length, &in.Angle, &in.Dihedral} {
				*dst, err = strconv.ParseFloat(fi[5+i], 64)
				if err != nil {
					return fail("bad number %q: %v", fi[5+i], err)
				}
			}
			appendInstruction(cur, variant, in)
		case "first":
			if variant != nil {
				return fail("variant blocks cannot nest")
			}
			variant = &cur.First
			if len(fi) == 3 && strings.ToLower(fi[1]) == "out" {
				cur.FirstOut = fi[2]
			}
		case "last":
			if variant != nil {
				return fail("variant blocks cannot nest")
			}
			variant = &cur.Last
			if len(fi) == 3 && strings.ToLower(fi[1]) == "out" {
				cur.LastOut = fi[2]
			}
		case "end":
			if variant == nil {
				return fail("end outside a first/last block")
			}
			variant = nil
		case "print":
			cur.Print = append(cur.Print, fi[1:]...)
		case "chop":
			cur.Chop = true
		case "nomap":
			cur.NoMap = true
		case "bridge":
			k, r, err := parseBridge(fi)
			if err != nil {
				return fail("%v", err)
			}
			cur.AddBridge(k, r)
		case "endresidue":
			if variant != nil {
				return fail("endresidue inside a first/last block")
			}
			db.Register(cur)
			cur = nil
		default:
			return fail("unknown keyword %q", fi[0])
		}
	}
	if cur != nil {
		return fmt.Errorf("sirah: %s: unterminated residue block %s", filename, cur.Name)
	}
	return nil
}

func appendInstruction(cur *Entry, variant *[]Instruction, in Instruction) {
	if variant != nil {
		*variant = append(*variant, in)
	} else {
		cur.Build = append(cur.Build, in)
	}
}

//parseBridge reads
//
//	bridge <localAtom> <neighborType> <neighborAtom> bond <local> <neighbor> [alt <entry>] [wrap]
func parseBridge(fi []string) (BridgeKey, BridgeRule, error) {
	var k BridgeKey
	var r BridgeRule
	if len(fi) < 7 || strings.ToLower(fi[4]) != "bond" {
		return k, r, fmt.Errorf("malformed bridge line")
	}
	k = BridgeKey{LocalAtom: fi[1], NeighborType: fi[2], NeighborAtom: fi[3]}
	r = BridgeRule{BondLocal: fi[5], BondNeighbor: fi[6]}
	rest := fi[7:]
	for len(rest) > 0 {
		switch strings.ToLower(rest[0]) {
		case "alt":
			if len(rest) < 2 {
				return k, r, fmt.Errorf("bridge alt needs an entry name")
			}
			r.AltEntry = rest[1]
			rest = rest[2:]
		case "wrap":
			r.WrapAround = true
			rest = rest[1:]
		default:
			return k, r, fmt.Errorf("unknown bridge option %q", rest[0])
		}
	}
	return k, r, nil
}
