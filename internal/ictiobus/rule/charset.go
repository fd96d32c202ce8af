package rule

import (
	"fmt"
	"sort"
	"strings"
)

// MaxCodePoint is the highest valid Unicode scalar value.
const MaxCodePoint = 0x10FFFF

// codepointRange is an inclusive [Lo, Hi] range of code points.
type codepointRange struct {
	Lo, Hi rune
}

// CharacterSet is the canonical representation of a set of Unicode scalar
// values. Ranges are always kept sorted, disjoint, and coalesced so that
// structural equality (including String() equality) implies set equality,
// per spec.md's CharacterSet invariant. includeAll represents the universe
// so that excluding a handful of code points from "everything" never
// requires materializing ~1.1M individual ranges.
type CharacterSet struct {
	ranges     []codepointRange
	includeAll bool
}

func (c *CharacterSet) isRule() {}

// NewCharacterSet returns an empty CharacterSet.
func NewCharacterSet() *CharacterSet {
	return &CharacterSet{}
}

// IncludeAll returns the CharacterSet that matches every code point.
func IncludeAll() *CharacterSet {
	return &CharacterSet{includeAll: true}
}

// Include adds a single code point to the set.
func (c *CharacterSet) Include(r rune) *CharacterSet {
	return c.IncludeRange(r, r)
}

// IncludeRange adds the inclusive range [lo, hi] to the set.
func (c *CharacterSet) IncludeRange(lo, hi rune) *CharacterSet {
	if c.includeAll {
		return c
	}
	c.ranges = normalize(append(c.ranges, codepointRange{Lo: lo, Hi: hi}))
	c.canonicalize()
	return c
}

// canonicalize collapses an explicit full-universe range list into the
// includeAll form, so that two sets with the same membership always have
// the same representation.
func (c *CharacterSet) canonicalize() {
	if !c.includeAll && len(c.ranges) == 1 && c.ranges[0].Lo == 0 && c.ranges[0].Hi == MaxCodePoint {
		c.ranges = nil
		c.includeAll = true
	}
}

// Exclude removes a single code point from the set.
func (c *CharacterSet) Exclude(r rune) *CharacterSet {
	if !c.includeAll {
		c.ranges = subtractRange(c.ranges, codepointRange{Lo: r, Hi: r})
		return c
	}
	// complement form: excluding from "everything" needs its own
	// complement-aware representation, so materialize the finite hole set
	// by flipping to explicit ranges over the universe minus r.
	c.ranges = subtractRange([]codepointRange{{Lo: 0, Hi: MaxCodePoint}}, codepointRange{Lo: r, Hi: r})
	c.includeAll = false
	return c
}

// Exclude2 removes the inclusive range [lo, hi] from the set.
func (c *CharacterSet) Exclude2(lo, hi rune) *CharacterSet {
	if !c.includeAll {
		c.ranges = subtractRange(c.ranges, codepointRange{Lo: lo, Hi: hi})
		return c
	}
	c.ranges = subtractRange([]codepointRange{{Lo: 0, Hi: MaxCodePoint}}, codepointRange{Lo: lo, Hi: hi})
	c.includeAll = false
	return c
}

// AddSet unions other into c (set union, `add_set`).
func (c *CharacterSet) AddSet(other *CharacterSet) *CharacterSet {
	if c.includeAll {
		return c
	}
	if other.includeAll {
		c.ranges = nil
		c.includeAll = true
		return c
	}
	c.ranges = normalize(append(append([]codepointRange{}, c.ranges...), other.ranges...))
	c.canonicalize()
	return c
}

// RemoveSet subtracts other from c (set difference, `remove_set`).
func (c *CharacterSet) RemoveSet(other *CharacterSet) *CharacterSet {
	if other.includeAll {
		c.ranges = nil
		c.includeAll = false
		return c
	}
	base := c.ranges
	if c.includeAll {
		base = []codepointRange{{Lo: 0, Hi: MaxCodePoint}}
	}
	for _, r := range other.ranges {
		base = subtractRange(base, r)
	}
	c.ranges = base
	c.includeAll = false
	return c
}

// Copy returns an independent CharacterSet with the same contents, as a
// Rule (spec.md's `copy()` yields a rule).
func (c *CharacterSet) Copy() Rule {
	cp := &CharacterSet{includeAll: c.includeAll}
	cp.ranges = append([]codepointRange{}, c.ranges...)
	return cp
}

// Ranges returns the set's canonical sorted, disjoint, coalesced ranges, as
// inclusive [lo, hi] pairs. An includeAll set reports a single range
// spanning the whole code point universe. Used by lexgen to partition the
// code point space into a finite transition alphabet.
func (c *CharacterSet) Ranges() [][2]rune {
	if c.includeAll {
		return [][2]rune{{0, MaxCodePoint}}
	}
	out := make([][2]rune, len(c.ranges))
	for i, r := range c.ranges {
		out[i] = [2]rune{r.Lo, r.Hi}
	}
	return out
}

// Contains reports whether r is a member of the set.
func (c *CharacterSet) Contains(r rune) bool {
	if c.includeAll {
		return true
	}
	for _, rg := range c.ranges {
		if r >= rg.Lo && r <= rg.Hi {
			return true
		}
		if r < rg.Lo {
			break
		}
	}
	return false
}

// Complement returns include_all().exclude-by-membership: every code point
// not in c.
func (c *CharacterSet) Complement() *CharacterSet {
	if c.includeAll {
		return NewCharacterSet()
	}
	full := []codepointRange{{Lo: 0, Hi: MaxCodePoint}}
	for _, r := range c.ranges {
		full = subtractRange(full, r)
	}
	return &CharacterSet{ranges: full}
}

func (c *CharacterSet) Equal(o any) bool {
	other, ok := o.(*CharacterSet)
	if !ok {
		var direct CharacterSet
		direct, ok = o.(CharacterSet)
		if !ok {
			return false
		}
		other = &direct
	}
	if other == nil {
		return false
	}
	if c.includeAll != other.includeAll {
		return false
	}
	if len(c.ranges) != len(other.ranges) {
		return false
	}
	for i := range c.ranges {
		if c.ranges[i] != other.ranges[i] {
			return false
		}
	}
	return true
}

func (c *CharacterSet) String() string {
	if c.includeAll {
		return "CharacterSet(ALL)"
	}
	parts := make([]string, len(c.ranges))
	for i, r := range c.ranges {
		if r.Lo == r.Hi {
			parts[i] = fmt.Sprintf("%U", r.Lo)
		} else {
			parts[i] = fmt.Sprintf("%U-%U", r.Lo, r.Hi)
		}
	}
	return "CharacterSet(" + strings.Join(parts, ",") + ")"
}

func (c *CharacterSet) Accept(v Visitor) Rule { return v.VisitCharacterSet(c) }

// normalize sorts ranges and coalesces overlapping/adjacent ones, giving the
// canonical sorted-disjoint-range form the CharacterSet invariant requires.
func normalize(ranges []codepointRange) []codepointRange {
	if len(ranges) == 0 {
		return nil
	}
	sorted := append([]codepointRange{}, ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Lo < sorted[j].Lo })

	out := []codepointRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if r.Lo <= last.Hi+1 {
			if r.Hi > last.Hi {
				last.Hi = r.Hi
			}
		} else {
			out = append(out, r)
		}
	}
	return out
}

// subtractRange removes hole from ranges, splitting any range that only
// partially overlaps it.
func subtractRange(ranges []codepointRange, hole codepointRange) []codepointRange {
	var out []codepointRange
	for _, r := range ranges {
		if hole.Hi < r.Lo || hole.Lo > r.Hi {
			out = append(out, r)
			continue
		}
		if hole.Lo > r.Lo {
			out = append(out, codepointRange{Lo: r.Lo, Hi: hole.Lo - 1})
		}
		if hole.Hi < r.Hi {
			out = append(out, codepointRange{Lo: hole.Hi + 1, Hi: r.Hi})
		}
	}
	return out
}
