// Package ictiobus is the root of the grammar-compiler core: Compile takes a
// Grammar description (internal/ictiobus/grammarir.Grammar) and produces a
// CompileResult, mirroring the shape of the teacher's own top-level
// ProcessFishiMd entry point (internal/ictiobus/fishi.go) — one exported
// pipeline function that wires the lower packages together and returns
// either a finished artifact or a CompileError, never both.
package ictiobus

import (
	"context"

	"github.com/dekarrin/ictiobus/internal/ictiobus/artifact"
	"github.com/dekarrin/ictiobus/internal/ictiobus/grammarir"
	"github.com/dekarrin/ictiobus/internal/ictiobus/icterrors"
	"github.com/dekarrin/ictiobus/internal/ictiobus/lexgen"
	"github.com/dekarrin/ictiobus/internal/ictiobus/parsegen"
	"github.com/dekarrin/ictiobus/internal/ictiobus/parsetable"
	"github.com/dekarrin/ictiobus/internal/ictiobus/prepare"
	"github.com/dekarrin/ictiobus/internal/ictiobus/syntax"
)

// CompileOptions configures a single Compile call. It carries no file paths
// or config-file format of its own (spec.md §1: the only config is the
// injected Grammar description) — just the two ambient knobs spec.md §1's
// expansion names, a trace sink and a cancellation context, plus the
// UseLALR table-construction switch.
type CompileOptions struct {
	// TraceSink, if non-nil, receives one line per pipeline stage as it
	// starts, the same role the teacher's parse/lr.go notifyTrace callback
	// plays for its LR driver. Never required for correctness.
	TraceSink func(string)

	// Context is checked between pipeline stages; a cancelled context
	// aborts the compile early with a KindCancelled CompileError instead of
	// finishing the remaining stages. A nil Context is treated as
	// context.Background().
	Context context.Context

	// UseLALR selects parsegen.BuildLALR's merge-compacted table over
	// parsegen.Build's uncompacted canonical LR(1) table. Defaults to false
	// (full LR(1)), matching spec.md §4.6/§4.7 treating state merging as an
	// optional, separate pass over an already-correct table.
	UseLALR bool
}

// CompileResult is the core's sole output shape (spec.md §1's
// "Out of scope" paragraph: "their only interface with the core is the
// CompileResult artifact"). Code is the serialized lex+parse table blob an
// external runtime loads to scan and parse; Error is the zero-value
// icterrors.CompileError on success.
type CompileResult struct {
	Code  []byte
	Error icterrors.CompileError
}

func (o CompileOptions) trace(msg string) {
	if o.TraceSink != nil {
		o.TraceSink(msg)
	}
}

func (o CompileOptions) ctx() context.Context {
	if o.Context != nil {
		return o.Context
	}
	return context.Background()
}

// buildParseTable dispatches to the LALR-compacted or full canonical LR(1)
// construction per opts.UseLALR.
func buildParseTable(syn syntax.Grammar, g grammarir.Grammar, opts CompileOptions) (*parsetable.ParseTable, icterrors.CompileError) {
	if opts.UseLALR {
		return parsegen.BuildLALR(syn, g.Ubiquitous, g.Conflicts)
	}
	return parsegen.Build(syn, g.Ubiquitous, g.Conflicts)
}

func (o CompileOptions) cancelled() *icterrors.CompileError {
	select {
	case <-o.ctx().Done():
		err := icterrors.New(icterrors.KindCancelled, "compile cancelled: %v", o.ctx().Err())
		return &err
	default:
		return nil
	}
}

// Compile runs the full pipeline spec.md §2 names: split/expand/flatten the
// grammar description into lexical and structural halves (prepare.Prepare),
// build the lex table (lexgen.Build) and the LR parse table (parsegen.Build
// or parsegen.BuildLALR), then encode both into a single deterministic byte
// stream (artifact.Encode). It is a pure transformation — no stage performs
// I/O, and the same Grammar with the same options always yields
// byte-identical Code (spec.md §5).
func Compile(g grammarir.Grammar, opts CompileOptions) CompileResult {
	if err := opts.cancelled(); err != nil {
		return CompileResult{Error: *err}
	}

	opts.trace("preparing grammar: splitting lexical/structural rules, expanding repeats")
	lex, syn, cerr := prepare.Prepare(g)
	if !cerr.None() {
		return CompileResult{Error: cerr}
	}

	if err := opts.cancelled(); err != nil {
		return CompileResult{Error: *err}
	}

	opts.trace("building lex table")
	lt, cerr := lexgen.Build(lex)
	if !cerr.None() {
		return CompileResult{Error: cerr}
	}

	if err := opts.cancelled(); err != nil {
		return CompileResult{Error: *err}
	}

	opts.trace("building parse table")
	pTable, cerr := buildParseTable(syn, g, opts)
	if !cerr.None() {
		return CompileResult{Error: cerr}
	}

	if err := opts.cancelled(); err != nil {
		return CompileResult{Error: *err}
	}

	opts.trace("encoding artifact")
	code, cerr := artifact.Encode(lt, pTable)
	if !cerr.None() {
		return CompileResult{Error: cerr}
	}

	return CompileResult{Code: code}
}
