package machine

import (
	"github.com/xmlsilo/xmlsilo/internal/opcode"
	"github.com/xmlsilo/xmlsilo/internal/xmlerr"
)

// DefaultStackCapacity is the operand stack size handed to opcode.NewStack
// when a caller doesn't need a tighter bound.
const DefaultStackCapacity = 64

// Eval runs ops against stack (reset first) under exec, returning the
// predicate's boolean result. Per spec §4.7: literals push, function
// opcodes pop their arity worth of arguments and push the callback's
// result, so a false Boolean can still feed not() or or(). After the loop,
// exactly one value (the predicate's result, read by truthy) must remain;
// anything else is invalid-data.
func (r *Registry) Eval(ops []opcode.Value, stack *opcode.Stack, exec *ExecData) (bool, error) {
	stack.Reset()
	for _, op := range ops {
		if op.Kind != opcode.Function {
			if err := stack.Push(op); err != nil {
				return false, err
			}
			continue
		}

		fn, ok := r.Lookup(op.FuncName)
		if !ok {
			fn, ok = r.ByID(op.Func)
		}
		if !ok {
			return false, xmlerr.NewError(xmlerr.KindNotSupported, "unknown function: "+op.FuncName, nil)
		}
		args, err := stack.PopN(fn.Arity)
		if err != nil {
			return false, err
		}
		result, err := fn.Callback(args, exec)
		if err != nil {
			return false, err
		}
		if err := stack.Push(result); err != nil {
			return false, err
		}
	}

	final, err := stack.Pop()
	if err != nil {
		return false, xmlerr.NewError(xmlerr.KindInvalidData, "predicate produced no result", err)
	}
	if stack.Len() != 0 {
		return false, xmlerr.NewError(xmlerr.KindInvalidData, "predicate stack non-empty at end of evaluation", nil)
	}
	return truthy(final), nil
}

// foldConstants implements spec §4.7 step 5: fold sub-sequences whose
// opcodes are all constant (no silo-aware function, no bound value) by
// speculatively evaluating them; a speculative failure is private (not
// surfaced) and leaves that sub-sequence untouched, per spec §7's "Within
// the VM's optimizer pass, a speculative-evaluation failure is a private
// signal that blocks the fold."
//
// This conservative version folds only a sequence that, taken as a whole,
// contains no bound-value or node-dependent opcode; it does not attempt
// folding of inner sub-expressions independently, since the "whole
// predicate is constant" case is the common one ([1='a']-style tautologies
// produced by other optimizer passes or hand-written XPaths) and partial
// folding risks silently changing evaluation order for callbacks with
// side effects on the stack.
func foldConstants(r *Registry, ops []opcode.Value) []opcode.Value {
	if !allConstant(r, ops) {
		return ops
	}
	stack := opcode.NewStack(DefaultStackCapacity)
	result, err := r.Eval(ops, stack, &ExecData{})
	if err != nil {
		return ops // speculative failure: private, retain the raw sequence
	}
	return []opcode.Value{opcode.Bool(result)}
}

// nodeDependentFuncs names every function that reads ExecData.Node,
// Position, or Total; a predicate calling any of them can't be folded
// without a real node.
var nodeDependentFuncs = map[string]bool{
	"attr": true, "attr-exists": true, "text": true, "tail": true,
	"first": true, "last": true, "position": true, "search": true,
}

func allConstant(r *Registry, ops []opcode.Value) bool {
	for _, op := range ops {
		switch op.Kind {
		case opcode.BoundText, opcode.BoundInteger:
			return false
		case opcode.Function:
			if nodeDependentFuncs[op.FuncName] {
				return false
			}
		}
	}
	return true
}
