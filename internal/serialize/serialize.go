// Package serialize implements the JSON boundary contract of §6: decoding
// an IR document into the tagged-union model of internal/ir and encoding it
// back, preserving unknown fields round-trip and never inventing a
// destination or dropping a type the passes didn't touch. Grounded on the
// teacher's model.go, whose Node/Edge types are plain structs serialized
// with stdlib encoding/json and no third-party schema library.
package serialize

import (
	"encoding/json"

	"tacopt/internal/ferrors"
	"tacopt/internal/ir"
)

type wireParam struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

type wireFunction struct {
	Name   string            `json:"name"`
	Args   []wireParam       `json:"args,omitempty"`
	Type   json.RawMessage   `json:"type,omitempty"`
	Instrs []json.RawMessage `json:"instrs"`
}

type wireProgram struct {
	Functions []wireFunction `json:"functions"`
}

// Decode parses a JSON IR document into a Program.
func Decode(data []byte) (*ir.Program, error) {
	var wp wireProgram
	if err := json.Unmarshal(data, &wp); err != nil {
		return nil, ferrors.Malformed("", "program is not a valid JSON document: %v", err)
	}

	prog := &ir.Program{}
	for _, wfn := range wp.Functions {
		fn := &ir.Function{Name: wfn.Name}

		for _, p := range wfn.Args {
			typ, err := unmarshalType(wfn.Name, p.Type)
			if err != nil {
				return nil, err
			}
			fn.Args = append(fn.Args, ir.Param{Name: p.Name, Type: typ})
		}

		if len(wfn.Type) > 0 {
			typ, err := unmarshalType(wfn.Name, wfn.Type)
			if err != nil {
				return nil, err
			}
			fn.Type = typ
		}

		for _, raw := range wfn.Instrs {
			instr, err := decodeInstr(wfn.Name, raw)
			if err != nil {
				return nil, err
			}
			fn.Instrs = append(fn.Instrs, instr)
		}

		prog.Functions = append(prog.Functions, fn)
	}
	return prog, nil
}

// Encode renders a Program back to the §6 JSON document shape.
func Encode(prog *ir.Program) ([]byte, error) {
	fns := make([]any, 0, len(prog.Functions))
	for _, fn := range prog.Functions {
		wfn := map[string]any{"name": fn.Name}

		if len(fn.Args) > 0 {
			args := make([]any, 0, len(fn.Args))
			for _, p := range fn.Args {
				t, err := typeToValue(p.Type)
				if err != nil {
					return nil, err
				}
				args = append(args, map[string]any{"name": p.Name, "type": t})
			}
			wfn["args"] = args
		}

		if fn.Type != nil {
			t, err := typeToValue(fn.Type)
			if err != nil {
				return nil, err
			}
			wfn["type"] = t
		}

		instrs := make([]any, 0, len(fn.Instrs))
		for _, instr := range fn.Instrs {
			wi, err := encodeInstr(instr)
			if err != nil {
				return nil, err
			}
			instrs = append(instrs, wi)
		}
		wfn["instrs"] = instrs

		fns = append(fns, wfn)
	}
	return json.MarshalIndent(map[string]any{"functions": fns}, "", "  ")
}

// ---- type encoding: a primitive name, or a {"ptr": T} record ----

func typeToValue(t *ir.Type) (any, error) {
	if t == nil {
		return nil, nil
	}
	if t.IsPtr() {
		inner, err := typeToValue(t.Ptr)
		if err != nil {
			return nil, err
		}
		return map[string]any{"ptr": inner}, nil
	}
	return t.Prim, nil
}

func unmarshalType(fn string, raw json.RawMessage) (*ir.Type, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var prim string
	if err := json.Unmarshal(raw, &prim); err == nil {
		return ir.PrimType(prim), nil
	}
	var rec struct {
		Ptr json.RawMessage `json:"ptr"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil || len(rec.Ptr) == 0 {
		return nil, ferrors.Malformed(fn, "type is neither a primitive name nor a {\"ptr\": T} record: %s", raw)
	}
	inner, err := unmarshalType(fn, rec.Ptr)
	if err != nil {
		return nil, err
	}
	return ir.PtrType(inner), nil
}

// ---- instruction decode/encode ----

func decodeInstr(fn string, raw json.RawMessage) (*ir.Instr, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, ferrors.Malformed(fn, "instruction is not a JSON object: %v", err)
	}

	if labelRaw, ok := all["label"]; ok {
		var label string
		if err := json.Unmarshal(labelRaw, &label); err != nil {
			return nil, ferrors.Malformed(fn, "\"label\" is not a string: %v", err)
		}
		instr := &ir.Instr{Kind: ir.KindLabel, Label: label}
		instr.Extra = extraFields(all, "label")
		return instr, nil
	}

	opRaw, ok := all["op"]
	if !ok {
		return nil, ferrors.Malformed(fn, "instruction has neither \"label\" nor \"op\"")
	}
	var opName string
	if err := json.Unmarshal(opRaw, &opName); err != nil {
		return nil, ferrors.Malformed(fn, "\"op\" is not a string: %v", err)
	}
	op := ir.Op(opName)
	if !ir.ValidOp(op) {
		return nil, ferrors.UnknownOpcode(fn, opName)
	}

	instr := &ir.Instr{Kind: ir.KindValue, Op: op}
	known := []string{"op"}

	if destRaw, ok := all["dest"]; ok {
		var dest string
		if err := json.Unmarshal(destRaw, &dest); err != nil {
			return nil, ferrors.Malformed(fn, "\"dest\" is not a string: %v", err)
		}
		instr.HasDest = true
		instr.Dest = dest
		known = append(known, "dest")
	} else {
		instr.Kind = ir.KindEffect
	}

	if typeRaw, ok := all["type"]; ok {
		typ, err := unmarshalType(fn, typeRaw)
		if err != nil {
			return nil, err
		}
		instr.Type = typ
		known = append(known, "type")
	}

	if argsRaw, ok := all["args"]; ok {
		if err := json.Unmarshal(argsRaw, &instr.Args); err != nil {
			return nil, ferrors.Malformed(fn, "\"args\" is not an array of strings: %v", err)
		}
		known = append(known, "args")
	}
	if op == ir.OpNot && len(instr.Args) != 1 {
		return nil, ferrors.Malformed(fn, "not requires exactly one argument, got %d", len(instr.Args))
	}
	if labelsRaw, ok := all["labels"]; ok {
		if err := json.Unmarshal(labelsRaw, &instr.Labels); err != nil {
			return nil, ferrors.Malformed(fn, "\"labels\" is not an array of strings: %v", err)
		}
		known = append(known, "labels")
	}
	if funcsRaw, ok := all["funcs"]; ok {
		if err := json.Unmarshal(funcsRaw, &instr.Funcs); err != nil {
			return nil, ferrors.Malformed(fn, "\"funcs\" is not an array of strings: %v", err)
		}
		known = append(known, "funcs")
	}

	if valueRaw, ok := all["value"]; ok {
		if op != ir.OpConst {
			return nil, ferrors.Malformed(fn, "\"value\" is only valid on a const instruction, got op %q", opName)
		}
		var v any
		if err := json.Unmarshal(valueRaw, &v); err != nil {
			return nil, ferrors.Malformed(fn, "\"value\" is malformed: %v", err)
		}
		switch vv := v.(type) {
		case bool:
			instr.Value = vv
		case float64:
			asInt := int64(vv)
			if float64(asInt) != vv {
				return nil, ferrors.Malformed(fn, "const value %v is not an integer", vv)
			}
			instr.Value = asInt
		default:
			return nil, ferrors.Malformed(fn, "const value must be a bool or integer, got %T", v)
		}
		instr.HasValue = true
		known = append(known, "value")
	} else if op == ir.OpConst {
		return nil, ferrors.Malformed(fn, "const instruction missing \"value\"")
	}

	instr.Extra = extraFields(all, known...)
	return instr, nil
}

func extraFields(all map[string]json.RawMessage, known ...string) map[string]any {
	skip := make(map[string]bool, len(known))
	for _, k := range known {
		skip[k] = true
	}
	var extra map[string]any
	for k, raw := range all {
		if skip[k] {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		if extra == nil {
			extra = map[string]any{}
		}
		extra[k] = v
	}
	return extra
}

func encodeInstr(instr *ir.Instr) (map[string]any, error) {
	out := map[string]any{}
	for k, v := range instr.Extra {
		out[k] = v
	}

	if instr.Kind == ir.KindLabel {
		out["label"] = instr.Label
		return out, nil
	}

	out["op"] = string(instr.Op)
	if instr.HasDest {
		out["dest"] = instr.Dest
	}
	if instr.Type != nil {
		t, err := typeToValue(instr.Type)
		if err != nil {
			return nil, err
		}
		out["type"] = t
	}
	if len(instr.Args) > 0 {
		out["args"] = instr.Args
	}
	if len(instr.Labels) > 0 {
		out["labels"] = instr.Labels
	}
	if len(instr.Funcs) > 0 {
		out["funcs"] = instr.Funcs
	}
	if instr.HasValue {
		out["value"] = instr.Value
	}
	return out, nil
}
