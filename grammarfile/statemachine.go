package grammarfile

import (
	"fmt"

	"github.com/aledsdavies/gramforge/dfa"
	"github.com/aledsdavies/gramforge/lalr"
	"github.com/aledsdavies/gramforge/model"
	"github.com/aledsdavies/gramforge/wire"
)

// State-machine kinds stored in StateMachine rows (spec §6: "Known kinds:
// DFA-on-char ... LR(1), GLR(1)").
const (
	machineKindDFA = 0
	machineKindLR  = 1
)

func writeEntityHandle(w *wire.Writer, h model.EntityHandle) error {
	if err := w.U8(uint8(h.Kind)); err != nil {
		return err
	}
	return w.U32(uint32(h.Index))
}

func readEntityHandle(r *wire.Reader) (model.EntityHandle, error) {
	kind, err := r.U8()
	if err != nil {
		return model.EntityHandle{}, err
	}
	idx, err := r.U32()
	if err != nil {
		return model.EntityHandle{}, err
	}
	return model.EntityHandle{Kind: model.TableKind(kind), Index: int(idx)}, nil
}

// encodeDFABlob serializes a DFA table per spec §6's DFA blob layout
// (simplified to a fixed-width single-accept-per-state encoding, since this
// builder's dfa.Table already resolves accept conflicts at build time).
func encodeDFABlob(t *dfa.Table) ([]byte, error) {
	w := wire.NewWriter()
	if err := w.U32(uint32(len(t.States))); err != nil {
		return nil, err
	}
	edgeCount := 0
	for _, st := range t.States {
		edgeCount += len(st.Edges)
	}
	if err := w.U32(uint32(edgeCount)); err != nil {
		return nil, err
	}

	offset := uint32(0)
	for _, st := range t.States {
		if err := w.U32(offset); err != nil {
			return nil, err
		}
		offset += uint32(len(st.Edges))
	}
	if err := w.U32(offset); err != nil { // trailing sentinel firstEdge[stateCount]
		return nil, err
	}

	for _, st := range t.States {
		for _, e := range st.Edges {
			if err := w.U16(e.KeyFrom); err != nil {
				return nil, err
			}
			if err := w.U16(e.KeyTo); err != nil {
				return nil, err
			}
			if err := w.U32(uint32(e.Target)); err != nil {
				return nil, err
			}
		}
	}

	for _, st := range t.States {
		if err := writeEntityHandle(w, st.Accept); err != nil {
			return nil, err
		}
		if err := w.U32(uint32(st.Default)); err != nil {
			return nil, err
		}
	}

	return w.Bytes(), nil
}

func decodeDFABlob(data []byte) (*dfa.Table, error) {
	r := wire.NewReader(data)
	stateCount, err := r.U32()
	if err != nil {
		return nil, err
	}
	edgeCount, err := r.U32()
	if err != nil {
		return nil, err
	}

	firstEdge := make([]uint32, stateCount+1)
	for i := range firstEdge {
		v, err := r.U32()
		if err != nil {
			return nil, err
		}
		firstEdge[i] = v
	}

	type rawEdge struct {
		from, to uint16
		target   uint32
	}
	edges := make([]rawEdge, edgeCount)
	for i := range edges {
		from, err := r.U16()
		if err != nil {
			return nil, err
		}
		to, err := r.U16()
		if err != nil {
			return nil, err
		}
		target, err := r.U32()
		if err != nil {
			return nil, err
		}
		edges[i] = rawEdge{from, to, target}
	}

	states := make([]dfa.State, stateCount)
	for i := range states {
		lo, hi := firstEdge[i], firstEdge[i+1]
		if hi < lo || int(hi) > len(edges) {
			return nil, fmt.Errorf("grammarfile: DFA state %d has invalid edge range [%d,%d)", i, lo, hi)
		}
		for _, e := range edges[lo:hi] {
			states[i].Edges = append(states[i].Edges, dfa.Edge{KeyFrom: e.from, KeyTo: e.to, Target: int(e.target)})
		}
	}
	for i := range states {
		accept, err := readEntityHandle(r)
		if err != nil {
			return nil, err
		}
		def, err := r.U32()
		if err != nil {
			return nil, err
		}
		states[i].Accept = accept
		states[i].Default = int(def)
	}

	return &dfa.Table{States: states}, nil
}

// encodeLRBlob serializes an LALR/GLR table per spec §6's "LR blob layout
// analogous [to the DFA blob] with actions, gotos, eofActions".
func encodeLRBlob(t *lalr.Table) ([]byte, error) {
	w := wire.NewWriter()
	glrFlag := uint8(0)
	if t.IsGLR {
		glrFlag = 1
	}
	if err := w.U8(glrFlag); err != nil {
		return nil, err
	}
	if err := w.U32(uint32(len(t.States))); err != nil {
		return nil, err
	}

	writeAction := func(a lalr.Action) error {
		if err := w.U8(uint8(a.Kind)); err != nil {
			return err
		}
		payload := uint32(0)
		switch a.Kind {
		case lalr.ActionShift:
			payload = uint32(a.Target)
		case lalr.ActionReduce:
			payload = uint32(a.Production)
		}
		return w.U32(payload)
	}

	for _, st := range t.States {
		if err := w.U16(uint16(len(st.Actions))); err != nil {
			return nil, err
		}
		for _, e := range st.Actions {
			if err := writeEntityHandle(w, e.Terminal); err != nil {
				return nil, err
			}
			if err := writeAction(e.Action); err != nil {
				return nil, err
			}
		}

		if err := w.U16(uint16(len(st.EOFActions))); err != nil {
			return nil, err
		}
		for _, a := range st.EOFActions {
			if err := writeAction(a); err != nil {
				return nil, err
			}
		}

		if err := w.U16(uint16(len(st.Gotos))); err != nil {
			return nil, err
		}
		for _, g := range st.Gotos {
			if err := writeEntityHandle(w, g.Nonterminal); err != nil {
				return nil, err
			}
			if err := w.U32(uint32(g.State)); err != nil {
				return nil, err
			}
		}
	}

	return w.Bytes(), nil
}

func decodeLRBlob(data []byte) (*lalr.Table, error) {
	r := wire.NewReader(data)
	glrFlag, err := r.U8()
	if err != nil {
		return nil, err
	}
	stateCount, err := r.U32()
	if err != nil {
		return nil, err
	}

	readAction := func(kind uint8, payload uint32) lalr.Action {
		a := lalr.Action{Kind: lalr.ActionKind(kind)}
		switch a.Kind {
		case lalr.ActionShift:
			a.Target = int(payload)
		case lalr.ActionReduce:
			a.Production = int(payload)
		}
		return a
	}

	states := make([]lalr.State, stateCount)
	for i := range states {
		actionCount, err := r.U16()
		if err != nil {
			return nil, err
		}
		for j := uint16(0); j < actionCount; j++ {
			terminal, err := readEntityHandle(r)
			if err != nil {
				return nil, err
			}
			kind, err := r.U8()
			if err != nil {
				return nil, err
			}
			payload, err := r.U32()
			if err != nil {
				return nil, err
			}
			states[i].Actions = append(states[i].Actions, lalr.ActionEntry{Terminal: terminal, Action: readAction(kind, payload)})
		}

		eofCount, err := r.U16()
		if err != nil {
			return nil, err
		}
		for j := uint16(0); j < eofCount; j++ {
			kind, err := r.U8()
			if err != nil {
				return nil, err
			}
			payload, err := r.U32()
			if err != nil {
				return nil, err
			}
			states[i].EOFActions = append(states[i].EOFActions, readAction(kind, payload))
		}

		gotoCount, err := r.U16()
		if err != nil {
			return nil, err
		}
		for j := uint16(0); j < gotoCount; j++ {
			nt, err := readEntityHandle(r)
			if err != nil {
				return nil, err
			}
			state, err := r.U32()
			if err != nil {
				return nil, err
			}
			states[i].Gotos = append(states[i].Gotos, lalr.GotoEntry{Nonterminal: nt, State: int(state)})
		}
	}

	return &lalr.Table{States: states, IsGLR: glrFlag != 0}, nil
}
