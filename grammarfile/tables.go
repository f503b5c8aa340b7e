package grammarfile

import (
	"fmt"
	"sort"

	"github.com/aledsdavies/gramforge/model"
	"github.com/aledsdavies/gramforge/wire"
)

// Table presence bits for the tables-stream header (spec §4.5: "a bitmap of
// which tables are present, so an empty Group table costs nothing").
const (
	bitGrammar          = 1 << 0
	bitTokenSymbol       = 1 << 1
	bitGroup             = 1 << 2
	bitGroupNesting      = 1 << 3
	bitNonterminal       = 1 << 4
	bitProduction        = 1 << 5
	bitProductionMember  = 1 << 6
	bitStateMachine      = 1 << 7
	bitSpecialName       = 1 << 8
)

// encodeTables serializes every row table of img.Grammar plus the two
// state-machine blobs into the tables stream body. Coded entity-handle
// indices are all written at one fixed width wide enough for the largest of
// the token symbol, nonterminal, production, and group tables (spec §4.5's
// "narrowest width that can address every row").
func encodeTables(img *Image, strings *stringHeapWriter, blobs *blobHeapWriter) ([]byte, error) {
	g := img.Grammar
	entityWidth := maxInt(
		wire.TableIndexWidth(len(g.TokenSymbols)),
		wire.TableIndexWidth(len(g.Nonterminals)),
		wire.TableIndexWidth(len(g.Productions)),
		wire.TableIndexWidth(len(g.Groups)),
	)
	stringWidth := wire.StringHeapIndexWidth(len(strings.bytes()))

	present := uint32(bitGrammar | bitTokenSymbol | bitNonterminal | bitProduction | bitProductionMember | bitStateMachine)
	if len(g.Groups) > 0 {
		present |= bitGroup | bitGroupNesting
	}
	if len(g.SpecialNames) > 0 {
		present |= bitSpecialName
	}

	w := wire.NewWriter()
	if err := w.U32(present); err != nil {
		return nil, err
	}
	if err := w.U8(uint8(entityWidth)); err != nil {
		return nil, err
	}
	if err := w.U8(uint8(stringWidth)); err != nil {
		return nil, err
	}

	writeHandle := func(h model.EntityHandle) error {
		if err := w.U8(uint8(h.Kind)); err != nil {
			return err
		}
		return w.UintN(uint32(h.Index), entityWidth)
	}
	writeStringRef := func(s string) error {
		off, err := strings.add(s)
		if err != nil {
			return err
		}
		return w.UintN(off, stringWidth)
	}

	// Grammar row.
	if err := writeStringRef(g.Name); err != nil {
		return nil, err
	}
	if err := writeHandle(g.Start); err != nil {
		return nil, err
	}
	if err := w.U8(0); err != nil { // flags, reserved
		return nil, err
	}

	// TokenSymbol rows.
	if err := w.U32(uint32(len(g.TokenSymbols))); err != nil {
		return nil, err
	}
	for _, ts := range g.TokenSymbols {
		if err := writeStringRef(ts.Name); err != nil {
			return nil, err
		}
		if err := w.U8(uint8(ts.Attr)); err != nil {
			return nil, err
		}
	}

	// Nonterminal rows.
	if err := w.U32(uint32(len(g.Nonterminals))); err != nil {
		return nil, err
	}
	for _, nt := range g.Nonterminals {
		if err := writeStringRef(nt.Name); err != nil {
			return nil, err
		}
		if err := w.UintN(uint32(nt.FirstProduction), entityWidth); err != nil {
			return nil, err
		}
		if err := w.U16(uint16(nt.ProductionCount)); err != nil {
			return nil, err
		}
	}

	// Production rows, plus the flattened ProductionMember table they index
	// into via (firstMember, memberCount).
	if err := w.U32(uint32(len(g.Productions))); err != nil {
		return nil, err
	}
	var allMembers []model.EntityHandle
	for _, p := range g.Productions {
		if err := writeHandle(p.Head); err != nil {
			return nil, err
		}
		if err := w.U32(uint32(len(allMembers) + 1)); err != nil { // 1-based firstMember, 0 = none
			return nil, err
		}
		if err := w.U16(uint16(len(p.Members))); err != nil {
			return nil, err
		}
		if err := writeHandle(p.Precedence); err != nil {
			return nil, err
		}
		allMembers = append(allMembers, p.Members...)
	}
	if err := w.U32(uint32(len(allMembers))); err != nil {
		return nil, err
	}
	for _, m := range allMembers {
		if err := writeHandle(m); err != nil {
			return nil, err
		}
	}

	// Group and GroupNesting rows, only when present.
	if present&bitGroup != 0 {
		if err := w.U32(uint32(len(g.Groups))); err != nil {
			return nil, err
		}
		var allNesting []model.EntityHandle
		for _, grp := range g.Groups {
			if err := writeHandle(grp.Container); err != nil {
				return nil, err
			}
			if err := writeHandle(grp.Start); err != nil {
				return nil, err
			}
			if err := writeHandle(grp.End); err != nil {
				return nil, err
			}
			if err := w.U8(uint8(grp.Flags)); err != nil {
				return nil, err
			}
			if err := w.U32(uint32(len(allNesting) + 1)); err != nil {
				return nil, err
			}
			if err := w.U16(uint16(len(grp.Nesting))); err != nil {
				return nil, err
			}
			allNesting = append(allNesting, grp.Nesting...)
		}
		if err := w.U32(uint32(len(allNesting))); err != nil {
			return nil, err
		}
		for _, n := range allNesting {
			if err := writeHandle(n); err != nil {
				return nil, err
			}
		}
	}

	// StateMachine rows: exactly two, the DFA and the LR table, each stored
	// as a blob-heap entry (spec §6).
	if err := w.U32(2); err != nil {
		return nil, err
	}
	dfaBlob, err := encodeDFABlob(img.DFA)
	if err != nil {
		return nil, fmt.Errorf("grammarfile: encoding DFA blob: %w", err)
	}
	dfaOff, err := blobs.add(dfaBlob)
	if err != nil {
		return nil, err
	}
	lrBlob, err := encodeLRBlob(img.LR)
	if err != nil {
		return nil, fmt.Errorf("grammarfile: encoding LR blob: %w", err)
	}
	lrOff, err := blobs.add(lrBlob)
	if err != nil {
		return nil, err
	}
	blobWidth := wire.StringHeapIndexWidth(len(blobs.bytes()))
	if err := w.U8(uint8(blobWidth)); err != nil {
		return nil, err
	}
	if err := w.U8(machineKindDFA); err != nil {
		return nil, err
	}
	if err := w.U8(0); err != nil { // flavor, reserved
		return nil, err
	}
	if err := w.UintN(dfaOff, blobWidth); err != nil {
		return nil, err
	}
	if err := w.U8(machineKindLR); err != nil {
		return nil, err
	}
	if err := w.U8(0); err != nil {
		return nil, err
	}
	if err := w.UintN(lrOff, blobWidth); err != nil {
		return nil, err
	}

	// SpecialName rows, only when present. Sorted by name for determinism.
	if present&bitSpecialName != 0 {
		names := make([]string, 0, len(g.SpecialNames))
		for name := range g.SpecialNames {
			names = append(names, name)
		}
		sort.Strings(names)
		if err := w.U32(uint32(len(names))); err != nil {
			return nil, err
		}
		for _, name := range names {
			if err := writeStringRef(name); err != nil {
				return nil, err
			}
			if err := writeHandle(g.SpecialNames[name]); err != nil {
				return nil, err
			}
		}
	}

	return w.Bytes(), nil
}

func decodeTables(data []byte, strings *stringHeapReader, blobs *blobHeapReader) (*Image, error) {
	r := wire.NewReader(data)
	present, err := r.U32()
	if err != nil {
		return nil, err
	}
	entityWidthRaw, err := r.U8()
	if err != nil {
		return nil, err
	}
	entityWidth := int(entityWidthRaw)
	stringWidthRaw, err := r.U8()
	if err != nil {
		return nil, err
	}
	stringWidth := int(stringWidthRaw)

	readHandle := func() (model.EntityHandle, error) {
		kind, err := r.U8()
		if err != nil {
			return model.EntityHandle{}, err
		}
		idx, err := r.UintN(entityWidth)
		if err != nil {
			return model.EntityHandle{}, err
		}
		return model.EntityHandle{Kind: model.TableKind(kind), Index: int(idx)}, nil
	}
	readStringRef := func() (string, error) {
		off, err := r.UintN(stringWidth)
		if err != nil {
			return "", err
		}
		return strings.at(off)
	}

	if present&bitGrammar == 0 {
		return nil, fmt.Errorf("grammarfile: tables stream missing the Grammar row")
	}
	name, err := readStringRef()
	if err != nil {
		return nil, err
	}
	start, err := readHandle()
	if err != nil {
		return nil, err
	}
	if _, err := r.U8(); err != nil { // flags
		return nil, err
	}
	g := model.NewGrammar(name)
	g.Start = start

	tsCount, err := r.U32()
	if err != nil {
		return nil, err
	}
	g.TokenSymbols = make([]model.TokenSymbol, tsCount)
	for i := range g.TokenSymbols {
		n, err := readStringRef()
		if err != nil {
			return nil, err
		}
		attr, err := r.U8()
		if err != nil {
			return nil, err
		}
		g.TokenSymbols[i] = model.TokenSymbol{Index: i + 1, Name: n, Attr: model.TokenSymbolAttr(attr)}
	}

	ntCount, err := r.U32()
	if err != nil {
		return nil, err
	}
	g.Nonterminals = make([]model.Nonterminal, ntCount)
	for i := range g.Nonterminals {
		n, err := readStringRef()
		if err != nil {
			return nil, err
		}
		firstProd, err := r.UintN(entityWidth)
		if err != nil {
			return nil, err
		}
		prodCount, err := r.U16()
		if err != nil {
			return nil, err
		}
		g.Nonterminals[i] = model.Nonterminal{Index: i + 1, Name: n, FirstProduction: int(firstProd), ProductionCount: int(prodCount)}
	}

	prodCount, err := r.U32()
	if err != nil {
		return nil, err
	}
	type prodHeader struct {
		head              model.EntityHandle
		firstMember, count uint32
		precedence        model.EntityHandle
	}
	headers := make([]prodHeader, prodCount)
	for i := range headers {
		head, err := readHandle()
		if err != nil {
			return nil, err
		}
		firstMember, err := r.U32()
		if err != nil {
			return nil, err
		}
		count, err := r.U16()
		if err != nil {
			return nil, err
		}
		precedence, err := readHandle()
		if err != nil {
			return nil, err
		}
		headers[i] = prodHeader{head, firstMember, uint32(count), precedence}
	}
	memberCount, err := r.U32()
	if err != nil {
		return nil, err
	}
	allMembers := make([]model.EntityHandle, memberCount)
	for i := range allMembers {
		h, err := readHandle()
		if err != nil {
			return nil, err
		}
		allMembers[i] = h
	}
	g.Productions = make([]model.Production, prodCount)
	for i, h := range headers {
		var members []model.EntityHandle
		if h.count > 0 {
			lo := h.firstMember - 1
			hi := lo + h.count
			if int(hi) > len(allMembers) {
				return nil, fmt.Errorf("grammarfile: production #%d member range out of bounds", i+1)
			}
			members = append(members, allMembers[lo:hi]...)
		}
		g.Productions[i] = model.Production{Index: i + 1, Head: h.head, Members: members, Precedence: h.precedence}
	}

	if present&bitGroup != 0 {
		groupCount, err := r.U32()
		if err != nil {
			return nil, err
		}
		type groupHeader struct {
			container, start, end model.EntityHandle
			flags                  uint8
			firstNesting, count    uint32
		}
		gheaders := make([]groupHeader, groupCount)
		for i := range gheaders {
			container, err := readHandle()
			if err != nil {
				return nil, err
			}
			start, err := readHandle()
			if err != nil {
				return nil, err
			}
			end, err := readHandle()
			if err != nil {
				return nil, err
			}
			flags, err := r.U8()
			if err != nil {
				return nil, err
			}
			firstNesting, err := r.U32()
			if err != nil {
				return nil, err
			}
			count, err := r.U16()
			if err != nil {
				return nil, err
			}
			gheaders[i] = groupHeader{container, start, end, flags, firstNesting, uint32(count)}
		}
		nestingCount, err := r.U32()
		if err != nil {
			return nil, err
		}
		allNesting := make([]model.EntityHandle, nestingCount)
		for i := range allNesting {
			h, err := readHandle()
			if err != nil {
				return nil, err
			}
			allNesting[i] = h
		}
		g.Groups = make([]model.Group, groupCount)
		for i, h := range gheaders {
			var nesting []model.EntityHandle
			if h.count > 0 {
				lo := h.firstNesting - 1
				hi := lo + h.count
				if int(hi) > len(allNesting) {
					return nil, fmt.Errorf("grammarfile: group #%d nesting range out of bounds", i+1)
				}
				nesting = append(nesting, allNesting[lo:hi]...)
			}
			g.Groups[i] = model.Group{
				Index: i + 1, Container: h.container, Start: h.start, End: h.end,
				Flags: model.GroupFlags(h.flags), Nesting: nesting,
			}
		}
	}

	machineCount, err := r.U32()
	if err != nil {
		return nil, err
	}
	if machineCount != 2 {
		return nil, fmt.Errorf("grammarfile: expected exactly 2 state machine rows, got %d", machineCount)
	}
	blobWidthRaw, err := r.U8()
	if err != nil {
		return nil, err
	}
	blobWidth := int(blobWidthRaw)

	var dfaBlobOff, lrBlobOff uint32
	var sawDFA, sawLR bool
	for i := 0; i < 2; i++ {
		kind, err := r.U8()
		if err != nil {
			return nil, err
		}
		if _, err := r.U8(); err != nil { // flavor
			return nil, err
		}
		off, err := r.UintN(blobWidth)
		if err != nil {
			return nil, err
		}
		switch kind {
		case machineKindDFA:
			dfaBlobOff, sawDFA = off, true
		case machineKindLR:
			lrBlobOff, sawLR = off, true
		default:
			return nil, fmt.Errorf("grammarfile: unknown state machine kind %d", kind)
		}
	}
	if !sawDFA || !sawLR {
		return nil, fmt.Errorf("grammarfile: missing DFA or LR state machine row")
	}
	dfaBytes, err := blobs.at(dfaBlobOff)
	if err != nil {
		return nil, err
	}
	dfaTable, err := decodeDFABlob(dfaBytes)
	if err != nil {
		return nil, fmt.Errorf("grammarfile: decoding DFA blob: %w", err)
	}
	lrBytes, err := blobs.at(lrBlobOff)
	if err != nil {
		return nil, err
	}
	lrTable, err := decodeLRBlob(lrBytes)
	if err != nil {
		return nil, fmt.Errorf("grammarfile: decoding LR blob: %w", err)
	}

	g.SpecialNames = make(map[string]model.EntityHandle)
	if present&bitSpecialName != 0 {
		nameCount, err := r.U32()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < nameCount; i++ {
			n, err := readStringRef()
			if err != nil {
				return nil, err
			}
			h, err := readHandle()
			if err != nil {
				return nil, err
			}
			g.SpecialNames[n] = h
		}
	}

	return &Image{Grammar: g, DFA: dfaTable, LR: lrTable}, nil
}

func maxInt(vs ...int) int {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

