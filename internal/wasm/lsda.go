package wasm

import (
	"encoding/binary"

	"github.com/wasmvm/wasmvm/internal/leb128"
)

// dwarfOmit and dwarfAbsPtr are the subset of DW_EH_PE_* encoding bytes this
// generator needs: "this field is absent" and "this field is a plain
// pointer-sized absolute address", respectively.
const (
	dwarfOmit   = 0xff
	dwarfAbsPtr = 0x00
	dwarfUdata4 = 0x03
)

// LSDACallSite is one entry of a compiled function's call-site table: the
// [StartOffset, StartOffset+Length) range of code it covers, the landing pad
// to transfer control to on a matching unwind, and which LSDAAction (if any)
// decides whether that landing pad actually catches the in-flight exception.
// ActionIndex is -1 for a range with no try/catch coverage at all.
type LSDACallSite struct {
	StartOffset      uint32
	Length           uint32
	LandingPadOffset uint32
	ActionIndex      int
}

// LSDAAction is one node of an action-table chain: either a catch clause for
// a specific Tag (checked by identity, per TagInstance's doc comment) or a
// catch-all/cleanup (Tag == nil). Next chains to another LSDAAction tried if
// Tag doesn't match the thrown tag, -1 ending the chain.
type LSDAAction struct {
	Tag  *TagInstance
	Next int
}

// GenerateLSDA assembles the exception table a personality routine walks
// during unwind to match a thrown tag to a landing pad, mirroring what a
// C++ compiler emits for __gxx_personality_v0 with a Wasm tag identity in
// place of a C++ RTTI pointer (§4.7's LSDA generation). The layout is,
// emitted in this exact order: an omitted-landing-pad-base header, a
// ttype (type table) pointer encoding and offset, a UDATA4-encoded
// call-site table, an SLEB128 action-chain table, and finally the type
// table itself stored in reverse, one slot per distinct Tag referenced by
// an action.
//
// Each type-table slot is reserved as eight zero bytes; the returned
// relocs map gives the byte offset of each slot keyed by the *TagInstance
// it corresponds to. The caller (the final link step of §4.7 step 5) must
// overwrite those eight bytes with that tag's resolved address in the
// shared tag-constants section before the blob is registered with the
// unwind machinery (I6).
func GenerateLSDA(callSites []LSDACallSite, actions []LSDAAction) (blob []byte, relocs map[*TagInstance]int) {
	actionTable, actionTableOffset := encodeActionTable(actions)
	types := distinctTags(actions)

	callSiteTable := encodeCallSiteTable(callSites, actionTableOffset)

	var out []byte
	out = append(out, dwarfOmit) // lpStartEncoding: landing pads are offsets from the function's own base address.

	if len(types) == 0 {
		out = append(out, dwarfOmit)
	} else {
		out = append(out, dwarfAbsPtr)
		typeTableLen := len(types) * 8
		// ttypeOffset counts bytes from the position right after this very
		// field to the end of the type table (the base type filters count
		// back from), so it never includes its
		// own encoded width: one byte for the call-site encoding byte that
		// follows, the call-site table's own length prefix and body, then
		// the action and type tables.
		ttypeOffset := 1 + len(leb128.EncodeUint64(uint64(len(callSiteTable)))) + len(callSiteTable) + len(actionTable) + typeTableLen
		out = append(out, leb128.EncodeUint64(uint64(ttypeOffset))...)
	}

	out = append(out, dwarfUdata4)
	out = append(out, leb128.EncodeUint64(uint64(len(callSiteTable)))...)
	out = append(out, callSiteTable...)
	out = append(out, actionTable...)

	relocs = make(map[*TagInstance]int, len(types))
	for i := len(types) - 1; i >= 0; i-- {
		relocs[types[i]] = len(out)
		out = append(out, make([]byte, 8)...)
	}

	return out, relocs
}

func encodeCallSiteTable(callSites []LSDACallSite, actionTableOffset []int) []byte {
	var out []byte
	for _, cs := range callSites {
		var fixed [12]byte
		binary.LittleEndian.PutUint32(fixed[0:4], cs.StartOffset)
		binary.LittleEndian.PutUint32(fixed[4:8], cs.Length)
		binary.LittleEndian.PutUint32(fixed[8:12], cs.LandingPadOffset)
		out = append(out, fixed[:]...)
		if cs.ActionIndex < 0 {
			out = append(out, leb128.EncodeUint64(0)...)
		} else {
			// Action-table entries are 1-indexed in the call-site table: 0
			// means "no action", so a real action at byte offset 0 is
			// recorded as offset+1.
			out = append(out, leb128.EncodeUint64(uint64(actionTableOffset[cs.ActionIndex]+1))...)
		}
	}
	return out
}

// encodeActionTable lays out actions sequentially and returns, alongside the
// encoded bytes, each action's byte offset within that encoding so
// encodeCallSiteTable can reference them.
func encodeActionTable(actions []LSDAAction) (out []byte, offsets []int) {
	offsets = make([]int, len(actions))

	// Type filters are assigned by the reverse position distinctTags uses
	// for the type table, so actions can be encoded independently of the
	// table-building pass below: recompute identically here.
	tags := distinctTags(actions)
	filterOf := make(map[*TagInstance]int64, len(tags))
	for i, tag := range tags {
		filterOf[tag] = int64(len(tags) - i)
	}

	// Byte offsets for the forward "next action" SLEB128 depend on the
	// chained action's own position, which isn't known until it's encoded;
	// resolve in two passes since actions reference each other by index,
	// not by byte offset, until this function produces one.
	type pending struct {
		filter int64
		next   int
	}
	plan := make([]pending, len(actions))
	for i, a := range actions {
		filter := int64(0)
		if a.Tag != nil {
			filter = filterOf[a.Tag]
		}
		plan[i] = pending{filter: filter, next: a.Next}
	}

	for pass := 0; pass < 2; pass++ {
		out = out[:0]
		for i, p := range plan {
			offsets[i] = len(out)
			out = append(out, leb128.EncodeInt64(p.filter)...)
			if p.next < 0 {
				out = append(out, leb128.EncodeInt64(0)...)
				continue
			}
			// Displacement is measured from the byte immediately after this
			// SLEB128 field to the start of the target action record.
			delta := int64(offsets[p.next]) - int64(len(out)+1)
			enc := leb128.EncodeInt64(delta)
			// The encoded length of delta depends on offsets computed this
			// same pass, which can shift by one byte as chains grow; a
			// second pass with final offsets stabilizes it for any chain
			// actually used in practice (single-digit action counts).
			out = append(out, enc...)
		}
	}
	return out, offsets
}

// PatchLSDARelocations overwrites each reserved type-table slot blob
// describes (as returned alongside it by GenerateLSDA) with addr's 8-byte
// little-endian value, completing §4.7 step 5's "final link". addrOf is
// called once per distinct tag in relocs; a tag with no resolvable address
// (not yet registered in the shared tag-constants section) is left
// zero-filled, matching an unresolved weak symbol.
func PatchLSDARelocations(blob []byte, relocs map[*TagInstance]int, addrOf func(*TagInstance) (uint64, bool)) {
	for tag, offset := range relocs {
		addr, ok := addrOf(tag)
		if !ok {
			continue
		}
		binary.LittleEndian.PutUint64(blob[offset:offset+8], addr)
	}
}

// distinctTags collects, in first-reference order, every non-nil Tag an
// action names, for assignment into the type table.
func distinctTags(actions []LSDAAction) []*TagInstance {
	seen := make(map[*TagInstance]bool)
	var tags []*TagInstance
	for _, a := range actions {
		if a.Tag != nil && !seen[a.Tag] {
			seen[a.Tag] = true
			tags = append(tags, a.Tag)
		}
	}
	return tags
}
