package wasm

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateLSDA_NoActions_OmitsTypeTable(t *testing.T) {
	callSites := []LSDACallSite{
		{StartOffset: 0, Length: 10, LandingPadOffset: 0, ActionIndex: -1},
	}
	blob, relocs := GenerateLSDA(callSites, nil)
	require.Empty(t, relocs)
	require.Equal(t, byte(dwarfOmit), blob[0]) // lpStartEncoding
	require.Equal(t, byte(dwarfOmit), blob[1]) // ttypeEncoding: no tags referenced
}

func TestGenerateLSDA_SingleCatch_RegistersOneReloc(t *testing.T) {
	tag := NewTagInstance(TagType{Payload: FunctionType{Params: []ValueType{ValueTypeI32}}}, OwnerInline, 1)
	callSites := []LSDACallSite{
		{StartOffset: 0, Length: 20, LandingPadOffset: 20, ActionIndex: 0},
	}
	actions := []LSDAAction{{Tag: tag, Next: -1}}

	blob, relocs := GenerateLSDA(callSites, actions)
	require.Len(t, relocs, 1)
	offset, ok := relocs[tag]
	require.True(t, ok)
	require.Equal(t, byte(dwarfAbsPtr), blob[1]) // ttypeEncoding: one tag referenced

	// The reserved slot starts zero-filled until patched.
	require.Equal(t, uint64(0), binary.LittleEndian.Uint64(blob[offset:offset+8]))

	PatchLSDARelocations(blob, relocs, func(tg *TagInstance) (uint64, bool) {
		require.Same(t, tag, tg)
		return 0xdeadbeef, true
	})
	require.Equal(t, uint64(0xdeadbeef), binary.LittleEndian.Uint64(blob[offset:offset+8]))
}

func TestGenerateLSDA_UnresolvedRelocation_StaysZero(t *testing.T) {
	tag := NewTagInstance(TagType{}, OwnerInline, 1)
	actions := []LSDAAction{{Tag: tag, Next: -1}}
	blob, relocs := GenerateLSDA(nil, actions)

	PatchLSDARelocations(blob, relocs, func(*TagInstance) (uint64, bool) { return 0, false })
	offset := relocs[tag]
	require.Equal(t, uint64(0), binary.LittleEndian.Uint64(blob[offset:offset+8]))
}

func TestGenerateLSDA_ChainedActions_DistinctTagsEachGetASlot(t *testing.T) {
	tagA := NewTagInstance(TagType{}, OwnerInline, 1)
	tagB := NewTagInstance(TagType{}, OwnerInline, 2)
	actions := []LSDAAction{
		{Tag: tagA, Next: 1},
		{Tag: tagB, Next: -1},
	}
	callSites := []LSDACallSite{
		{StartOffset: 0, Length: 5, LandingPadOffset: 5, ActionIndex: 0},
	}

	_, relocs := GenerateLSDA(callSites, actions)
	require.Len(t, relocs, 2)
	require.Contains(t, relocs, tagA)
	require.Contains(t, relocs, tagB)
	require.NotEqual(t, relocs[tagA], relocs[tagB])
}

func TestGenerateLSDA_CleanupOnlyAction_TypeFilterZero(t *testing.T) {
	actions := []LSDAAction{{Tag: nil, Next: -1}}
	blob, relocs := GenerateLSDA(nil, actions)
	require.Empty(t, relocs) // no Tag referenced, so no type-table slot
	require.Equal(t, byte(dwarfOmit), blob[1])
}

// lsdaArtifact wraps testArtifact to additionally implement LSDAProvider,
// exercising Instantiate's step-2 registration of a function's LSDA blob
// (I6) end to end.
type lsdaArtifact struct {
	*testArtifact
	blobs map[uint32][]byte
}

func (a *lsdaArtifact) LSDA(localIndex uint32) ([]byte, bool) {
	b, ok := a.blobs[localIndex]
	return b, ok
}

func TestInstantiate_RegistersLSDAForProvidingArtifact(t *testing.T) {
	blob, _ := GenerateLSDA(nil, []LSDAAction{{Tag: nil, Next: -1}})
	art := &lsdaArtifact{testArtifact: newTestArtifact(addFunc()), blobs: map[uint32][]byte{0: blob}}

	store := NewStore()
	mod := NewModule(addModuleInfo("math"), art)
	inst, err := Instantiate(store, mod, DefaultTunables(), MapResolver{})
	require.NoError(t, err)

	exp, ok := inst.Exports()["add"]
	require.True(t, ok)
	fn, err := store.GetFunction(exp.Func)
	require.NoError(t, err)

	got, ok := store.FrameInfo().LookupLSDA(fn)
	require.True(t, ok)
	require.Equal(t, blob, got)
}
