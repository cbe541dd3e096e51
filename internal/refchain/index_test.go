package refchain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestBuildIndexLatestEventWins(t *testing.T) {
	idx, diags := BuildIndex([]ReferenceChangeEvent{
		{OriginalItemID: "A", NewReferenceID: "B", ChangeDate: day("2024-01-01"), Source: SourceUser},
		{OriginalItemID: "A", NewReferenceID: "C", ChangeDate: day("2024-02-01"), Source: SourceSupplier},
		{OriginalItemID: "A", NewReferenceID: "D", ChangeDate: day("2024-01-15"), Source: SourceUser},
	})
	require.Empty(t, diags)
	require.Equal(t, "C", idx.Resolve("A"))

	ev, ok := idx.ActiveChangeFor("A")
	require.True(t, ok)
	require.Equal(t, "C", ev.NewReferenceID)
	require.Equal(t, SourceSupplier, ev.Source)
}

func TestBuildIndexSameDateLaterEntryWins(t *testing.T) {
	idx, _ := BuildIndex([]ReferenceChangeEvent{
		{OriginalItemID: "A", NewReferenceID: "B", ChangeDate: day("2024-01-01")},
		{OriginalItemID: "A", NewReferenceID: "C", ChangeDate: day("2024-01-01")},
	})
	require.Equal(t, "C", idx.Resolve("A"))
}

func TestResolveNeverReturnsSelf(t *testing.T) {
	idx, diags := BuildIndex([]ReferenceChangeEvent{
		{OriginalItemID: "A", NewReferenceID: "A", ChangeDate: day("2024-03-01")},
		{OriginalItemID: "A", NewReferenceID: "B", ChangeDate: day("2024-01-01")},
	})
	require.Len(t, diags, 1)
	require.Equal(t, ErrSelfReference.Error(), diags[0].Reason)
	// The self-reference is dropped, so the older edge stays active.
	require.Equal(t, "B", idx.Resolve("A"))

	_, ok := idx.ActiveChangeFor("Z")
	require.False(t, ok)
	require.Equal(t, "Z", idx.Resolve("Z"))
}

func TestBuildIndexDropsEmptyIDs(t *testing.T) {
	idx, diags := BuildIndex([]ReferenceChangeEvent{
		{OriginalItemID: "", NewReferenceID: "B", ChangeDate: day("2024-01-01")},
		{OriginalItemID: "A", NewReferenceID: "", ChangeDate: day("2024-01-01")},
	})
	require.Len(t, diags, 2)
	require.Zero(t, idx.Len())
}

func TestBuildIndexToleratesCycles(t *testing.T) {
	idx, diags := BuildIndex([]ReferenceChangeEvent{
		{OriginalItemID: "A", NewReferenceID: "B", ChangeDate: day("2024-01-01")},
		{OriginalItemID: "B", NewReferenceID: "A", ChangeDate: day("2024-01-02")},
	})
	require.Empty(t, diags)
	// Single-hop resolution terminates regardless of the cycle.
	require.Equal(t, "B", idx.Resolve("A"))
	require.Equal(t, "A", idx.Resolve("B"))
}

func TestIncomingReferences(t *testing.T) {
	idx, _ := BuildIndex([]ReferenceChangeEvent{
		{OriginalItemID: "OLD-2", NewReferenceID: "NEW", ChangeDate: day("2024-01-01")},
		{OriginalItemID: "OLD-1", NewReferenceID: "NEW", ChangeDate: day("2024-01-02")},
		{OriginalItemID: "OLD-3", NewReferenceID: "OTHER", ChangeDate: day("2024-01-03")},
	})
	require.Equal(t, []string{"OLD-1", "OLD-2"}, idx.IncomingReferences("NEW"))
	require.Empty(t, idx.IncomingReferences("OLD-1"))
}
