package reconcile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAggregateCountsDistinctItems(t *testing.T) {
	classified := []ClassifiedResponse{
		{ItemID: "X3", SupplierID: 1, ResponseDate: day("2024-02-01"), Kind: KindMatched},
		{ItemID: "X4", SupplierID: 1, ResponseDate: day("2024-02-01"), Kind: KindPromotion},
		{ItemID: "EX", SupplierID: 1, ResponseDate: day("2024-02-01"), Kind: KindExtra},
		{ItemID: "EX", SupplierID: 1, ResponseDate: day("2024-02-01"), Kind: KindExtra},
		{ItemID: "M1", SupplierID: 1, ResponseDate: day("2024-02-01"), Kind: KindMissing},
		{ItemID: "M1", SupplierID: 1, ResponseDate: day("2024-02-01"), Kind: KindMissing},
		{ItemID: "R1", SupplierID: 1, ResponseDate: day("2024-02-01"), Kind: KindReplacement, ReplacementTargetID: "T1"},
	}
	summaries := Aggregate(classified, map[int64]string{1: "Acme"})
	require.Len(t, summaries, 1)

	s := summaries[0]
	require.Equal(t, "Acme", s.SupplierName)
	require.Equal(t, []string{"X3", "X4"}, s.MatchedItems)
	require.Equal(t, []string{"EX"}, s.ExtraItems)
	require.Equal(t, []string{"M1"}, s.MissingItems)
	require.Equal(t, []string{"R1"}, s.ReplacementItems)
	require.Equal(t, 1, s.ExtraCount)
	require.Equal(t, 1, s.MissingCount)
	require.Equal(t, 1, s.ReplacementCount)
	require.Equal(t, 4, s.TotalCount)
}

func TestAggregateOrdering(t *testing.T) {
	classified := []ClassifiedResponse{
		{ItemID: "A", SupplierID: 2, ResponseDate: day("2024-02-01"), Kind: KindMatched},
		{ItemID: "A", SupplierID: 1, ResponseDate: day("2024-02-02"), Kind: KindMatched},
		{ItemID: "A", SupplierID: 3, ResponseDate: day("2024-02-01"), Kind: KindMatched},
	}
	names := map[int64]string{1: "Zenith", 2: "Borealis", 3: "Acme"}
	summaries := Aggregate(classified, names)
	require.Len(t, summaries, 3)

	// Most recent date first, then supplier name ascending.
	require.Equal(t, "Zenith", summaries[0].SupplierName)
	require.Equal(t, "Acme", summaries[1].SupplierName)
	require.Equal(t, "Borealis", summaries[2].SupplierName)
}

func TestAggregateSplitsSupplierDates(t *testing.T) {
	classified := []ClassifiedResponse{
		{ItemID: "A", SupplierID: 1, ResponseDate: day("2024-02-01"), Kind: KindMatched},
		{ItemID: "B", SupplierID: 1, ResponseDate: day("2024-02-05"), Kind: KindMatched},
	}
	summaries := Aggregate(classified, nil)
	require.Len(t, summaries, 2)
	require.Equal(t, day("2024-02-05"), summaries[0].Date)
	require.Equal(t, day("2024-02-01"), summaries[1].Date)
}
