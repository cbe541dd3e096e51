package inquiry

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/sourcing/internal/compare"
	"github.com/odyssey-erp/sourcing/internal/reconcile"
	"github.com/odyssey-erp/sourcing/internal/refchain"
	"github.com/odyssey-erp/sourcing/internal/shared"
)

type memoryInquiryRepo struct {
	snapshots map[int64]Snapshot
	events    []refchain.ReferenceChangeEvent
	appendErr error
}

func (r *memoryInquiryRepo) FetchSnapshot(_ context.Context, inquiryID int64) (Snapshot, error) {
	snap, ok := r.snapshots[inquiryID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

func (r *memoryInquiryRepo) ListInquiries(_ context.Context, limit, offset int) ([]Inquiry, int, error) {
	all := make([]Inquiry, 0, len(r.snapshots))
	for _, snap := range r.snapshots {
		all = append(all, snap.Inquiry)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *memoryInquiryRepo) AppendReferenceEvent(_ context.Context, ev refchain.ReferenceChangeEvent) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	r.events = append(r.events, ev)
	return nil
}

type staticSuppliers map[int64]string

func (s staticSuppliers) Names(_ context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		if name, ok := s[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

type captureAudit struct {
	logs []shared.AuditLog
}

func (a *captureAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newTestService(t *testing.T, repo *memoryInquiryRepo, audit *captureAudit) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := compare.NewStore(client, time.Hour)
	names := staticSuppliers{1: "Acme Supply", 2: "Borealis Trade"}
	return NewService(repo, names, store, audit, compare.PromotionsCompete, nil)
}

func testSnapshot() Snapshot {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	return Snapshot{
		Inquiry: Inquiry{ID: 42, Number: "INQ-42", Status: StatusOpen},
		Items: []reconcile.InquiryItem{
			{InquiryItemID: 1, ItemID: "A", RequestedQty: 5, ExcelRowIndex: 1},
			{InquiryItemID: 2, ItemID: "B", RequestedQty: 2, ExcelRowIndex: 2},
			{InquiryItemID: 3, ItemID: "C", RequestedQty: 1, ExcelRowIndex: 3},
		},
		Responses: []reconcile.SupplierResponseLine{
			{SupplierID: 1, ItemID: "A", PriceQuoted: 10.00, ResponseDate: day},
			{SupplierID: 1, ItemID: "B", PriceQuoted: 4.00, ResponseDate: day},
			{SupplierID: 1, ItemID: "X", PriceQuoted: 1.00, ResponseDate: day},
			{SupplierID: 2, ItemID: "A", PriceQuoted: 12.00, ResponseDate: day},
		},
		SupplierIDs: []int64{1, 2},
	}
}

func TestServiceReconcileAggregatesPerSupplier(t *testing.T) {
	repo := &memoryInquiryRepo{snapshots: map[int64]Snapshot{42: testSnapshot()}}
	svc := newTestService(t, repo, &captureAudit{})

	out, err := svc.Reconcile(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, int64(42), out.Inquiry.ID)
	require.Empty(t, out.Diagnostics)
	require.Len(t, out.Summaries, 2)

	byName := make(map[string]reconcile.SupplierDateSummary)
	for _, s := range out.Summaries {
		byName[s.SupplierName] = s
	}
	acme := byName["Acme Supply"]
	require.Equal(t, 3, acme.TotalCount)
	require.Equal(t, 1, acme.ExtraCount)
	require.Equal(t, []string{"X"}, acme.ExtraItems)
	require.Equal(t, []string{"C"}, acme.MissingItems)

	borealis := byName["Borealis Trade"]
	require.ElementsMatch(t, []string{"B", "C"}, borealis.MissingItems)
}

func TestServiceReconcileUnknownInquiry(t *testing.T) {
	repo := &memoryInquiryRepo{snapshots: map[int64]Snapshot{}}
	svc := newTestService(t, repo, &captureAudit{})

	_, err := svc.Reconcile(context.Background(), 99)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestServiceComparisonFlow(t *testing.T) {
	audit := &captureAudit{}
	repo := &memoryInquiryRepo{snapshots: map[int64]Snapshot{42: testSnapshot()}}
	svc := newTestService(t, repo, audit)
	ctx := context.Background()

	sessionID, results, err := svc.StartComparison(ctx, 42)
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	g1 := compare.GroupKey{SupplierID: 1}
	g2 := compare.GroupKey{SupplierID: 2}
	require.True(t, results["A"].HasBest)
	require.Equal(t, 10.00, results["A"].BestPrice)
	require.Equal(t, []compare.GroupKey{g1}, results["A"].WinningGroups)
	require.False(t, results["C"].HasBest)

	// Overriding supplier 2 below supplier 1 moves the winner.
	results, err = svc.ApplyEdit(ctx, sessionID, compare.Edit{
		Kind: compare.EditSetOverride, ItemID: "A", Group: g2, Price: 9.00,
	})
	require.NoError(t, err)
	require.Equal(t, []compare.GroupKey{g2}, results["A"].WinningGroups)

	// The edited state is what a later read sees.
	results, err = svc.Compare(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, 9.00, results["A"].BestPrice)

	summaries, err := svc.Summaries(ctx, sessionID)
	require.NoError(t, err)
	require.Contains(t, summaries, g1)
	require.Contains(t, summaries, g2)

	cands, err := svc.BuildOrders(ctx, 42, sessionID, []compare.GroupKey{g1, g2}, 7)
	require.NoError(t, err)
	require.Len(t, cands.BySupplier[2], 1)
	require.Equal(t, "A", cands.BySupplier[2][0].ItemID)
	require.Equal(t, 9.00, cands.BySupplier[2][0].UnitPrice)
	require.Len(t, cands.BySupplier[1], 1)
	require.Equal(t, "B", cands.BySupplier[1][0].ItemID)
	require.Equal(t, []string{"C"}, cands.Unfulfillable)

	// Building orders commits and ends the session.
	_, err = svc.Compare(ctx, sessionID)
	require.ErrorIs(t, err, compare.ErrSessionNotFound)

	require.Len(t, audit.logs, 1)
	require.Equal(t, "ORDERS_BUILD", audit.logs[0].Action)
	require.Equal(t, int64(7), audit.logs[0].ActorID)
	require.Equal(t, "42", audit.logs[0].EntityID)
}

func TestServiceComparisonAttributesReplacementQuotes(t *testing.T) {
	snap := testSnapshot()
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	snap.ReferenceEvents = []refchain.ReferenceChangeEvent{
		{OriginalItemID: "C", NewReferenceID: "C-NEW", ChangeDate: day.AddDate(0, -1, 0), Source: refchain.SourceSupplier},
	}
	snap.Responses = append(snap.Responses, reconcile.SupplierResponseLine{
		SupplierID: 2, ItemID: "C-NEW", PriceQuoted: 2.50, ResponseDate: day,
	})
	repo := &memoryInquiryRepo{snapshots: map[int64]Snapshot{42: snap}}
	svc := newTestService(t, repo, &captureAudit{})

	_, results, err := svc.StartComparison(context.Background(), 42)
	require.NoError(t, err)

	// The successor quote prices the original inquiry item.
	require.True(t, results["C"].HasBest)
	require.Equal(t, 2.50, results["C"].BestPrice)
	require.Equal(t, []compare.GroupKey{{SupplierID: 2}}, results["C"].WinningGroups)
}

func TestServiceComparisonSeesPromotionAndRegularSameDay(t *testing.T) {
	snap := testSnapshot()
	snap.Promotions = []reconcile.PromotionItem{
		{PromotionID: 5, PromotionName: "Spring", SupplierID: 1, ItemID: "A", PromotionPrice: 8.00, IsActive: true},
	}
	repo := &memoryInquiryRepo{snapshots: map[int64]Snapshot{42: snap}}
	svc := newTestService(t, repo, &captureAudit{})
	// Same calendar day as the regular responses.
	svc.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }

	_, results, err := svc.StartComparison(context.Background(), 42)
	require.NoError(t, err)

	regular := compare.GroupKey{SupplierID: 1}
	promo := compare.GroupKey{SupplierID: 1, PromotionID: 5}
	require.Equal(t, 10.00, results["A"].PerGroupPrice[regular])
	require.Equal(t, 8.00, results["A"].PerGroupPrice[promo])
	require.Equal(t, 8.00, results["A"].BestPrice)
	require.Equal(t, []compare.GroupKey{promo}, results["A"].WinningGroups)
}

func TestServiceComparisonKeepsLowestQuotePerGroup(t *testing.T) {
	snap := testSnapshot()
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	snap.ReferenceEvents = []refchain.ReferenceChangeEvent{
		{OriginalItemID: "A-OLD", NewReferenceID: "A", ChangeDate: day.AddDate(0, -1, 0), Source: refchain.SourceSupplier},
	}
	// Supplier 1 quotes A directly at 10.00 and again under the superseded id,
	// more expensively. The group must keep the cheaper quote.
	snap.Responses = append(snap.Responses, reconcile.SupplierResponseLine{
		SupplierID: 1, ItemID: "A-OLD", PriceQuoted: 12.50, ResponseDate: day,
	})
	repo := &memoryInquiryRepo{snapshots: map[int64]Snapshot{42: snap}}
	svc := newTestService(t, repo, &captureAudit{})

	_, results, err := svc.StartComparison(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, 10.00, results["A"].PerGroupPrice[compare.GroupKey{SupplierID: 1}])
	require.Equal(t, 10.00, results["A"].BestPrice)
}

func TestServiceApplyEditUnknownItem(t *testing.T) {
	repo := &memoryInquiryRepo{snapshots: map[int64]Snapshot{42: testSnapshot()}}
	svc := newTestService(t, repo, &captureAudit{})
	ctx := context.Background()

	sessionID, _, err := svc.StartComparison(ctx, 42)
	require.NoError(t, err)

	_, err = svc.ApplyEdit(ctx, sessionID, compare.Edit{
		Kind: compare.EditSetOverride, ItemID: "NOPE", Group: compare.GroupKey{SupplierID: 1}, Price: 1.00,
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestServiceBuildOrdersIgnoresVanishedGroups(t *testing.T) {
	repo := &memoryInquiryRepo{snapshots: map[int64]Snapshot{42: testSnapshot()}}
	svc := newTestService(t, repo, &captureAudit{})
	ctx := context.Background()

	sessionID, _, err := svc.StartComparison(ctx, 42)
	require.NoError(t, err)

	// Only a group that never quoted anything is selected; every item with a
	// quote becomes unfulfillable rather than an error.
	cands, err := svc.BuildOrders(ctx, 42, sessionID, []compare.GroupKey{{SupplierID: 77}}, 7)
	require.NoError(t, err)
	require.Empty(t, cands.BySupplier)
	require.ElementsMatch(t, []string{"A", "B", "C"}, cands.Unfulfillable)
}

func TestServiceListInquiriesPaginates(t *testing.T) {
	repo := &memoryInquiryRepo{snapshots: map[int64]Snapshot{}}
	for i := int64(1); i <= 5; i++ {
		repo.snapshots[i] = Snapshot{Inquiry: Inquiry{ID: i, Status: StatusOpen}}
	}
	svc := newTestService(t, repo, &captureAudit{})

	items, pagination, err := svc.ListInquiries(context.Background(), 2, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, int64(3), items[0].ID)
	require.Equal(t, 5, pagination.Total)
	require.Equal(t, 3, pagination.TotalPages)

	// Out-of-range and zero params fall back to sane defaults.
	items, pagination, err = svc.ListInquiries(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, items, 5)
	require.Equal(t, 1, pagination.Page)
	require.Equal(t, 20, pagination.PerPage)
}

func TestServiceRecordReferenceChange(t *testing.T) {
	repo := &memoryInquiryRepo{snapshots: map[int64]Snapshot{}}
	svc := newTestService(t, repo, &captureAudit{})
	ctx := context.Background()

	err := svc.RecordReferenceChange(ctx, refchain.ReferenceChangeEvent{OriginalItemID: "", NewReferenceID: "B"})
	require.ErrorIs(t, err, ErrValidation)

	err = svc.RecordReferenceChange(ctx, refchain.ReferenceChangeEvent{OriginalItemID: "A", NewReferenceID: "A"})
	require.ErrorIs(t, err, ErrSelfReference)

	err = svc.RecordReferenceChange(ctx, refchain.ReferenceChangeEvent{OriginalItemID: "A", NewReferenceID: "B"})
	require.NoError(t, err)
	require.Len(t, repo.events, 1)
	require.Equal(t, refchain.SourceUser, repo.events[0].Source)
	require.False(t, repo.events[0].ChangeDate.IsZero())

	repo.appendErr = ErrDuplicateEvent
	err = svc.RecordReferenceChange(ctx, refchain.ReferenceChangeEvent{OriginalItemID: "A", NewReferenceID: "B"})
	require.ErrorIs(t, err, ErrDuplicateEvent)
}
