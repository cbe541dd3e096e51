package inquiry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/sourcing/internal/compare"
	"github.com/odyssey-erp/sourcing/internal/orders"
	"github.com/odyssey-erp/sourcing/internal/reconcile"
	"github.com/odyssey-erp/sourcing/internal/refchain"
	"github.com/odyssey-erp/sourcing/internal/shared"
)

// Snapshot is one consistent read of everything a reconciliation needs. The
// repository produces it inside a single transaction so the item, response
// and reference tables cannot tear.
type Snapshot struct {
	Inquiry         Inquiry
	Items           []reconcile.InquiryItem
	Responses       []reconcile.SupplierResponseLine
	Promotions      []reconcile.PromotionItem
	ReferenceEvents []refchain.ReferenceChangeEvent
	SupplierIDs     []int64
}

// RepositoryPort describes the persistence operations used by Service.
type RepositoryPort interface {
	FetchSnapshot(ctx context.Context, inquiryID int64) (Snapshot, error)
	ListInquiries(ctx context.Context, limit, offset int) ([]Inquiry, int, error)
	AppendReferenceEvent(ctx context.Context, ev refchain.ReferenceChangeEvent) error
}

// SupplierPort resolves supplier ids to display names.
type SupplierPort interface {
	Names(ctx context.Context, ids []int64) (map[int64]string, error)
}

// SessionStorePort persists comparison sessions between requests.
type SessionStorePort interface {
	NewSessionID() string
	Save(ctx context.Context, sessionID string, sess *compare.Session) error
	Load(ctx context.Context, sessionID string) (*compare.Session, error)
	Delete(ctx context.Context, sessionID string) error
}

// AuditPort records order generation for the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates reconciliation, comparison sessions and order
// candidate generation for inquiries.
type Service struct {
	repo      RepositoryPort
	suppliers SupplierPort
	sessions  SessionStorePort
	audit     AuditPort
	policy    compare.PromotionPolicy
	logger    *slog.Logger
	now       func() time.Time

	// Concurrent reconcile fetches for the same inquiry collapse into one.
	group singleflight.Group
}

// NewService constructs the inquiry service.
func NewService(repo RepositoryPort, suppliers SupplierPort, sessions SessionStorePort, audit AuditPort, policy compare.PromotionPolicy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		suppliers: suppliers,
		sessions:  sessions,
		audit:     audit,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// ReconcileOutput bundles the response-list view data with the diagnostics
// accumulated while normalizing.
type ReconcileOutput struct {
	Inquiry     Inquiry
	Summaries   []reconcile.SupplierDateSummary
	Diagnostics []reconcile.Diagnostic
}

// Reconcile classifies every supplier submission against the inquiry's item
// list and aggregates per (supplier, date) summaries. Bad records surface as
// diagnostics; only store access fails hard.
func (s *Service) Reconcile(ctx context.Context, inquiryID int64) (ReconcileOutput, error) {
	v, err, _ := s.group.Do(fmt.Sprintf("reconcile:%d", inquiryID), func() (any, error) {
		return s.reconcileOnce(ctx, inquiryID)
	})
	if err != nil {
		return ReconcileOutput{}, err
	}
	return v.(ReconcileOutput), nil
}

func (s *Service) reconcileOnce(ctx context.Context, inquiryID int64) (ReconcileOutput, error) {
	snap, err := s.repo.FetchSnapshot(ctx, inquiryID)
	if err != nil {
		return ReconcileOutput{}, err
	}
	idx, refDiags := refchain.BuildIndex(snap.ReferenceEvents)
	classified, diags := reconcile.Normalize(snap.Items, snap.Responses, snap.Promotions, idx, s.now())
	for _, d := range refDiags {
		s.logger.Warn("reference event dropped", slog.String("item", d.OriginalItemID), slog.String("reason", d.Reason))
	}

	names, err := s.supplierNames(ctx, snap.SupplierIDs)
	if err != nil {
		return ReconcileOutput{}, err
	}
	return ReconcileOutput{
		Inquiry:     snap.Inquiry,
		Summaries:   reconcile.Aggregate(classified, names),
		Diagnostics: diags,
	}, nil
}

// ListInquiries returns one page of inquiries with pagination metadata.
func (s *Service) ListInquiries(ctx context.Context, page, perPage int) ([]Inquiry, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := s.repo.ListInquiries(ctx, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// StartComparison builds a fresh comparison session from the inquiry's
// current classified responses and stores it.
func (s *Service) StartComparison(ctx context.Context, inquiryID int64) (string, map[string]compare.Result, error) {
	snap, err := s.repo.FetchSnapshot(ctx, inquiryID)
	if err != nil {
		return "", nil, err
	}
	idx, _ := refchain.BuildIndex(snap.ReferenceEvents)
	classified, _ := reconcile.Normalize(snap.Items, snap.Responses, snap.Promotions, idx, s.now())

	sess := compare.NewSession(s.policy)
	for _, it := range snap.Items {
		sess.AddItem(it.ItemID, it.RequestedQty, it.ExcelRowIndex)
	}
	// A group can price one inquiry item through several classified lines
	// (a direct quote plus a superseded-id quote for the same item). The
	// lowest price wins, same as the normalizer's duplicate rule; slice
	// order must not decide.
	quotes := make(map[string]map[compare.GroupKey]float64)
	for _, cr := range classified {
		itemID, ok := claimedInquiryItem(cr)
		if !ok {
			continue
		}
		group := compare.GroupKey{SupplierID: cr.SupplierID}
		if cr.IsPromotion {
			group.PromotionID = cr.PromotionID
		}
		if quotes[itemID] == nil {
			quotes[itemID] = make(map[compare.GroupKey]float64)
		}
		if price, ok := quotes[itemID][group]; !ok || cr.Price < price {
			quotes[itemID][group] = cr.Price
		}
	}
	for itemID, groups := range quotes {
		for group, price := range groups {
			sess.AddQuote(itemID, group, price)
		}
	}

	sessionID := s.sessions.NewSessionID()
	if err := s.sessions.Save(ctx, sessionID, sess); err != nil {
		return "", nil, err
	}
	return sessionID, sess.Results(), nil
}

// claimedInquiryItem maps a classified response to the inquiry item it
// prices, if any. Extra and missing entries price nothing.
func claimedInquiryItem(cr reconcile.ClassifiedResponse) (string, bool) {
	switch cr.Kind {
	case reconcile.KindMatched, reconcile.KindPromotion:
		return cr.EffectiveItemID, true
	case reconcile.KindReplacement:
		return cr.ReplacementTargetID, true
	default:
		return "", false
	}
}

// Compare returns the comparison results of an existing session.
func (s *Service) Compare(ctx context.Context, sessionID string) (map[string]compare.Result, error) {
	sess, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Results(), nil
}

// ApplyEdit folds one interactive edit into a stored session and returns the
// recomputed results. Edits are applied in arrival order; the session store
// holds one session per user and screen, so there is no concurrent writer.
func (s *Service) ApplyEdit(ctx context.Context, sessionID string, edit compare.Edit) (map[string]compare.Result, error) {
	sess, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.Apply(edit); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.sessions.Save(ctx, sessionID, sess); err != nil {
		return nil, err
	}
	return sess.Results(), nil
}

// Summaries reports each group's standing in a session.
func (s *Service) Summaries(ctx context.Context, sessionID string) (map[compare.GroupKey]compare.GroupSummary, error) {
	sess, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make(map[compare.GroupKey]compare.GroupSummary)
	for group := range sess.Groups() {
		out[group] = sess.Summarize(group)
	}
	return out, nil
}

// BuildOrders turns a session's winners into per-supplier order candidates
// and commits the session, which ends it. Items no selected group won are
// reported as unfulfillable, not as an error.
func (s *Service) BuildOrders(ctx context.Context, inquiryID int64, sessionID string, selected []compare.GroupKey, actorID int64) (orders.Candidates, error) {
	sess, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return orders.Candidates{}, err
	}

	selectedSet := make(map[compare.GroupKey]bool, len(selected))
	known := sess.Groups()
	for _, g := range selected {
		if _, ok := known[g]; !ok {
			// Group vanished between compare and build; its items end up in
			// the unfulfillable list below.
			continue
		}
		selectedSet[g] = true
	}

	quantities := make(map[string]float64)
	rowOrder := make(map[string]int)
	for i, itemID := range sess.ItemIDs() {
		quantities[itemID] = sess.EffectiveQty(itemID)
		rowOrder[itemID] = i
	}

	cands := orders.Build(sess.Results(), selectedSet, quantities, rowOrder)

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("delete committed session", slog.String("session", sessionID), slog.Any("error", err))
	}
	s.recordAudit(ctx, actorID, "ORDERS_BUILD", inquiryID, map[string]any{
		"session":       sessionID,
		"suppliers":     len(cands.BySupplier),
		"unfulfillable": len(cands.Unfulfillable),
	})
	return cands, nil
}

// RecordReferenceChange appends one reference-change event to the log.
// Self-references are rejected up front so they can never become active.
func (s *Service) RecordReferenceChange(ctx context.Context, ev refchain.ReferenceChangeEvent) error {
	if ev.OriginalItemID == "" || ev.NewReferenceID == "" {
		return fmt.Errorf("%w: item ids required", ErrValidation)
	}
	if ev.OriginalItemID == ev.NewReferenceID {
		return ErrSelfReference
	}
	if ev.ChangeDate.IsZero() {
		ev.ChangeDate = s.now()
	}
	if ev.Source == "" {
		ev.Source = refchain.SourceUser
	}
	return s.repo.AppendReferenceEvent(ctx, ev)
}

func (s *Service) supplierNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	if s.suppliers == nil || len(ids) == 0 {
		return nil, nil
	}
	return s.suppliers.Names(ctx, ids)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "inquiry", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
	if err != nil {
		s.logger.Warn("record audit", slog.Any("error", err))
	}
}
