package inquiry

import (
	"time"

	"github.com/odyssey-erp/sourcing/internal/compare"
	"github.com/odyssey-erp/sourcing/internal/orders"
	"github.com/odyssey-erp/sourcing/internal/shared"
)

type inquiryDTO struct {
	ID        int64     `json:"id"`
	Number    string    `json:"number"`
	Status    string    `json:"status"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type paginationDTO struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type listInquiriesResponse struct {
	Inquiries  []inquiryDTO  `json:"inquiries"`
	Pagination paginationDTO `json:"pagination"`
}

func toListInquiriesResponse(items []Inquiry, p shared.Pagination) listInquiriesResponse {
	resp := listInquiriesResponse{
		Inquiries: make([]inquiryDTO, 0, len(items)),
		Pagination: paginationDTO{
			Page:       p.Page,
			PerPage:    p.PerPage,
			Total:      p.Total,
			TotalPages: p.TotalPages,
		},
	}
	for _, inq := range items {
		resp.Inquiries = append(resp.Inquiries, inquiryDTO{
			ID:        inq.ID,
			Number:    inq.Number,
			Status:    string(inq.Status),
			Note:      inq.Note,
			CreatedAt: inq.CreatedAt,
			UpdatedAt: inq.UpdatedAt,
		})
	}
	return resp
}

type summaryDTO struct {
	SupplierID       int64    `json:"supplier_id"`
	SupplierName     string   `json:"supplier_name"`
	Date             string   `json:"date"`
	TotalCount       int      `json:"total_count"`
	ExtraCount       int      `json:"extra_count"`
	ReplacementCount int      `json:"replacement_count"`
	MissingCount     int      `json:"missing_count"`
	MatchedItems     []string `json:"matched_items"`
	ExtraItems       []string `json:"extra_items"`
	MissingItems     []string `json:"missing_items"`
	ReplacementItems []string `json:"replacement_items"`
}

type diagnosticDTO struct {
	SupplierID int64  `json:"supplier_id,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	Date       string `json:"date,omitempty"`
	Reason     string `json:"reason"`
}

type reconcileResponse struct {
	InquiryID   int64           `json:"inquiry_id"`
	Number      string          `json:"number"`
	Summaries   []summaryDTO    `json:"summaries"`
	Diagnostics []diagnosticDTO `json:"diagnostics,omitempty"`
}

func toReconcileResponse(out ReconcileOutput) reconcileResponse {
	resp := reconcileResponse{
		InquiryID: out.Inquiry.ID,
		Number:    out.Inquiry.Number,
		Summaries: make([]summaryDTO, 0, len(out.Summaries)),
	}
	for _, s := range out.Summaries {
		resp.Summaries = append(resp.Summaries, summaryDTO{
			SupplierID:       s.SupplierID,
			SupplierName:     s.SupplierName,
			Date:             s.Date.Format("2006-01-02"),
			TotalCount:       s.TotalCount,
			ExtraCount:       s.ExtraCount,
			ReplacementCount: s.ReplacementCount,
			MissingCount:     s.MissingCount,
			MatchedItems:     s.MatchedItems,
			ExtraItems:       s.ExtraItems,
			MissingItems:     s.MissingItems,
			ReplacementItems: s.ReplacementItems,
		})
	}
	for _, d := range out.Diagnostics {
		dto := diagnosticDTO{SupplierID: d.SupplierID, ItemID: d.ItemID, Reason: d.Reason}
		if !d.Date.IsZero() {
			dto.Date = d.Date.Format("2006-01-02")
		}
		resp.Diagnostics = append(resp.Diagnostics, dto)
	}
	return resp
}

type resultDTO struct {
	BestPrice     *float64           `json:"best_price"`
	WinningGroups []string           `json:"winning_groups"`
	Prices        map[string]float64 `json:"prices"`
	DeltaPercent  map[string]float64 `json:"delta_percent"`
	DeltaDisplay  map[string]string  `json:"delta_display"`
}

type comparisonResponse struct {
	SessionID string               `json:"session_id,omitempty"`
	Results   map[string]resultDTO `json:"results"`
}

func toComparisonResponse(sessionID string, results map[string]compare.Result) comparisonResponse {
	resp := comparisonResponse{SessionID: sessionID, Results: make(map[string]resultDTO, len(results))}
	for itemID, res := range results {
		dto := resultDTO{
			WinningGroups: make([]string, 0, len(res.WinningGroups)),
			Prices:        make(map[string]float64, len(res.PerGroupPrice)),
			DeltaPercent:  make(map[string]float64, len(res.DeltaPercent)),
			DeltaDisplay:  make(map[string]string, len(res.DeltaPercent)),
		}
		if res.HasBest {
			best := res.BestPrice
			dto.BestPrice = &best
		}
		for _, g := range res.WinningGroups {
			dto.WinningGroups = append(dto.WinningGroups, g.String())
		}
		for g, p := range res.PerGroupPrice {
			dto.Prices[g.String()] = p
		}
		for g, d := range res.DeltaPercent {
			dto.DeltaPercent[g.String()] = d
			dto.DeltaDisplay[g.String()] = compare.FormatDelta(d)
		}
		resp.Results[itemID] = dto
	}
	return resp
}

type groupSummaryDTO struct {
	Group        string  `json:"group"`
	TotalItems   int     `json:"total_items"`
	WinningItems int     `json:"winning_items"`
	TotalValue   float64 `json:"total_value"`
}

type editRequest struct {
	Kind   string  `json:"kind" validate:"required,oneof=set_override clear_override set_quantity toggle_group"`
	ItemID string  `json:"item_id"`
	Group  string  `json:"group" validate:"required_unless=Kind set_quantity"`
	Price  float64 `json:"price"`
	Qty    float64 `json:"qty"`
	Active *bool   `json:"active"`
}

type buildOrdersRequest struct {
	SessionID string   `json:"session_id" validate:"required"`
	Groups    []string `json:"groups" validate:"required,min=1,dive,required"`
}

type orderLineDTO struct {
	ItemID      string  `json:"item_id"`
	PromotionID int64   `json:"promotion_id,omitempty"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    float64 `json:"quantity"`
}

type buildOrdersResponse struct {
	Orders        map[int64][]orderLineDTO `json:"orders"`
	Unfulfillable []string                 `json:"unfulfillable"`
}

func toBuildOrdersResponse(cands orders.Candidates) buildOrdersResponse {
	resp := buildOrdersResponse{
		Orders:        make(map[int64][]orderLineDTO, len(cands.BySupplier)),
		Unfulfillable: cands.Unfulfillable,
	}
	if resp.Unfulfillable == nil {
		resp.Unfulfillable = []string{}
	}
	for supplierID, lines := range cands.BySupplier {
		dtos := make([]orderLineDTO, 0, len(lines))
		for _, l := range lines {
			dtos = append(dtos, orderLineDTO{ItemID: l.ItemID, PromotionID: l.PromotionID, UnitPrice: l.UnitPrice, Quantity: l.Quantity})
		}
		resp.Orders[supplierID] = dtos
	}
	return resp
}

type referenceChangeRequest struct {
	OriginalItemID string `json:"original_item_id" validate:"required"`
	NewReferenceID string `json:"new_reference_id" validate:"required,nefield=OriginalItemID"`
	ChangeDate     string `json:"change_date"`
	Source         string `json:"source" validate:"omitempty,oneof=supplier user inquiry_item"`
	SupplierID     int64  `json:"supplier_id"`
	Notes          string `json:"notes"`
}

func (req referenceChangeRequest) parseDate() (time.Time, error) {
	if req.ChangeDate == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", req.ChangeDate)
}
