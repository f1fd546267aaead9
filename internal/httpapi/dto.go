package httpapi

import (
	"mercadinho/backend/internal/domain"
)

// Responses carry instants as nanoseconds since the Unix epoch.

type saleItemResponse struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

type saleResponse struct {
	ID              int64              `json:"id"`
	Status          domain.SaleStatus  `json:"status"`
	PaymentMethod   string             `json:"payment_method"`
	CreatedAtNs     int64              `json:"created_at_ns"`
	TotalCents      int64              `json:"total_cents"`
	AmountPaidCents int64              `json:"amount_paid_cents"`
	ChangeCents     int64              `json:"change_cents"`
	CustomerID      *string            `json:"customer_id"`
	SessionID       *int64             `json:"session_id"`
	Items           []saleItemResponse `json:"items"`
}

func newSaleResponse(s domain.Sale) saleResponse {
	items := make([]saleItemResponse, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, saleItemResponse(it))
	}
	return saleResponse{
		ID:              s.ID,
		Status:          s.Status,
		PaymentMethod:   s.PaymentMethod.String(),
		CreatedAtNs:     s.CreatedAt.UnixNano(),
		TotalCents:      s.TotalCents,
		AmountPaidCents: s.AmountPaidCents,
		ChangeCents:     s.ChangeCents,
		CustomerID:      s.CustomerID.Ptr(),
		SessionID:       s.SessionID.Ptr(),
		Items:           items,
	}
}

func newSaleResponses(sales []domain.Sale) []saleResponse {
	out := make([]saleResponse, 0, len(sales))
	for _, s := range sales {
		out = append(out, newSaleResponse(s))
	}
	return out
}

type editLogResponse struct {
	ID          int64             `json:"id"`
	SaleID      int64             `json:"sale_id"`
	Editor      string            `json:"editor"`
	Action      domain.EditAction `json:"action"`
	Previous    saleResponse      `json:"previous"`
	New         saleResponse      `json:"new"`
	CreatedAtNs int64             `json:"created_at_ns"`
}

func newEditLogResponses(logs []domain.SaleEditLog) []editLogResponse {
	out := make([]editLogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, editLogResponse{
			ID:          l.ID,
			SaleID:      l.SaleID,
			Editor:      l.Editor,
			Action:      l.Action,
			Previous:    newSaleResponse(l.Previous),
			New:         newSaleResponse(l.New),
			CreatedAtNs: l.CreatedAt.UnixNano(),
		})
	}
	return out
}

type sessionResponse struct {
	ID                int64  `json:"id"`
	OpenTimeNs        int64  `json:"open_time_ns"`
	InitialFloatCents int64  `json:"initial_float_cents"`
	IsOpen            bool   `json:"is_open"`
	CloseTimeNs       *int64 `json:"close_time_ns"`
	FinalBalanceCents *int64 `json:"final_balance_cents"`
}

func newSessionResponse(s domain.CashRegisterSession) sessionResponse {
	resp := sessionResponse{
		ID:                s.ID,
		OpenTimeNs:        s.OpenTime.UnixNano(),
		InitialFloatCents: s.InitialFloatCents,
		IsOpen:            s.IsOpen,
		FinalBalanceCents: s.FinalBalanceCents.Ptr(),
	}
	if closed, ok := s.CloseTime.Get(); ok {
		ns := closed.UnixNano()
		resp.CloseTimeNs = &ns
	}
	return resp
}

type closingResponse struct {
	ID                int64 `json:"id"`
	SessionID         int64 `json:"session_id"`
	CloseTimeNs       int64 `json:"close_time_ns"`
	FinalBalanceCents int64 `json:"final_balance_cents"`
}

func newClosingResponse(c domain.ClosingRecord) closingResponse {
	return closingResponse{
		ID:                c.ID,
		SessionID:         c.SessionID,
		CloseTimeNs:       c.CloseTime.UnixNano(),
		FinalBalanceCents: c.FinalBalanceCents,
	}
}

type reportResponse struct {
	Session           sessionResponse  `json:"session"`
	SalesCount        int              `json:"sales_count"`
	PerMethodCents    map[string]int64 `json:"per_method_cents"`
	UnbucketedCents   int64            `json:"unbucketed_cents"`
	SalesTotalCents   int64            `json:"sales_total_cents"`
	GrandTotalCents   int64            `json:"grand_total_cents"`
	ExpectedCashCents int64            `json:"expected_cash_cents"`
	DifferenceCents   *int64           `json:"difference_cents"`
}

func newReportResponse(r domain.SessionReport) reportResponse {
	perMethod := make(map[string]int64, len(domain.PaymentMethods()))
	for _, method := range domain.PaymentMethods() {
		perMethod[method.String()] = r.Breakdown.PerMethod[method]
	}
	return reportResponse{
		Session:           newSessionResponse(r.Session),
		SalesCount:        r.SalesCount,
		PerMethodCents:    perMethod,
		UnbucketedCents:   r.Breakdown.UnbucketedCents,
		SalesTotalCents:   r.Breakdown.TotalCents,
		GrandTotalCents:   r.GrandTotalCents,
		ExpectedCashCents: r.ExpectedCashCents,
		DifferenceCents:   r.DifferenceCents.Ptr(),
	}
}

type userResponse struct {
	Username    string `json:"username"`
	Role        string `json:"role"`
	Active      bool   `json:"active"`
	CreatedAtNs int64  `json:"created_at_ns"`
}

func newUserResponse(u domain.UserView) userResponse {
	var created int64
	if !u.CreatedAt.IsZero() {
		created = u.CreatedAt.UnixNano()
	}
	return userResponse{Username: u.Username, Role: u.Role, Active: u.Active, CreatedAtNs: created}
}
