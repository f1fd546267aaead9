// Package reconcile aggregates sales for register close-out and reporting.
// Every function is pure: callers load the sales, this package only counts.
package reconcile

import (
	"mercadinho/backend/internal/domain"
)

// ComputePaymentBreakdown sums sale totals per payment method. Callers are
// expected to pass active sales only; cancelled ones are skipped anyway.
func ComputePaymentBreakdown(sales []domain.Sale) domain.PaymentBreakdown {
	breakdown := domain.PaymentBreakdown{
		PerMethod: make(map[domain.PaymentMethod]int64, len(domain.PaymentMethods())),
	}
	for _, method := range domain.PaymentMethods() {
		breakdown.PerMethod[method] = 0
	}

	for _, sale := range sales {
		if sale.IsCancelled() {
			continue
		}
		breakdown.TotalCents += sale.TotalCents
		if !sale.PaymentMethod.IsValid() {
			breakdown.UnbucketedCents += sale.TotalCents
			continue
		}
		breakdown.PerMethod[sale.PaymentMethod] += sale.TotalCents
	}
	return breakdown
}

// FilterSalesBySession keeps the sales stamped with sessionID. Sales recorded
// while no session was open never match.
func FilterSalesBySession(sales []domain.Sale, sessionID int64) []domain.Sale {
	out := make([]domain.Sale, 0, len(sales))
	for _, sale := range sales {
		if id, ok := sale.SessionID.Get(); ok && id == sessionID {
			out = append(out, sale)
		}
	}
	return out
}

func ActiveOnly(sales []domain.Sale) []domain.Sale {
	out := make([]domain.Sale, 0, len(sales))
	for _, sale := range sales {
		if !sale.IsCancelled() {
			out = append(out, sale)
		}
	}
	return out
}

// SummarizeSession builds the close-out view for session from the full sale
// list. The figures are advisory; closing the register never recomputes the
// final balance the operator declares.
func SummarizeSession(session domain.CashRegisterSession, sales []domain.Sale) domain.SessionReport {
	active := ActiveOnly(FilterSalesBySession(sales, session.ID))
	breakdown := ComputePaymentBreakdown(active)

	report := domain.SessionReport{
		Session:           session,
		SalesCount:        len(active),
		Breakdown:         breakdown,
		GrandTotalCents:   session.InitialFloatCents + breakdown.TotalCents,
		ExpectedCashCents: session.InitialFloatCents + breakdown.PerMethod[domain.PaymentCash],
	}
	if final, ok := session.FinalBalanceCents.Get(); ok {
		report.DifferenceCents = domain.Some(final - report.GrandTotalCents)
	}
	return report
}
