package handlers

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	domain "github.com/eventdesk/api/internal/domain"
	"github.com/eventdesk/api/internal/services"
)

type clientRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
}

type eventDetailsRequest struct {
	EventType           string   `json:"event_type"`
	EventDate           string   `json:"event_date"`
	EventTime           string   `json:"event_time"`
	VenueName           string   `json:"venue_name"`
	VenueAddress        string   `json:"venue_address"`
	VenueCity           string   `json:"venue_city"`
	GuestCount          int      `json:"guest_count"`
	RequestedServices   []string `json:"requested_services"`
	RequestedStaff      []string `json:"requested_staff"`
	BudgetMin           *int64   `json:"budget_min"`
	BudgetMax           *int64   `json:"budget_max"`
	SpecialRequirements string   `json:"special_requirements"`
}

type serviceDetailsRequest struct {
	ServiceID          string  `json:"service_id"`
	ServiceName        string  `json:"service_name"`
	Category           string  `json:"category"`
	PackageID          string  `json:"package_id"`
	PackageName        string  `json:"package_name"`
	CustomRequirements string  `json:"custom_requirements"`
	ServiceDate        string  `json:"service_date"`
	DurationHours      float64 `json:"duration_hours"`
}

type staffDetailsRequest struct {
	StaffID       string  `json:"staff_id"`
	StaffName     string  `json:"staff_name"`
	Role          string  `json:"role"`
	BookingDate   string  `json:"booking_date"`
	StartTime     string  `json:"start_time"`
	EndTime       string  `json:"end_time"`
	DurationHours float64 `json:"duration_hours"`
	Location      string  `json:"location"`
	Requirements  string  `json:"requirements"`
}

type offerDetailsRequest struct {
	OfferID          string `json:"offer_id"`
	OfferTitle       string `json:"offer_title"`
	Discount         string `json:"discount"`
	RedemptionDate   string `json:"redemption_date"`
	AppliedServiceID string `json:"applied_service_id"`
	AppliedService   string `json:"applied_service"`
}

type createOrderRequest struct {
	Type           string                 `json:"type"`
	Client         clientRequest          `json:"client"`
	Event          *eventDetailsRequest   `json:"event"`
	Service        *serviceDetailsRequest `json:"service"`
	Staff          *staffDetailsRequest   `json:"staff"`
	Offer          *offerDetailsRequest   `json:"offer"`
	AdminNotes     string                 `json:"admin_notes"`
	AssignedAdmins []string               `json:"assigned_admins"`
}

// details converts the payload named by Type. Payloads for other variants are rejected so the
// stored order can never carry two.
func (req createOrderRequest) details() (domain.OrderDetails, error) {
	orderType := domain.OrderType(strings.ToLower(strings.TrimSpace(req.Type)))
	if !orderType.Valid() {
		return nil, fmt.Errorf("type must be one of event, service, staff or offer")
	}
	supplied := map[domain.OrderType]bool{
		domain.OrderTypeEvent:   req.Event != nil,
		domain.OrderTypeService: req.Service != nil,
		domain.OrderTypeStaff:   req.Staff != nil,
		domain.OrderTypeOffer:   req.Offer != nil,
	}
	for t, set := range supplied {
		if set && t != orderType {
			return nil, fmt.Errorf("%s payload not allowed for %s orders", t, orderType)
		}
	}
	if !supplied[orderType] {
		return nil, fmt.Errorf("%s payload is required", orderType)
	}

	switch orderType {
	case domain.OrderTypeEvent:
		return req.Event.toDomain()
	case domain.OrderTypeService:
		return req.Service.toDomain()
	case domain.OrderTypeStaff:
		return req.Staff.toDomain()
	default:
		return req.Offer.toDomain()
	}
}

func (req *eventDetailsRequest) toDomain() (domain.OrderDetails, error) {
	date, err := parseTimeParam(req.EventDate)
	if err != nil {
		return nil, fmt.Errorf("event_date %w", err)
	}
	details := &domain.EventDetails{
		EventType:           domain.EventType(strings.ToLower(strings.TrimSpace(req.EventType))),
		EventDate:           date,
		EventTime:           strings.TrimSpace(req.EventTime),
		Venue:               domain.Venue{Name: strings.TrimSpace(req.VenueName), Address: strings.TrimSpace(req.VenueAddress), City: strings.TrimSpace(req.VenueCity)},
		GuestCount:          req.GuestCount,
		RequestedServices:   trimStrings(req.RequestedServices),
		RequestedStaff:      trimStrings(req.RequestedStaff),
		SpecialRequirements: strings.TrimSpace(req.SpecialRequirements),
	}
	if req.BudgetMin != nil || req.BudgetMax != nil {
		budget := &domain.BudgetRange{}
		if req.BudgetMin != nil {
			budget.Min = *req.BudgetMin
		}
		if req.BudgetMax != nil {
			budget.Max = *req.BudgetMax
		}
		details.Budget = budget
	}
	return details, nil
}

func (req *serviceDetailsRequest) toDomain() (domain.OrderDetails, error) {
	date, err := parseOptionalTime(req.ServiceDate)
	if err != nil {
		return nil, fmt.Errorf("service_date %w", err)
	}
	return &domain.ServiceDetails{
		ServiceID:          strings.TrimSpace(req.ServiceID),
		ServiceName:        strings.TrimSpace(req.ServiceName),
		Category:           strings.TrimSpace(req.Category),
		PackageID:          strings.TrimSpace(req.PackageID),
		PackageName:        strings.TrimSpace(req.PackageName),
		CustomRequirements: strings.TrimSpace(req.CustomRequirements),
		ServiceDate:        date,
		DurationHours:      req.DurationHours,
	}, nil
}

func (req *staffDetailsRequest) toDomain() (domain.OrderDetails, error) {
	date, err := parseTimeParam(req.BookingDate)
	if err != nil {
		return nil, fmt.Errorf("booking_date %w", err)
	}
	return &domain.StaffDetails{
		StaffID:       strings.TrimSpace(req.StaffID),
		StaffName:     strings.TrimSpace(req.StaffName),
		Role:          strings.TrimSpace(req.Role),
		BookingDate:   date,
		StartTime:     strings.TrimSpace(req.StartTime),
		EndTime:       strings.TrimSpace(req.EndTime),
		DurationHours: req.DurationHours,
		Location:      strings.TrimSpace(req.Location),
		Requirements:  strings.TrimSpace(req.Requirements),
	}, nil
}

func (req *offerDetailsRequest) toDomain() (domain.OrderDetails, error) {
	date, err := parseTimeParam(req.RedemptionDate)
	if err != nil {
		return nil, fmt.Errorf("redemption_date %w", err)
	}
	return &domain.OfferDetails{
		OfferID:          strings.TrimSpace(req.OfferID),
		OfferTitle:       strings.TrimSpace(req.OfferTitle),
		Discount:         strings.TrimSpace(req.Discount),
		RedemptionDate:   date,
		AppliedServiceID: strings.TrimSpace(req.AppliedServiceID),
		AppliedService:   strings.TrimSpace(req.AppliedService),
	}, nil
}

type quoteItemRequest struct {
	Label       string `json:"label"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
}

type sendQuoteRequest struct {
	Items           []quoteItemRequest `json:"items"`
	Discount        *int64             `json:"discount"`
	DiscountPercent *float64           `json:"discount_percent"`
	ValidityDays    int                `json:"validity_days"`
	Currency        string             `json:"currency"`
	Notes           string             `json:"notes"`
	ExpectedVersion *int64             `json:"expected_version"`
}

// quoteInput normalises a percentage discount into an amount of the item total. Discount
// amounts and percentages are mutually exclusive.
func (req sendQuoteRequest) quoteInput() (services.QuoteInput, error) {
	items := make([]domain.QuoteItem, 0, len(req.Items))
	var total int64
	for _, item := range req.Items {
		items = append(items, domain.QuoteItem{
			Label:       strings.TrimSpace(item.Label),
			Description: strings.TrimSpace(item.Description),
			Amount:      item.Amount,
		})
		total += item.Amount
	}

	input := services.QuoteInput{
		Items:        items,
		ValidityDays: req.ValidityDays,
		Currency:     strings.TrimSpace(req.Currency),
		Notes:        strings.TrimSpace(req.Notes),
	}
	switch {
	case req.Discount != nil && req.DiscountPercent != nil:
		return services.QuoteInput{}, errors.New("discount and discount_percent are mutually exclusive")
	case req.Discount != nil:
		input.Discount = *req.Discount
	case req.DiscountPercent != nil:
		pct := *req.DiscountPercent
		if math.IsNaN(pct) || pct < 0 || pct > 100 {
			return services.QuoteInput{}, errors.New("discount_percent must be between 0 and 100")
		}
		input.Discount = int64(math.Round(float64(total) * pct / 100))
	}
	if req.ValidityDays < 0 {
		return services.QuoteInput{}, errors.New("validity_days must not be negative")
	}
	return input, nil
}

type recordPaymentRequest struct {
	Amount          int64  `json:"amount"`
	Method          string `json:"method"`
	Reference       string `json:"reference"`
	Notes           string `json:"notes"`
	ExpectedVersion *int64 `json:"expected_version"`
}

type transitionRequest struct {
	Status          string `json:"status"`
	Notes           string `json:"notes"`
	ExpectedVersion *int64 `json:"expected_version"`
}

type cancelRequest struct {
	Reason          string `json:"reason"`
	RefundAmount    *int64 `json:"refund_amount"`
	ExpectedVersion *int64 `json:"expected_version"`
}

type milestoneRequest struct {
	Title           string `json:"title"`
	Notes           string `json:"notes"`
	Date            string `json:"date"`
	Completed       bool   `json:"completed"`
	ExpectedVersion *int64 `json:"expected_version"`
}

type adminNotesRequest struct {
	Notes           string `json:"notes"`
	ExpectedVersion *int64 `json:"expected_version"`
}

type assignAdminsRequest struct {
	AdminIDs        []string `json:"admin_ids"`
	ExpectedVersion *int64   `json:"expected_version"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email,omitempty"`
	Summary     string `json:"summary"`
	DisplayDate string `json:"display_date,omitempty"`
	FinalAmount *int64 `json:"final_amount,omitempty"`
	Currency    string `json:"currency,omitempty"`
	PaymentPct  *int   `json:"payment_progress,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type orderPayload struct {
	ID             string                `json:"id"`
	OrderNumber    string                `json:"order_number"`
	Type           string                `json:"type"`
	Status         string                `json:"status"`
	Client         clientRequest         `json:"client"`
	Summary        string                `json:"summary"`
	DisplayDate    string                `json:"display_date,omitempty"`
	Details        map[string]any        `json:"details"`
	StatusHistory  []statusChangePayload `json:"status_history"`
	Quote          *quotePayload         `json:"quote,omitempty"`
	QuoteHistory   []quotePayload        `json:"quote_history,omitempty"`
	Payment        *paymentPayload       `json:"payment,omitempty"`
	Timeline       []milestonePayload    `json:"timeline,omitempty"`
	AdminNotes     string                `json:"admin_notes,omitempty"`
	AssignedAdmins []string              `json:"assigned_admins,omitempty"`
	Cancellation   *cancellationPayload  `json:"cancellation,omitempty"`
	Allowed        []string              `json:"allowed_transitions"`
	CanSendQuote   bool                  `json:"can_send_quote"`
	CanAddPayment  bool                  `json:"can_add_payment"`
	Version        int64                 `json:"version"`
	CreatedBy      string                `json:"created_by,omitempty"`
	CreatedAt      string                `json:"created_at"`
	UpdatedAt      string                `json:"updated_at"`
}

type statusChangePayload struct {
	Status    string `json:"status"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name,omitempty"`
	ChangedAt string `json:"changed_at"`
	Notes     string `json:"notes,omitempty"`
}

type quotePayload struct {
	ID            string             `json:"id"`
	Items         []quoteItemRequest `json:"items"`
	Total         int64              `json:"total"`
	Discount      int64              `json:"discount"`
	FinalAmount   int64              `json:"final_amount"`
	Currency      string             `json:"currency"`
	Notes         string             `json:"notes,omitempty"`
	ValidUntil    string             `json:"valid_until"`
	CreatedAt     string             `json:"created_at"`
	CreatedBy     string             `json:"created_by"`
	ArchivedAt    string             `json:"archived_at,omitempty"`
	ArchiveReason string             `json:"archive_reason,omitempty"`
	Expired       bool               `json:"expired"`
}

type paymentPayload struct {
	QuoteID      string                      `json:"quote_id"`
	Total        int64                       `json:"total"`
	AmountPaid   int64                       `json:"amount_paid"`
	AmountDue    int64                       `json:"amount_due"`
	Status       string                      `json:"status"`
	Progress     int                         `json:"progress"`
	Transactions []paymentTransactionPayload `json:"transactions"`
}

type paymentTransactionPayload struct {
	ID         string `json:"id"`
	Amount     int64  `json:"amount"`
	Method     string `json:"method"`
	Reference  string `json:"reference,omitempty"`
	Notes      string `json:"notes,omitempty"`
	RecordedAt string `json:"recorded_at"`
	RecordedBy string `json:"recorded_by"`
}

type milestonePayload struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Notes     string `json:"notes,omitempty"`
	Date      string `json:"date"`
	Completed bool   `json:"completed"`
	CreatedAt string `json:"created_at"`
	CreatedBy string `json:"created_by"`
}

type cancellationPayload struct {
	Reason       string `json:"reason"`
	RefundAmount *int64 `json:"refund_amount,omitempty"`
	CancelledAt  string `json:"cancelled_at"`
	CancelledBy  string `json:"cancelled_by"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	payload := orderSummaryPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Type:        string(order.Type),
		Status:      string(order.Status),
		ClientName:  order.Client.Name,
		ClientEmail: order.Client.Email,
		Summary:     order.Summary(),
		DisplayDate: formatTimePtr(order.DisplayDate()),
		CreatedAt:   formatTime(order.CreatedAt),
	}
	if order.Quote != nil {
		amount := order.Quote.FinalAmount
		payload.FinalAmount = &amount
		payload.Currency = order.Quote.Currency
	}
	if order.Payment != nil {
		progress := order.Payment.Progress()
		payload.PaymentPct = &progress
	}
	return payload
}

// buildOrderPayload maps order for the admin API. now decides whether the current quote has
// expired.
func buildOrderPayload(order services.Order, now time.Time) orderPayload {
	payload := orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Type:        string(order.Type),
		Status:      string(order.Status),
		Client: clientRequest{
			UserID: order.Client.UserID,
			Name:   order.Client.Name,
			Email:  order.Client.Email,
			Phone:  order.Client.Phone,
		},
		Summary:        order.Summary(),
		DisplayDate:    formatTimePtr(order.DisplayDate()),
		Details:        buildDetailsPayload(order),
		AdminNotes:     order.AdminNotes,
		AssignedAdmins: append([]string(nil), order.AssignedAdmins...),
		CanSendQuote:   services.CanSendQuote(order),
		CanAddPayment:  services.CanAddPayment(order),
		Version:        order.Version,
		CreatedBy:      order.CreatedBy,
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
	}

	payload.Allowed = make([]string, 0, 4)
	for _, next := range services.AllowedTransitions(order.Status) {
		payload.Allowed = append(payload.Allowed, string(next))
	}

	payload.StatusHistory = make([]statusChangePayload, 0, len(order.StatusHistory))
	for _, change := range order.StatusHistory {
		payload.StatusHistory = append(payload.StatusHistory, statusChangePayload{
			Status:    string(change.Status),
			ActorID:   change.ActorID,
			ActorName: change.ActorName,
			ChangedAt: formatTime(change.ChangedAt),
			Notes:     change.Notes,
		})
	}
	if order.Quote != nil {
		q := buildQuotePayload(*order.Quote)
		q.Expired = order.Quote.Expired(now)
		payload.Quote = &q
	}
	for _, archived := range order.QuoteHistory {
		payload.QuoteHistory = append(payload.QuoteHistory, buildQuotePayload(archived))
	}
	if order.Payment != nil {
		payload.Payment = buildPaymentPayload(*order.Payment)
	}
	for _, m := range order.Timeline {
		payload.Timeline = append(payload.Timeline, milestonePayload{
			ID:        m.ID,
			Title:     m.Title,
			Notes:     m.Notes,
			Date:      formatTime(m.Date),
			Completed: m.Completed,
			CreatedAt: formatTime(m.CreatedAt),
			CreatedBy: m.CreatedBy,
		})
	}
	if c := order.Cancellation; c != nil {
		payload.Cancellation = &cancellationPayload{
			Reason:       c.Reason,
			RefundAmount: c.RefundAmount,
			CancelledAt:  formatTime(c.CancelledAt),
			CancelledBy:  c.CancelledBy,
		}
	}
	return payload
}

func buildQuotePayload(q domain.Quote) quotePayload {
	items := make([]quoteItemRequest, 0, len(q.Items))
	for _, item := range q.Items {
		items = append(items, quoteItemRequest{Label: item.Label, Description: item.Description, Amount: item.Amount})
	}
	return quotePayload{
		ID:            q.ID,
		Items:         items,
		Total:         q.Total,
		Discount:      q.Discount,
		FinalAmount:   q.FinalAmount,
		Currency:      q.Currency,
		Notes:         q.Notes,
		ValidUntil:    formatTime(q.ValidUntil),
		CreatedAt:     formatTime(q.CreatedAt),
		CreatedBy:     q.CreatedBy.ID,
		ArchivedAt:    formatTimePtr(q.ArchivedAt),
		ArchiveReason: q.ArchiveReason,
	}
}

func buildPaymentPayload(p domain.Payment) *paymentPayload {
	txs := make([]paymentTransactionPayload, 0, len(p.Transactions))
	for _, tx := range p.Transactions {
		txs = append(txs, paymentTransactionPayload{
			ID:         tx.ID,
			Amount:     tx.Amount,
			Method:     string(tx.Method),
			Reference:  tx.Reference,
			Notes:      tx.Notes,
			RecordedAt: formatTime(tx.RecordedAt),
			RecordedBy: tx.RecordedBy.ID,
		})
	}
	return &paymentPayload{
		QuoteID:      p.QuoteID,
		Total:        p.Total,
		AmountPaid:   p.AmountPaid,
		AmountDue:    p.AmountDue,
		Status:       string(p.Status),
		Progress:     p.Progress(),
		Transactions: txs,
	}
}

func buildDetailsPayload(order services.Order) map[string]any {
	details, err := domain.MatchOrder(order, domain.OrderCases[map[string]any]{
		Event: func(d *domain.EventDetails) map[string]any {
			out := map[string]any{
				"event_type":           string(d.EventType),
				"event_date":           formatTime(d.EventDate),
				"event_time":           d.EventTime,
				"venue_name":           d.Venue.Name,
				"venue_address":        d.Venue.Address,
				"venue_city":           d.Venue.City,
				"guest_count":          d.GuestCount,
				"requested_services":   d.RequestedServices,
				"requested_staff":      d.RequestedStaff,
				"special_requirements": d.SpecialRequirements,
			}
			if d.Budget != nil {
				out["budget_min"] = d.Budget.Min
				out["budget_max"] = d.Budget.Max
			}
			return out
		},
		Service: func(d *domain.ServiceDetails) map[string]any {
			return map[string]any{
				"service_id":          d.ServiceID,
				"service_name":        d.ServiceName,
				"category":            d.Category,
				"package_id":          d.PackageID,
				"package_name":        d.PackageName,
				"custom_requirements": d.CustomRequirements,
				"service_date":        formatTimePtr(d.ServiceDate),
				"duration_hours":      d.DurationHours,
			}
		},
		Staff: func(d *domain.StaffDetails) map[string]any {
			return map[string]any{
				"staff_id":       d.StaffID,
				"staff_name":     d.StaffName,
				"role":           d.Role,
				"booking_date":   formatTime(d.BookingDate),
				"start_time":     d.StartTime,
				"end_time":       d.EndTime,
				"duration_hours": d.DurationHours,
				"location":       d.Location,
				"requirements":   d.Requirements,
			}
		},
		Offer: func(d *domain.OfferDetails) map[string]any {
			return map[string]any{
				"offer_id":           d.OfferID,
				"offer_title":        d.OfferTitle,
				"discount":           d.Discount,
				"redemption_date":    formatTime(d.RedemptionDate),
				"applied_service_id": d.AppliedServiceID,
				"applied_service":    d.AppliedService,
			}
		},
	})
	if err != nil {
		return nil
	}
	return details
}
