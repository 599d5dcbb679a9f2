// Package orderdoc defines the persisted shape of orders and order messages. Firestore stores
// it natively; SQLite stores it as a JSON column next to indexed scalar fields.
package orderdoc

import (
	"time"

	domain "github.com/eventdesk/api/internal/domain"
)

// Order is the stored order record.
type Order struct {
	ID             string         `firestore:"id" json:"id"`
	OrderNumber    string         `firestore:"orderNumber" json:"orderNumber"`
	Type           string         `firestore:"type" json:"type"`
	Client         Client         `firestore:"client" json:"client"`
	Status         string         `firestore:"status" json:"status"`
	StatusHistory  []StatusChange `firestore:"statusHistory" json:"statusHistory"`
	Quote          *Quote         `firestore:"quote,omitempty" json:"quote,omitempty"`
	QuoteHistory   []Quote        `firestore:"quoteHistory,omitempty" json:"quoteHistory,omitempty"`
	Payment        *Payment       `firestore:"payment,omitempty" json:"payment,omitempty"`
	Timeline       []Milestone    `firestore:"timeline,omitempty" json:"timeline,omitempty"`
	AdminNotes     string         `firestore:"adminNotes,omitempty" json:"adminNotes,omitempty"`
	AssignedAdmins []string       `firestore:"assignedAdmins,omitempty" json:"assignedAdmins,omitempty"`
	Cancellation   *Cancellation  `firestore:"cancellation,omitempty" json:"cancellation,omitempty"`
	Event          *Event         `firestore:"event,omitempty" json:"event,omitempty"`
	Service        *Service       `firestore:"service,omitempty" json:"service,omitempty"`
	Staff          *Staff         `firestore:"staff,omitempty" json:"staff,omitempty"`
	Offer          *Offer         `firestore:"offer,omitempty" json:"offer,omitempty"`
	Version        int64          `firestore:"version" json:"version"`
	CreatedBy      string         `firestore:"createdBy" json:"createdBy"`
	CreatedAt      time.Time      `firestore:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time      `firestore:"updatedAt" json:"updatedAt"`
}

type Client struct {
	UserID string `firestore:"userId,omitempty" json:"userId,omitempty"`
	Name   string `firestore:"name" json:"name"`
	Email  string `firestore:"email,omitempty" json:"email,omitempty"`
	Phone  string `firestore:"phone,omitempty" json:"phone,omitempty"`
}

type StatusChange struct {
	Status    string    `firestore:"status" json:"status"`
	ActorID   string    `firestore:"actorId" json:"actorId"`
	ActorName string    `firestore:"actorName,omitempty" json:"actorName,omitempty"`
	ChangedAt time.Time `firestore:"changedAt" json:"changedAt"`
	Notes     string    `firestore:"notes,omitempty" json:"notes,omitempty"`
}

type QuoteItem struct {
	Label       string `firestore:"label" json:"label"`
	Description string `firestore:"description,omitempty" json:"description,omitempty"`
	Amount      int64  `firestore:"amount" json:"amount"`
}

type Quote struct {
	ID            string      `firestore:"id" json:"id"`
	Items         []QuoteItem `firestore:"items" json:"items"`
	Total         int64       `firestore:"total" json:"total"`
	Discount      int64       `firestore:"discount" json:"discount"`
	FinalAmount   int64       `firestore:"finalAmount" json:"finalAmount"`
	Currency      string      `firestore:"currency" json:"currency"`
	Notes         string      `firestore:"notes,omitempty" json:"notes,omitempty"`
	ValidUntil    time.Time   `firestore:"validUntil" json:"validUntil"`
	CreatedAt     time.Time   `firestore:"createdAt" json:"createdAt"`
	CreatedByID   string      `firestore:"createdBy" json:"createdBy"`
	CreatedByName string      `firestore:"createdByName,omitempty" json:"createdByName,omitempty"`
	ArchivedAt    *time.Time  `firestore:"archivedAt,omitempty" json:"archivedAt,omitempty"`
	ArchiveReason string      `firestore:"archiveReason,omitempty" json:"archiveReason,omitempty"`
}

type Transaction struct {
	ID             string    `firestore:"id" json:"id"`
	Amount         int64     `firestore:"amount" json:"amount"`
	Method         string    `firestore:"method" json:"method"`
	Reference      string    `firestore:"reference,omitempty" json:"reference,omitempty"`
	Notes          string    `firestore:"notes,omitempty" json:"notes,omitempty"`
	RecordedAt     time.Time `firestore:"recordedAt" json:"recordedAt"`
	RecordedByID   string    `firestore:"recordedBy" json:"recordedBy"`
	RecordedByName string    `firestore:"recordedByName,omitempty" json:"recordedByName,omitempty"`
}

// Payment keeps the derived totals alongside the transactions so dashboards can index them.
// They are recomputed on every load.
type Payment struct {
	QuoteID      string        `firestore:"quoteId" json:"quoteId"`
	Total        int64         `firestore:"total" json:"total"`
	AmountPaid   int64         `firestore:"amountPaid" json:"amountPaid"`
	AmountDue    int64         `firestore:"amountDue" json:"amountDue"`
	Status       string        `firestore:"status" json:"status"`
	Transactions []Transaction `firestore:"transactions" json:"transactions"`
}

type Milestone struct {
	ID        string    `firestore:"id" json:"id"`
	Title     string    `firestore:"title" json:"title"`
	Notes     string    `firestore:"notes,omitempty" json:"notes,omitempty"`
	Date      time.Time `firestore:"date" json:"date"`
	Completed bool      `firestore:"completed" json:"completed"`
	CreatedAt time.Time `firestore:"createdAt" json:"createdAt"`
	CreatedBy string    `firestore:"createdBy" json:"createdBy"`
}

type Cancellation struct {
	Reason       string    `firestore:"reason" json:"reason"`
	RefundAmount *int64    `firestore:"refundAmount,omitempty" json:"refundAmount,omitempty"`
	CancelledAt  time.Time `firestore:"cancelledAt" json:"cancelledAt"`
	CancelledBy  string    `firestore:"cancelledBy" json:"cancelledBy"`
}

type Event struct {
	EventType           string    `firestore:"eventType" json:"eventType"`
	EventDate           time.Time `firestore:"eventDate" json:"eventDate"`
	EventTime           string    `firestore:"eventTime,omitempty" json:"eventTime,omitempty"`
	VenueName           string    `firestore:"venueName,omitempty" json:"venueName,omitempty"`
	VenueAddress        string    `firestore:"venueAddress,omitempty" json:"venueAddress,omitempty"`
	VenueCity           string    `firestore:"venueCity,omitempty" json:"venueCity,omitempty"`
	GuestCount          int       `firestore:"guestCount" json:"guestCount"`
	RequestedServices   []string  `firestore:"requestedServices,omitempty" json:"requestedServices,omitempty"`
	RequestedStaff      []string  `firestore:"requestedStaff,omitempty" json:"requestedStaff,omitempty"`
	BudgetMin           *int64    `firestore:"budgetMin,omitempty" json:"budgetMin,omitempty"`
	BudgetMax           *int64    `firestore:"budgetMax,omitempty" json:"budgetMax,omitempty"`
	SpecialRequirements string    `firestore:"specialRequirements,omitempty" json:"specialRequirements,omitempty"`
}

type Service struct {
	ServiceID          string     `firestore:"serviceId" json:"serviceId"`
	ServiceName        string     `firestore:"serviceName" json:"serviceName"`
	Category           string     `firestore:"category,omitempty" json:"category,omitempty"`
	PackageID          string     `firestore:"packageId,omitempty" json:"packageId,omitempty"`
	PackageName        string     `firestore:"packageName,omitempty" json:"packageName,omitempty"`
	CustomRequirements string     `firestore:"customRequirements,omitempty" json:"customRequirements,omitempty"`
	ServiceDate        *time.Time `firestore:"serviceDate,omitempty" json:"serviceDate,omitempty"`
	DurationHours      float64    `firestore:"durationHours,omitempty" json:"durationHours,omitempty"`
}

type Staff struct {
	StaffID       string    `firestore:"staffId" json:"staffId"`
	StaffName     string    `firestore:"staffName" json:"staffName"`
	Role          string    `firestore:"role,omitempty" json:"role,omitempty"`
	BookingDate   time.Time `firestore:"bookingDate" json:"bookingDate"`
	StartTime     string    `firestore:"startTime,omitempty" json:"startTime,omitempty"`
	EndTime       string    `firestore:"endTime,omitempty" json:"endTime,omitempty"`
	DurationHours float64   `firestore:"durationHours,omitempty" json:"durationHours,omitempty"`
	Location      string    `firestore:"location,omitempty" json:"location,omitempty"`
	Requirements  string    `firestore:"requirements,omitempty" json:"requirements,omitempty"`
}

type Offer struct {
	OfferID          string    `firestore:"offerId" json:"offerId"`
	OfferTitle       string    `firestore:"offerTitle" json:"offerTitle"`
	Discount         string    `firestore:"discount,omitempty" json:"discount,omitempty"`
	RedemptionDate   time.Time `firestore:"redemptionDate" json:"redemptionDate"`
	AppliedServiceID string    `firestore:"appliedServiceId,omitempty" json:"appliedServiceId,omitempty"`
	AppliedService   string    `firestore:"appliedService,omitempty" json:"appliedService,omitempty"`
}

// FromOrder converts a domain order to its stored form.
func FromOrder(o domain.Order) Order {
	doc := Order{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Type:        string(o.Type),
		Client: Client{
			UserID: o.Client.UserID,
			Name:   o.Client.Name,
			Email:  o.Client.Email,
			Phone:  o.Client.Phone,
		},
		Status:         string(o.Status),
		AdminNotes:     o.AdminNotes,
		AssignedAdmins: append([]string(nil), o.AssignedAdmins...),
		Version:        o.Version,
		CreatedBy:      o.CreatedBy,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	for _, h := range o.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, StatusChange{
			Status:    string(h.Status),
			ActorID:   h.ActorID,
			ActorName: h.ActorName,
			ChangedAt: h.ChangedAt,
			Notes:     h.Notes,
		})
	}
	if o.Quote != nil {
		q := fromQuote(*o.Quote)
		doc.Quote = &q
	}
	for _, q := range o.QuoteHistory {
		doc.QuoteHistory = append(doc.QuoteHistory, fromQuote(q))
	}
	if o.Payment != nil {
		p := Payment{
			QuoteID:    o.Payment.QuoteID,
			Total:      o.Payment.Total,
			AmountPaid: o.Payment.AmountPaid,
			AmountDue:  o.Payment.AmountDue,
			Status:     string(o.Payment.Status),
		}
		p.Transactions = []Transaction{}
		for _, tx := range o.Payment.Transactions {
			p.Transactions = append(p.Transactions, Transaction{
				ID:             tx.ID,
				Amount:         tx.Amount,
				Method:         string(tx.Method),
				Reference:      tx.Reference,
				Notes:          tx.Notes,
				RecordedAt:     tx.RecordedAt,
				RecordedByID:   tx.RecordedBy.ID,
				RecordedByName: tx.RecordedBy.DisplayName,
			})
		}
		doc.Payment = &p
	}
	for _, m := range o.Timeline {
		doc.Timeline = append(doc.Timeline, Milestone{
			ID:        m.ID,
			Title:     m.Title,
			Notes:     m.Notes,
			Date:      m.Date,
			Completed: m.Completed,
			CreatedAt: m.CreatedAt,
			CreatedBy: m.CreatedBy,
		})
	}
	if o.Cancellation != nil {
		doc.Cancellation = &Cancellation{
			Reason:       o.Cancellation.Reason,
			RefundAmount: o.Cancellation.RefundAmount,
			CancelledAt:  o.Cancellation.CancelledAt,
			CancelledBy:  o.Cancellation.CancelledBy,
		}
	}
	if e := o.Event; e != nil {
		doc.Event = &Event{
			EventType:           string(e.EventType),
			EventDate:           e.EventDate,
			EventTime:           e.EventTime,
			VenueName:           e.Venue.Name,
			VenueAddress:        e.Venue.Address,
			VenueCity:           e.Venue.City,
			GuestCount:          e.GuestCount,
			RequestedServices:   append([]string(nil), e.RequestedServices...),
			RequestedStaff:      append([]string(nil), e.RequestedStaff...),
			SpecialRequirements: e.SpecialRequirements,
		}
		if e.Budget != nil {
			minimum, maximum := e.Budget.Min, e.Budget.Max
			doc.Event.BudgetMin = &minimum
			doc.Event.BudgetMax = &maximum
		}
	}
	if s := o.Service; s != nil {
		doc.Service = &Service{
			ServiceID:          s.ServiceID,
			ServiceName:        s.ServiceName,
			Category:           s.Category,
			PackageID:          s.PackageID,
			PackageName:        s.PackageName,
			CustomRequirements: s.CustomRequirements,
			ServiceDate:        s.ServiceDate,
			DurationHours:      s.DurationHours,
		}
	}
	if s := o.Staff; s != nil {
		doc.Staff = &Staff{
			StaffID:       s.StaffID,
			StaffName:     s.StaffName,
			Role:          s.Role,
			BookingDate:   s.BookingDate,
			StartTime:     s.StartTime,
			EndTime:       s.EndTime,
			DurationHours: s.DurationHours,
			Location:      s.Location,
			Requirements:  s.Requirements,
		}
	}
	if f := o.Offer; f != nil {
		doc.Offer = &Offer{
			OfferID:          f.OfferID,
			OfferTitle:       f.OfferTitle,
			Discount:         f.Discount,
			RedemptionDate:   f.RedemptionDate,
			AppliedServiceID: f.AppliedServiceID,
			AppliedService:   f.AppliedService,
		}
	}
	return doc
}

// ToOrder converts the stored form back to a domain order. Payment totals are re-derived
// from the transactions rather than trusted.
func (d Order) ToOrder() domain.Order {
	o := domain.Order{
		ID:          d.ID,
		OrderNumber: d.OrderNumber,
		Type:        domain.OrderType(d.Type),
		Client: domain.ClientRef{
			UserID: d.Client.UserID,
			Name:   d.Client.Name,
			Email:  d.Client.Email,
			Phone:  d.Client.Phone,
		},
		Status:         domain.OrderStatus(d.Status),
		AdminNotes:     d.AdminNotes,
		AssignedAdmins: append([]string(nil), d.AssignedAdmins...),
		Version:        d.Version,
		CreatedBy:      d.CreatedBy,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
	for _, h := range d.StatusHistory {
		o.StatusHistory = append(o.StatusHistory, domain.StatusChange{
			Status:    domain.OrderStatus(h.Status),
			ActorID:   h.ActorID,
			ActorName: h.ActorName,
			ChangedAt: h.ChangedAt.UTC(),
			Notes:     h.Notes,
		})
	}
	if d.Quote != nil {
		q := d.Quote.toQuote()
		o.Quote = &q
	}
	for _, q := range d.QuoteHistory {
		o.QuoteHistory = append(o.QuoteHistory, q.toQuote())
	}
	if d.Payment != nil {
		var txs []domain.PaymentTransaction
		for _, tx := range d.Payment.Transactions {
			txs = append(txs, domain.PaymentTransaction{
				ID:         tx.ID,
				Amount:     tx.Amount,
				Method:     domain.PaymentMethod(tx.Method),
				Reference:  tx.Reference,
				Notes:      tx.Notes,
				RecordedAt: tx.RecordedAt.UTC(),
				RecordedBy: domain.Actor{ID: tx.RecordedByID, DisplayName: tx.RecordedByName},
			})
		}
		total := d.Payment.Total
		if o.Quote != nil {
			total = o.Quote.FinalAmount
		}
		payment := domain.DerivePayment(d.Payment.QuoteID, total, txs)
		o.Payment = &payment
	}
	for _, m := range d.Timeline {
		o.Timeline = append(o.Timeline, domain.TimelineMilestone{
			ID:        m.ID,
			Title:     m.Title,
			Notes:     m.Notes,
			Date:      m.Date.UTC(),
			Completed: m.Completed,
			CreatedAt: m.CreatedAt.UTC(),
			CreatedBy: m.CreatedBy,
		})
	}
	if c := d.Cancellation; c != nil {
		o.Cancellation = &domain.Cancellation{
			Reason:       c.Reason,
			RefundAmount: c.RefundAmount,
			CancelledAt:  c.CancelledAt.UTC(),
			CancelledBy:  c.CancelledBy,
		}
	}
	if e := d.Event; e != nil {
		o.Event = &domain.EventDetails{
			EventType:           domain.EventType(e.EventType),
			EventDate:           e.EventDate.UTC(),
			EventTime:           e.EventTime,
			Venue:               domain.Venue{Name: e.VenueName, Address: e.VenueAddress, City: e.VenueCity},
			GuestCount:          e.GuestCount,
			RequestedServices:   append([]string(nil), e.RequestedServices...),
			RequestedStaff:      append([]string(nil), e.RequestedStaff...),
			SpecialRequirements: e.SpecialRequirements,
		}
		if e.BudgetMin != nil || e.BudgetMax != nil {
			budget := domain.BudgetRange{}
			if e.BudgetMin != nil {
				budget.Min = *e.BudgetMin
			}
			if e.BudgetMax != nil {
				budget.Max = *e.BudgetMax
			}
			o.Event.Budget = &budget
		}
	}
	if s := d.Service; s != nil {
		o.Service = &domain.ServiceDetails{
			ServiceID:          s.ServiceID,
			ServiceName:        s.ServiceName,
			Category:           s.Category,
			PackageID:          s.PackageID,
			PackageName:        s.PackageName,
			CustomRequirements: s.CustomRequirements,
			DurationHours:      s.DurationHours,
		}
		if s.ServiceDate != nil {
			date := s.ServiceDate.UTC()
			o.Service.ServiceDate = &date
		}
	}
	if s := d.Staff; s != nil {
		o.Staff = &domain.StaffDetails{
			StaffID:       s.StaffID,
			StaffName:     s.StaffName,
			Role:          s.Role,
			BookingDate:   s.BookingDate.UTC(),
			StartTime:     s.StartTime,
			EndTime:       s.EndTime,
			DurationHours: s.DurationHours,
			Location:      s.Location,
			Requirements:  s.Requirements,
		}
	}
	if f := d.Offer; f != nil {
		o.Offer = &domain.OfferDetails{
			OfferID:          f.OfferID,
			OfferTitle:       f.OfferTitle,
			Discount:         f.Discount,
			RedemptionDate:   f.RedemptionDate.UTC(),
			AppliedServiceID: f.AppliedServiceID,
			AppliedService:   f.AppliedService,
		}
	}
	return o
}

func fromQuote(q domain.Quote) Quote {
	doc := Quote{
		ID:            q.ID,
		Total:         q.Total,
		Discount:      q.Discount,
		FinalAmount:   q.FinalAmount,
		Currency:      q.Currency,
		Notes:         q.Notes,
		ValidUntil:    q.ValidUntil,
		CreatedAt:     q.CreatedAt,
		CreatedByID:   q.CreatedBy.ID,
		CreatedByName: q.CreatedBy.DisplayName,
		ArchivedAt:    q.ArchivedAt,
		ArchiveReason: q.ArchiveReason,
	}
	doc.Items = make([]QuoteItem, 0, len(q.Items))
	for _, item := range q.Items {
		doc.Items = append(doc.Items, QuoteItem{Label: item.Label, Description: item.Description, Amount: item.Amount})
	}
	return doc
}

func (q Quote) toQuote() domain.Quote {
	out := domain.Quote{
		ID:            q.ID,
		Total:         q.Total,
		Discount:      q.Discount,
		FinalAmount:   q.FinalAmount,
		Currency:      q.Currency,
		Notes:         q.Notes,
		ValidUntil:    q.ValidUntil.UTC(),
		CreatedAt:     q.CreatedAt.UTC(),
		CreatedBy:     domain.Actor{ID: q.CreatedByID, DisplayName: q.CreatedByName},
		ArchiveReason: q.ArchiveReason,
	}
	if q.ArchivedAt != nil {
		at := q.ArchivedAt.UTC()
		out.ArchivedAt = &at
	}
	for _, item := range q.Items {
		out.Items = append(out.Items, domain.QuoteItem{Label: item.Label, Description: item.Description, Amount: item.Amount})
	}
	return out
}
