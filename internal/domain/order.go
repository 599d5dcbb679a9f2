package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// ErrUnknownOrderType is returned when an order carries a discriminant outside OrderTypes.
	ErrUnknownOrderType = errors.New("order: unknown order type")
	// ErrOrderPayloadMismatch is returned when the populated payload disagrees with the order type.
	ErrOrderPayloadMismatch = errors.New("order: payload does not match order type")
	// ErrIncompleteOrderCases is returned by MatchOrder when a variant handler is missing.
	ErrIncompleteOrderCases = errors.New("order: match requires a handler for every order type")
)

// OrderType discriminates the order variants.
type OrderType string

const (
	OrderTypeEvent   OrderType = "event"
	OrderTypeService OrderType = "service"
	OrderTypeStaff   OrderType = "staff"
	OrderTypeOffer   OrderType = "offer"
)

// OrderTypes lists every variant. Consumers that dispatch on the variant are tested against it.
var OrderTypes = []OrderType{OrderTypeEvent, OrderTypeService, OrderTypeStaff, OrderTypeOffer}

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool {
	return slices.Contains(OrderTypes, t)
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusQuoted    OrderStatus = "quoted"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists statuses in lifecycle priority order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusQuoted,
	OrderStatusConfirmed,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	return slices.Contains(OrderStatuses, s)
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// Priority returns the sort rank of the status, pending first.
func (s OrderStatus) Priority() int {
	if idx := slices.Index(OrderStatuses, s); idx >= 0 {
		return idx
	}
	return len(OrderStatuses)
}

// ClientRef identifies the client who placed the order.
type ClientRef struct {
	UserID string
	Name   string
	Email  string
	Phone  string
}

// StatusChange is one entry of the append-only status history.
type StatusChange struct {
	Status    OrderStatus
	ActorID   string
	ActorName string
	ChangedAt time.Time
	Notes     string
}

// TimelineMilestone is a dated progress checkpoint.
type TimelineMilestone struct {
	ID        string
	Title     string
	Notes     string
	Date      time.Time
	Completed bool
	CreatedAt time.Time
	CreatedBy string
}

// Cancellation records why and by whom an order was cancelled.
type Cancellation struct {
	Reason       string
	RefundAmount *int64
	CancelledAt  time.Time
	CancelledBy  string
}

// Order is a client request tracked through the status lifecycle. Exactly one of Event, Service,
// Staff or Offer is populated and Type says which.
type Order struct {
	ID             string
	OrderNumber    string
	Type           OrderType
	Client         ClientRef
	Status         OrderStatus
	StatusHistory  []StatusChange
	Quote          *Quote
	QuoteHistory   []Quote
	Payment        *Payment
	Timeline       []TimelineMilestone
	AdminNotes     string
	AssignedAdmins []string
	Cancellation   *Cancellation

	Event   *EventDetails
	Service *ServiceDetails
	Staff   *StaffDetails
	Offer   *OfferDetails

	Version   int64
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Classify returns the variant tag of the order. The stored discriminant is authoritative.
func Classify(order Order) OrderType {
	return order.Type
}

// OrderDetails is the behaviour shared by every variant payload.
type OrderDetails interface {
	OrderType() OrderType
	Summary() string
	DisplayDate() *time.Time

	sealed()
}

// Details returns the populated payload selected by the order type.
func (o Order) Details() (OrderDetails, error) {
	return MatchOrder(o, OrderCases[OrderDetails]{
		Event:   func(d *EventDetails) OrderDetails { return d },
		Service: func(d *ServiceDetails) OrderDetails { return d },
		Staff:   func(d *StaffDetails) OrderDetails { return d },
		Offer:   func(d *OfferDetails) OrderDetails { return d },
	})
}

// Summary returns the one-line description of the order's variant payload.
func (o Order) Summary() string {
	details, err := o.Details()
	if err != nil {
		return ""
	}
	return details.Summary()
}

// DisplayDate returns the single most relevant date for the order, or nil.
func (o Order) DisplayDate() *time.Time {
	details, err := o.Details()
	if err != nil {
		return nil
	}
	return details.DisplayDate()
}

// HasQuote reports whether a quote is attached.
func (o Order) HasQuote() bool {
	return o.Quote != nil
}

// LastStatusChange returns the newest history entry.
func (o Order) LastStatusChange() (StatusChange, bool) {
	if len(o.StatusHistory) == 0 {
		return StatusChange{}, false
	}
	return o.StatusHistory[len(o.StatusHistory)-1], true
}

// OrderCases holds one handler per variant for MatchOrder.
type OrderCases[T any] struct {
	Event   func(*EventDetails) T
	Service func(*ServiceDetails) T
	Staff   func(*StaffDetails) T
	Offer   func(*OfferDetails) T
}

func (c OrderCases[T]) complete() bool {
	return c.Event != nil && c.Service != nil && c.Staff != nil && c.Offer != nil
}

// MatchOrder dispatches on the order type. Every handler must be supplied.
func MatchOrder[T any](order Order, cases OrderCases[T]) (T, error) {
	var zero T
	if !cases.complete() {
		return zero, ErrIncompleteOrderCases
	}
	switch order.Type {
	case OrderTypeEvent:
		if order.Event == nil {
			return zero, fmt.Errorf("%w: event payload missing", ErrOrderPayloadMismatch)
		}
		return cases.Event(order.Event), nil
	case OrderTypeService:
		if order.Service == nil {
			return zero, fmt.Errorf("%w: service payload missing", ErrOrderPayloadMismatch)
		}
		return cases.Service(order.Service), nil
	case OrderTypeStaff:
		if order.Staff == nil {
			return zero, fmt.Errorf("%w: staff payload missing", ErrOrderPayloadMismatch)
		}
		return cases.Staff(order.Staff), nil
	case OrderTypeOffer:
		if order.Offer == nil {
			return zero, fmt.Errorf("%w: offer payload missing", ErrOrderPayloadMismatch)
		}
		return cases.Offer(order.Offer), nil
	default:
		return zero, fmt.Errorf("%w: %q", ErrUnknownOrderType, order.Type)
	}
}

// NewOrder assembles a pending order around the supplied variant payload. The order type is
// taken from the payload so the two cannot disagree.
func NewOrder(id string, client ClientRef, details OrderDetails, actor Actor, now time.Time) (Order, error) {
	if details == nil {
		return Order{}, fmt.Errorf("%w: payload is required", ErrOrderPayloadMismatch)
	}
	order := Order{
		ID:        id,
		Type:      details.OrderType(),
		Client:    client,
		Status:    OrderStatusPending,
		CreatedBy: actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
		StatusHistory: []StatusChange{{
			Status:    OrderStatusPending,
			ActorID:   actor.ID,
			ActorName: actor.DisplayName,
			ChangedAt: now,
			Notes:     "order created",
		}},
	}
	switch d := details.(type) {
	case *EventDetails:
		order.Event = d
	case *ServiceDetails:
		order.Service = d
	case *StaffDetails:
		order.Staff = d
	case *OfferDetails:
		order.Offer = d
	}
	if err := ValidatePayload(order); err != nil {
		return Order{}, err
	}
	return order, nil
}

// ValidatePayload ensures that the payload for the order type is present and no other is.
func ValidatePayload(order Order) error {
	if !order.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownOrderType, order.Type)
	}
	populated := 0
	for _, set := range []bool{order.Event != nil, order.Service != nil, order.Staff != nil, order.Offer != nil} {
		if set {
			populated++
		}
	}
	if populated != 1 {
		return fmt.Errorf("%w: expected exactly one payload, got %d", ErrOrderPayloadMismatch, populated)
	}
	if _, err := order.Details(); err != nil {
		return err
	}
	return nil
}

// EventType enumerates bookable event kinds.
type EventType string

const (
	EventTypeWedding    EventType = "wedding"
	EventTypeBirthday   EventType = "birthday"
	EventTypeCorporate  EventType = "corporate"
	EventTypeConference EventType = "conference"
	EventTypeParty      EventType = "party"
	EventTypeOther      EventType = "other"
)

// EventTypes lists the supported event kinds.
var EventTypes = []EventType{
	EventTypeWedding,
	EventTypeBirthday,
	EventTypeCorporate,
	EventTypeConference,
	EventTypeParty,
	EventTypeOther,
}

// Venue describes where an event takes place.
type Venue struct {
	Name    string
	Address string
	City    string
}

// BudgetRange is the client's indicative budget in minor units.
type BudgetRange struct {
	Min int64
	Max int64
}

// EventDetails is the payload of an event booking.
type EventDetails struct {
	EventType           EventType
	EventDate           time.Time
	EventTime           string
	Venue               Venue
	GuestCount          int
	RequestedServices   []string
	RequestedStaff      []string
	Budget              *BudgetRange
	SpecialRequirements string
}

// ServiceDetails is the payload of a single service booking.
type ServiceDetails struct {
	ServiceID          string
	ServiceName        string
	Category           string
	PackageID          string
	PackageName        string
	CustomRequirements string
	ServiceDate        *time.Time
	DurationHours      float64
}

// StaffDetails is the payload of a staff booking.
type StaffDetails struct {
	StaffID       string
	StaffName     string
	Role          string
	BookingDate   time.Time
	StartTime     string
	EndTime       string
	DurationHours float64
	Location      string
	Requirements  string
}

// OfferDetails is the payload of an offer redemption.
type OfferDetails struct {
	OfferID          string
	OfferTitle       string
	Discount         string
	RedemptionDate   time.Time
	AppliedServiceID string
	AppliedService   string
}

var titleCaser = cases.Title(language.English)

func (*EventDetails) sealed()   {}
func (*ServiceDetails) sealed() {}
func (*StaffDetails) sealed()   {}
func (*OfferDetails) sealed()   {}

func (*EventDetails) OrderType() OrderType   { return OrderTypeEvent }
func (*ServiceDetails) OrderType() OrderType { return OrderTypeService }
func (*StaffDetails) OrderType() OrderType   { return OrderTypeStaff }
func (*OfferDetails) OrderType() OrderType   { return OrderTypeOffer }

func (d *EventDetails) Summary() string {
	kind := titleCaser.String(strings.TrimSpace(string(d.EventType)))
	if kind == "" {
		kind = "Event"
	}
	summary := fmt.Sprintf("%s for %d guests", kind, d.GuestCount)
	if venue := joinNonEmpty(", ", d.Venue.Name, d.Venue.City); venue != "" {
		summary += " at " + venue
	}
	return summary
}

func (d *EventDetails) DisplayDate() *time.Time {
	return datePtr(d.EventDate)
}

func (d *ServiceDetails) Summary() string {
	summary := strings.TrimSpace(d.ServiceName)
	if summary == "" {
		summary = "Service booking"
	}
	if category := strings.TrimSpace(d.Category); category != "" {
		summary += " (" + category + ")"
	}
	if pkg := strings.TrimSpace(d.PackageName); pkg != "" {
		summary += ", " + pkg + " package"
	}
	return summary
}

func (d *ServiceDetails) DisplayDate() *time.Time {
	if d.ServiceDate == nil {
		return nil
	}
	return datePtr(*d.ServiceDate)
}

func (d *StaffDetails) Summary() string {
	summary := strings.TrimSpace(d.StaffName)
	if summary == "" {
		summary = "Staff booking"
	}
	if role := strings.TrimSpace(d.Role); role != "" {
		summary += " as " + role
	}
	if window := joinNonEmpty("-", d.StartTime, d.EndTime); window != "" {
		summary += ", " + window
	}
	return summary
}

func (d *StaffDetails) DisplayDate() *time.Time {
	return datePtr(d.BookingDate)
}

func (d *OfferDetails) Summary() string {
	summary := strings.TrimSpace(d.OfferTitle)
	if summary == "" {
		summary = "Offer redemption"
	}
	if discount := strings.TrimSpace(d.Discount); discount != "" {
		summary += " (" + discount + ")"
	}
	if applied := strings.TrimSpace(d.AppliedService); applied != "" {
		summary += " on " + applied
	}
	return summary
}

func (d *OfferDetails) DisplayDate() *time.Time {
	return datePtr(d.RedemptionDate)
}

func datePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t
	return &v
}

func joinNonEmpty(sep string, values ...string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, sep)
}
