package enums

// MembershipStatus captures the lifecycle of a fan membership.
type MembershipStatus string

const (
	MembershipStatusPending   MembershipStatus = "pending"
	MembershipStatusActive    MembershipStatus = "active"
	MembershipStatusCancelled MembershipStatus = "cancelled"
)

// TicketOrderStatus captures the lifecycle of a ticket order.
type TicketOrderStatus string

const (
	TicketOrderStatusPending TicketOrderStatus = "pending"
	TicketOrderStatusPaid    TicketOrderStatus = "paid"
	TicketOrderStatusFailed  TicketOrderStatus = "failed"
)

// ShopOrderStatus captures the lifecycle of a merchandise order.
type ShopOrderStatus string

const (
	ShopOrderStatusPending   ShopOrderStatus = "pending"
	ShopOrderStatusConfirmed ShopOrderStatus = "confirmed"
	ShopOrderStatusCancelled ShopOrderStatus = "cancelled"
)

// DonationStatus captures the lifecycle of a donation.
type DonationStatus string

const (
	DonationStatusPending   DonationStatus = "pending"
	DonationStatusConfirmed DonationStatus = "confirmed"
	DonationStatusFailed    DonationStatus = "failed"
)
