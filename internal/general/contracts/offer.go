package contracts

// SubmitOfferPayload is the body of "submitOffer".
type SubmitOfferPayload struct {
	RideID string  `json:"ride_id"`
	Price  float64 `json:"price"`
}

// AcceptOfferPayload is the body of "acceptOffer".
type AcceptOfferPayload struct {
	OfferID string `json:"offer_id"`
}

// NewOfferPayload notifies the passenger about a bid.
type NewOfferPayload struct {
	Offer  OfferView   `json:"offer"`
	Driver DriverBrief `json:"driver"`
}

// OfferAcceptedPayload goes to the winning driver and, as rideAcceptedSuccess, to the passenger.
type OfferAcceptedPayload struct {
	Ride   RideView     `json:"ride"`
	Offer  OfferView    `json:"offer"`
	Driver *DriverBrief `json:"driver,omitempty"`
}

// OfferRejectedPayload goes to each losing bidder.
type OfferRejectedPayload struct {
	OfferID string `json:"offer_id"`
	RideID  string `json:"ride_id"`
	Reason  string `json:"reason"`
}
