package dto

type TokenRequest struct {
	Token string `json:"token"`
}

type RegistrationLinkRequest struct {
	UserID          string `json:"userId" binding:"notblank"`
	Amount          int64  `json:"amount" binding:"gte=0"`
	Currency        string `json:"currency" binding:"omitempty,len=3"`
	PaymentConfigID string `json:"paymentConfigId"`
	// SendEmail mails the link to the profile's email address.
	SendEmail bool `json:"sendEmail"`
}

type VerifySignatureRequest struct {
	OrderID   string `json:"razorpay_order_id" binding:"notblank"`
	PaymentID string `json:"razorpay_payment_id" binding:"notblank"`
	Signature string `json:"razorpay_signature" binding:"notblank"`
	Token     string `json:"token"`
}
