package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/alumni-core/internal/api/dto"
	"github.com/cuongbtq/alumni-core/internal/email"
	"github.com/cuongbtq/alumni-core/internal/paymenttoken"
	"github.com/cuongbtq/alumni-core/internal/profile"
)

// PaymentHandler handles payment token and signature requests
type PaymentHandler struct {
	logger     *slog.Logger
	payments   *paymenttoken.Service
	signatures *paymenttoken.SignatureVerifier
	profiles   profile.Repository
	mailer     email.Sender
}

// NewPaymentHandler creates a new PaymentHandler instance
func NewPaymentHandler(deps *Dependencies) *PaymentHandler {
	return &PaymentHandler{
		logger:     deps.Logger,
		payments:   deps.Payments,
		signatures: deps.Signatures,
		profiles:   deps.Profiles,
		mailer:     deps.Mailer,
	}
}

// ValidateToken handles POST /api/v1/payments/validate-token
func (h *PaymentHandler) ValidateToken(c *gin.Context) {
	var req dto.TokenRequest
	_ = c.ShouldBindJSON(&req)
	h.validate(c, req.Token)
}

// RegistrationLanding handles GET /api/v1/payments/registration/:token
func (h *PaymentHandler) RegistrationLanding(c *gin.Context) {
	h.validate(c, c.Param("token"))
}

func (h *PaymentHandler) validate(c *gin.Context, token string) {
	if strings.TrimSpace(token) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": paymenttoken.MsgTokenRequired})
		return
	}

	res, err := h.payments.ValidatePaymentToken(c.Request.Context(), token)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "Failed to validate payment token",
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"valid": false, "error": paymenttoken.MsgValidationFailed})
		return
	}

	if !res.Valid {
		c.JSON(http.StatusBadRequest, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// MarkTokenUsed handles POST /api/v1/payments/mark-token-used
func (h *PaymentHandler) MarkTokenUsed(c *gin.Context) {
	var req dto.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": paymenttoken.MsgTokenRequired})
		return
	}

	h.payments.MarkTokenAsUsed(c.Request.Context(), req.Token)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Token marked as used"})
}

// VerifySignature handles POST /api/v1/payments/verify-signature
func (h *PaymentHandler) VerifySignature(c *gin.Context) {
	var req dto.VerifySignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WarnContext(c.Request.Context(), "Invalid signature request",
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request",
			"message": "Missing required payment verification fields",
		})
		return
	}

	if !h.signatures.VerifyCheckoutSignature(req.OrderID, req.PaymentID, req.Signature) {
		h.logger.WarnContext(c.Request.Context(), "Payment signature mismatch",
			slog.String("order_id", req.OrderID),
			slog.String("payment_id", req.PaymentID),
		)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid payment signature"})
		return
	}

	if req.Token != "" {
		h.payments.MarkTokenAsUsed(c.Request.Context(), req.Token)
	}

	h.logger.InfoContext(c.Request.Context(), "Payment signature verified",
		slog.String("order_id", req.OrderID),
		slog.String("payment_id", req.PaymentID),
	)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Payment verified successfully",
		"data": gin.H{
			"orderId":   req.OrderID,
			"paymentId": req.PaymentID,
		},
	})
}

// webhookEvent is the part of a gateway webhook body we read.
type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string            `json:"id"`
				OrderID string            `json:"order_id"`
				Notes   map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// Webhook handles POST /api/v1/payments/webhook. The signature covers the raw body.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || len(body) == 0 {
		badRequest(c, "Request body is required")
		return
	}

	if !h.signatures.VerifyWebhookSignature(body, c.GetHeader("X-Razorpay-Signature")) {
		h.logger.WarnContext(c.Request.Context(), "Webhook signature mismatch")
		badRequest(c, "Invalid webhook signature")
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		badRequest(c, "Invalid webhook payload")
		return
	}

	entity := event.Payload.Payment.Entity
	h.logger.InfoContext(c.Request.Context(), "Payment webhook received",
		slog.String("event", event.Event),
		slog.String("payment_id", entity.ID),
		slog.String("order_id", entity.OrderID),
	)

	switch event.Event {
	case "payment.captured", "order.paid":
		if token := entity.Notes["token"]; token != "" {
			h.payments.MarkTokenAsUsed(c.Request.Context(), token)
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CreateRegistrationLink handles POST /api/v1/admin/payments/registration-link
func (h *PaymentHandler) CreateRegistrationLink(c *gin.Context) {
	var req dto.RegistrationLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	ctx := c.Request.Context()
	h.logger.InfoContext(ctx, "CreateRegistrationLink called",
		slog.String("user_id", req.UserID),
		slog.Int64("amount", req.Amount),
		slog.Bool("send_email", req.SendEmail),
	)

	user, err := h.profiles.GetByID(ctx, req.UserID)
	if err != nil {
		respondError(c, h.logger, "load profile", err)
		return
	}
	if user.PaymentStatus.Settled() {
		badRequest(c, paymenttoken.MsgAlreadyPaid)
		return
	}

	amount, currency, configID := req.Amount, strings.ToUpper(req.Currency), req.PaymentConfigID
	if amount == 0 {
		fee, err := h.payments.GetActivePaymentConfig(ctx, paymenttoken.CategoryRegistrationFee)
		if err != nil {
			respondError(c, h.logger, "load registration fee", err)
			return
		}
		amount, configID = fee.Amount, fee.ID
		if currency == "" {
			currency = fee.Currency
		}
	}

	issued, err := h.payments.CreateRegistrationPaymentLink(ctx, user.ID, amount, currency, configID)
	if err != nil {
		respondError(c, h.logger, "create payment link", err)
		return
	}

	emailSent := false
	if req.SendEmail {
		emailSent = h.mailLink(c, user, issued, amount, currency)
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"token":       issued.Token,
			"paymentLink": issued.PaymentLink,
			"expiresAt":   issued.ExpiresAt,
			"amount":      amount,
			"emailSent":   emailSent,
		},
	})
}

// mailLink sends the link to the profile owner. A failed send leaves the link usable.
func (h *PaymentHandler) mailLink(c *gin.Context, user *profile.Profile, issued *paymenttoken.Issued, amount int64, currency string) bool {
	ctx := c.Request.Context()
	if h.mailer == nil || user.Email == "" {
		return false
	}
	if currency == "" {
		currency = "INR"
	}

	msg, err := email.BuildPaymentLink(mail.Address{Name: user.DisplayName(), Address: user.Email}, email.PaymentLink{
		Name:        user.DisplayName(),
		AmountMinor: amount,
		Currency:    currency,
		Link:        issued.PaymentLink,
		ExpiresAt:   issued.ExpiresAt,
	})
	if err == nil {
		err = h.mailer.Send(ctx, msg)
	}
	if err != nil {
		h.logger.WarnContext(ctx, "Failed to send payment link email",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}
