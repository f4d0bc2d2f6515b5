package notifications

// Template names a message rendered by the templated-notification service.
type Template string

const (
	TemplatePurchasePending      Template = "purchase_pending"
	TemplatePurchaseConfirmation Template = "purchase_confirmation"
	TemplateGiftReceived         Template = "gift_received"
	TemplatePaymentRejected      Template = "payment_rejected"
	TemplateOrderExpired         Template = "order_expired"
	TemplateGiftUsed             Template = "gift_used"
	TemplateLowStock             Template = "low_stock"
)

var subjects = map[Template]string{
	TemplatePurchasePending:      "We are waiting for your payment",
	TemplatePurchaseConfirmation: "Your gift cards are ready",
	TemplateGiftReceived:         "You received a gift card",
	TemplatePaymentRejected:      "Your payment was not approved",
	TemplateOrderExpired:         "Your order expired",
	TemplateGiftUsed:             "A gift card was redeemed",
	TemplateLowStock:             "A listing is running low on stock",
}

// IsValid reports whether t is a known template.
func (t Template) IsValid() bool {
	_, ok := subjects[t]
	return ok
}

// DefaultSubject returns the subject line used when a message carries none.
func (t Template) DefaultSubject() string {
	return subjects[t]
}

func (t Template) String() string {
	return string(t)
}
