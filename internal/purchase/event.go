package purchase

// Progress event names. Callers key analytics on these strings; never rename them.
const (
	EventPaymentStart             = "payment_start"
	EventPaymentInvalidRequest    = "payment_invalid_request"
	EventPaymentNotReady          = "payment_not_ready"
	EventPaymentAlreadyProcessing = "payment_already_processing"
	EventPaymentCompleted         = "payment_completed"
	EventPaymentCancelled         = "payment_cancelled"
	EventPaymentError             = "payment_error"
	EventPaymentFinish            = "payment_finish"
	EventPaymentFinishError       = "payment_finish_error"
	EventPaymentReset             = "payment_reset"
	EventPaymentUnfinished        = "payment_unfinished"
	EventPaymentSetupError        = "payment_setup_error"

	EventIAPSetup                  = "iap_setup"
	EventIAPSetupProducts          = "iap_setup_products"
	EventIAPSetupSubscriptions     = "iap_setup_subscriptions"
	EventIAPReady                  = "iap_ready"
	EventIAPEarlyPurchase          = "iap_early_purchase"
	EventIAPRequestingPurchase     = "iap_requesting_purchase"
	EventIAPRequestedPurchase      = "iap_requested_purchase"
	EventIAPPurchaseCancelled      = "iap_purchase_cancelled"
	EventIAPRequestingSubscription = "iap_requesting_subscription"
	EventIAPRequestedSubscription  = "iap_requested_subscription"
	EventIAPSubscriptionCancelled  = "iap_subscription_cancelled"
	EventIAPListenerUpdate         = "iap_listener_update"
	EventIAPListenerError          = "iap_listener_error"
	EventIAPVerifyFailed           = "iap_verify_failed"

	EventNPSetup             = "np_setup"
	EventNPNotSetup          = "np_not_setup"
	EventNPDeviceSupport     = "np_device_support"
	EventNPPaymentCapability = "np_payment_capability"
	EventNPToken             = "np_token"
	EventNPError             = "np_error"
	EventCCFallback          = "cc_fallback"
	EventCCToken             = "cc_token"
	EventNPSettle            = "np_settle"
)

// Event is one progress notification.
type Event struct {
	Name           string         `json:"event"`
	ProductID      string         `json:"product_id,omitempty"`
	Amount         int64          `json:"amount,omitempty"`
	Description    string         `json:"description,omitempty"`
	IsSubscription bool           `json:"is_subscription,omitempty"`
	Meta           map[string]any `json:"meta,omitempty"`
	Err            error          `json:"-"`
}

// ProgressFunc receives progress events. It must not block.
type ProgressFunc func(Event)

// NewEvent builds an event carrying the request fields.
func NewEvent(name string, req *Request) Event {
	ev := Event{Name: name}
	if req != nil {
		ev.ProductID = req.ProductID
		ev.Amount = req.AmountMinorUnits
		ev.Description = req.Description
		ev.IsSubscription = req.IsSubscription
	}
	return ev
}

// With returns a copy of ev with meta key set.
func (ev Event) With(key string, value any) Event {
	meta := make(map[string]any, len(ev.Meta)+1)
	for k, v := range ev.Meta {
		meta[k] = v
	}
	meta[key] = value
	ev.Meta = meta
	return ev
}

// WithErr returns a copy of ev carrying err.
func (ev Event) WithErr(err error) Event {
	ev.Err = err
	return ev
}

// Emit calls fn when it is set.
func (fn ProgressFunc) Emit(ev Event) {
	if fn != nil {
		fn(ev)
	}
}
