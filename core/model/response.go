package model

// Response is a message correlated to an originating request, with a per-item
// outcome ledger folded into its body. Every requested item id receives
// exactly one of success, failure or receipt.
type Response struct {
	Message
}

// NewResponse creates a response to the given request carrying the provided
// body. A nil inResponseTo yields a plain notification-style message.
func NewResponse(typ string, body Body, inResponseTo *Message) *Response {
	msg := NewMessage(typ, body)
	if inResponseTo != nil {
		msg.Refs = inResponseTo.ID
	}
	return &Response{Message: *msg}
}

// AddSuccess records a successful outcome for the given item id.
func (r *Response) AddSuccess(id string) {
	ids, _ := r.Body["success"].([]string)
	r.Body["success"] = append(ids, id)
}

// AddFailure records a failed outcome with a human-readable reason.
func (r *Response) AddFailure(id, reason string) {
	failures, _ := r.Body["failure"].(map[string]string)
	if failures == nil {
		failures = make(map[string]string)
		r.Body["failure"] = failures
	}
	failures[id] = reason
}

// AddReceipt records an asynchronous outcome as a receipt status view.
func (r *Response) AddReceipt(id string, view map[string]any) {
	receipts, _ := r.Body["receipt"].(map[string]map[string]any)
	if receipts == nil {
		receipts = make(map[string]map[string]any)
		r.Body["receipt"] = receipts
	}
	receipts[id] = view
}

// Successes returns the ids recorded as successful.
func (r *Response) Successes() []string {
	ids, _ := r.Body["success"].([]string)
	return ids
}

// FailureReason returns the failure reason recorded for the given id, if any.
func (r *Response) FailureReason(id string) (string, bool) {
	failures, _ := r.Body["failure"].(map[string]string)
	reason, ok := failures[id]
	return reason, ok
}

// Receipt returns the receipt view recorded for the given id, if any.
func (r *Response) Receipt(id string) (map[string]any, bool) {
	receipts, _ := r.Body["receipt"].(map[string]map[string]any)
	view, ok := receipts[id]
	return view, ok
}

// OutcomeCount returns the total number of ledger entries across all three
// outcome classes.
func (r *Response) OutcomeCount() int {
	n := len(r.Successes())
	if failures, ok := r.Body["failure"].(map[string]string); ok {
		n += len(failures)
	}
	if receipts, ok := r.Body["receipt"].(map[string]map[string]any); ok {
		n += len(receipts)
	}
	return n
}
