package booking

// Result is the structured outcome every lifecycle operation hands back to the
// boundary layer. Domain failures (validation, authorization, conflicts) are
// data, not raised errors; the messages are contractual UI text.
type Result struct {
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	FieldName string         `json:"field_name,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

const (
	statusSuccess = "success"
	statusFail    = "fail"
)

// OK reports whether the operation succeeded.
func (r Result) OK() bool { return r.Status == statusSuccess }

func success(payload map[string]any) Result {
	return Result{Status: statusSuccess, Payload: payload}
}

func successMessage(message string, payload map[string]any) Result {
	return Result{Status: statusSuccess, Message: message, Payload: payload}
}

func fail(message string) Result {
	return Result{Status: statusFail, Message: message}
}

func failField(field, message string) Result {
	return Result{Status: statusFail, FieldName: field, Message: message}
}
