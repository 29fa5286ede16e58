package extraction

import "fmt"

// Reason classifies an extraction service failure.
type Reason string

// Failure reasons.
const (
	ReasonNetwork     Reason = "Network"
	ReasonServerError Reason = "ServerError"
	ReasonMalformed   Reason = "MalformedResponse"
)

// ExtractionError is returned for every failed service call.
type ExtractionError struct {
	Reason Reason
	// Status is the HTTP status when one was received.
	Status int
	Err    error
}

func (e *ExtractionError) Error() string {
	msg := "extraction service " + string(e.Reason)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Category is the operator-facing failure category.
func (e *ExtractionError) Category() string {
	return "ExtractionServiceError:" + string(e.Reason)
}

// SchemaViolation reports a response that parsed but broke the contract.
type SchemaViolation struct {
	Field  string
	Reason string
}

func (v *SchemaViolation) Error() string {
	return fmt.Sprintf("schema violation: %s %s", v.Field, v.Reason)
}
