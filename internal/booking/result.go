package booking

import "ovenbook/internal/model"

// GenericFailure is shown to callers when an operation fails for reasons
// other than a business rule.
const GenericFailure = "Something went wrong. Please try again."

// Result is the uniform outcome shape of an engine operation.
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Code    Code           `json:"code,omitempty"`
	Booking *model.Booking `json:"booking,omitempty"`
}

// ResultOf converts an operation outcome into a Result.
func ResultOf(b *model.Booking, err error, successMsg string) Result {
	if err == nil {
		return Result{Success: true, Message: successMsg, Booking: b}
	}
	if IsRejection(err) {
		return Result{Success: false, Message: ReasonOf(err), Code: CodeOf(err)}
	}
	return Result{Success: false, Message: GenericFailure}
}
