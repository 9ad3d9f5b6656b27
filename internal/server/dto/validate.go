// Defines the validation interface for requests.

package dto

// Validatable is implemented by request types that can validate their fields.
// Wrap and WrapAuth use this interface as a type constraint so that every
// request is validated before the handler runs.
type Validatable interface {
	Validate() error
}
