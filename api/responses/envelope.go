package responses

// SuccessEnvelope wraps every 2xx body except raw webhook acks.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorBody carries the taxonomy code, a client-safe message and optional
// validation details.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}
