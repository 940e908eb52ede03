package mailstub

import "time"

// DeliverRequest is the body of POST /stub/messages.
type DeliverRequest struct {
	To         []string   `json:"to" validate:"required,min=1,dive,email"`
	From       string     `json:"from" validate:"omitempty,email"`
	Subject    string     `json:"subject"`
	Text       string     `json:"text" validate:"required_without=HTML"`
	HTML       string     `json:"html"`
	Labels     []string   `json:"labels" validate:"omitempty,dive,oneof=INBOX SPAM"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
}

// DeliverResponse is returned for a delivered message.
type DeliverResponse struct {
	ID string `json:"id"`
}

// ErrorResponse is the error body of the /stub endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// gmailError mirrors the error envelope of Google APIs so API clients decode it.
type gmailError struct {
	Error gmailErrorBody `json:"error"`
}

type gmailErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}
