package api

type ErrorResponse struct {
	Error string `json:"error"`
}

type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type ContactResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

const (
	contactThanks = "Thank you for your message! We will get back to you within 24 hours."
	contactSorry  = "Sorry, there was an error sending your message. Please try again."
)
