package model

type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusMessageResponse - {"status","message"} body used by the contract and webhook APIs
type StatusMessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type PingResponse struct {
	Message string `json:"message"`
}

type RootResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}
