package utils

import (
	"encoding/json"
	"net/http"
)

// Response is the envelope every endpoint answers with
type Response struct {
	Code   int         `json:"code"`
	Result interface{} `json:"result"`
	Client *ClientInfo `json:"client,omitempty"`
}

// ErrorBody is the result of an error envelope
type ErrorBody struct {
	Code        string      `json:"code"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Data        interface{} `json:"data,omitempty"`
}

// ClientInfo describes the calling client
type ClientInfo struct {
	UserAgent  string `json:"http_user_agent"`
	Connection string `json:"http_connection"`
	Host       string `json:"http_host"`
	Referer    string `json:"http_referer,omitempty"`
	RemoteAddr string `json:"remote_addr"`
	Method     string `json:"request_method"`
	URI        string `json:"request_uri"`
}

// NewClientInfo collects client metadata from a request
func NewClientInfo(r *http.Request) *ClientInfo {
	if r == nil {
		return nil
	}
	return &ClientInfo{
		UserAgent:  r.UserAgent(),
		Connection: r.Header.Get("Connection"),
		Host:       r.Host,
		Referer:    r.Referer(),
		RemoteAddr: r.RemoteAddr,
		Method:     r.Method,
		URI:        r.RequestURI,
	}
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteResult wraps result in an envelope carrying status
func WriteResult(w http.ResponseWriter, status int, result interface{}) error {
	return WriteJSON(w, status, Response{Code: status, Result: result})
}

// WriteResultWithClient is WriteResult plus the client block
func WriteResultWithClient(w http.ResponseWriter, r *http.Request, status int, result interface{}) error {
	return WriteJSON(w, status, Response{Code: status, Result: result, Client: NewClientInfo(r)})
}

// WriteOK writes a 200 envelope
func WriteOK(w http.ResponseWriter, result interface{}) error {
	return WriteResult(w, http.StatusOK, result)
}

// WriteCreated writes a 201 envelope
func WriteCreated(w http.ResponseWriter, result interface{}) error {
	return WriteResult(w, http.StatusCreated, result)
}

// WriteNoContent writes a 204 No Content response
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteError writes an error envelope. The title is the status text.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, description string, data interface{}) error {
	return WriteResultWithClient(w, r, status, ErrorBody{
		Code:        code,
		Title:       http.StatusText(status),
		Description: description,
		Data:        data,
	})
}

// WriteBadRequest writes a 400 envelope with field details
func WriteBadRequest(w http.ResponseWriter, r *http.Request, description string, details map[string]string) error {
	var data interface{}
	if len(details) > 0 {
		data = details
	}
	return WriteError(w, r, http.StatusBadRequest, "ValidationFailed", description, data)
}

// WriteNotFound writes a 404 envelope
func WriteNotFound(w http.ResponseWriter, r *http.Request) error {
	return WriteError(w, r, http.StatusNotFound, "NotFound",
		"The requested resource wasn't found or is inaccessible.", nil)
}

// WriteInternalServerError writes a generic 500 envelope
func WriteInternalServerError(w http.ResponseWriter, r *http.Request) error {
	return WriteError(w, r, http.StatusInternalServerError, "InternalError", "Internal server error", nil)
}
