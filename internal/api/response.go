// Package api implements the HTTP handlers for the mailbox REST API.
package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// Error codes shared across API handlers
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeInvalidRecipient   = "INVALID_RECIPIENT"
	CodeEmptySubject       = "EMPTY_SUBJECT"
	CodeEmptyContent       = "EMPTY_CONTENT"
	CodeMessageNotFound    = "MESSAGE_NOT_FOUND"
	CodeAttachmentNotFound = "ATTACHMENT_NOT_FOUND"
	CodeFileNotFound       = "FILE_NOT_FOUND"
	CodeAccessDenied       = "ACCESS_DENIED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeNotFound           = "NOT_FOUND"
	CodeSendFailed         = "SEND_FAILED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// APIResponse represents the standard API response format
type APIResponse struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Error      *APIError   `json:"error,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// APIError represents the error detail in API responses
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Pagination describes the page window of a list response
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

// NewPagination builds pagination metadata for a page of results
func NewPagination(page, limit, total int) *Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return &Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasMore:    page < totalPages,
	}
}

func writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

func writePage(w http.ResponseWriter, data interface{}, pagination *Pagination) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	json.NewEncoder(w).Encode(APIResponse{
		Success:    true,
		Data:       data,
		Pagination: pagination,
		Timestamp:  time.Now().UTC(),
	})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	})
}
