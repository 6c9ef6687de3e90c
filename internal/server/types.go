// Package server provides the HTTP surface of the video review API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/videoreview-api/internal/keytree"
	"github.com/maauso/videoreview-api/internal/upload"
)

// SubmitForm holds the non-file fields of a submission.
type SubmitForm struct {
	// UserName selects the destination folder and key prefix.
	UserName string `form:"userName" validate:"required,max=128,excludesall=/\\"`
}

// FilesResponse is the success body of the listing endpoint.
type FilesResponse struct {
	Success bool         `json:"success"`
	Data    keytree.Tree `json:"data"`
}

// FailureResponse is the error body of the listing endpoint.
type FailureResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// UploadResponse is the HTTP representation of an upload status record.
type UploadResponse struct {
	ID          string     `json:"id"`
	UserName    string     `json:"user_name"`
	FileName    string     `json:"file_name"`
	Key         string     `json:"key"`
	Status      string     `json:"status"`
	Size        int64      `json:"size"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// UploadListResponse wraps every known upload, newest first.
type UploadListResponse struct {
	Uploads []UploadResponse `json:"uploads"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

func newUploadResponse(u *upload.Upload) UploadResponse {
	resp := UploadResponse{
		ID:        u.ID,
		UserName:  u.UserName,
		FileName:  u.FileName,
		Key:       u.Key,
		Status:    string(u.Status),
		Size:      u.Size,
		Error:     u.Error,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if !u.StartedAt.IsZero() {
		t := u.StartedAt
		resp.StartedAt = &t
	}
	if !u.CompletedAt.IsZero() {
		t := u.CompletedAt
		resp.CompletedAt = &t
	}
	return resp
}
