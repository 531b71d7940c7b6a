package apperrors

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrFileTooLarge    = errors.New("file exceeds the maximum upload size")
	ErrInvalidFileType = errors.New("only CSV files are supported")
	ErrEmptyQuestion   = errors.New("question is required")
	ErrInvalidSQL      = errors.New("invalid SQL")
)
