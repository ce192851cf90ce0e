package book

import "errors"

var (
	// ErrNoContent indicates a document produced no readable chapters.
	ErrNoContent = errors.New("book: no readable content")

	// ErrUnsupported indicates no registered format handles the file.
	ErrUnsupported = errors.New("book: unsupported format")
)
