package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedMediaType is wrapped in a ParseError when a feed is served
	// with a Content-Type that is neither RSS, Atom nor generic XML.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrNothingToDraw is wrapped in a GeometryError when neither the crop mask
	// nor the alert areas have a bounding box.
	ErrNothingToDraw = errors.New("nothing to draw")

	// ErrEmptyImage is wrapped in a GeometryError when the requested image or
	// the scene bounds have zero size.
	ErrEmptyImage = errors.New("zero-sized image")
)

// FetchError is a network or HTTP status failure for one feed or alert.
type FetchError struct {
	URL    string
	Status int // 0 when the request never got a response
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError is a malformed feed, alert or geometry document.
type ParseError struct {
	Source string // URL, GUID or file path
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// GeometryError is a degenerate bounding box, zero-sized image request or a
// failed boolean operation.
type GeometryError struct {
	Op  string
	Err error
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("geometry %s: %v", e.Op, e.Err)
}

func (e *GeometryError) Unwrap() error { return e.Err }

// StoreError is a dedup store I/O failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// RenderError is a rasterization or image encoding failure.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render: %v", e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// ErrorKind names the error kind of err for metrics labels and logs.
func ErrorKind(err error) string {
	var (
		fetchErr    *FetchError
		parseErr    *ParseError
		geometryErr *GeometryError
		storeErr    *StoreError
		renderErr   *RenderError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &storeErr):
		return "store"
	case errors.As(err, &geometryErr):
		return "geometry"
	case errors.As(err, &renderErr):
		return "render"
	default:
		return "other"
	}
}
