// Package driver describes the browser capabilities the backup workflow
// relies on. Implementations live in subpackages, the workflow only ever
// sees these interfaces.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is matched by every failed wait.
	ErrTimeout = errors.New("timed out waiting for element")
	// ErrNotFound means no element matching the locator appeared in time.
	ErrNotFound = fmt.Errorf("%w: element absent", ErrTimeout)
	// ErrNotReady means a matching element appeared but never satisfied
	// the awaited condition.
	ErrNotReady = fmt.Errorf("%w: element not actionable", ErrTimeout)
	// ErrStale is returned when acting on an element whose document was
	// replaced by a navigation.
	ErrStale  = errors.New("element is no longer attached to the page")
	ErrClosed = errors.New("driver is closed")
)

// Locator selects elements with a CSS selector, and optionally a regular
// expression the element's text content must match.
type Locator struct {
	CSS  string `json:"css"`
	Text string `json:"text,omitempty"`
}

func (l Locator) String() string {
	if l.Text == "" {
		return l.CSS
	}
	return fmt.Sprintf("%s /%s/", l.CSS, l.Text)
}

func (l Locator) IsZero() bool {
	return l.CSS == ""
}

type Condition int

const (
	// Present waits for the element to exist in the document.
	Present Condition = iota
	// Interactable waits for the element to be visible, enabled and not
	// covered by anything else.
	Interactable
	// Hidden waits for the element to disappear, an absent element counts
	// as hidden.
	Hidden
)

func (c Condition) String() string {
	switch c {
	case Present:
		return "present"
	case Interactable:
		return "interactable"
	case Hidden:
		return "hidden"
	default:
		return fmt.Sprintf("condition(%d)", int(c))
	}
}

type Key int

const (
	KeyEscape Key = iota
	KeyEnter
)

func (k Key) String() string {
	switch k {
	case KeyEscape:
		return "escape"
	case KeyEnter:
		return "enter"
	default:
		return fmt.Sprintf("key(%d)", int(k))
	}
}

// WaitError describes a wait that did not succeed in time.
type WaitError struct {
	Locator   Locator
	Condition Condition
	Timeout   time.Duration
	Err       error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("wait %s for %q (%s): %v", e.Condition, e.Locator.String(), e.Timeout, e.Err)
}

func (e *WaitError) Unwrap() error {
	return e.Err
}

// Driver is a single browser tab. Calls are not safe for concurrent use.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	// WaitFor blocks at most timeout for an element matching loc to reach
	// cond. The returned element is nil for Hidden. Failures are a
	// *WaitError wrapping ErrNotFound or ErrNotReady.
	WaitFor(ctx context.Context, loc Locator, cond Condition, timeout time.Duration) (Element, error)
	// Elements returns every element currently matching loc without
	// waiting.
	Elements(ctx context.Context, loc Locator) ([]Element, error)
	// SendKey sends a key press to whatever currently has focus.
	SendKey(ctx context.Context, key Key) error
	Close() error
}

type Element interface {
	Click(ctx context.Context) error
	Clear(ctx context.Context) error
	Type(ctx context.Context, text string) error
	Attribute(ctx context.Context, name string) (value string, ok bool, err error)
}

// Snapshotter is implemented by drivers that can persist the current page
// for debugging.
type Snapshotter interface {
	Snapshot(ctx context.Context, name string) error
}

// IsAbsent reports whether err is a wait that failed because nothing
// matched, as opposed to an element that was there but not ready.
func IsAbsent(err error) bool {
	return errors.Is(err, ErrNotFound)
}
