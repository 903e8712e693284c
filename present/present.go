// Package present hands a composed widget to its host: a preview when the
// program runs outside a widget, the home-screen slot otherwise.
package present

import (
	"context"
	"fmt"

	"github.com/hazyhaar/relwidget/widget"
)

// Host is where a widget ends up.
type Host interface {
	// RunsInWidget reports whether the program is running as a widget.
	RunsInWidget() bool
	// PresentSmall shows a small-size preview of w.
	PresentSmall(ctx context.Context, w *widget.Widget) error
	// SetWidget registers w as the content of the host slot.
	SetWidget(ctx context.Context, w *widget.Widget) error
}

// Present previews tree when the host is not a widget and sets it as the
// slot content otherwise. Exactly one of the two host calls is made.
func Present(ctx context.Context, tree *widget.Widget, host Host) error {
	if tree == nil {
		return fmt.Errorf("present: nil widget")
	}
	if host == nil {
		return fmt.Errorf("present: nil host")
	}
	if !host.RunsInWidget() {
		if err := host.PresentSmall(ctx, tree); err != nil {
			return fmt.Errorf("present: preview: %w", err)
		}
		return nil
	}
	if err := host.SetWidget(ctx, tree); err != nil {
		return fmt.Errorf("present: set widget: %w", err)
	}
	return nil
}

// Mode names which host call Present would make.
func Mode(host Host) string {
	if host != nil && host.RunsInWidget() {
		return "widget"
	}
	return "preview"
}
