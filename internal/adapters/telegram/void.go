package telegram

import (
	"context"

	"cryptoBiasBot/internal/ports"
)

// Void is a no-op notifier used when Telegram is not configured.
type Void struct{}

// NewVoid creates a notifier that discards all events.
func NewVoid() Void { return Void{} }

func (Void) PositionClosed(ctx context.Context, event ports.PositionClosedEvent) error { return nil }

func (Void) Alert(ctx context.Context, symbol, message string) error { return nil }
