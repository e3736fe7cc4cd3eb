package plugin

import (
	"context"
	"log/slog"

	Nt "github.com/maroda/neurales/types"
)

// TeeEmitter sends to Primary and then to each Mirror.
// Only Primary failures are returned: a broker outage must not end a live session.
type TeeEmitter struct {
	Primary PayloadEmitter
	Mirrors []PayloadEmitter
}

func NewTeeEmitter(primary PayloadEmitter, mirrors ...PayloadEmitter) *TeeEmitter {
	return &TeeEmitter{Primary: primary, Mirrors: mirrors}
}

func (te *TeeEmitter) Emit(ctx context.Context, p *Nt.Payload) error {
	if err := te.Primary.Emit(ctx, p); err != nil {
		return err
	}
	for _, m := range te.Mirrors {
		if err := m.Emit(ctx, p); err != nil {
			slog.Warn("Mirror emit failed", slog.String("mirror", m.Type()), slog.Any("error", err))
		}
	}
	return nil
}

func (te *TeeEmitter) EmitError(ctx context.Context, e Nt.ErrorPayload) error {
	if err := te.Primary.EmitError(ctx, e); err != nil {
		return err
	}
	for _, m := range te.Mirrors {
		if err := m.EmitError(ctx, e); err != nil {
			slog.Warn("Mirror emit failed", slog.String("mirror", m.Type()), slog.Any("error", err))
		}
	}
	return nil
}

func (te *TeeEmitter) Type() string { return "tee:" + te.Primary.Type() }
