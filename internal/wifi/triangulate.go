package wifi

import (
	"context"
	"log/slog"

	"indoor-tracker/internal/notecard"
)

// Triangulator hands the card a snapshot of nearby access points so it can derive a
// position when GPS could not
type Triangulator struct {
	Card    notecard.Card
	Scanner Scanner
	Logger  *slog.Logger
}

func NewTriangulator(card notecard.Card, scanner Scanner, logger *slog.Logger) *Triangulator {
	return &Triangulator{
		Card:    card,
		Scanner: scanner,
		Logger:  logger,
	}
}

// Run makes one best-effort attempt. It reports whether access point data was submitted.
// A failed or empty scan submits nothing and is not an error.
func (t *Triangulator) Run(ctx context.Context) (bool, error) {
	if err := notecard.SetTriangulationMode(ctx, t.Card, "wifi"); err != nil {
		return false, err
	}

	aps, err := t.Scanner.Scan(ctx)
	if err != nil {
		t.Logger.Warn("Wi-Fi scan failed", "error", err)
		return false, nil
	}

	text := Format(aps)
	if text == "" {
		t.Logger.Info("No access points visible, skipping triangulation")
		return false, nil
	}

	t.Logger.Debug("Submitting access points", "count", len(aps))
	if err := notecard.SubmitTriangulation(ctx, t.Card, text+"\n"); err != nil {
		return false, err
	}

	t.Logger.Info("Submitted Wi-Fi triangulation data", "access_points", len(aps))
	return true, nil
}
