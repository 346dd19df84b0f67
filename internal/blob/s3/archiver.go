package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkoval/tradepilot/internal/domain"
)

// Archiver exports closed positions and equity history to the object store
// as JSONL files partitioned by month, and prunes archives that have aged
// past the retention window.
//
// Archived rows are NOT deleted from the primary store here; pruning applies
// only to the uploaded objects.
type Archiver struct {
	writer    domain.BlobWriter
	reader    domain.BlobReader
	positions domain.PositionStore
	equity    domain.EquityStore
	logger    *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, positions domain.PositionStore, equity domain.EquityStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:    writer,
		reader:    reader,
		positions: positions,
		equity:    equity,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// archivedPosition is the JSONL row shape for a closed position.
type archivedPosition struct {
	ID          int64               `json:"id"`
	Symbol      string              `json:"symbol"`
	Side        domain.PositionSide `json:"side"`
	Size        float64             `json:"size"`
	EntryPrice  float64             `json:"entry_price"`
	ExitPrice   *float64            `json:"exit_price"`
	Leverage    int                 `json:"leverage"`
	RealizedPnL float64             `json:"realized_pnl"`
	PnLPercent  float64             `json:"pnl_percent"`
	CloseReason *domain.CloseReason `json:"close_reason"`
	CreatedAt   time.Time           `json:"created_at"`
	ClosedAt    *time.Time          `json:"closed_at"`
}

// archivedEquity is the JSONL row shape for one equity snapshot.
type archivedEquity struct {
	Balance       float64   `json:"balance"`
	Equity        float64   `json:"equity"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	OpenPositions int       `json:"open_positions"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// ArchiveClosedPositions exports up to limit recent closed positions to
// archive/positions/YYYY-MM.jsonl and returns the record count.
func (a *Archiver) ArchiveClosedPositions(ctx context.Context, limit int) (int64, error) {
	closed, err := a.positions.GetClosedPositions(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions query: %w", err)
	}
	if len(closed) == 0 {
		return 0, nil
	}

	rows := make([]archivedPosition, len(closed))
	for i, p := range closed {
		rows[i] = archivedPosition{
			ID:          p.ID,
			Symbol:      p.Symbol,
			Side:        p.Side,
			Size:        p.Size,
			EntryPrice:  p.EntryPrice,
			ExitPrice:   p.ExitPrice,
			Leverage:    p.Leverage,
			RealizedPnL: p.RealizedPnL,
			PnLPercent:  p.PnLPercent,
			CloseReason: p.CloseReason,
			CreatedAt:   p.CreatedAt,
			ClosedAt:    p.ClosedAt,
		}
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions marshal: %w", err)
	}

	path := archivePath("positions", time.Now().UTC())
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive positions upload: %w", err)
	}

	a.logger.Info("positions archived",
		slog.String("path", path), slog.Int("count", len(rows)))
	return int64(len(rows)), nil
}

// ArchiveEquityHistory exports equity snapshots recorded since the given time
// to archive/equity/YYYY-MM.jsonl and returns the record count.
func (a *Archiver) ArchiveEquityHistory(ctx context.Context, since time.Time) (int64, error) {
	history, err := a.equity.History(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive equity query: %w", err)
	}
	if len(history) == 0 {
		return 0, nil
	}

	rows := make([]archivedEquity, len(history))
	for i, snap := range history {
		rows[i] = archivedEquity{
			Balance:       snap.Balance,
			Equity:        snap.Equity,
			UnrealizedPnL: snap.UnrealizedPnL,
			OpenPositions: snap.OpenPositions,
			RecordedAt:    snap.RecordedAt,
		}
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive equity marshal: %w", err)
	}

	path := archivePath("equity", time.Now().UTC())
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive equity upload: %w", err)
	}

	a.logger.Info("equity history archived",
		slog.String("path", path), slog.Int("count", len(rows)))
	return int64(len(rows)), nil
}

// Prune deletes archive objects last modified before the retention cutoff.
func (a *Archiver) Prune(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	infos, err := a.reader.List(ctx, "archive/")
	if err != nil {
		return 0, fmt.Errorf("s3blob: prune list: %w", err)
	}

	var deleted int64
	for _, info := range infos {
		if info.LastModified.After(cutoff) {
			continue
		}
		if err := a.reader.Delete(ctx, info.Path); err != nil {
			return deleted, fmt.Errorf("s3blob: prune delete %s: %w", info.Path, err)
		}
		deleted++
	}

	if deleted > 0 {
		a.logger.Info("old archives pruned",
			slog.Int64("deleted", deleted),
			slog.String("cutoff", cutoff.Format(time.RFC3339)))
	}
	return deleted, nil
}

// archivePath builds the S3 key for an archive file, partitioned by
// year-month.
//
//	archive/positions/2025-01.jsonl
//	archive/equity/2025-01.jsonl
func archivePath(kind string, at time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, at.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
