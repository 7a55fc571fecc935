package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"almacen/internal/core/id"
	"almacen/internal/domain/audit"
)

// CompressionAlgo names how a journal payload is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultCompressThreshold is the payload size above which entries are compressed.
const DefaultCompressThreshold = 4 * 1024

const journalTable = "sys_audit"

type journalRow struct {
	audit.Entry
	PayloadCompressed []byte          `db:"payload_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
}

// Journal implements audit.Journal on sys_audit. Large payloads are stored
// zstd-compressed.
type Journal struct {
	table     *Table[journalRow]
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	threshold int
}

var _ audit.Journal = (*Journal)(nil)

// NewJournal creates the journal store.
func NewJournal(txm *TxManager) (*Journal, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Journal{
		table:     NewTable[journalRow](txm, journalTable, "journal entry"),
		encoder:   encoder,
		decoder:   decoder,
		threshold: DefaultCompressThreshold,
	}, nil
}

// Append inserts entry in the transaction carried by ctx.
func (j *Journal) Append(ctx context.Context, entry *audit.Entry) error {
	row := j.pack(*entry)
	if err := j.table.Insert(ctx, &row); err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

// History returns the entries of one entity, oldest first.
func (j *Journal) History(ctx context.Context, entityType audit.EntityType, entityID id.ID) ([]audit.Entry, error) {
	q := j.table.SelectQuery().
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		OrderBy("created_at", "id")

	rows, err := j.table.SelectValues(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]audit.Entry, 0, len(rows))
	for _, r := range rows {
		e, err := j.unpack(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (j *Journal) pack(e audit.Entry) journalRow {
	row := journalRow{Entry: e, CompressionAlgo: CompressionNone}
	if len(e.Payload) > j.threshold {
		row.PayloadCompressed = j.encoder.EncodeAll(e.Payload, nil)
		row.Entry.Payload = nil
		row.CompressionAlgo = CompressionZstd
	}
	return row
}

func (j *Journal) unpack(row journalRow) (audit.Entry, error) {
	e := row.Entry
	if row.CompressionAlgo == CompressionZstd && len(row.PayloadCompressed) > 0 {
		raw, err := j.decoder.DecodeAll(row.PayloadCompressed, nil)
		if err != nil {
			return e, fmt.Errorf("decompress journal payload %s: %w", e.ID, err)
		}
		e.Payload = json.RawMessage(raw)
	}
	return e, nil
}
