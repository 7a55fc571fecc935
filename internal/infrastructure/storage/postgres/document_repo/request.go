// Package document_repo provides PostgreSQL implementations for document repositories.
package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"almacen/internal/core/id"
	"almacen/internal/domain/documents/request"
	"almacen/internal/infrastructure/storage/postgres"
)

const (
	requestTable     = "requests"
	requestLineTable = "request_lines"
)

// immutableHeader lists the header columns never rewritten by Update.
var immutableHeader = []string{"number", "created_at", "created_by"}

type requestLineRow struct {
	RequestID id.ID `db:"request_id"`
	request.Line
}

// RequestRepo implements request.Repository.
type RequestRepo struct {
	table *postgres.Table[request.Request]
	lines *postgres.Table[requestLineRow]
}

var _ request.Repository = (*RequestRepo)(nil)

// NewRequestRepo creates a new request repository.
func NewRequestRepo(txm *postgres.TxManager) *RequestRepo {
	return &RequestRepo{
		table: postgres.NewTable[request.Request](txm, requestTable, "request"),
		lines: postgres.NewTable[requestLineRow](txm, requestLineTable, "request line"),
	}
}

// Create inserts the request header.
func (r *RequestRepo) Create(ctx context.Context, req *request.Request) error {
	if err := r.table.Insert(ctx, req); err != nil {
		return fmt.Errorf("create request %s: %w", req.Number, err)
	}
	return nil
}

// Update persists the header.
func (r *RequestRepo) Update(ctx context.Context, req *request.Request) error {
	return r.table.Update(ctx, req, "id", immutableHeader...)
}

// SaveLines replaces every line of a request.
func (r *RequestRepo) SaveLines(ctx context.Context, requestID id.ID, lines []request.Line) error {
	if _, err := r.lines.Exec(ctx, postgres.Builder().
		Delete(requestLineTable).
		Where(squirrel.Eq{"request_id": requestID})); err != nil {
		return err
	}
	rows := make([]requestLineRow, len(lines))
	for i, l := range lines {
		rows[i] = requestLineRow{RequestID: requestID, Line: l}
	}
	return r.lines.InsertMany(ctx, rows)
}

// GetByID returns the header.
func (r *RequestRepo) GetByID(ctx context.Context, requestID id.ID) (*request.Request, error) {
	return r.table.GetByID(ctx, requestID, false)
}

// GetForUpdate returns the row-locked header.
func (r *RequestRepo) GetForUpdate(ctx context.Context, requestID id.ID) (*request.Request, error) {
	return r.table.GetByID(ctx, requestID, true)
}

// GetLines returns the lines ordered by line number.
func (r *RequestRepo) GetLines(ctx context.Context, requestID id.ID) ([]request.Line, error) {
	rows, err := r.lines.SelectValues(ctx, r.lines.SelectQuery().
		Where(squirrel.Eq{"request_id": requestID}).
		OrderBy("line_no"))
	if err != nil {
		return nil, err
	}
	out := make([]request.Line, len(rows))
	for i := range rows {
		out[i] = rows[i].Line
	}
	return out, nil
}

// List returns headers matching the filter, newest first.
func (r *RequestRepo) List(ctx context.Context, f request.ListFilter) ([]*request.Request, error) {
	q := r.table.SelectQuery().OrderBy("created_at DESC", "number DESC")
	if f.State != nil {
		q = q.Where(squirrel.Eq{"state": string(*f.State)})
	}
	if f.Type != nil {
		q = q.Where(squirrel.Eq{"type": string(*f.Type)})
	}
	if f.RequesterID != "" {
		q = q.Where(squirrel.Eq{"requester_id": f.RequesterID})
	}
	if f.ArticleID != nil {
		q = q.Where("EXISTS (SELECT 1 FROM request_lines l WHERE l.request_id = requests.id AND l.article_id = ?)", *f.ArticleID)
	}
	return r.table.Select(ctx, postgres.Page(q, f.Limit, f.Offset))
}
