package memory

import (
	"context"
	"time"

	"almacen/internal/core/apperror"
	"almacen/internal/core/id"
	"almacen/internal/domain/documents/purchase_order"
	"almacen/internal/domain/documents/request"
	"almacen/internal/domain/documents/requisition"
)

// RequestRepo implements request.Repository.
type RequestRepo struct{ s *Store }

// Requests returns the request repository.
func (s *Store) Requests() *RequestRepo { return &RequestRepo{s: s} }

func (r *RequestRepo) Create(ctx context.Context, req *request.Request) error {
	return r.s.view(ctx, func(st *state) error {
		if _, ok := st.requests[req.ID]; ok {
			return apperror.NewDuplicate("request", "id", req.ID.String())
		}
		h := *req
		h.Lines = nil
		st.requests[req.ID] = h
		return nil
	})
}

func (r *RequestRepo) Update(ctx context.Context, req *request.Request) error {
	return r.s.view(ctx, func(st *state) error {
		if _, ok := st.requests[req.ID]; !ok {
			return apperror.NewNotFound("request", req.ID)
		}
		h := *req
		h.Lines = nil
		st.requests[req.ID] = h
		return nil
	})
}

func (r *RequestRepo) SaveLines(ctx context.Context, requestID id.ID, lines []request.Line) error {
	return r.s.view(ctx, func(st *state) error {
		st.requestLines[requestID] = append([]request.Line(nil), lines...)
		return nil
	})
}

func (r *RequestRepo) GetByID(ctx context.Context, requestID id.ID) (*request.Request, error) {
	var out *request.Request
	err := r.s.view(ctx, func(st *state) error {
		req, ok := st.requests[requestID]
		if !ok {
			return apperror.NewNotFound("request", requestID)
		}
		out = &req
		return nil
	})
	return out, err
}

func (r *RequestRepo) GetForUpdate(ctx context.Context, requestID id.ID) (*request.Request, error) {
	return r.GetByID(ctx, requestID)
}

func (r *RequestRepo) GetLines(ctx context.Context, requestID id.ID) ([]request.Line, error) {
	var out []request.Line
	err := r.s.view(ctx, func(st *state) error {
		out = append([]request.Line{}, st.requestLines[requestID]...)
		return nil
	})
	return out, err
}

func (r *RequestRepo) List(ctx context.Context, f request.ListFilter) ([]*request.Request, error) {
	var items []*request.Request
	err := r.s.view(ctx, func(st *state) error {
		for _, req := range st.requests {
			switch {
			case f.State != nil && req.State != *f.State,
				f.Type != nil && req.Type != *f.Type,
				f.RequesterID != "" && req.RequesterID != f.RequesterID:
				continue
			}
			if f.ArticleID != nil && !hasArticle(st.requestLines[req.ID], *f.ArticleID) {
				continue
			}
			items = append(items, &req)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByNumberDesc(items, func(r *request.Request) string { return r.Number })
	return page(items, f.Limit, f.Offset), nil
}

func hasArticle(lines []request.Line, articleID id.ID) bool {
	for _, l := range lines {
		if l.ArticleID == articleID {
			return true
		}
	}
	return false
}

// RequisitionRepo implements requisition.Repository.
type RequisitionRepo struct{ s *Store }

// Requisitions returns the requisition repository.
func (s *Store) Requisitions() *RequisitionRepo { return &RequisitionRepo{s: s} }

// checkPending enforces one pendiente requisition per article.
func checkPending(st *state, r *requisition.Requisition) error {
	if r.State != requisition.StatePending {
		return nil
	}
	for _, other := range st.requisitions {
		if other.ID != r.ID && other.ArticleID == r.ArticleID && other.State == requisition.StatePending {
			return apperror.NewConcurrentModification("requisition", other.ID)
		}
	}
	return nil
}

func (r *RequisitionRepo) Create(ctx context.Context, req *requisition.Requisition) error {
	return r.s.view(ctx, func(st *state) error {
		if _, ok := st.requisitions[req.ID]; ok {
			return apperror.NewDuplicate("requisition", "id", req.ID.String())
		}
		if err := checkPending(st, req); err != nil {
			return err
		}
		st.requisitions[req.ID] = *req
		return nil
	})
}

func (r *RequisitionRepo) Update(ctx context.Context, req *requisition.Requisition) error {
	return r.s.view(ctx, func(st *state) error {
		if _, ok := st.requisitions[req.ID]; !ok {
			return apperror.NewNotFound("requisition", req.ID)
		}
		if err := checkPending(st, req); err != nil {
			return err
		}
		st.requisitions[req.ID] = *req
		return nil
	})
}

func (r *RequisitionRepo) GetByID(ctx context.Context, requisitionID id.ID) (*requisition.Requisition, error) {
	var out *requisition.Requisition
	err := r.s.view(ctx, func(st *state) error {
		req, ok := st.requisitions[requisitionID]
		if !ok {
			return apperror.NewNotFound("requisition", requisitionID)
		}
		out = &req
		return nil
	})
	return out, err
}

func (r *RequisitionRepo) GetForUpdate(ctx context.Context, requisitionID id.ID) (*requisition.Requisition, error) {
	return r.GetByID(ctx, requisitionID)
}

func (r *RequisitionRepo) GetPendingForUpdate(ctx context.Context, articleID id.ID) (*requisition.Requisition, error) {
	var out *requisition.Requisition
	err := r.s.view(ctx, func(st *state) error {
		for _, req := range st.requisitions {
			if req.ArticleID == articleID && req.State == requisition.StatePending {
				out = &req
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *RequisitionRepo) ListPendingByIDsForUpdate(ctx context.Context, ids []id.ID) ([]*requisition.Requisition, error) {
	var out []*requisition.Requisition
	err := r.s.view(ctx, func(st *state) error {
		for _, rid := range ids {
			if req, ok := st.requisitions[rid]; ok && req.State == requisition.StatePending {
				out = append(out, &req)
			}
		}
		return nil
	})
	return out, err
}

func (r *RequisitionRepo) ListByOrderForUpdate(ctx context.Context, orderID id.ID) ([]*requisition.Requisition, error) {
	var out []*requisition.Requisition
	err := r.s.view(ctx, func(st *state) error {
		for _, req := range st.requisitions {
			if req.PurchaseOrderID != nil && *req.PurchaseOrderID == orderID {
				out = append(out, &req)
			}
		}
		return nil
	})
	sortByNumberDesc(out, func(r *requisition.Requisition) string { return r.Number })
	return out, err
}

func (r *RequisitionRepo) ListByIDs(ctx context.Context, ids []id.ID) ([]*requisition.Requisition, error) {
	var out []*requisition.Requisition
	err := r.s.view(ctx, func(st *state) error {
		for _, rid := range ids {
			if req, ok := st.requisitions[rid]; ok {
				out = append(out, &req)
			}
		}
		return nil
	})
	return out, err
}

func (r *RequisitionRepo) List(ctx context.Context, f requisition.ListFilter) ([]*requisition.Requisition, error) {
	var items []*requisition.Requisition
	err := r.s.view(ctx, func(st *state) error {
		var linked map[id.ID]bool
		if f.RequestID != nil {
			linked = make(map[id.ID]bool)
			for _, l := range st.requestLinks {
				if l.RequestID == *f.RequestID {
					linked[l.RequisitionID] = true
				}
			}
		}
		for _, req := range st.requisitions {
			switch {
			case f.State != nil && req.State != *f.State,
				f.ArticleID != nil && req.ArticleID != *f.ArticleID,
				f.PurchaseOrderID != nil && (req.PurchaseOrderID == nil || *req.PurchaseOrderID != *f.PurchaseOrderID),
				linked != nil && !linked[req.ID]:
				continue
			}
			items = append(items, &req)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByNumberDesc(items, func(r *requisition.Requisition) string { return r.Number })
	return page(items, f.Limit, f.Offset), nil
}

func (r *RequisitionRepo) AddRequestLink(ctx context.Context, link *requisition.RequestLink) error {
	return r.s.view(ctx, func(st *state) error {
		if id.IsNil(link.ID) {
			link.ID = id.New()
		}
		st.requestLinks = append(st.requestLinks, *link)
		return nil
	})
}

func (r *RequisitionRepo) LinksByRequest(ctx context.Context, requestID id.ID) ([]requisition.RequestLink, error) {
	return r.links(ctx, func(l requisition.RequestLink) bool { return l.RequestID == requestID })
}

func (r *RequisitionRepo) LinksByRequisition(ctx context.Context, requisitionID id.ID) ([]requisition.RequestLink, error) {
	return r.links(ctx, func(l requisition.RequestLink) bool { return l.RequisitionID == requisitionID })
}

func (r *RequisitionRepo) links(ctx context.Context, match func(requisition.RequestLink) bool) ([]requisition.RequestLink, error) {
	out := []requisition.RequestLink{}
	err := r.s.view(ctx, func(st *state) error {
		for _, l := range st.requestLinks {
			if match(l) {
				out = append(out, l)
			}
		}
		return nil
	})
	return out, err
}

// OrderRepo implements purchase_order.Repository.
type OrderRepo struct{ s *Store }

// Orders returns the purchase order repository.
func (s *Store) Orders() *OrderRepo { return &OrderRepo{s: s} }

func orderHeader(o *purchase_order.PurchaseOrder) purchase_order.PurchaseOrder {
	h := *o
	h.Lines = nil
	h.Sources = nil
	return h
}

func (r *OrderRepo) Create(ctx context.Context, o *purchase_order.PurchaseOrder) error {
	return r.s.view(ctx, func(st *state) error {
		if _, ok := st.orders[o.ID]; ok {
			return apperror.NewDuplicate("purchase_order", "id", o.ID.String())
		}
		st.orders[o.ID] = orderHeader(o)
		return nil
	})
}

func (r *OrderRepo) Update(ctx context.Context, o *purchase_order.PurchaseOrder) error {
	return r.s.view(ctx, func(st *state) error {
		if _, ok := st.orders[o.ID]; !ok {
			return apperror.NewNotFound("purchase_order", o.ID)
		}
		st.orders[o.ID] = orderHeader(o)
		return nil
	})
}

func (r *OrderRepo) SaveLines(ctx context.Context, orderID id.ID, lines []purchase_order.Line) error {
	return r.s.view(ctx, func(st *state) error {
		st.orderLines[orderID] = append([]purchase_order.Line(nil), lines...)
		return nil
	})
}

func (r *OrderRepo) AddSources(ctx context.Context, sources []purchase_order.Source) error {
	return r.s.view(ctx, func(st *state) error {
		st.orderSources = append(st.orderSources, sources...)
		return nil
	})
}

func (r *OrderRepo) DetachSource(ctx context.Context, orderID, requisitionID id.ID, reason string, at time.Time) error {
	return r.s.view(ctx, func(st *state) error {
		for i, src := range st.orderSources {
			if src.OrderID == orderID && src.RequisitionID == requisitionID && !src.Detached {
				src.Detached = true
				src.DetachedAt = &at
				src.DetachReason = reason
				st.orderSources[i] = src
				return nil
			}
		}
		return apperror.NewNotFound("purchase_order_source", requisitionID)
	})
}

func (r *OrderRepo) GetByID(ctx context.Context, orderID id.ID) (*purchase_order.PurchaseOrder, error) {
	var out *purchase_order.PurchaseOrder
	err := r.s.view(ctx, func(st *state) error {
		o, ok := st.orders[orderID]
		if !ok {
			return apperror.NewNotFound("purchase_order", orderID)
		}
		out = &o
		return nil
	})
	return out, err
}

func (r *OrderRepo) GetForUpdate(ctx context.Context, orderID id.ID) (*purchase_order.PurchaseOrder, error) {
	return r.GetByID(ctx, orderID)
}

func (r *OrderRepo) GetLines(ctx context.Context, orderID id.ID) ([]purchase_order.Line, error) {
	var out []purchase_order.Line
	err := r.s.view(ctx, func(st *state) error {
		out = append([]purchase_order.Line{}, st.orderLines[orderID]...)
		return nil
	})
	return out, err
}

func (r *OrderRepo) GetSources(ctx context.Context, orderID id.ID) ([]purchase_order.Source, error) {
	out := []purchase_order.Source{}
	err := r.s.view(ctx, func(st *state) error {
		for _, src := range st.orderSources {
			if src.OrderID == orderID {
				out = append(out, src)
			}
		}
		return nil
	})
	return out, err
}

func (r *OrderRepo) SourcesByRequisitions(ctx context.Context, requisitionIDs []id.ID) ([]purchase_order.Source, error) {
	want := make(map[id.ID]bool, len(requisitionIDs))
	for _, rid := range requisitionIDs {
		want[rid] = true
	}
	out := []purchase_order.Source{}
	err := r.s.view(ctx, func(st *state) error {
		for _, src := range st.orderSources {
			if want[src.RequisitionID] {
				out = append(out, src)
			}
		}
		return nil
	})
	return out, err
}

func (r *OrderRepo) List(ctx context.Context, f purchase_order.ListFilter) ([]*purchase_order.PurchaseOrder, error) {
	var items []*purchase_order.PurchaseOrder
	err := r.s.view(ctx, func(st *state) error {
		for _, o := range st.orders {
			switch {
			case f.State != nil && o.State != *f.State,
				f.SupplierID != nil && o.SupplierID != *f.SupplierID:
				continue
			}
			if f.ArticleID != nil && !orderHasArticle(st.orderLines[o.ID], *f.ArticleID) {
				continue
			}
			items = append(items, &o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByNumberDesc(items, func(o *purchase_order.PurchaseOrder) string { return o.Number })
	return page(items, f.Limit, f.Offset), nil
}

func orderHasArticle(lines []purchase_order.Line, articleID id.ID) bool {
	for _, l := range lines {
		if l.ArticleID == articleID {
			return true
		}
	}
	return false
}

var (
	_ request.Repository        = (*RequestRepo)(nil)
	_ requisition.Repository    = (*RequisitionRepo)(nil)
	_ purchase_order.Repository = (*OrderRepo)(nil)
)
