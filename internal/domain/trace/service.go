package trace

import (
	"context"
	"fmt"

	"almacen/internal/core/id"
	"almacen/internal/core/security"
	"almacen/internal/domain/documents/purchase_order"
	"almacen/internal/domain/documents/request"
	"almacen/internal/domain/documents/requisition"
)

// maxExpansions bounds how many hops the loader walks from the root entity.
const maxExpansions = 6

// Service loads the subgraph around an entity and builds its trace.
type Service struct {
	requests     request.Repository
	requisitions requisition.Repository
	orders       purchase_order.Repository
	policy       *security.Policy
	maxHops      int
}

// NewService creates a trace service.
func NewService(
	requests request.Repository,
	requisitions requisition.Repository,
	orders purchase_order.Repository,
	policy *security.Policy,
) *Service {
	return &Service{
		requests:     requests,
		requisitions: requisitions,
		orders:       orders,
		policy:       policy,
		maxHops:      maxExpansions,
	}
}

// ForRequest traces a request.
func (s *Service) ForRequest(ctx context.Context, actor security.Actor, requestID id.ID) (Trace, error) {
	if _, err := s.requests.GetByID(ctx, requestID); err != nil {
		return Trace{}, err
	}
	return s.trace(ctx, actor, func(l *loader) { l.pendingRequests = append(l.pendingRequests, requestID) })
}

// ForRequisition traces a requisition.
func (s *Service) ForRequisition(ctx context.Context, actor security.Actor, requisitionID id.ID) (Trace, error) {
	if _, err := s.requisitions.GetByID(ctx, requisitionID); err != nil {
		return Trace{}, err
	}
	return s.trace(ctx, actor, func(l *loader) { l.pendingRequisitions = append(l.pendingRequisitions, requisitionID) })
}

// ForOrder traces a purchase order.
func (s *Service) ForOrder(ctx context.Context, actor security.Actor, orderID id.ID) (Trace, error) {
	if _, err := s.orders.GetByID(ctx, orderID); err != nil {
		return Trace{}, err
	}
	return s.trace(ctx, actor, func(l *loader) { l.pendingOrders = append(l.pendingOrders, orderID) })
}

func (s *Service) trace(ctx context.Context, actor security.Actor, seed func(*loader)) (Trace, error) {
	if err := s.policy.Authorize(ctx, actor, security.OpTraceView, security.Resource{Kind: "traza"}); err != nil {
		return Trace{}, err
	}
	l := &loader{
		svc:          s,
		maxHops:      s.maxHops,
		requests:     make(map[id.ID]*request.Request),
		requisitions: make(map[id.ID]*requisition.Requisition),
		orders:       make(map[id.ID]*purchase_order.PurchaseOrder),
		links:        make(map[id.ID]requisition.RequestLink),
	}
	seed(l)
	g, err := l.load(ctx)
	if err != nil {
		return Trace{}, err
	}
	return Build(g), nil
}

// loader walks request ↔ requisition ↔ order edges breadth first.
type loader struct {
	svc     *Service
	maxHops int

	requests     map[id.ID]*request.Request
	requisitions map[id.ID]*requisition.Requisition
	orders       map[id.ID]*purchase_order.PurchaseOrder
	links        map[id.ID]requisition.RequestLink
	linkOrder    []id.ID

	pendingRequests     []id.ID
	pendingRequisitions []id.ID
	pendingOrders       []id.ID

	requestOrder     []id.ID
	requisitionOrder []id.ID
	orderOrder       []id.ID
}

func (l *loader) load(ctx context.Context) (Graph, error) {
	for i := 0; i < l.maxHops; i++ {
		if len(l.pendingRequests)+len(l.pendingRequisitions)+len(l.pendingOrders) == 0 {
			break
		}
		reqs, reqns, ords := l.pendingRequests, l.pendingRequisitions, l.pendingOrders
		l.pendingRequests, l.pendingRequisitions, l.pendingOrders = nil, nil, nil

		for _, rid := range reqs {
			if err := l.visitRequest(ctx, rid); err != nil {
				return Graph{}, err
			}
		}
		for _, rid := range reqns {
			if err := l.visitRequisition(ctx, rid); err != nil {
				return Graph{}, err
			}
		}
		for _, oid := range ords {
			if err := l.visitOrder(ctx, oid); err != nil {
				return Graph{}, err
			}
		}
	}

	g := Graph{Truncated: l.unvisited()}
	for _, rid := range l.requestOrder {
		g.Requests = append(g.Requests, l.requests[rid])
	}
	for _, rid := range l.requisitionOrder {
		g.Requisitions = append(g.Requisitions, l.requisitions[rid])
	}
	for _, oid := range l.orderOrder {
		g.Orders = append(g.Orders, l.orders[oid])
	}
	for _, lid := range l.linkOrder {
		link := l.links[lid]
		_, hasRequest := l.requests[link.RequestID]
		_, hasRequisition := l.requisitions[link.RequisitionID]
		if hasRequest && hasRequisition {
			g.Links = append(g.Links, link)
		}
	}
	return g, nil
}

// unvisited reports whether the hop limit left queued entities unloaded.
func (l *loader) unvisited() bool {
	for _, rid := range l.pendingRequests {
		if _, ok := l.requests[rid]; !ok {
			return true
		}
	}
	for _, rid := range l.pendingRequisitions {
		if _, ok := l.requisitions[rid]; !ok {
			return true
		}
	}
	for _, oid := range l.pendingOrders {
		if _, ok := l.orders[oid]; !ok {
			return true
		}
	}
	return false
}

func (l *loader) addLinks(links []requisition.RequestLink) {
	for _, link := range links {
		if _, ok := l.links[link.ID]; ok {
			continue
		}
		l.links[link.ID] = link
		l.linkOrder = append(l.linkOrder, link.ID)
		if _, ok := l.requests[link.RequestID]; !ok {
			l.pendingRequests = append(l.pendingRequests, link.RequestID)
		}
		if _, ok := l.requisitions[link.RequisitionID]; !ok {
			l.pendingRequisitions = append(l.pendingRequisitions, link.RequisitionID)
		}
	}
}

func (l *loader) visitRequest(ctx context.Context, requestID id.ID) error {
	if _, ok := l.requests[requestID]; ok {
		return nil
	}
	r, err := l.svc.requests.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("load request: %w", err)
	}
	if r.Lines, err = l.svc.requests.GetLines(ctx, requestID); err != nil {
		return fmt.Errorf("load request lines: %w", err)
	}
	l.requests[requestID] = r
	l.requestOrder = append(l.requestOrder, requestID)

	links, err := l.svc.requisitions.LinksByRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("load request links: %w", err)
	}
	l.addLinks(links)
	return nil
}

func (l *loader) visitRequisition(ctx context.Context, requisitionID id.ID) error {
	if _, ok := l.requisitions[requisitionID]; ok {
		return nil
	}
	r, err := l.svc.requisitions.GetByID(ctx, requisitionID)
	if err != nil {
		return fmt.Errorf("load requisition: %w", err)
	}
	l.requisitions[requisitionID] = r
	l.requisitionOrder = append(l.requisitionOrder, requisitionID)

	links, err := l.svc.requisitions.LinksByRequisition(ctx, requisitionID)
	if err != nil {
		return fmt.Errorf("load requisition links: %w", err)
	}
	l.addLinks(links)

	sources, err := l.svc.orders.SourcesByRequisitions(ctx, []id.ID{requisitionID})
	if err != nil {
		return fmt.Errorf("load order sources: %w", err)
	}
	for _, src := range sources {
		if _, ok := l.orders[src.OrderID]; !ok {
			l.pendingOrders = append(l.pendingOrders, src.OrderID)
		}
	}
	return nil
}

func (l *loader) visitOrder(ctx context.Context, orderID id.ID) error {
	if _, ok := l.orders[orderID]; ok {
		return nil
	}
	o, err := l.svc.orders.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	if o.Lines, err = l.svc.orders.GetLines(ctx, orderID); err != nil {
		return fmt.Errorf("load order lines: %w", err)
	}
	if o.Sources, err = l.svc.orders.GetSources(ctx, orderID); err != nil {
		return fmt.Errorf("load order sources: %w", err)
	}
	l.orders[orderID] = o
	l.orderOrder = append(l.orderOrder, orderID)

	for _, src := range o.Sources {
		if _, ok := l.requisitions[src.RequisitionID]; !ok {
			l.pendingRequisitions = append(l.pendingRequisitions, src.RequisitionID)
		}
	}
	return nil
}
