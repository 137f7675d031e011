package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/agenthands/rsgwm/internal/core/model"
	"github.com/agenthands/rsgwm/internal/core/monitor"
	"github.com/agenthands/rsgwm/internal/protocol"
)

// Handle processes one envelope and returns its reply. Failures never
// escape as errors; they are reported in the reply.
func (w *WorldModel) Handle(ctx context.Context, data []byte) protocol.Result {
	start := time.Now()

	header, err := protocol.Peek(data)
	if err != nil {
		w.logger.Warn("rejecting envelope", "error", err)
		return protocol.UpdateResult{
			Header:  protocol.Header{WorldModelType: protocol.TypeUpdateResult},
			Message: err.Error(),
		}
	}

	ctx, span := w.tracer.Start(ctx, "rsg."+header.WorldModelType)
	defer span.End()
	span.SetAttributes(attribute.String("rsg.query_id", header.QueryID))

	var (
		kind, op string
		result   protocol.Result
	)
	switch header.WorldModelType {
	case protocol.TypeUpdate:
		kind = "update"
		op, result = w.dispatchUpdate(ctx, data, header)
	case protocol.TypeQuery:
		kind = "query"
		op, result = w.dispatchQuery(ctx, data, header)
	case protocol.TypeFunctionBlock:
		kind = "function_block"
		op, result = w.dispatchFunctionBlock(ctx, data, header)
	default:
		kind, op = "unknown", header.WorldModelType
		result = protocol.UpdateResult{
			Header:  protocol.Header{WorldModelType: protocol.TypeUpdateResult, QueryID: header.QueryID},
			Message: fmt.Sprintf("unknown @worldmodeltype %q", header.WorldModelType),
		}
	}

	span.SetAttributes(attribute.String("rsg.operation", op))
	if !result.Success() {
		span.SetStatus(codes.Error, result.Failure())
		w.logger.Warn("request failed", "kind", kind, "operation", op, "query_id", header.QueryID, "error", result.Failure())
	} else {
		w.logger.Debug("request handled", "kind", kind, "operation", op, "query_id", header.QueryID)
	}
	if w.stats != nil {
		w.stats.ObserveRequest(kind, op, result.Success(), time.Since(start))
		if kind == "update" {
			w.stats.SetEntities(w.Store.Len())
		}
	}
	return result
}

func (w *WorldModel) dispatchUpdate(ctx context.Context, data []byte, header protocol.Header) (string, protocol.Result) {
	reply := protocol.UpdateResult{
		Header: protocol.Header{WorldModelType: protocol.TypeUpdateResult, QueryID: header.QueryID},
	}
	u, err := protocol.Decode[protocol.Update](data)
	if err != nil {
		reply.Message = err.Error()
		return "", reply
	}

	id, err := w.applyUpdate(ctx, u)
	reply.ID = id.String()
	switch {
	case err == nil:
		reply.UpdateSuccess = true
	case isWarning(err):
		reply.UpdateSuccess = true
		reply.Warning = err.Error()
	default:
		reply.Message = err.Error()
	}
	return u.Operation, reply
}

// applyUpdate validates the fields u.Operation needs and applies it. The
// returned id is the entity the update acted on.
func (w *WorldModel) applyUpdate(ctx context.Context, u protocol.Update) (model.ID, error) {
	if u.Node == nil {
		return "", fmt.Errorf("%s: missing node: %w", u.Operation, model.ErrMalformedRequest)
	}

	switch u.Operation {
	case protocol.OpCreate:
		id, err := w.idOrNew(u.Node.ID)
		if err != nil {
			return "", err
		}
		parentID, err := requireID(u.Operation, "parentId", u.ParentID)
		if err != nil {
			return id, err
		}
		n, err := u.Node.NewEntity(id, parentID)
		if err != nil {
			return id, err
		}
		_, err = w.Create(ctx, n)
		return id, err

	case protocol.OpCreateRemoteRootNode:
		id, err := w.idOrNew(u.Node.ID)
		if err != nil {
			return "", err
		}
		_, err = w.CreateRemoteRoot(ctx, id, u.Node.Attributes)
		return id, err

	case protocol.OpCreateParent:
		raw := u.Node.ChildID
		if raw == "" {
			raw = u.Node.ID
		}
		childID, err := requireID(u.Operation, "node.childId", raw)
		if err != nil {
			return "", err
		}
		parentID, err := requireID(u.Operation, "parentId", u.ParentID)
		if err != nil {
			return childID, err
		}
		return childID, w.AddParent(ctx, childID, parentID)

	case protocol.OpUpdateAttributes:
		id, err := requireID(u.Operation, "node.id", u.Node.ID)
		if err != nil {
			return "", err
		}
		if u.Node.Attributes == nil {
			return id, fmt.Errorf("%s: missing node.attributes: %w", u.Operation, model.ErrMalformedRequest)
		}
		mode, err := model.ParseUpdateMode(u.AttributeUpdateMode)
		if err != nil {
			return id, err
		}
		return id, w.SetAttributes(ctx, id, u.Node.Attributes, mode)

	case protocol.OpUpdateTransform:
		id, err := requireID(u.Operation, "node.id", u.Node.ID)
		if err != nil {
			return "", err
		}
		if len(u.Node.History) == 0 {
			return id, fmt.Errorf("%s: missing node.history: %w", u.Operation, model.ErrMalformedRequest)
		}
		entries, err := protocol.History(u.Node.History)
		if err != nil {
			return id, err
		}
		return id, w.InsertTransform(ctx, id, entries...)

	case protocol.OpUpdateStart, protocol.OpUpdateEnd:
		id, err := requireID(u.Operation, "node.id", u.Node.ID)
		if err != nil {
			return "", err
		}
		raw := u.Node.Start
		if u.Operation == protocol.OpUpdateEnd {
			raw = u.Node.End
		}
		if raw == nil {
			return id, fmt.Errorf("%s: missing stamp: %w", u.Operation, model.ErrMalformedRequest)
		}
		stamp, err := raw.Decode()
		if err != nil {
			return id, err
		}
		if u.Operation == protocol.OpUpdateStart {
			return id, w.SetStart(ctx, id, stamp)
		}
		return id, w.SetEnd(ctx, id, stamp)

	case protocol.OpDeleteNode:
		id, err := requireID(u.Operation, "node.id", u.Node.ID)
		if err != nil {
			return "", err
		}
		_, err = w.DeleteNode(ctx, id)
		return id, err

	case protocol.OpDeleteParent:
		id, err := requireID(u.Operation, "node.id", u.Node.ID)
		if err != nil {
			return "", err
		}
		parentID, err := requireID(u.Operation, "parentId", u.ParentID)
		if err != nil {
			return id, err
		}
		_, err = w.DeleteParent(ctx, id, parentID)
		return id, err
	}
	return "", fmt.Errorf("unsupported operation %q: %w", u.Operation, model.ErrMalformedRequest)
}

func (w *WorldModel) idOrNew(raw string) (model.ID, error) {
	if raw == "" {
		return w.newID()
	}
	return model.ParseID(raw)
}

func requireID(op, field, raw string) (model.ID, error) {
	if raw == "" {
		return "", fmt.Errorf("%s: missing %s: %w", op, field, model.ErrMalformedRequest)
	}
	return model.ParseID(raw)
}

func (w *WorldModel) dispatchQuery(ctx context.Context, data []byte, header protocol.Header) (string, protocol.Result) {
	reply := protocol.QueryResult{
		Header: protocol.Header{WorldModelType: protocol.TypeQueryResult, QueryID: header.QueryID},
	}
	q, err := protocol.Decode[protocol.Query](data)
	if err != nil {
		reply.Message = err.Error()
		return "", reply
	}
	reply.Query = q.Query

	if err := w.answer(ctx, q, &reply); err != nil {
		reply.Message = err.Error()
		return q.Query, reply
	}
	reply.QuerySuccess = true
	return q.Query, reply
}

func (w *WorldModel) answer(ctx context.Context, q protocol.Query, reply *protocol.QueryResult) error {
	switch q.Query {
	case protocol.QueryGetRootNode:
		reply.RootID = w.Root().String()
		return nil

	case protocol.QueryGetRemoteRootNodes:
		reply.IDs = protocol.FormatIDs(w.Store.RemoteRoots())
		return nil

	case protocol.QueryGetNodes:
		var subgraph model.ID
		if q.SubgraphID != "" {
			var err error
			if subgraph, err = model.ParseID(q.SubgraphID); err != nil {
				return err
			}
		}
		ids, err := w.FindNodes(ctx, q.Attributes, subgraph)
		if err != nil {
			return err
		}
		reply.IDs = protocol.FormatIDs(ids)
		return nil
	}

	id, err := requireID(q.Query, "id", q.ID)
	if err != nil {
		return err
	}

	switch q.Query {
	case protocol.QueryGetNodeAttributes:
		attrs, err := w.Store.Attributes(id)
		if err != nil {
			return err
		}
		reply.Attributes = attrs
		return nil

	case protocol.QueryGetNodeParents:
		parents, err := w.Store.Parents(id)
		if err != nil {
			return err
		}
		reply.IDs = protocol.FormatIDs(parents)
		return nil

	case protocol.QueryGetGroupChildren:
		children, err := w.Store.Children(id)
		if err != nil {
			return err
		}
		reply.IDs = protocol.FormatIDs(children)
		return nil

	case protocol.QueryGetConnectionSourceIDs, protocol.QueryGetConnectionTargetIDs:
		sources, targets, err := w.Store.ConnectionEndpoints(id)
		if err != nil {
			return err
		}
		if q.Query == protocol.QueryGetConnectionSourceIDs {
			reply.IDs = protocol.FormatIDs(sources)
		} else {
			reply.IDs = protocol.FormatIDs(targets)
		}
		return nil

	case protocol.QueryGetTransform:
		referenceID, err := requireID(q.Query, "idReferenceNode", q.IDReferenceNode)
		if err != nil {
			return err
		}
		at := model.StampFromTime(w.Now())
		if q.TimeStamp != nil {
			if at, err = q.TimeStamp.Decode(); err != nil {
				return err
			}
		}
		m, err := w.Transform(ctx, id, referenceID, at)
		if err != nil {
			return err
		}
		reply.Transform = protocol.EncodeTransform(model.StampedTransform{Stamp: at, Matrix: m})
		stamp := protocol.MillisStamp(at)
		reply.TimeStamp = &stamp
		return nil
	}
	return fmt.Errorf("unsupported query %q: %w", q.Query, model.ErrMalformedRequest)
}

func (w *WorldModel) dispatchFunctionBlock(ctx context.Context, data []byte, header protocol.Header) (string, protocol.Result) {
	reply := protocol.FunctionBlockResult{
		Header: protocol.Header{WorldModelType: protocol.TypeFunctionBlockResult, QueryID: header.QueryID},
	}
	fb, err := protocol.Decode[protocol.FunctionBlock](data)
	if err != nil {
		reply.Message = err.Error()
		return "", reply
	}
	reply.Name = fb.Name
	op := fb.Name + "." + fb.Operation

	var kind monitor.Kind
	switch fb.Name {
	case protocol.BlockOnCreate:
		kind = monitor.KindCreation
	case protocol.BlockOnAttributeChange:
		kind = monitor.KindAttribute
	default:
		reply.Message = fmt.Sprintf("function block %q is not available", fb.Name)
		return op, reply
	}

	if fb.Operation != protocol.BlockExecute {
		// built-in blocks are always loaded
		reply.OperationSuccess = true
		return op, reply
	}
	if err := w.executeMonitorBlock(kind, fb.Input); err != nil {
		reply.Message = err.Error()
		return op, reply
	}
	reply.OperationSuccess = true
	return op, reply
}

func (w *WorldModel) executeMonitorBlock(kind monitor.Kind, input json.RawMessage) error {
	in, err := protocol.Decode[protocol.MonitorInput](input)
	if err != nil {
		return err
	}

	switch in.MonitorOperation {
	case protocol.MonitorRegister:
		target := monitor.Target{Predicates: in.Attributes}
		if kind == monitor.KindAttribute {
			if target.EntityID, err = requireID(in.MonitorOperation, "id", in.ID); err != nil {
				return err
			}
			target.Key = in.AttributeKey
		}
		return w.Monitors.Register(in.MonitorID, kind, target)
	case protocol.MonitorStart:
		return w.Monitors.Start(in.MonitorID)
	case protocol.MonitorStop:
		return w.Monitors.Stop(in.MonitorID)
	case protocol.MonitorUnregister:
		return w.Monitors.Unregister(in.MonitorID)
	}
	return fmt.Errorf("unsupported monitor operation %q: %w", in.MonitorOperation, model.ErrMalformedRequest)
}
