package device

import (
	"errors"
	"io"
	"net/http"

	"github.com/navidrome/upnp/core/soap"
	"github.com/navidrome/upnp/core/types"
	"github.com/navidrome/upnp/log"
	"github.com/navidrome/upnp/model"
)

// controlHandler dispatches SOAP action calls for one service. The
// action table is the service descriptor's catalog; arguments are
// extracted in declaration order and coerced through the type registry
// before the handler runs.
func (h *Host) controlHandler(svc *model.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()

		body, err := io.ReadAll(req.Body)
		if err != nil {
			log.Error(ctx, "Failed to read SOAP request", err)
			http.Error(w, "cannot read request", http.StatusBadRequest)
			return
		}

		call, err := soap.ParseAction(body)
		if err != nil {
			log.Warn(ctx, "Malformed SOAP envelope", "service", svc.Type, err)
			http.Error(w, "malformed SOAP envelope", http.StatusBadRequest)
			return
		}

		if call.ServiceURN != svc.TypeURN() {
			// Some stacks declare the action namespace prefix on the
			// envelope, which the body re-parse cannot see. The
			// SOAPACTION header still names the intended target.
			headerURN, headerAction := soap.ParseSOAPAction(req.Header.Get("SOAPAction"))
			if headerURN != svc.TypeURN() || headerAction != call.Name {
				h.writeFault(w, svc, call.Name, soap.ErrInvalidAction)
				return
			}
		}
		action := svc.Descriptor.Action(call.Name)
		if action == nil || action.Handler == nil {
			log.Warn(ctx, "Unknown action", "service", svc.Type, "action", call.Name)
			h.writeFault(w, svc, call.Name, soap.ErrInvalidAction)
			return
		}

		log.Debug(ctx, "Dispatching action", "service", svc.Type, "action", call.Name)

		in, err := h.coerceIn(svc, action, call)
		if err != nil {
			log.Warn(ctx, "Invalid action arguments", "service", svc.Type, "action", call.Name, err)
			h.writeFault(w, svc, call.Name, soap.ErrInvalidArgs)
			return
		}

		out, err := action.Handler(ctx, in)
		if err != nil {
			var upnpErr *soap.UPnPError
			if !errors.As(err, &upnpErr) {
				log.Error(ctx, "Action handler failed", "service", svc.Type, "action", call.Name, err)
				upnpErr = soap.ErrActionFailed
			}
			h.writeFault(w, svc, call.Name, upnpErr)
			return
		}

		args, err := h.formatOut(svc, action, out)
		if err != nil {
			log.Error(ctx, "Could not serialize action result", "service", svc.Type, "action", call.Name, err)
			h.writeFault(w, svc, call.Name, soap.ErrActionFailed)
			return
		}

		actionsDispatched.Inc()
		w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(soap.BuildResponse(svc.TypeURN(), call.Name, args))
	}
}

// coerceIn extracts the in arguments in declaration order: each is read
// as an untyped string and coerced through the codec of its related
// state variable's type.
func (h *Host) coerceIn(svc *model.Service, action *model.Action, call *soap.ActionCall) ([]interface{}, error) {
	var in []interface{}
	for _, arg := range action.InArguments() {
		raw, ok := call.Get(arg.Name)
		if !ok {
			return nil, errors.New("missing argument " + arg.Name)
		}
		codec, err := h.codecFor(svc, arg)
		if err != nil {
			return nil, err
		}
		value, err := codec.Parse(raw)
		if err != nil {
			return nil, err
		}
		in = append(in, value)
	}
	return in, nil
}

// formatOut serializes handler results positionally against the
// declared out arguments, retval first.
func (h *Host) formatOut(svc *model.Service, action *model.Action, out []interface{}) ([]soap.Arg, error) {
	declared := action.OutArguments()
	if len(out) != len(declared) {
		return nil, errors.New("handler returned wrong number of values for " + action.Name)
	}
	var args []soap.Arg
	for i, arg := range declared {
		codec, err := h.codecFor(svc, arg)
		if err != nil {
			return nil, err
		}
		value, err := codec.Format(out[i])
		if err != nil {
			return nil, err
		}
		args = append(args, soap.Arg{Name: arg.Name, Value: value})
	}
	return args, nil
}

func (h *Host) codecFor(svc *model.Service, arg model.Argument) (*types.Codec, error) {
	sv := svc.Descriptor.StateVariable(arg.RelatedStateVariable)
	if sv == nil {
		return nil, errors.New("no state variable " + arg.RelatedStateVariable)
	}
	return types.Lookup(sv.DataType)
}

func (h *Host) writeFault(w http.ResponseWriter, svc *model.Service, action string, upnpErr *soap.UPnPError) {
	actionFaults.Inc()
	log.Debug("Returning SOAP fault", "service", svc.Type, "action", action, "code", upnpErr.Code)
	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write(soap.BuildFault(upnpErr))
}
