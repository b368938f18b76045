// Package device hosts a device tree over HTTP: the root description
// document, each service's SCPD, and a SOAP control endpoint per
// service, plus the SSDP advertising lifecycle around them.
package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/navidrome/upnp/conf"
	"github.com/navidrome/upnp/consts"
	"github.com/navidrome/upnp/core/desc"
	"github.com/navidrome/upnp/log"
	"github.com/navidrome/upnp/model"
	"github.com/navidrome/upnp/server/ssdp"
)

// Host serves one device tree. Create with NewHost, then Run.
type Host struct {
	root *model.Device

	mu       sync.Mutex
	httpPort int
	server   *http.Server
}

// NewHost wraps a validated device tree. Validation failures surface
// here so a broken tree never starts advertising.
func NewHost(root *model.Device) (*Host, error) {
	if err := root.Validate(); err != nil {
		return nil, err
	}
	return &Host{root: root}, nil
}

// Root returns the hosted device tree.
func (h *Host) Root() *model.Device { return h.root }

// Port returns the bound HTTP port, zero before Run.
func (h *Host) Port() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.httpPort
}

// Routes builds the routing table from the tree: every URL here is
// exactly the URL the description document advertises.
func (h *Host) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.serverHeaders)

	r.Get("/", h.handleIndex)
	r.Get("/description", h.handleDescription)

	h.root.Walk(func(dev *model.Device) {
		for _, svc := range dev.Services {
			svc := svc
			r.Get(svc.SCPDURL(), h.scpdHandler(svc))
			// Any method but POST on a control URL is a bad request.
			r.HandleFunc(svc.ControlURL(), func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "SOAP control requires POST", http.StatusBadRequest)
			})
			r.Post(svc.ControlURL(), h.controlHandler(svc))
			r.HandleFunc(svc.EventSubURL(), h.handleEventSub)
		}
	})

	return r
}

// Run freezes the tree, binds an ephemeral HTTP port on all interfaces,
// starts SSDP advertising, and blocks until ctx is cancelled. Shutdown
// order: stop the notify loop, emit byebye, stop HTTP.
func (h *Host) Run(ctx context.Context) error {
	h.root.Freeze()

	addr := fmt.Sprintf(":%d", conf.Server.HTTP.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding HTTP listener: %w", err)
	}
	_, portStr, _ := net.SplitHostPort(listener.Addr().String())
	port, _ := strconv.Atoi(portStr)

	h.mu.Lock()
	h.httpPort = port
	h.server = &http.Server{Handler: h.Routes(), ReadHeaderTimeout: 10 * time.Second}
	server := h.server
	h.mu.Unlock()

	engine, err := ssdp.NewEngine()
	if err != nil {
		listener.Close()
		return fmt.Errorf("starting SSDP engine: %w", err)
	}
	advertiser := ssdp.NewAdvertiser(engine, h.root, port)
	advertiser.Start(ctx)

	log.Info(ctx, "UPnP device running", "udn", h.root.UDN(), "friendlyName", h.root.FriendlyName, "httpPort", port)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		advertiser.Stop()
		engine.Close()
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	advertiser.Stop()
	engine.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown did not complete cleanly", err)
	}
	log.Info("UPnP device stopped", "udn", h.root.UDN())
	return nil
}

// serverHeaders stamps every response with the UPnP SERVER product
// string and the empty EXT header.
func (h *Host) serverHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Server", consts.ServerString())
		w.Header().Set("Ext", "")
		next.ServeHTTP(w, req)
	})
}

func (h *Host) handleDescription(w http.ResponseWriter, req *http.Request) {
	doc, err := desc.RenderDevice(h.root)
	if err != nil {
		log.Error(req.Context(), "Could not render device description", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write(doc)
}

func (h *Host) scpdHandler(svc *model.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		doc, err := desc.RenderSCPD(svc.Descriptor)
		if err != nil {
			log.Error(req.Context(), "Could not render SCPD", "service", svc.Type, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write(doc)
	}
}

// handleEventSub is a placeholder: eventing (GENA) is not implemented.
func (h *Host) handleEventSub(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "eventing not supported", http.StatusNotImplemented)
}

func (h *Host) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, "<html><head><title>%s</title></head><body>\n", h.root.FriendlyName)
	fmt.Fprintf(w, "<h1>%s</h1>\n", h.root.FriendlyName)
	h.root.Walk(func(dev *model.Device) {
		fmt.Fprintf(w, "<h2>%s (%s)</h2>\n<ul>\n", dev.FriendlyName, dev.Type)
		for _, svc := range dev.Services {
			fmt.Fprintf(w, `<li><a href="%s">%s</a></li>`+"\n", svc.SCPDURL(), svc.Type)
		}
		fmt.Fprintf(w, "</ul>\n")
	})
	fmt.Fprintf(w, "</body></html>\n")
}
