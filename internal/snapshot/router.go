package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/chrissnell/barograph/internal/buttons"
	"github.com/chrissnell/barograph/internal/control"
	"github.com/chrissnell/barograph/internal/metrics"
	"github.com/chrissnell/barograph/internal/types"
	"github.com/chrissnell/barograph/pkg/responseformat"
)

// CommandSubmitter accepts configuration commands for the next session.
type CommandSubmitter interface {
	Submit(cmds ...control.Command) error
}

// Presser raises a button press.
type Presser interface {
	Press(b buttons.Button) bool
}

// Handlers serves the HTTP API.
type Handlers struct {
	publisher *Publisher
	commands  CommandSubmitter
	buttons   Presser
	formatter *responseformat.Formatter
	logger    *zap.SugaredLogger
}

// CommandRequest is the body of POST /api/commands.
type CommandRequest struct {
	Op  string `json:"op"`
	Arg string `json:"arg"`
}

// NewRouter wires the API routes. commands and presser may be nil, in
// which case the command endpoint is not registered.
func NewRouter(p *Publisher, commands CommandSubmitter, presser Presser, m metrics.Provider, logger *zap.SugaredLogger) *mux.Router {
	h := &Handlers{
		publisher: p,
		commands:  commands,
		buttons:   presser,
		formatter: responseformat.NewFormatter(),
		logger:    logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/snapshot", h.GetSnapshot).Methods(http.MethodGet)
	router.HandleFunc("/api/preferences", h.GetPreferences).Methods(http.MethodGet)
	router.HandleFunc("/api/samples/{field:pressure|temperature|humidity}", h.GetSeries).Methods(http.MethodGet)
	if commands != nil && presser != nil {
		router.HandleFunc("/api/commands", h.PostCommands).Methods(http.MethodPost)
	}
	if m != nil {
		router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	}
	return router
}

func (h *Handlers) latest(w http.ResponseWriter, req *http.Request) (View, bool) {
	v, ok := h.publisher.Latest()
	if !ok {
		h.write(h.formatter.WriteError(w, req, http.StatusServiceUnavailable, "no snapshot taken yet"))
	}
	return v, ok
}

func (h *Handlers) write(err error) {
	if err != nil {
		h.logger.Warnf("error writing response: %v", err)
	}
}

func (h *Handlers) GetSnapshot(w http.ResponseWriter, req *http.Request) {
	v, ok := h.latest(w, req)
	if !ok {
		return
	}
	h.write(h.formatter.WriteResponse(w, req, v))
}

func (h *Handlers) GetPreferences(w http.ResponseWriter, req *http.Request) {
	v, ok := h.latest(w, req)
	if !ok {
		return
	}
	h.write(h.formatter.WriteResponse(w, req, v.Preferences))
}

// SeriesPoint is one drawable value of a single field. Missing values are
// null.
type SeriesPoint struct {
	AgeSeconds uint32   `json:"age_seconds"`
	Value      *float64 `json:"value"`
}

func (h *Handlers) GetSeries(w http.ResponseWriter, req *http.Request) {
	v, ok := h.latest(w, req)
	if !ok {
		return
	}
	field, err := fieldByName(mux.Vars(req)["field"])
	if err != nil {
		h.write(h.formatter.WriteError(w, req, http.StatusNotFound, err.Error()))
		return
	}

	points := make([]SeriesPoint, len(v.Samples))
	for i, s := range v.Samples {
		points[i].AgeSeconds = s.AgeSeconds
		if val := field.Value(s); types.Present(val) {
			points[i].Value = &val
		}
	}
	h.write(h.formatter.WriteResponse(w, req, points))
}

// PostCommands queues one command and raises the configuration wake.
func (h *Handlers) PostCommands(w http.ResponseWriter, req *http.Request) {
	var body CommandRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		h.write(h.formatter.WriteError(w, req, http.StatusBadRequest, "malformed command body"))
		return
	}

	cmd, err := control.Parse(body.Op, body.Arg)
	if err == nil {
		err = h.commands.Submit(cmd)
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, control.ErrInvalidCommand) {
			status = http.StatusBadRequest
		}
		h.write(h.formatter.WriteError(w, req, status, err.Error()))
		return
	}

	h.buttons.Press(buttons.Button1)
	h.logger.Infof("queued command %s", cmd)
	h.write(h.formatter.WriteStatus(w, req, http.StatusAccepted, map[string]string{"queued": cmd.String()}))
}

func fieldByName(name string) (types.Field, error) {
	for _, f := range types.Fields {
		if f.String() == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown field %q", name)
}
