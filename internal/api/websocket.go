package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
	"github.com/hugo-lorenzo-mato/memwall/internal/events"
	"github.com/hugo-lorenzo-mato/memwall/internal/service"
)

// Close reasons are limited to 123 bytes by the protocol.
const maxCloseReason = 120

// socketTransport writes frames as JSON text messages.
type socketTransport struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func (t socketTransport) Send(ctx context.Context, f events.Frame) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return wsjson.Write(ctx, t.conn, f)
}

type errorFrame struct {
	Type string         `json:"type"`
	Data errorFrameData `json:"data"`
}

type errorFrameData struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type clientMessage struct {
	Action string `json:"action"`
}

// handleAnalysisSocket drives one run per connection. The client sends a
// control message, receives the run's frames, and may send
// {"action":"stop"} at any time. Disconnecting also stops the run.
func (s *Server) handleAnalysisSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, s.acceptOptions())
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxControlBytes)

	ctx := r.Context()
	readCtx, cancelRead := context.WithTimeout(ctx, s.controlTimeout)
	_, data, err := conn.Read(readCtx)
	cancelRead()
	if err != nil {
		s.logger.Debug("no control message", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	plan, err := s.planFromControl(data)
	if err != nil {
		s.rejectSocket(ctx, conn, err)
		return
	}
	log := s.logger.WithRun(plan.ID)
	log.Info("websocket run starting", "scenario", plan.Scenario.Scenario, "tier", plan.Scenario.Tier,
		"offload", plan.Scenario.OffloadEnabled, "remote_addr", r.RemoteAddr)

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	var g errgroup.Group
	g.Go(func() error {
		defer stopRun()
		for {
			_, msg, err := conn.Read(runCtx)
			if err != nil {
				return nil
			}
			if isStopMessage(msg) {
				log.Info("client requested stop")
				return nil
			}
		}
	})

	res, err := s.launcher.Execute(runCtx, plan, socketTransport{conn: conn, timeout: s.writeTimeout})
	if err != nil {
		log.Error("run failed", "error", err)
		_ = conn.Close(websocket.StatusInternalError, closeReason(err.Error()))
	} else {
		_ = conn.Close(websocket.StatusNormalClosure, closeReason(string(res.Status)))
	}
	stopRun()
	_ = g.Wait()
	log.Info("websocket run finished", "status", res.Status, "processed", res.Processed)
}

func (s *Server) planFromControl(data []byte) (*service.Plan, error) {
	req, err := service.ParseControl(data)
	if err != nil {
		return nil, err
	}
	return s.launcher.Plan(req)
}

// rejectSocket reports a bad control message and closes. Validation and
// lookup failures close with policy violation, anything else with 1011.
func (s *Server) rejectSocket(ctx context.Context, conn *websocket.Conn, err error) {
	msg := err.Error()
	var code string
	var domErr *core.DomainError
	if errors.As(err, &domErr) {
		msg, code = domErr.Message, domErr.Code
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	if werr := wsjson.Write(writeCtx, conn, errorFrame{Type: "error", Data: errorFrameData{Message: msg, Code: code}}); werr != nil {
		s.logger.Debug("writing error frame", "error", werr)
	}

	status := websocket.StatusInternalError
	switch core.GetCategory(err) {
	case core.ErrCatValidation, core.ErrCatNotFound:
		status = websocket.StatusPolicyViolation
	}
	_ = conn.Close(status, closeReason(msg))
}

func (s *Server) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	for _, origin := range s.corsOrigins {
		if origin == "*" {
			opts.InsecureSkipVerify = true
			return opts
		}
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			opts.OriginPatterns = append(opts.OriginPatterns, u.Host)
		} else {
			opts.OriginPatterns = append(opts.OriginPatterns, origin)
		}
	}
	return opts
}

func isStopMessage(msg []byte) bool {
	text := strings.TrimSpace(string(msg))
	if strings.EqualFold(text, "stop") {
		return true
	}
	var m clientMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return false
	}
	return strings.EqualFold(m.Action, "stop")
}

func closeReason(s string) string {
	if len(s) <= maxCloseReason {
		return s
	}
	return s[:maxCloseReason]
}
