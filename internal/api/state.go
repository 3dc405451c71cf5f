package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/roomsync-core/internal/engine"
	"github.com/nerrad567/roomsync-core/internal/infrastructure/mqtt"
)

const (
	// maxRoomIDLen limits room ids accepted from clients.
	maxRoomIDLen = 100

	// defaultMessageLimit is the /messages page size when no limit is given.
	defaultMessageLimit = 50
)

// ContextRequest is the body of PUT /context. An empty room follows none.
type ContextRequest struct {
	Room string `json:"room"`
}

// ContextResponse reports the selected and the subscribed room.
type ContextResponse struct {
	Desired      string `json:"desired"`
	Active       string `json:"active"`
	Subscription string `json:"subscription,omitempty"`
}

// PublishRequest is the body of POST /publish.
type PublishRequest struct {
	Topic   string `json:"topic"`
	Message string `json:"message"`
}

// handleSnapshot returns every projection in one consistent copy.
func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// handleDevices returns the device-state projection.
func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.engine.DeviceStates()
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleSensorSeries returns every sensor series, oldest sample first.
func (s *Server) handleSensorSeries(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"series": s.engine.SensorSeries()})
}

// handleCurrentSensors returns the latest value per sensor kind.
func (s *Server) handleCurrentSensors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"current": s.engine.CurrentSensorValues()})
}

// handleMessages returns the message log, newest first.
//
// Query parameters:
//   - limit: maximum number of messages (default 50)
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	messages := s.engine.RecentMessages(limit)
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages, "count": len(messages)})
}

// handleGetContext returns the followed room.
func (s *Server) handleGetContext(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.contextResponse())
}

// handleSetContext switches the followed room.
//
// The response is sent once the subscription has been reconciled, or right
// away while disconnected, in which case active stays empty until the next
// session subscribes.
func (s *Server) handleSetContext(w http.ResponseWriter, r *http.Request) {
	var req ContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := validateRoomID(req.Room, true); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	s.engine.SetActiveContext(req.Room)
	s.logger.Info("active room changed", "room", req.Room, "request_id", r.Context().Value(ctxKeyRequestID))
	writeJSON(w, http.StatusOK, s.contextResponse())
}

func (s *Server) contextResponse() ContextResponse {
	filter, _ := s.engine.Subscription()
	return ContextResponse{
		Desired:      s.engine.DesiredContext(),
		Active:       s.engine.ActiveContext(),
		Subscription: filter,
	}
}

// handlePublish publishes a raw message.
//
// Publishing while disconnected is accepted and dropped.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := mqtt.ValidateTopic(req.Topic); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	s.writePublishResult(w, req.Topic, s.engine.PublishRaw(req.Topic, req.Message))
}

// handleRoomPublish publishes a JSON object on a room topic.
func (s *Server) handleRoomPublish(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "id")
	if err := validateRoomID(room, false); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload == nil {
		writeBadRequest(w, "body must be a JSON object")
		return
	}

	s.writePublishResult(w, room, s.engine.PublishContext(room, payload))
}

func (s *Server) writePublishResult(w http.ResponseWriter, target string, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "target": target})
	case errors.Is(err, engine.ErrInvalidTopic):
		writeBadRequest(w, err.Error())
	case errors.Is(err, engine.ErrPublishFailed):
		writeBadGateway(w, "broker rejected publish")
	default:
		s.logger.Error("publish failed", "target", target, "error", err)
		writeInternalError(w, "publish failed")
	}
}

// validateRoomID rejects ids that would escape their topic level.
func validateRoomID(id string, allowEmpty bool) error {
	if id == "" {
		if allowEmpty {
			return nil
		}
		return errors.New("room id is required")
	}
	if len(id) > maxRoomIDLen {
		return errors.New("room id exceeds maximum length")
	}
	if strings.ContainsAny(id, "/+#") {
		return errors.New("room id must not contain '/', '+' or '#'")
	}
	return nil
}
