package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/rjboer/udpsource/internal/controller"
	"github.com/rjboer/udpsource/internal/logging"
	"github.com/rjboer/udpsource/internal/settings"
)

const maxBlobSize = 64 << 10

// SettingsView is the settings document returned by the API, with the
// derived flags a settings surface needs to enable or hide controls.
type SettingsView struct {
	ID                string            `json:"id,omitempty"`
	Settings          settings.Settings `json:"settings"`
	SampleFormatName  string            `json:"sampleFormatName"`
	AMModPercent      int               `json:"amModPercent"`
	Pending           bool              `json:"pending"`
	FMDeviationActive bool              `json:"fmDeviationActive"`
	AMModActive       bool              `json:"amModActive"`
	StereoSelectable  bool              `json:"stereoSelectable"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("encode response", logging.Field{Key: "error", Value: err})
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, err error) {
	s.sendJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) view() SettingsView {
	cur := s.ctrl.Settings()
	return SettingsView{
		ID:                s.ctrl.ID(),
		Settings:          cur,
		SampleFormatName:  cur.SampleFormat.String(),
		AMModPercent:      cur.AMModPercent(),
		Pending:           s.ctrl.Pending(),
		FMDeviationActive: cur.FMDeviationActive(),
		AMModActive:       cur.AMModActive(),
		StereoSelectable:  cur.StereoSelectable(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok", "id": s.ctrl.ID()})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	s.sendJSON(w, http.StatusOK, s.view())
}

// handleEditSettings applies a JSON object of field edits in key order.
// Values may be strings, numbers or booleans.
func (s *Server) handleEditSettings(w http.ResponseWriter, r *http.Request) {
	var edits map[string]any
	if err := json.NewDecoder(r.Body).Decode(&edits); err != nil {
		s.sendError(w, http.StatusBadRequest, fmt.Errorf("invalid edit payload: %w", err))
		return
	}
	names := make([]string, 0, len(edits))
	for name := range edits {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value, err := editValue(edits[name])
		if err == nil {
			err = s.ctrl.EditField(name, value)
		}
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, controller.ErrUnknownField) {
				status = http.StatusUnprocessableEntity
			}
			s.sendError(w, status, err)
			return
		}
	}
	s.sendJSON(w, http.StatusOK, s.view())
}

func editValue(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", fmt.Errorf("%w: unsupported JSON type %T", controller.ErrInvalidValue, v)
	}
}

func (s *Server) handleCommit(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.Commit()
	s.sendJSON(w, http.StatusOK, s.view())
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.ResetToDefaults()
	s.sendJSON(w, http.StatusOK, s.view())
}

func (s *Server) handleExportBlob(w http.ResponseWriter, _ *http.Request) {
	blob := s.ctrl.Serialize()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(blob)))
	_, _ = w.Write(blob)
}

// handleImportBlob loads a settings blob. A rejected blob still resets the
// channel to defaults, so the response carries the resulting settings.
func (s *Server) handleImportBlob(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBlobSize+1))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, fmt.Errorf("read blob: %w", err))
		return
	}
	if len(data) > maxBlobSize {
		s.sendError(w, http.StatusRequestEntityTooLarge, errors.New("blob too large"))
		return
	}
	if err := s.ctrl.Deserialize(data); err != nil {
		s.sendJSON(w, http.StatusUnprocessableEntity, struct {
			Error    string       `json:"error"`
			Settings SettingsView `json:"current"`
		}{Error: err.Error(), Settings: s.view()})
		return
	}
	s.sendJSON(w, http.StatusOK, s.view())
}

func (s *Server) handleResetReadIndex(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.ResetReadIndex()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSpectrum(w http.ResponseWriter, _ *http.Request) {
	bins := s.ctrl.Spectrum()
	if bins == nil {
		s.sendError(w, http.StatusNotFound, errors.New("spectrum disabled"))
		return
	}
	if s.hub == nil {
		s.sendJSON(w, http.StatusOK, bins)
		return
	}
	s.hub.UpdateSpectrum(bins, s.ctrl.ID())
	s.sendJSON(w, http.StatusOK, s.hub.Spectrum())
}

func (s *Server) handleSetSpectrum(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		s.sendError(w, http.StatusBadRequest, errors.New(`expected {"enabled": true|false}`))
		return
	}
	s.ctrl.SetSpectrum(*req.Enabled)
	w.WriteHeader(http.StatusNoContent)
}
