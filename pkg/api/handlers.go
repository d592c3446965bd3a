package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"streamhub/pkg/addon"
	"streamhub/pkg/aggregate"
	"streamhub/pkg/config"
	"streamhub/pkg/engine"
	"streamhub/pkg/logger"
	"streamhub/pkg/progress"
	"streamhub/pkg/stremio"
)

const maxRequestBody = 1 << 20

// addonView is the JSON shape of one installed provider
type addonView struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Version      string            `json:"version,omitempty"`
	TransportURL string            `json:"transportUrl"`
	Priority     int               `json:"priority"`
	Configurable bool              `json:"configurable"`
	ConfigureURL string            `json:"configureUrl,omitempty"`
	Manifest     *stremio.Manifest `json:"manifest"`
}

func (s *Server) listAddons() []addonView {
	snap := s.engine.Registry().Snapshot()
	entries := snap.Entries()
	out := make([]addonView, 0, len(entries))
	for _, e := range entries {
		configureURL, _ := addon.ResolveConfigURL(e.Manifest, e.TransportURL)
		out = append(out, addonView{
			ID:           e.ID(),
			Name:         e.Name(),
			Version:      e.Manifest.Version,
			TransportURL: e.TransportURL,
			Priority:     snap.PriorityOf(e.ID()),
			Configurable: e.Manifest.Configurable(),
			ConfigureURL: configureURL,
			Manifest:     e.Manifest,
		})
	}
	return out
}

func (s *Server) handleListAddons(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"addons": s.listAddons()})
}

func (s *Server) handleInstallAddon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL     string `json:"url"`
		Replace bool   `json:"replace"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "url is required")
		return
	}

	m, err := s.engine.InstallAddon(r.Context(), req.URL, req.Replace)
	if err != nil {
		logger.Warn("Addon install failed", "url", req.URL, "err", err)
		writeAddonError(w, err)
		return
	}
	logger.Info("Addon installed", "id", m.ID, "name", m.Name)
	writeJSON(w, http.StatusCreated, map[string]any{"addon": m})
}

func (s *Server) handleRefreshAddons(w http.ResponseWriter, r *http.Request) {
	failed := s.engine.RefreshAddons(r.Context())
	errs := make(map[string]string, len(failed))
	for id, err := range failed {
		errs[id] = err.Error()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"addons": s.listAddons(),
		"errors": errs,
	})
}

func (s *Server) handleRemoveAddon(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.engine.Registry().Remove(id) {
		writeError(w, http.StatusNotFound, "not_found", "addon not installed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMoveAddon(up bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		reg := s.engine.Registry()
		if _, ok := reg.Snapshot().Lookup(id); !ok {
			writeError(w, http.StatusNotFound, "not_found", "addon not installed")
			return
		}
		if up {
			reg.MoveUp(id)
		} else {
			reg.MoveDown(id)
		}
		writeJSON(w, http.StatusOK, map[string]any{"addons": s.listAddons()})
	}
}

func (s *Server) handleConfigureURL(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.engine.Registry().Snapshot().Lookup(id); !ok {
		writeError(w, http.StatusNotFound, "not_found", "addon not installed")
		return
	}
	u, ok := s.engine.ConfigureURL(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_configurable", "addon has no configuration page")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": u})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Settings())
}

// handleSettingsOverrides lists the config keys pinned by environment
// variables, so the UI can warn that saving them has no lasting effect.
func (s *Server) handleSettingsOverrides(w http.ResponseWriter, r *http.Request) {
	keys := config.GetEnvOverrideKeys()
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var next config.Settings
	if err := decodeBody(r, &next); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	saved, err := s.saveSettings(next)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "save_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// saveSettings publishes new settings to the engine and persists them to the
// config file. The engine copy is updated even when the write fails.
func (s *Server) saveSettings(next config.Settings) (config.Settings, error) {
	s.engine.UpdateSettings(next)
	saved := s.engine.Settings()

	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Settings = saved.Clone()
	if err := s.config.Save(); err != nil {
		logger.Error("Failed to save settings", "err", err)
		return saved, err
	}
	return saved, nil
}

func (s *Server) handleQueryStreams(w http.ResponseWriter, r *http.Request) {
	req, ok := streamRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "id and type are required")
		return
	}

	ctx := r.Context()
	if d, err := time.ParseDuration(r.URL.Query().Get("timeout")); err == nil && d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	q := s.engine.QueryStreams(ctx, req, nil)
	defer q.Cancel()

	// Deadline expiry returns whatever arrived so far.
	view, _ := q.Wait(ctx)
	writeJSON(w, http.StatusOK, s.engine.Rank(view))
}

func streamRequest(r *http.Request) (aggregate.Request, bool) {
	q := r.URL.Query()
	req := aggregate.Request{
		ContentID: strings.TrimSpace(q.Get("id")),
		Type:      strings.TrimSpace(q.Get("type")),
		EpisodeID: strings.TrimSpace(q.Get("episode")),
	}
	return req, req.ContentID != "" && req.Type != ""
}

type playRequest struct {
	Request aggregate.Request `json:"request"`
	Stream  stremio.Candidate `json:"stream"`
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Stream.URL == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "stream url is required")
		return
	}
	writeJSON(w, http.StatusOK, s.play(r.Context(), req))
}

func (s *Server) play(ctx context.Context, req playRequest) engine.Selection {
	sel := s.engine.Play(ctx, req.Request, req.Stream)
	logger.Info("Stream routed", "content", req.Request.ContentID, "kind", sel.Route.Kind, "reason", sel.Route.Reason)
	return sel
}

func (s *Server) handleSaveProgress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Request  aggregate.Request `json:"request"`
		Position progress.Position `json:"position"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Request.ContentID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "request.contentId is required")
		return
	}
	if req.Position.UpdatedAt.IsZero() {
		req.Position.UpdatedAt = time.Now().UTC()
	}
	if err := s.engine.SaveProgress(req.Request, req.Position); err != nil {
		writeError(w, http.StatusInternalServerError, "save_failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

func writeAddonError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, addon.ErrDuplicateID):
		writeError(w, http.StatusConflict, "duplicate_id", err.Error())
	case errors.Is(err, addon.ErrInvalidSchema):
		writeError(w, http.StatusUnprocessableEntity, "invalid_manifest", err.Error())
	case errors.Is(err, addon.ErrUnreachable):
		writeError(w, http.StatusBadGateway, "unreachable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
