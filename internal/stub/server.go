package stub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/revivelabs/photorestore/internal/config"
)

// Server is a development stand-in for the restoration backend. It speaks
// the same wire contract but "enhances" by echoing the upload back after a
// configurable delay, so the whole client can be exercised offline.
type Server struct {
	addr            string
	delay           time.Duration
	startingCredits int
	log             *slog.Logger
	store           *store
	router          *chi.Mux
}

func NewServer(cfg config.Config, log *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:            cfg.StubListenAddr,
		delay:           cfg.StubProcessingDelay,
		startingCredits: cfg.StubStartingCredits,
		log:             log,
		store:           newStore(),
		router:          r,
	}

	r.Post("/api/enhance", s.handleEnhance)
	r.Post("/api/filter", s.handleFilter)
	r.Post("/api/custom-edit", s.handleCustomEdit)
	r.Post("/api/restore", s.handleRestore)
	r.Post("/api/purchase", s.handlePurchase)
	r.Post("/api/analytics", s.handleAnalytics)
	r.Get("/api/enhancements/{userID}", s.handleListEnhancements)
	r.Get("/api/image/*", s.handleImage)
	r.Post("/api/email/send-verification", s.handleSendVerification)
	r.Post("/api/email/verify-code", s.handleVerifyCode)
	r.Get("/api/email/devices/{email}", s.handleListDevices)
	r.Post("/api/email/remove-device", s.handleRemoveDevice)

	return s
}

// Handler exposes the router for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("stub shutdown error", "err", err)
		}
	}()

	s.log.Info("stub backend listening", "addr", s.addr, "delay", s.delay)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("stub listen: %w", err)
	}
	return nil
}

func (s *Server) handleEnhance(w http.ResponseWriter, r *http.Request) {
	s.processUpload(w, r, r.FormValue("mode"))
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	s.processUpload(w, r, r.FormValue("filter_type"))
}

func (s *Server) handleCustomEdit(w http.ResponseWriter, r *http.Request) {
	if r.FormValue("edit_description") == "" {
		s.writeDetail(w, http.StatusUnprocessableEntity, "edit_description required")
		return
	}
	s.processUpload(w, r, "custom-edit")
}

// processUpload is the shared enhance/filter path: charge one credit from
// the resolution's bucket, stash the original bytes as the "enhanced" image
// and answer with the usual credit fields.
func (s *Server) processUpload(w http.ResponseWriter, r *http.Request, mode string) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeDetail(w, http.StatusUnprocessableEntity, "invalid multipart form")
		return
	}
	userID := r.FormValue("user_id")
	if userID == "" {
		s.writeDetail(w, http.StatusUnprocessableEntity, "user_id required")
		return
	}
	resolution := r.FormValue("resolution")
	if resolution == "" {
		resolution = "standard"
	}
	if mode == "" {
		mode = "enhance"
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		s.writeDetail(w, http.StatusUnprocessableEntity, "file required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.writeDetail(w, http.StatusInternalServerError, "read upload")
		return
	}

	start := time.Now()

	s.store.mu.Lock()
	u := s.store.ensureUser(userID, s.startingCredits)
	if resolution == "hd" {
		if u.HDCredits <= 0 {
			s.store.mu.Unlock()
			s.writeDetail(w, http.StatusForbidden, "No credits available")
			return
		}
		u.HDCredits--
	} else {
		if u.StandardCredits <= 0 {
			s.store.mu.Unlock()
			s.writeDetail(w, http.StatusForbidden, "No credits available")
			return
		}
		u.StandardCredits--
	}
	watermark := u.StandardCredits == 0 && u.HDCredits == 0 && u.SubType == ""
	remainingStd, remainingHD := u.StandardCredits, u.HDCredits
	s.store.mu.Unlock()

	// Simulated processing time; the real backend runs a model here.
	select {
	case <-time.After(s.delay):
	case <-r.Context().Done():
		return
	}

	id := uuid.NewString()
	key := "enhanced/" + id + ".png"

	s.store.mu.Lock()
	s.store.images[key] = data
	s.store.enhancements[userID] = append(s.store.enhancements[userID], enhancement{
		ID:             id,
		UserID:         userID,
		Mode:           mode,
		Resolution:     resolution,
		ImageKey:       key,
		ProcessingTime: time.Since(start).Seconds(),
		Watermark:      watermark,
		CreatedAt:      time.Now().UTC(),
	})
	s.store.mu.Unlock()

	s.log.Info("stub enhancement served", "user_id", userID, "mode", mode, "resolution", resolution)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"enhancement_id":             id,
		"enhanced_url":               "/api/image/" + key,
		"watermark":                  watermark,
		"processing_time":            time.Since(start).Seconds(),
		"remaining_standard_credits": remainingStd,
		"remaining_hd_credits":       remainingHD,
	})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string   `json:"user_id"`
		Receipts []string `json:"receipts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		s.writeDetail(w, http.StatusUnprocessableEntity, "user_id required")
		return
	}

	s.store.mu.Lock()
	u := s.store.ensureUser(req.UserID, s.startingCredits)
	resp := map[string]any{
		"user_id":              req.UserID,
		"standard_credits":     u.StandardCredits,
		"hd_credits":           u.HDCredits,
		"subscription_type":    nullable(u.SubType),
		"subscription_expires": nullableTime(u.SubExpires),
		"purchases":            []any{},
	}
	s.store.mu.Unlock()

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"user_id"`
		ProductID string `json:"product_id"`
		Receipt   string `json:"receipt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		s.writeDetail(w, http.StatusUnprocessableEntity, "user_id required")
		return
	}

	// Any receipt is accepted here; validation belongs to the real backend.
	const creditsPerPurchase = 10

	s.store.mu.Lock()
	u := s.store.ensureUser(req.UserID, s.startingCredits)
	u.StandardCredits += creditsPerPurchase
	total := u.StandardCredits
	s.store.mu.Unlock()

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":              true,
		"purchase_id":          uuid.NewString(),
		"credits":              total,
		"subscription_type":    nil,
		"subscription_expires": nil,
	})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	var event map[string]any
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		s.writeDetail(w, http.StatusUnprocessableEntity, "invalid event")
		return
	}
	s.log.Debug("stub analytics event", "event_type", event["event_type"])
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "event_id": uuid.NewString()})
}

func (s *Server) handleListEnhancements(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	s.store.mu.Lock()
	entries := s.store.enhancements[userID]
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"id":              e.ID,
			"enhanced_url":    "/api/image/" + e.ImageKey,
			"thumbnail_url":   "/api/image/" + e.ImageKey + "?thumbnail=true",
			"mode":            e.Mode,
			"resolution":      e.Resolution,
			"processing_time": e.ProcessingTime,
			"watermark":       e.Watermark,
			"created_at":      e.CreatedAt.Format(time.RFC3339),
		})
	}
	s.store.mu.Unlock()

	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")

	s.store.mu.Lock()
	data, ok := s.store.images[key]
	s.store.mu.Unlock()

	if !ok {
		s.writeDetail(w, http.StatusNotFound, "image not found")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleSendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		DeviceID   string `json:"device_id"`
		DeviceName string `json:"device_name"`
		DeviceType string `json:"device_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		s.writeDetail(w, http.StatusUnprocessableEntity, "email required")
		return
	}

	code := fmt.Sprintf("%06d", time.Now().UnixNano()%1000000)
	s.store.mu.Lock()
	s.store.codes[req.Email] = code
	s.store.mu.Unlock()

	// No mail is sent; the code rides back in the response for development.
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"message":            "verification code generated",
		"verification_code":  code,
		"expires_in_minutes": 10,
	})
}

func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		DeviceID   string `json:"device_id"`
		Code       string `json:"code"`
		DeviceType string `json:"device_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		s.writeDetail(w, http.StatusUnprocessableEntity, "email required")
		return
	}

	s.store.mu.Lock()
	expected, ok := s.store.codes[req.Email]
	if !ok || expected != req.Code {
		s.store.mu.Unlock()
		s.writeDetail(w, http.StatusBadRequest, "invalid or expired code")
		return
	}
	delete(s.store.codes, req.Email)
	s.store.links[req.Email] = append(s.store.links[req.Email], linkedDevice{
		ID:       uuid.NewString(),
		Name:     req.DeviceType + " device",
		Type:     req.DeviceType,
		DeviceID: req.DeviceID,
		LinkedAt: time.Now().UTC(),
	})
	s.store.mu.Unlock()

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "device linked",
		"device_id": req.DeviceID,
		"email":     req.Email,
	})
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")

	s.store.mu.Lock()
	linked := s.store.links[email]
	devices := make([]map[string]any, 0, len(linked))
	for _, d := range linked {
		devices = append(devices, map[string]any{
			"id":          d.ID,
			"name":        d.Name,
			"type":        d.Type,
			"device_id":   d.DeviceID,
			"last_active": d.LinkedAt.Format(time.RFC3339),
		})
	}
	s.store.mu.Unlock()

	s.writeJSON(w, http.StatusOK, map[string]any{"email": email, "devices": devices})
}

func (s *Server) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email              string `json:"email"`
		DeviceIDToRemove   string `json:"device_id_to_remove"`
		RequestingDeviceID string `json:"requesting_device_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		s.writeDetail(w, http.StatusUnprocessableEntity, "email required")
		return
	}

	s.store.mu.Lock()
	linked := s.store.links[req.Email]
	kept := linked[:0]
	removed := false
	for _, d := range linked {
		if d.DeviceID == req.DeviceIDToRemove {
			removed = true
			continue
		}
		kept = append(kept, d)
	}
	s.store.links[req.Email] = kept
	s.store.mu.Unlock()

	if !removed {
		s.writeDetail(w, http.StatusNotFound, "device not linked")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"message":           "device removed",
		"removed_device_id": req.DeviceIDToRemove,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeDetail(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]string{"detail": detail})
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
