package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BTreeMap/PostCraft/internal/export"
	"github.com/BTreeMap/PostCraft/internal/gateway"
	"github.com/BTreeMap/PostCraft/internal/models"
	"github.com/BTreeMap/PostCraft/internal/store"
	"github.com/BTreeMap/PostCraft/internal/twiliowhatsapp"
)

// writeGatewayError maps gateway failures onto status codes. Only validation
// messages are shown to the client; upstream details stay in the log.
func writeGatewayError(w http.ResponseWriter, err error, upstreamMessage string, upstreamStatus int) {
	if gateway.IsValidationError(err) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, upstreamStatus, models.Error(upstreamMessage))
}

func (s *Server) generateTextHandler(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.generateTextHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	res, err := s.text.Generate(r.Context(), req)
	if err != nil {
		slog.Error("Server.generateTextHandler: generation failed", "error", err)
		writeGatewayError(w, err, "Failed to generate text", http.StatusBadGateway)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

func (s *Server) generateImageHandler(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.generateImageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	res, err := s.image.Generate(r.Context(), req)
	if err != nil {
		slog.Error("Server.generateImageHandler: generation failed", "error", err)
		writeGatewayError(w, err, "Failed to generate image", http.StatusBadGateway)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

func (s *Server) createPostHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SavePostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.createPostHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	post, err := s.posts.Save(r.Context(), req)
	if err != nil {
		slog.Error("Server.createPostHandler: save failed", "error", err)
		writeGatewayError(w, err, "Failed to save post", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(post))
}

func (s *Server) listPostsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	posts, err := s.posts.List(r.Context(), limit)
	if err != nil {
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list posts"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(posts))
}

// lookupPost writes the 404/500 response itself and reports whether post is usable.
func (s *Server) lookupPost(w http.ResponseWriter, r *http.Request) (models.Post, bool) {
	id := r.PathValue("id")
	post, err := s.posts.Get(r.Context(), id)
	if errors.Is(err, store.ErrPostNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Post not found"))
		return models.Post{}, false
	}
	if err != nil {
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load post"))
		return models.Post{}, false
	}
	return post, true
}

func (s *Server) getPostHandler(w http.ResponseWriter, r *http.Request) {
	post, ok := s.lookupPost(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(post))
}

func (s *Server) sharePostHandler(w http.ResponseWriter, r *http.Request) {
	if s.sharer == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Sharing is not configured"))
		return
	}
	var req models.ShareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.sharePostHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	to, err := twiliowhatsapp.CanonicalizeRecipient(req.To)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	post, ok := s.lookupPost(w, r)
	if !ok {
		return
	}
	if err := s.sharer.SendMedia(r.Context(), to, post.Content, post.ImageURL); err != nil {
		slog.Error("Server.sharePostHandler: send failed", "id", post.ID, "error", err)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Failed to share post"))
		return
	}
	slog.Info("Server.sharePostHandler: post shared", "id", post.ID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Post shared", nil))
}

func (s *Server) exportPostHandler(w http.ResponseWriter, r *http.Request) {
	post, ok := s.lookupPost(w, r)
	if !ok {
		return
	}
	doc, err := s.exporter.Export(r.Context(), post)
	if errors.Is(err, export.ErrUntrustedImageURL) {
		writeJSONResponse(w, http.StatusUnprocessableEntity, models.Error("Post image is not hosted by this server"))
		return
	}
	if err != nil {
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Failed to export post"))
		return
	}
	writeDocx(w, doc)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}
