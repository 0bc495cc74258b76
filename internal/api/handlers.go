package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Handler holds API route handlers.
type Handler struct {
	svc      Service
	notifier ChangeNotifier // may be nil
}

// NewHandler creates a new Handler. A non-nil notifier is told about every
// manual sync that succeeds.
func NewHandler(svc Service, notifier ChangeNotifier) *Handler {
	return &Handler{svc: svc, notifier: notifier}
}

func (h *Handler) notifyChanged() {
	if h.notifier != nil {
		h.notifier.PublishNotes(false)
	}
}

// notePath reads the note path from the query string. An absent path
// addresses the root note.
func notePath(r *http.Request) string {
	return r.URL.Query().Get("path")
}

func listResponse(ms []NoteMetadata) NoteListResponse {
	if ms == nil {
		ms = []NoteMetadata{}
	}
	return NoteListResponse{Notes: ms}
}

// GetNote handles GET /note.
//
//	@Summary		Get a single note by path
//	@Tags			notes
//	@Produce		json
//	@Param			path	query		string	false	"Note path, empty for the root note"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/note [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.svc.GetNote(r.Context(), notePath(r))
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /note.
//
//	@Summary		Create an empty note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PathRequest	true	"Note to create"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/note [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	note, err := h.svc.CreateNote(r.Context(), req.Path)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// SaveNote handles PUT /note.
//
//	@Summary		Replace the content of an existing note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SaveNoteRequest	true	"Updated content"
//	@Success		200		{object}	NoteMetadata
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/note [put]
func (h *Handler) SaveNote(w http.ResponseWriter, r *http.Request) {
	var req SaveNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	meta, err := h.svc.SaveNote(r.Context(), req.Path, []byte(req.Content))
	if err != nil {
		writeError(w, "save note", err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// DeleteNote handles DELETE /note.
//
//	@Summary		Delete a note and its descendants
//	@Tags			notes
//	@Param			path	query	string	true	"Note path"
//	@Success		204		"Note deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/note [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteNote(r.Context(), notePath(r)); err != nil {
		writeError(w, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RenameNote handles POST /note/rename.
//
//	@Summary		Move a note and its subtree
//	@Tags			notes
//	@Accept			json
//	@Param			body	body	RenameNoteRequest	true	"Source and target paths"
//	@Success		204		"Note moved"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/note/rename [post]
func (h *Handler) RenameNote(w http.ResponseWriter, r *http.Request) {
	var req RenameNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.OldPath, validation.Required),
		validation.Field(&req.NewPath, validation.Required),
	); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.svc.RenameNote(r.Context(), req.OldPath, req.NewPath); err != nil {
		writeError(w, "rename note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ArchiveNote handles POST /note/archive.
//
//	@Summary		Move a note into its parent's archive
//	@Tags			notes
//	@Accept			json
//	@Param			body	body	PathRequest	true	"Note to archive"
//	@Success		204		"Note archived"
//	@Security		BearerAuth
//	@Router			/note/archive [post]
func (h *Handler) ArchiveNote(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.ArchiveNote(r.Context(), req.Path); err != nil {
		writeError(w, "archive note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnarchiveNote handles POST /note/unarchive.
//
//	@Summary		Restore an archived note
//	@Tags			notes
//	@Accept			json
//	@Param			body	body	PathRequest	true	"Archived or logical note path"
//	@Success		204		"Note restored"
//	@Security		BearerAuth
//	@Router			/note/unarchive [post]
func (h *Handler) UnarchiveNote(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.UnarchiveNote(r.Context(), req.Path); err != nil {
		writeError(w, "unarchive note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Children handles GET /note/children.
func (h *Handler) Children(w http.ResponseWriter, r *http.Request) {
	ms, err := h.svc.GetChildren(r.Context(), notePath(r))
	if err != nil {
		writeError(w, "children", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(ms))
}

// Ancestors handles GET /note/ancestors.
func (h *Handler) Ancestors(w http.ResponseWriter, r *http.Request) {
	ms, err := h.svc.GetAncestors(r.Context(), notePath(r))
	if err != nil {
		writeError(w, "ancestors", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(ms))
}

// Parent handles GET /note/parent.
func (h *Handler) Parent(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.GetParent(r.Context(), notePath(r))
	if err != nil {
		writeError(w, "parent", err)
		return
	}
	writeJSON(w, http.StatusOK, ParentResponse{Parent: m})
}

// Exists handles GET /note/exists.
func (h *Handler) Exists(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	ok, err := h.svc.NoteExists(r.Context(), path)
	if err != nil {
		writeError(w, "exists", err)
		return
	}
	var kids bool
	if ok {
		if kids, err = h.svc.HasChildren(r.Context(), path); err != nil {
			writeError(w, "has children", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, ExistsResponse{Exists: ok, HasChildren: kids})
}

// Roots handles GET /notes/roots.
//
//	@Summary		List the top-most notes
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes/roots [get]
func (h *Handler) Roots(w http.ResponseWriter, r *http.Request) {
	ms, err := h.svc.GetRootNotes(r.Context())
	if err != nil {
		writeError(w, "roots", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(ms))
}

// Search handles GET /search.
//
//	@Summary		Case-insensitive substring search over note content
//	@Tags			search
//	@Produce		json
//	@Param			q	query		string	true	"Search query"
//	@Success		200	{object}	NoteListResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	ms, err := h.svc.Search(r.Context(), q)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(ms))
}

// Sync handles POST /sync. An empty body rescans the whole store.
//
//	@Summary		Reconcile the index with the disk
//	@Tags			sync
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SyncRequest	false	"Optional single note"
//	@Success		200		{object}	SyncResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path != nil {
		if err := h.svc.SyncNote(r.Context(), *req.Path); err != nil {
			writeError(w, "sync note", err)
			return
		}
		h.notifyChanged()
		writeJSON(w, http.StatusOK, SyncResponse{})
		return
	}
	stats, err := h.svc.Rescan(r.Context())
	if err != nil {
		writeError(w, "rescan", err)
		return
	}
	h.notifyChanged()
	writeJSON(w, http.StatusOK, SyncResponse{Stats: &stats})
}
