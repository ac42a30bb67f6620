package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-registry/internal/device"
)

// ownedResponse is the body of the owner index endpoints.
type ownedResponse struct {
	Owner    device.Owner `json:"owner"`
	Devices  []device.ID  `json:"devices"`
	Count    int          `json:"count"`
	MaxOwned int          `json:"max_owned"`
}

// statsResponse is the body of GET /stats. Count is a decimal string
// because it spans the full uint64 range.
type statsResponse struct {
	Count    string `json:"count"`
	MaxOwned int    `json:"max_owned"`
}

// handleRegisterDevice mints a new device for the authenticated caller.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	caller := accountFromContext(r.Context())

	id, err := s.registry.Register(r.Context(), caller)
	if err != nil {
		s.handleRegistryError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, device.Record{ID: id, Owner: caller})
}

// handleMintDevice registers a caller-chosen id for the authenticated caller.
func (s *Server) handleMintDevice(w http.ResponseWriter, r *http.Request) {
	id, err := device.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	caller := accountFromContext(r.Context())

	if err := s.registry.Mint(r.Context(), caller, id); err != nil {
		s.handleRegistryError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, device.Record{ID: id, Owner: caller})
}

// handleGetDevice returns a single device record.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, err := device.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	rec, err := s.registry.Get(r.Context(), id)
	if err != nil {
		s.handleRegistryError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListMyDevices(w http.ResponseWriter, r *http.Request) {
	s.writeOwned(w, r, accountFromContext(r.Context()))
}

func (s *Server) handleListOwnerDevices(w http.ResponseWriter, r *http.Request) {
	owner, err := url.PathUnescape(chi.URLParam(r, "owner"))
	if err != nil {
		writeBadRequest(w, "invalid owner")
		return
	}
	s.writeOwned(w, r, device.Owner(owner))
}

func (s *Server) writeOwned(w http.ResponseWriter, r *http.Request, owner device.Owner) {
	if err := owner.Validate(); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	ids, err := s.registry.OwnedBy(r.Context(), owner)
	if err != nil {
		s.handleRegistryError(w, r, err)
		return
	}
	if ids == nil {
		ids = []device.ID{}
	}

	writeJSON(w, http.StatusOK, ownedResponse{
		Owner:    owner,
		Devices:  ids,
		Count:    len(ids),
		MaxOwned: s.registry.MaxOwned(),
	})
}

// handleStats returns the global device count and the per-owner limit.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	count, err := s.registry.Count(r.Context())
	if err != nil {
		s.handleRegistryError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Count:    strconv.FormatUint(count, 10),
		MaxOwned: s.registry.MaxOwned(),
	})
}

// handleRegistryError writes the mapped response for known registry
// errors and logs everything else as an internal failure.
func (s *Server) handleRegistryError(w http.ResponseWriter, r *http.Request, err error) {
	if writeRegistryError(w, err) {
		return
	}
	s.logger.Error("registry operation failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", r.Context().Value(ctxKeyRequestID),
		"error", err,
	)
	writeInternalError(w, "registry operation failed")
}
