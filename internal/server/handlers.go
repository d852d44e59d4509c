package server

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cardlens/benefit-cli/internal/compare"
	"github.com/cardlens/benefit-cli/internal/export"
	"github.com/cardlens/benefit-cli/internal/model"
	"github.com/cardlens/benefit-cli/internal/session"
)

type createSessionRequest struct {
	Seed   model.Seed          `json:"seed"`
	Config model.SessionConfig `json:"config"`

	// DocumentB64 carries an uploaded document; Seed.Document is not part
	// of the JSON surface.
	DocumentB64 string `json:"document_b64,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DocumentB64 != "" {
		doc, err := base64.StdEncoding.DecodeString(req.DocumentB64)
		if err != nil {
			writeError(w, &session.ConfigError{Reason: "document_b64 is not valid base64"})
			return
		}
		req.Seed.Document = doc
	}

	sess, err := s.sessions.CreateSession(r.Context(), req.Seed, req.Config)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, sess)
}

func (s *Server) handleDiscoverCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.sessions.DiscoverCards(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, cards)
}

type selectCardsRequest struct {
	CardIDs []string `json:"card_ids"`
}

func (s *Server) handleSelectCards(w http.ResponseWriter, r *http.Request) {
	var req selectCardsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.sessions.SelectCards(r.Context(), id, req.CardIDs); err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, sess)
}

func (s *Server) handleDiscoverURLs(w http.ResponseWriter, r *http.Request) {
	cands, err := s.sessions.DiscoverURLs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, cands)
}

type selectURLsRequest struct {
	URLs []string `json:"urls"`
}

func (s *Server) handleSelectURLs(w http.ResponseWriter, r *http.Request) {
	var req selectURLsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.sessions.SelectURLs(r.Context(), id, req.URLs); err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, sess)
}

func (s *Server) handleFetchContent(w http.ResponseWriter, r *http.Request) {
	sources, err := s.sessions.FetchContent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, sources)
}

func (s *Server) handleApproveSource(w http.ResponseWriter, r *http.Request) {
	review, err := s.sessions.ApproveSource(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "sid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, review)
}

func (s *Server) handleRejectSource(w http.ResponseWriter, r *http.Request) {
	review, err := s.sessions.RejectSource(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "sid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, review)
}

func (s *Server) handleApproveAll(w http.ResponseWriter, r *http.Request) {
	review, err := s.sessions.ApproveAll(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, review)
}

func (s *Server) handleSaveRaw(w http.ResponseWriter, r *http.Request) {
	recordID, err := s.sessions.SaveApprovedRaw(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]string{"record_id": recordID})
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.RecordFilter{
		SessionID: q.Get("session_id"),
		BankKey:   q.Get("bank_key"),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	page, err := s.sessions.ListRawRecords(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, page)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.sessions.GetRawRecord(r.Context(), chi.URLParam(r, "recordId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, rec)
}

func (s *Server) handleIndexVectors(w http.ResponseWriter, r *http.Request) {
	result, err := s.sessions.IndexVectors(r.Context(), chi.URLParam(r, "recordId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

type runPipelinesRequest struct {
	Names    []string `json:"names,omitempty"`
	Parallel bool     `json:"parallel,omitempty"`
}

func (s *Server) handleRunPipelines(w http.ResponseWriter, r *http.Request) {
	var req runPipelinesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	out, err := s.sessions.RunPipelines(r.Context(), chi.URLParam(r, "recordId"), req.Names, req.Parallel)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, out)
}

func (s *Server) handleDeleteBenefit(w http.ResponseWriter, r *http.Request) {
	rec, err := s.sessions.DeleteBenefit(r.Context(), chi.URLParam(r, "recordId"), chi.URLParam(r, "bid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, rec)
}

type compareRequest struct {
	RecordIDs []string `json:"record_ids"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.RecordIDs) < 2 {
		writeError(w, &session.ConfigError{Reason: "compare needs at least two record ids"})
		return
	}

	inputs := make([]compare.Input, 0, len(req.RecordIDs))
	for _, id := range req.RecordIDs {
		raw, err := s.sessions.GetRawRecord(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		rec, err := s.sessions.GetBenefitRecord(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		inputs = append(inputs, compare.Input{Raw: raw, Rec: rec})
	}

	result, err := compare.Run(inputs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "recordId")
	raw, err := s.sessions.GetRawRecord(r.Context(), recordID)
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := s.sessions.GetBenefitRecord(r.Context(), recordID)
	if err != nil {
		writeError(w, err)
		return
	}

	wb, err := export.Build(raw, rec)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="benefits-`+recordID+`.xlsx"`)
	if err := wb.File().Write(w); err != nil {
		writeError(w, err)
	}
}
