package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jonathan/contract-signer/internal/positions"
	"github.com/jonathan/contract-signer/internal/schemas"
	"github.com/jonathan/contract-signer/internal/server/middleware"
	"github.com/jonathan/contract-signer/internal/signing"
	"github.com/jonathan/contract-signer/internal/storage"
	"github.com/jonathan/contract-signer/internal/types"
)

// SendBody is the optional body of POST /contracts/{id}/send.
type SendBody struct {
	Stage           string `json:"stage,omitempty"`
	SendImmediately *bool  `json:"send_immediately,omitempty"`
}

// PreviewBody is the optional body of POST /contracts/{id}/preview. Data replaces the stored
// contract data for this preview only.
type PreviewBody struct {
	Data json.RawMessage `json:"data,omitempty"`
}

// PreviewResponse is the composed HTML of a contract.
type PreviewResponse struct {
	ContractID    uuid.UUID           `json:"contract_id"`
	Layout        types.Layout        `json:"layout,omitempty"`
	TemplateScope types.TemplateScope `json:"template_scope"`
	TemplateID    *uuid.UUID          `json:"template_id,omitempty"`
	HTML          string              `json:"html"`
}

// PositionsResponse lists the field rectangles of a layout.
type PositionsResponse struct {
	Layout    types.Layout         `json:"layout"`
	Pages     int                  `json:"pages"`
	Stage     types.Stage          `json:"stage,omitempty"`
	Positions []positions.Position `json:"positions"`
}

// handleSend sends a contract, or its next stage, for signature.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadContract(w, r)
	if !ok {
		return
	}

	var body SendBody
	if err := decodeOptional(w, r, &body); err != nil {
		s.fail(w, r, &ErrValidation{Field: "body", Message: err.Error()})
		return
	}

	result, err := s.deps.Sender.Send(r.Context(), signing.SendRequest{
		ContractID:      c.ID,
		Stage:           body.Stage,
		SendImmediately: body.SendImmediately,
	})
	var perr *signing.PersistError
	if errors.As(err, &perr) && result != nil {
		// the provider document exists; the caller needs its id even though the status write failed
		s.jsonResponse(w, http.StatusOK, result)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

// handlePreview returns the composed contract HTML with unfilled tokens stripped.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadContract(w, r)
	if !ok {
		return
	}

	var body PreviewBody
	if err := decodeOptional(w, r, &body); err != nil {
		s.fail(w, r, &ErrValidation{Field: "body", Message: err.Error()})
		return
	}
	if len(body.Data) > 0 {
		if err := schemas.Validate(schemas.ContractData, body.Data); err != nil {
			s.fail(w, r, err)
			return
		}
		var data types.ContractData
		if err := json.Unmarshal(body.Data, &data); err != nil {
			s.fail(w, r, &ErrValidation{Field: "data", Message: err.Error()})
			return
		}
		c.Data = data
	}

	composed, err := s.deps.Previewer.Preview(r.Context(), c)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "html" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, composed.HTML)
		return
	}

	resp := PreviewResponse{ContractID: c.ID, Layout: composed.Layout, HTML: composed.HTML}
	if composed.Template != nil {
		resp.TemplateScope = composed.Template.Scope
		resp.TemplateID = composed.Template.TemplateID
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handlePDF serves an archived PDF: the unsigned document of a stage, or the signed copy.
// Archives that can presign answer with a redirect.
func (s *Server) handlePDF(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadContract(w, r)
	if !ok {
		return
	}
	if s.deps.Archive == nil {
		s.fail(w, r, &ErrNotFound{Resource: "archived pdf"})
		return
	}

	key, err := archivedKey(c, r.URL.Query().Get("stage"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if p, ok := s.deps.Archive.(storage.Presigner); ok {
		url, err := p.PresignedURL(r.Context(), key)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	data, err := s.deps.Archive.Get(r.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		s.fail(w, r, &ErrNotFound{Resource: "archived pdf"})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", storage.ContentTypePDF)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// archivedKey picks the object key recorded on the contract. "signed" selects the signed
// copy; an empty stage selects the signed copy of completed contracts and the first stage otherwise.
func archivedKey(c *types.Contract, stageParam string) (string, error) {
	if stageParam == "" && c.Status == types.StatusCompleted {
		stageParam = "signed"
	}
	var field string
	if stageParam == "signed" {
		field = types.FieldArchivedSignedPDFPath
	} else {
		stage, err := types.ParseStage(stageParam)
		if err != nil {
			return "", &ErrValidation{Field: "stage", Message: err.Error()}
		}
		if stage == "" {
			stage = types.StageSingle
			if c.CustomString(types.FieldArchivedPDFPrefix+string(types.StageSeller)) != "" {
				stage = types.StageSeller
			}
		}
		field = types.FieldArchivedPDFPrefix + string(stage)
	}
	key := c.CustomString(field)
	if key == "" {
		return "", &ErrNotFound{Resource: "archived pdf"}
	}
	return key, nil
}

// handlePositions lists the field rectangles of a layout for a page count.
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	layout, err := types.ParseLayout(r.PathValue("layout"))
	if err != nil {
		s.fail(w, r, &ErrValidation{Field: "layout", Message: err.Error()})
		return
	}
	pages, err := strconv.Atoi(r.URL.Query().Get("pages"))
	if err != nil || pages < 1 {
		s.fail(w, r, &ErrValidation{Field: "pages", Message: "must be a positive integer"})
		return
	}
	stage, err := types.ParseStage(r.URL.Query().Get("stage"))
	if err != nil {
		s.fail(w, r, &ErrValidation{Field: "stage", Message: err.Error()})
		return
	}

	ps, err := positions.ForStage(layout, pages, stage)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, PositionsResponse{Layout: layout, Pages: pages, Stage: stage, Positions: ps})
}

// loadContract resolves {id}, loads the contract and checks the operator may see it.
// Contracts of other companies are reported as not found.
func (s *Server) loadContract(w http.ResponseWriter, r *http.Request) (*types.Contract, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, &ErrValidation{Field: "id", Message: "must be a UUID"})
		return nil, false
	}
	c, err := s.deps.Contracts.GetContract(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	if c == nil {
		s.fail(w, r, &ErrNotFound{Resource: "contract"})
		return nil, false
	}
	if p, err := middleware.GetPrincipal(r); err == nil && !p.CanAccess(c.CompanyID) {
		s.fail(w, r, &ErrNotFound{Resource: "contract"})
		return nil, false
	}
	return c, true
}

// decodeOptional decodes a JSON body into v. An empty body leaves v untouched.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
