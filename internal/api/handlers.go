package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/registry"
	"oracle-protocol/internal/runtime"
)

// defaultHistoryLimit applies when ?limit is absent.
const defaultHistoryLimit = 100

type providerResponse struct {
	Address  domain.Pubkey `json:"address"`
	Name     string        `json:"name"`
	Owner    domain.Pubkey `json:"owner"`
	Capacity uint32        `json:"capacity"`
	Bump     uint8         `json:"bump"`
}

func toProviderResponse(p *domain.Provider) providerResponse {
	return providerResponse{
		Address:  p.Address,
		Name:     p.Name,
		Owner:    p.Owner,
		Capacity: p.Capacity,
		Bump:     p.Bump,
	}
}

type oracleResponse struct {
	Address    domain.Pubkey      `json:"address"`
	Provider   domain.Pubkey      `json:"provider"`
	Name       string             `json:"name"`
	Attributes []domain.Attribute `json:"attributes"`
	Bump       uint8              `json:"bump"`
}

func toOracleResponse(o *domain.Oracle) oracleResponse {
	attrs := o.Attributes
	if attrs == nil {
		attrs = []domain.Attribute{}
	}
	return oracleResponse{
		Address:    o.Address,
		Provider:   o.Provider,
		Name:       o.Name,
		Attributes: attrs,
		Bump:       o.Bump,
	}
}

type revisionResponse struct {
	Kind       domain.RevisionKind `json:"kind"`
	Provider   domain.Pubkey       `json:"provider"`
	Attributes []domain.Attribute  `json:"attributes"`
	Signer     *domain.Pubkey      `json:"signer,omitempty"`
	Slot       int64               `json:"slot,omitempty"`
	RecordedAt time.Time           `json:"recorded_at"`
}

type deriveResponse struct {
	Address domain.Pubkey `json:"address"`
	Bump    uint8         `json:"bump"`
}

// handleSubmit handles POST /v1/transactions. The receipt is returned with
// the status of its result code.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var tx runtime.Transaction
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tx); err != nil {
		writeCode(w, codeBadRequest, fmt.Sprintf("decode transaction: %v", err))
		return
	}

	receipt, err := s.processor.Process(r.Context(), &tx)
	if receipt == nil {
		writeError(w, err)
		return
	}
	if err != nil && statusOf(receipt.Result) == http.StatusInternalServerError {
		s.logger.Printf("ERROR: transaction %s %s on %s: %v", receipt.Program, receipt.Instruction, receipt.Account, err)
		receipt.Error = ""
	}
	writeJSON(w, statusOf(receipt.Result), receipt)
}

func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	address, ok := pathAddress(w, r)
	if !ok {
		return
	}
	p, err := s.registry.GetProvider(r.Context(), address)
	if err != nil {
		s.fail(w, "get provider", err)
		return
	}
	writeJSON(w, http.StatusOK, toProviderResponse(p))
}

func (s *Server) handleGetOracle(w http.ResponseWriter, r *http.Request) {
	address, ok := pathAddress(w, r)
	if !ok {
		return
	}
	o, err := s.registry.GetOracle(r.Context(), address)
	if err != nil {
		s.fail(w, "get oracle", err)
		return
	}
	writeJSON(w, http.StatusOK, toOracleResponse(o))
}

// handleHistory handles GET /v1/oracles/{address}/history?limit=N.
// The oracle must exist; its revisions come newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	address, ok := pathAddress(w, r)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeCode(w, codeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	if _, err := s.registry.GetOracle(r.Context(), address); err != nil {
		s.fail(w, "get oracle", err)
		return
	}

	revisions, err := s.registry.ListRevisions(r.Context(), address, limit)
	if err != nil {
		s.fail(w, "list revisions", err)
		return
	}

	out := make([]revisionResponse, 0, len(revisions))
	for _, rev := range revisions {
		item := revisionResponse{
			Kind:       rev.Kind,
			Provider:   rev.Provider,
			Attributes: rev.Attributes,
			Slot:       rev.Slot,
			RecordedAt: time.UnixMilli(rev.RecordedAt).UTC(),
		}
		if item.Attributes == nil {
			item.Attributes = []domain.Attribute{}
		}
		if !rev.Signer.IsZero() {
			signer := rev.Signer
			item.Signer = &signer
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDeriveProvider handles GET /v1/derive/provider?name=.
func (s *Server) handleDeriveProvider(w http.ResponseWriter, r *http.Request) {
	name, ok := queryName(w, r)
	if !ok {
		return
	}
	address, bump, err := s.registry.Programs().ProviderAddress(name)
	if err != nil {
		s.fail(w, "derive provider", err)
		return
	}
	writeJSON(w, http.StatusOK, deriveResponse{Address: address, Bump: bump})
}

// handleDeriveOracle handles GET /v1/derive/oracle?provider=&name=.
func (s *Server) handleDeriveOracle(w http.ResponseWriter, r *http.Request) {
	provider, err := domain.ParsePubkey(r.URL.Query().Get("provider"))
	if err != nil {
		writeCode(w, codeBadRequest, fmt.Sprintf("provider: %v", err))
		return
	}
	name, ok := queryName(w, r)
	if !ok {
		return
	}
	address, bump, err := s.registry.Programs().OracleAddress(provider, name)
	if err != nil {
		s.fail(w, "derive oracle", err)
		return
	}
	writeJSON(w, http.StatusOK, deriveResponse{Address: address, Bump: bump})
}

// handleHealth runs every configured check with a short deadline.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	healthy := true
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Printf("WARN: health check %s: %v", name, err)
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}

	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": codeUnhealthy, "checks": status})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "checks": status})
}

// fail writes err and logs it when it is not a client error.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	if statusOf(runtime.Code(err)) == http.StatusInternalServerError {
		s.logger.Printf("ERROR: %s: %v", op, err)
	}
	writeError(w, err)
}

func pathAddress(w http.ResponseWriter, r *http.Request) (domain.Pubkey, bool) {
	address, err := domain.ParsePubkey(chi.URLParam(r, "address"))
	if err != nil {
		writeCode(w, codeBadRequest, fmt.Sprintf("address: %v", err))
		return domain.Pubkey{}, false
	}
	return address, true
}

// queryName reads ?name= under the same bounds the registry enforces.
func queryName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := r.URL.Query().Get("name")
	if name == "" || len(name) > domain.MaxNameLength {
		writeCode(w, registry.CodeInvalidName, fmt.Sprintf("name must be 1..%d bytes", domain.MaxNameLength))
		return "", false
	}
	return name, true
}
