package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	agreement "invoicing-cloud/internal/agreement/domain"
	assembly "invoicing-cloud/internal/assembly/domain"
	"invoicing-cloud/internal/assembly/interfaces"
	"invoicing-cloud/internal/audit"
	"invoicing-cloud/internal/auth"
	ingest "invoicing-cloud/internal/ingest/application"
)

// maxUploadBytes caps carrier file uploads at 64 MiB.
const maxUploadBytes = 64 << 20

// Ingestor accepts carrier invoice file uploads.
type Ingestor interface {
	StoreUpload(ctx context.Context, filename string, content io.Reader, metadata map[string]string) (string, error)
}

// InvoiceReader loads assembled invoices.
type InvoiceReader interface {
	FindByCorrelation(ctx context.Context, correlationID string) (assembly.Invoice, error)
}

// UploadHandler accepts carrier invoice files for processing.
type UploadHandler struct {
	ingest Ingestor
	audit  audit.Logger
}

// NewUploadHandler constructs an UploadHandler. auditLog may be nil.
func NewUploadHandler(ingest Ingestor, auditLog audit.Logger) *UploadHandler {
	return &UploadHandler{ingest: ingest, audit: auditLog}
}

// ServeHTTP handles POST /api/v1/invoice-files.
func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.ingest == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	metadata := map[string]string{}
	if carrier := r.FormValue("carrier"); carrier != "" {
		metadata["carrier"] = carrier
	}

	correlationID, err := h.ingest.StoreUpload(r.Context(), header.Filename, file, metadata)
	if err != nil {
		writeIngestError(w, err)
		return
	}

	recordAudit(r, h.audit, "invoice_file.upload", "invoice_file", correlationID, nil)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"correlation_id": correlationID})
}

func writeIngestError(w http.ResponseWriter, err error) {
	var (
		unsupported ingest.UnsupportedFormatError
		missing     *agreement.MissingError
	)
	switch {
	case errors.As(err, &unsupported):
		http.Error(w, unsupported.Error(), http.StatusUnsupportedMediaType)
	case errors.Is(err, ingest.ErrEmptyPath),
		errors.Is(err, ingest.ErrEmptyFile),
		errors.Is(err, ingest.ErrNotRegularFile),
		errors.Is(err, ingest.ErrDoubleExtension):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &missing):
		http.Error(w, missing.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, "ingest error", http.StatusInternalServerError)
	}
}

// InvoiceHandler serves assembled invoice lookups and documents.
type InvoiceHandler struct {
	invoices    InvoiceReader
	storageRoot string
}

// NewInvoiceHandler constructs an InvoiceHandler.
func NewInvoiceHandler(invoices InvoiceReader, storageRoot string) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices, storageRoot: storageRoot}
}

// ServeHTTP handles GET /api/v1/invoices/{correlation_id} and
// GET /api/v1/invoices/{correlation_id}/document.
func (h *InvoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.invoices == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/invoices/")
	wantDocument := false
	if strings.HasSuffix(rest, "/document") {
		rest = strings.TrimSuffix(rest, "/document")
		wantDocument = true
	}
	correlationID := strings.Trim(rest, "/")
	if correlationID == "" || strings.Contains(correlationID, "/") {
		http.Error(w, "correlation id is required", http.StatusBadRequest)
		return
	}

	invoice, err := h.invoices.FindByCorrelation(r.Context(), correlationID)
	if errors.Is(err, assembly.ErrBucketNotFound) {
		http.Error(w, "invoice not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "query invoice error", http.StatusInternalServerError)
		return
	}

	if wantDocument {
		switch r.URL.Query().Get("format") {
		case "", "pdf":
			path := filepath.Join(h.storageRoot, "invoices", invoice.ID+".pdf")
			w.Header().Set("Content-Type", "application/pdf")
			http.ServeFile(w, r, path)
		case "xlsx":
			document, err := interfaces.BuildInvoiceXLSX(invoice)
			if err != nil {
				http.Error(w, "export invoice error", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.xlsx", invoice.ID))
			_, _ = w.Write(document)
		default:
			http.Error(w, "unsupported document format", http.StatusBadRequest)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(invoice)
}

// AgreementWriter persists customer agreements.
type AgreementWriter interface {
	Insert(ctx context.Context, ag agreement.Agreement) error
}

// AgreementReader lists agreement versions.
type AgreementReader interface {
	FindVersions(ctx context.Context, customerID string) ([]agreement.Agreement, error)
}

// AgreementsHandler manages customer agreements.
type AgreementsHandler struct {
	reader AgreementReader
	writer AgreementWriter
	audit  audit.Logger
}

// NewAgreementsHandler constructs an AgreementsHandler. auditLog may be nil.
func NewAgreementsHandler(reader AgreementReader, writer AgreementWriter, auditLog audit.Logger) *AgreementsHandler {
	return &AgreementsHandler{reader: reader, writer: writer, audit: auditLog}
}

// ServeHTTP handles GET and POST /api/v1/agreements.
func (h *AgreementsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// agreementPayload is the wire shape for agreements, matching the seed-file
// format: amounts travel as decimal strings.
type agreementPayload struct {
	CustomerID string         `json:"customer_id"`
	Version    int            `json:"version"`
	Strategy   string         `json:"strategy"`
	Multiplier string         `json:"multiplier"`
	VATRate    string         `json:"vat_rate"`
	Currency   string         `json:"currency"`
	Rules      map[string]any `json:"rules"`
	ValidFrom  time.Time      `json:"valid_from"`
	Type       string         `json:"type,omitempty"`
}

func (p agreementPayload) toDomain() (agreement.Agreement, error) {
	multiplier, err := decimal.NewFromString(orDefault(p.Multiplier, "1"))
	if err != nil {
		return agreement.Agreement{}, fmt.Errorf("invalid multiplier: %w", err)
	}
	vatRate, err := decimal.NewFromString(orDefault(p.VATRate, "0"))
	if err != nil {
		return agreement.Agreement{}, fmt.Errorf("invalid vat rate: %w", err)
	}
	return agreement.Agreement{
		CustomerID: p.CustomerID,
		Version:    p.Version,
		Strategy:   p.Strategy,
		Multiplier: multiplier,
		VATRate:    vatRate,
		Currency:   p.Currency,
		Rules:      p.Rules,
		ValidFrom:  p.ValidFrom,
	}, nil
}

func agreementToPayload(ag agreement.Agreement) agreementPayload {
	return agreementPayload{
		CustomerID: ag.CustomerID,
		Version:    ag.Version,
		Strategy:   ag.Strategy,
		Multiplier: ag.Multiplier.String(),
		VATRate:    ag.VATRate.String(),
		Currency:   ag.Currency,
		Rules:      ag.Rules,
		ValidFrom:  ag.ValidFrom,
		Type:       string(ag.Type),
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (h *AgreementsHandler) list(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.reader == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		http.Error(w, "customer_id is required", http.StatusBadRequest)
		return
	}
	agreements, err := h.reader.FindVersions(r.Context(), customerID)
	if err != nil {
		http.Error(w, "query agreements error", http.StatusInternalServerError)
		return
	}
	payloads := make([]agreementPayload, 0, len(agreements))
	for _, ag := range agreements {
		payloads = append(payloads, agreementToPayload(ag))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payloads)
}

func (h *AgreementsHandler) create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.writer == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	var payload agreementPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid agreement payload", http.StatusBadRequest)
		return
	}
	if payload.CustomerID == "" || payload.Version <= 0 {
		http.Error(w, "customer_id and positive version are required", http.StatusBadRequest)
		return
	}
	ag, err := payload.toDomain()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if ag.ValidFrom.IsZero() {
		ag.ValidFrom = time.Now().UTC()
	}
	if err := h.writer.Insert(r.Context(), ag); err != nil {
		http.Error(w, "store agreement error", http.StatusInternalServerError)
		return
	}

	metadata, _ := json.Marshal(map[string]any{"version": ag.Version, "strategy": ag.Strategy})
	recordAudit(r, h.audit, "agreement.create", "agreement", ag.CustomerID, metadata)

	w.WriteHeader(http.StatusCreated)
}

// recordAudit writes an audit entry for a mutating request. Failures never
// block the request path.
func recordAudit(r *http.Request, logger audit.Logger, action, resourceType, resourceID string, metadata json.RawMessage) {
	if logger == nil {
		return
	}
	_ = logger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
		IP:           r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	})
}

// HealthHandler reports liveness.
type HealthHandler struct{}

// ServeHTTP handles GET /healthz.
func (HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
