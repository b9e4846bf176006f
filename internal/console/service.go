// Package console implements the operations behind the console UI: server
// settings, browsing and searching resources, form based editing, FHIRPath
// inspection and synthetic data generation.
package console

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vincemic/ai-fhir-pit/internal/mapping"
	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
	"github.com/vincemic/ai-fhir-pit/internal/platform/fhirclient"
	"github.com/vincemic/ai-fhir-pit/internal/settings"
	"github.com/vincemic/ai-fhir-pit/internal/synthetic"
	"github.com/vincemic/ai-fhir-pit/pkg/pagination"
)

var (
	ErrInvalidResourceType = errors.New("invalid resource type")
	ErrInvalidRequest      = errors.New("invalid request")
	// ErrForeignLink rejects paging links that point away from the
	// configured server.
	ErrForeignLink = errors.New("link does not belong to the configured FHIR server")
)

// maskedAPIKey is what the API shows instead of a stored key. Sending it
// back leaves the key unchanged.
const maskedAPIKey = "********"

var (
	resourceTypePattern = regexp.MustCompile(`^[A-Z][A-Za-z]{1,63}$`)
	searchFieldPattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-.:]{0,63}$`)
)

// Upstream is the FHIR server the console operates on.
// *fhirclient.Client satisfies it.
type Upstream interface {
	Search(ctx context.Context, params fhirclient.SearchParams) (*fhir.Bundle, error)
	FollowURL(ctx context.Context, link string) (*fhir.Bundle, error)
	Read(ctx context.Context, resourceType, id string) (fhir.Document, error)
	Create(ctx context.Context, doc fhir.Document) (fhir.Document, error)
	Update(ctx context.Context, doc fhir.Document) (fhir.Document, error)
	FollowReference(ctx context.Context, reference string) (fhir.Document, error)
	Capabilities(ctx context.Context) (fhir.Document, error)
	TestConnection(ctx context.Context, serverURL string) *fhirclient.TestResult
	Batch(ctx context.Context, bundle *fhir.Bundle) (*fhir.Bundle, error)
}

type Service struct {
	settings  *settings.Manager
	upstream  Upstream
	mapper    *mapping.Mapper
	inspector *fhir.Inspector
	generator *synthetic.Generator
	uploader  *synthetic.Uploader
	batchSize int
	logger    zerolog.Logger
}

type Option func(*Service)

// WithBatchSize sets the entry limit of synthetic upload bundles.
func WithBatchSize(n int) Option {
	return func(s *Service) { s.batchSize = n }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger.With().Str("component", "console").Logger() }
}

func NewService(mgr *settings.Manager, upstream Upstream, mapper *mapping.Mapper, opts ...Option) *Service {
	s := &Service{
		settings:  mgr,
		upstream:  upstream,
		mapper:    mapper,
		inspector: fhir.NewInspector(),
		generator: synthetic.NewGenerator(mapper, time.Now),
		batchSize: synthetic.DefaultBatchSize,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.uploader = synthetic.NewUploader(upstream, s.batchSize, s.logger)
	return s
}

func validResourceType(rt string) error {
	if !resourceTypePattern.MatchString(rt) {
		return fmt.Errorf("%w: %q", ErrInvalidResourceType, rt)
	}
	return nil
}

// -- Settings --

func (s *Service) Settings(ctx context.Context) settings.ServerSettings {
	return s.settings.Current(ctx).Redacted()
}

func (s *Service) DefaultSettings() settings.ServerSettings {
	return s.settings.Defaults().Redacted()
}

func (s *Service) UpdateSettings(ctx context.Context, p settings.Patch) (settings.ServerSettings, error) {
	if p.APIKey != nil && *p.APIKey == maskedAPIKey {
		p.APIKey = nil
	}
	updated, err := s.settings.Update(ctx, p)
	if err != nil {
		return settings.ServerSettings{}, err
	}
	return updated.Redacted(), nil
}

func (s *Service) ResetSettings(ctx context.Context) (settings.ServerSettings, error) {
	d, err := s.settings.Reset(ctx)
	if err != nil {
		return settings.ServerSettings{}, err
	}
	return d.Redacted(), nil
}

// TestConnection checks serverURL, or the configured server when empty.
func (s *Service) TestConnection(ctx context.Context, serverURL string) (*fhirclient.TestResult, error) {
	serverURL = strings.TrimRight(strings.TrimSpace(serverURL), "/")
	if serverURL != "" {
		if err := (settings.ServerSettings{ServerURL: serverURL}).Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	return s.upstream.TestConnection(ctx, serverURL), nil
}

// -- Browsing --

// ResourceType describes one entry of the type picker.
type ResourceType struct {
	Type string `json:"type"`
	// Mapped types have a dedicated form; the rest are edited as raw JSON.
	Mapped bool `json:"mapped"`
}

func (s *Service) ResourceTypes() []ResourceType {
	types := s.mapper.SupportedTypes()
	out := make([]ResourceType, 0, len(types))
	for _, t := range types {
		out = append(out, ResourceType{Type: t, Mapped: true})
	}
	return out
}

type SearchRequest struct {
	ResourceType string
	SearchField  string
	SearchTerm   string
	Sort         string
	Page         pagination.Params
}

type SearchEntry struct {
	ID           string        `json:"id"`
	ResourceType string        `json:"resourceType"`
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	Resource     fhir.Document `json:"resource"`
}

type SearchResult struct {
	Total    *int          `json:"total,omitempty"`
	Entries  []SearchEntry `json:"entries"`
	Next     string        `json:"next,omitempty"`
	Previous string        `json:"previous,omitempty"`
}

func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if err := validResourceType(req.ResourceType); err != nil {
		return nil, err
	}
	if req.SearchField != "" && !searchFieldPattern.MatchString(req.SearchField) {
		return nil, fmt.Errorf("%w: search field %q", ErrInvalidRequest, req.SearchField)
	}
	if req.Sort != "" && !searchFieldPattern.MatchString(strings.TrimPrefix(req.Sort, "-")) {
		return nil, fmt.Errorf("%w: sort %q", ErrInvalidRequest, req.Sort)
	}

	bundle, err := s.upstream.Search(ctx, fhirclient.SearchParams{
		ResourceType: req.ResourceType,
		SearchField:  req.SearchField,
		SearchTerm:   strings.TrimSpace(req.SearchTerm),
		Page:         req.Page,
		Sort:         req.Sort,
	})
	if err != nil {
		return nil, err
	}
	return s.searchResult(bundle), nil
}

// FollowLink fetches a next or previous link of an earlier search.
func (s *Service) FollowLink(ctx context.Context, link string) (*SearchResult, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return nil, fmt.Errorf("%w: link is required", ErrInvalidRequest)
	}
	if !s.onServer(ctx, link) {
		return nil, ErrForeignLink
	}
	bundle, err := s.upstream.FollowURL(ctx, link)
	if err != nil {
		return nil, err
	}
	return s.searchResult(bundle), nil
}

func (s *Service) onServer(ctx context.Context, link string) bool {
	base := s.settings.Current(ctx).ServerURL
	return base != "" && (link == base || strings.HasPrefix(link, base+"/") || strings.HasPrefix(link, base+"?"))
}

func (s *Service) searchResult(bundle *fhir.Bundle) *SearchResult {
	docs := bundle.Documents()
	result := &SearchResult{
		Total:    bundle.Total,
		Entries:  make([]SearchEntry, 0, len(docs)),
		Next:     bundle.LinkURL("next"),
		Previous: bundle.LinkURL("previous"),
	}
	if result.Previous == "" {
		result.Previous = bundle.LinkURL("prev")
	}
	for _, doc := range docs {
		fields := s.mapper.ExtractFields(doc)
		result.Entries = append(result.Entries, SearchEntry{
			ID:           doc.ID(),
			ResourceType: doc.ResourceType(),
			Title:        fields.Title,
			Description:  fields.Description,
			Resource:     doc,
		})
	}
	return result
}

// ResourceView is a resource together with its read-only field set.
type ResourceView struct {
	Resource fhir.Document     `json:"resource"`
	Fields   *mapping.FieldSet `json:"fields"`
}

func (s *Service) view(doc fhir.Document) *ResourceView {
	return &ResourceView{Resource: doc, Fields: s.mapper.ExtractFields(doc)}
}

func (s *Service) Read(ctx context.Context, resourceType, id string) (*ResourceView, error) {
	doc, err := s.read(ctx, resourceType, id)
	if err != nil {
		return nil, err
	}
	return s.view(doc), nil
}

func (s *Service) read(ctx context.Context, resourceType, id string) (fhir.Document, error) {
	if err := validResourceType(resourceType); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}
	return s.upstream.Read(ctx, resourceType, id)
}

// ReferencedResource is one followed reference. Error is set instead of
// View when the reference could not be resolved.
type ReferencedResource struct {
	Reference string        `json:"reference"`
	View      *ResourceView `json:"view,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// References resolves every reference held by the resource, in sorted
// order. Contained, urn: and foreign absolute references are listed but
// not fetched.
func (s *Service) References(ctx context.Context, resourceType, id string) ([]ReferencedResource, error) {
	doc, err := s.read(ctx, resourceType, id)
	if err != nil {
		return nil, err
	}

	refs := doc.References()
	out := make([]ReferencedResource, 0, len(refs))
	for _, ref := range refs {
		item := ReferencedResource{Reference: ref}
		switch {
		case strings.HasPrefix(ref, "#"):
			item.Error = "contained reference"
		case strings.HasPrefix(ref, "urn:"):
			item.Error = "unresolvable reference"
		case strings.Contains(ref, "://") && !s.onServer(ctx, ref):
			item.Error = "external reference not followed"
		default:
			target, err := s.upstream.FollowReference(ctx, ref)
			if err != nil {
				s.logger.Debug().Err(err).Str("reference", ref).Msg("reference not resolved")
				item.Error = err.Error()
			} else {
				item.View = s.view(target)
			}
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *Service) Capabilities(ctx context.Context) (fhir.Document, error) {
	return s.upstream.Capabilities(ctx)
}

// -- Forms --

func (s *Service) NewForm(resourceType string) (mapping.FormState, error) {
	if err := validResourceType(resourceType); err != nil {
		return nil, err
	}
	return s.mapper.NewFormState(resourceType), nil
}

// EditForm is the form of an existing resource and the resource it came
// from.
type EditForm struct {
	Resource fhir.Document     `json:"resource"`
	Form     mapping.FormState `json:"form"`
}

func (s *Service) EditForm(ctx context.Context, resourceType, id string) (*EditForm, error) {
	doc, err := s.read(ctx, resourceType, id)
	if err != nil {
		return nil, err
	}
	return &EditForm{Resource: doc, Form: s.mapper.ToFormState(doc)}, nil
}

// Preview builds the resource a save would send, without sending it. In
// edit mode the stored resource is read so id and meta are carried over.
func (s *Service) Preview(ctx context.Context, resourceType string, form mapping.FormState, mode mapping.Mode, id string) (fhir.Document, error) {
	if err := validResourceType(resourceType); err != nil {
		return nil, err
	}
	var existing fhir.Document
	if mode == mapping.ModeEdit {
		doc, err := s.read(ctx, resourceType, id)
		if err != nil {
			return nil, err
		}
		existing = doc
	}
	return s.mapper.ToResource(resourceType, form, mode, existing)
}

func (s *Service) Create(ctx context.Context, resourceType string, form mapping.FormState) (*ResourceView, error) {
	if err := validResourceType(resourceType); err != nil {
		return nil, err
	}
	doc, err := s.mapper.ToResource(resourceType, form, mapping.ModeCreate, nil)
	if err != nil {
		return nil, err
	}
	created, err := s.upstream.Create(ctx, doc)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("resource_type", resourceType).Str("id", created.ID()).Msg("resource created")
	return s.view(created), nil
}

func (s *Service) Update(ctx context.Context, resourceType, id string, form mapping.FormState) (*ResourceView, error) {
	existing, err := s.read(ctx, resourceType, id)
	if err != nil {
		return nil, err
	}
	doc, err := s.mapper.ToResource(resourceType, form, mapping.ModeEdit, existing)
	if err != nil {
		return nil, err
	}
	updated, err := s.upstream.Update(ctx, doc)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("resource_type", resourceType).Str("id", updated.ID()).Msg("resource updated")
	return s.view(updated), nil
}

// -- Inspection --

// EvaluateRequest runs Expression against Resource, or against the stored
// ResourceType/ID when Resource is empty.
type EvaluateRequest struct {
	Expression   string        `json:"expression"`
	Resource     fhir.Document `json:"resource,omitempty"`
	ResourceType string        `json:"resourceType,omitempty"`
	ID           string        `json:"id,omitempty"`
}

func (s *Service) Evaluate(ctx context.Context, req EvaluateRequest) (*fhir.PathResult, error) {
	if strings.TrimSpace(req.Expression) == "" {
		return nil, fmt.Errorf("%w: expression is required", ErrInvalidRequest)
	}
	doc := req.Resource
	if len(doc) == 0 {
		var err error
		if doc, err = s.read(ctx, req.ResourceType, req.ID); err != nil {
			return nil, err
		}
	}
	result, err := s.inspector.Evaluate(doc, req.Expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return result, nil
}

// -- Synthetic data --

// GenerateSynthetic creates synthetic patients and uploads them to the
// configured server. Upload failures are reported in the result.
func (s *Service) GenerateSynthetic(ctx context.Context, req synthetic.Request, progress synthetic.ProgressFunc) (*synthetic.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if progress == nil {
		progress = func(p int) { s.logger.Debug().Int("percent", p).Msg("synthetic progress") }
	}
	return s.uploader.Run(ctx, s.generator, req, progress), nil
}

// ClientConfig feeds the FHIR transport from the current settings, so a
// settings change applies to the next request.
func ClientConfig(mgr *settings.Manager) fhirclient.ConfigFunc {
	return func(ctx context.Context) fhirclient.Config {
		s := mgr.Current(ctx)
		return fhirclient.Config{BaseURL: s.ServerURL, APIKey: s.APIKey, Timeout: s.TimeoutDuration()}
	}
}
