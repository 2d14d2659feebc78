package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fyrsmithlabs/resolvd/internal/completion"
	"github.com/fyrsmithlabs/resolvd/internal/ticket"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("resolvd.vectorstore.qdrant")

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Named vector fields in the collection schema.
const (
	vectorContent = "content"
	vectorIntent  = "intent"
)

// uploadBatchSize is the number of points per upsert request. Committed
// batches are not rolled back when a later batch fails.
const uploadBatchSize = 100

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334 by default, not the HTTP 6333).
	Port int

	// CollectionName is the collection holding the ticket index.
	CollectionName string

	// VectorSize is the embedding dimensionality. Applies to both named
	// vectors and must match the embedder output.
	VectorSize uint64

	// Distance is the similarity metric. Default: Cosine.
	Distance qdrant.Distance

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxRetries is the retry budget for transient failures. Default: 3.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled per retry. Default: 1s.
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB.
	MaxMessageSize int
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.CollectionName == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	if !collectionNamePattern.MatchString(c.CollectionName) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_]{1,64}$, got %q",
			ErrInvalidConfig, c.CollectionName)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.Distance == 0 {
		c.Distance = qdrant.Distance_Cosine
	}
}

// IsTransientError checks if an error is transient (should retry).
// Returns true for network timeouts and temporary unavailability,
// false for invalid arguments, not found, permission problems.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore is the remote Store implementation on Qdrant's native
// gRPC client.
//
// Each ticket becomes one point keyed by its number, carrying two named
// vectors: "content" embeds the normalized ticket text, "intent" embeds
// an AI summary of what the reporter was trying to do. Search ranks
// against the intent vector by default.
type QdrantStore struct {
	client    *qdrant.Client
	embedder  Embedder
	completer completion.Completer
	config    QdrantConfig
	logger    *zap.Logger
}

// NewQdrantStore creates a QdrantStore, connects and health-checks
// eagerly so an unreachable server surfaces at startup.
//
// The collection itself is created lazily by EnsureSchema, which the
// first upsert triggers automatically.
func NewQdrantStore(config QdrantConfig, embedder Embedder, completer completion.Completer, logger *zap.Logger) (*QdrantStore, error) {
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if embedder.Dimension() != int(config.VectorSize) {
		return nil, fmt.Errorf("%w: embedder produces %d dimensions, collection configured for %d",
			ErrDimensionMismatch, embedder.Dimension(), config.VectorSize)
	}
	if completer == nil {
		return nil, fmt.Errorf("%w: completer is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if !config.UseTLS {
		logger.Warn("Qdrant gRPC using plaintext, insecure for production")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{
		client:    client,
		embedder:  embedder,
		completer: completer,
		config:    config,
		logger:    logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	return store, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// retryOperation retries an operation with exponential backoff. Only
// transient gRPC failures are retried.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}
		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.config.MaxRetries, err)
		}

		s.logger.Warn("retrying after transient failure",
			zap.String("operation", operationName),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

// Exists reports whether the collection has been created.
func (s *QdrantStore) Exists(ctx context.Context) (bool, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Exists")
	defer span.End()

	var exists bool
	err := s.retryOperation(ctx, "collection_exists", func() error {
		ok, err := s.client.CollectionExists(ctx, s.config.CollectionName)
		if err != nil {
			return err
		}
		exists = ok
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("checking collection %s: %w", s.config.CollectionName, err)
	}

	span.SetStatus(codes.Ok, "success")
	return exists, nil
}

// EnsureSchema creates the collection and its payload indexes when they
// do not exist yet. Idempotent; safe to call before every upload.
//
// The schema has two named vectors sharing one dimensionality, both
// with an explicit HNSW graph config, and keyword payload indexes on
// the fields search filters use.
func (s *QdrantStore) EnsureSchema(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.EnsureSchema")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.CollectionName),
		attribute.Int64("vector_size", int64(s.config.VectorSize)),
	)

	exists, err := s.Exists(ctx)
	if err != nil {
		return err
	}

	if !exists {
		hnsw := &qdrant.HnswConfigDiff{
			M:           qdrant.PtrOf(uint64(16)),
			EfConstruct: qdrant.PtrOf(uint64(100)),
		}
		err = s.retryOperation(ctx, "create_collection", func() error {
			return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: s.config.CollectionName,
				VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
					vectorContent: {
						Size:       s.config.VectorSize,
						Distance:   s.config.Distance,
						HnswConfig: hnsw,
					},
					vectorIntent: {
						Size:       s.config.VectorSize,
						Distance:   s.config.Distance,
						HnswConfig: hnsw,
					},
				}),
			})
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("creating collection %s: %w", s.config.CollectionName, err)
		}
		s.logger.Info("created collection",
			zap.String("collection", s.config.CollectionName),
			zap.Uint64("vector_size", s.config.VectorSize))
	}

	// Field index creation is idempotent on the server side.
	indexed := []struct {
		field string
		kind  qdrant.FieldType
	}{
		{"state", qdrant.FieldType_FieldTypeKeyword},
		{"category", qdrant.FieldType_FieldTypeKeyword},
		{"support_level", qdrant.FieldType_FieldTypeKeyword},
		{"number", qdrant.FieldType_FieldTypeInteger},
		{"complexity", qdrant.FieldType_FieldTypeInteger},
	}
	for _, idx := range indexed {
		err = s.retryOperation(ctx, "create_field_index", func() error {
			_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: s.config.CollectionName,
				FieldName:      idx.field,
				FieldType:      idx.kind.Enum(),
			})
			return err
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("indexing payload field %s: %w", idx.field, err)
		}
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Upsert indexes a single ticket.
func (s *QdrantStore) Upsert(ctx context.Context, t *ticket.Ticket) error {
	return s.UpsertBatch(ctx, []*ticket.Ticket{t})
}

// UpsertBatch indexes a batch of tickets.
//
// The schema is ensured first, then every entry is built (embeddings
// plus AI summaries), then points are uploaded in chunks. The first
// failing chunk aborts the remaining ones; chunks already committed are
// not rolled back. Points are keyed by ticket number, so re-running the
// whole call after a partial failure converges.
func (s *QdrantStore) UpsertBatch(ctx context.Context, tickets []*ticket.Ticket) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.UpsertBatch")
	defer span.End()

	span.SetAttributes(
		attribute.Int("ticket_count", len(tickets)),
		attribute.String("collection", s.config.CollectionName),
	)

	if len(tickets) == 0 {
		return ErrEmptyBatch
	}

	if err := s.EnsureSchema(ctx); err != nil {
		span.RecordError(err)
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(tickets))
	for _, t := range tickets {
		if err := t.Validate(); err != nil {
			span.RecordError(err)
			return err
		}
		entry, err := s.buildEntry(ctx, t)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		point, err := s.entryToPoint(entry)
		if err != nil {
			span.RecordError(err)
			return err
		}
		points = append(points, point)
	}

	for batch := 0; batch*uploadBatchSize < len(points); batch++ {
		start := batch * uploadBatchSize
		end := min(start+uploadBatchSize, len(points))
		chunk := points[start:end]

		err := s.retryOperation(ctx, "upsert", func() error {
			_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: s.config.CollectionName,
				Points:         chunk,
			})
			return err
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return &UploadError{Batch: batch, Err: err}
		}
		s.logger.Debug("uploaded batch",
			zap.Int("batch", batch), zap.Int("points", len(chunk)))
	}

	s.logger.Info("indexed tickets",
		zap.Int("count", len(points)),
		zap.String("collection", s.config.CollectionName))
	span.SetAttributes(attribute.Int("points_added", len(points)))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// buildEntry derives an index entry: normalized fields, both vectors
// and the AI summaries. Summary failures never abort indexing; they
// fall back to templated text.
func (s *QdrantStore) buildEntry(ctx context.Context, t *ticket.Ticket) (*IndexEntry, error) {
	derived := ticket.Normalize(t)

	contentVector, err := s.embedder.Embed(ctx, derived.EmbedText)
	if err != nil {
		return nil, fmt.Errorf("embedding ticket #%d: %w", t.Number, err)
	}
	if len(contentVector) != int(s.config.VectorSize) {
		return nil, fmt.Errorf("%w: ticket #%d vector has %d dimensions, expected %d",
			ErrDimensionMismatch, t.Number, len(contentVector), s.config.VectorSize)
	}

	intentSummary := s.summarizeIntent(ctx, t)
	intentVector, err := s.embedder.Embed(ctx, intentSummary)
	if err != nil {
		return nil, fmt.Errorf("embedding intent for ticket #%d: %w", t.Number, err)
	}

	return &IndexEntry{
		Ticket:          *t,
		ContentVector:   contentVector,
		IntentVector:    intentVector,
		Keywords:        derived.Keywords,
		Facts:           derived.Facts,
		Complexity:      derived.Complexity,
		IntentSummary:   intentSummary,
		ActionsSummary:  s.summarizeActions(ctx, t),
		SolutionSummary: s.summarizeSolution(ctx, t),
	}, nil
}

const summarySystemPrompt = "You are a support engineer summarizing support tickets. Be concise and factual."

// summarizeIntent describes what the reporter was trying to accomplish.
func (s *QdrantStore) summarizeIntent(ctx context.Context, t *ticket.Ticket) string {
	prompt := fmt.Sprintf(
		"Summarize in one sentence what the user was trying to accomplish in this issue.\n\nTitle: %s\n\nBody: %s",
		t.Title, truncate(t.Body, 2000))

	summary, err := s.completer.Complete(ctx, summarySystemPrompt, prompt)
	if err != nil || strings.TrimSpace(summary) == "" {
		s.logger.Warn("intent summary failed, using fallback",
			zap.Int("ticket", t.Number), zap.Error(err))
		return fmt.Sprintf("Issue about: %s", t.Title)
	}
	return strings.TrimSpace(summary)
}

// summarizeActions describes what was done on the ticket so far.
func (s *QdrantStore) summarizeActions(ctx context.Context, t *ticket.Ticket) string {
	if len(t.Comments) == 0 {
		return "No activities recorded yet."
	}

	var b strings.Builder
	for _, c := range t.Comments {
		fmt.Fprintf(&b, "- %s: %s\n", c.Author, truncate(c.Body, 300))
	}
	prompt := fmt.Sprintf(
		"Summarize in two sentences what actions were taken on this issue.\n\nTitle: %s\n\nActivity:\n%s",
		t.Title, b.String())

	summary, err := s.completer.Complete(ctx, summarySystemPrompt, prompt)
	if err != nil || strings.TrimSpace(summary) == "" {
		s.logger.Warn("actions summary failed, using fallback",
			zap.Int("ticket", t.Number), zap.Error(err))
		return "Activities not summarized."
	}
	return strings.TrimSpace(summary)
}

// summarizeSolution describes how the ticket was resolved.
func (s *QdrantStore) summarizeSolution(ctx context.Context, t *ticket.Ticket) string {
	if !t.IsClosed() {
		return "Issue is still open."
	}
	if len(t.Comments) == 0 {
		return "Issue closed without resolution comments."
	}

	last := t.Comments
	if len(last) > 3 {
		last = last[len(last)-3:]
	}
	var b strings.Builder
	for _, c := range last {
		fmt.Fprintf(&b, "- %s\n", truncate(c.Body, 500))
	}
	prompt := fmt.Sprintf(
		"Summarize in one or two sentences how this issue was resolved.\n\nTitle: %s\n\nFinal comments:\n%s",
		t.Title, b.String())

	summary, err := s.completer.Complete(ctx, summarySystemPrompt, prompt)
	if err != nil || strings.TrimSpace(summary) == "" {
		s.logger.Warn("solution summary failed, using fallback",
			zap.Int("ticket", t.Number), zap.Error(err))
		return "Resolution not summarized."
	}
	return strings.TrimSpace(summary)
}

// entryToPoint converts an index entry into a Qdrant point. The point
// ID is the ticket number, making re-uploads idempotent. The full
// ticket travels as one JSON payload field next to the flat filterable
// fields.
func (s *QdrantStore) entryToPoint(entry *IndexEntry) (*qdrant.PointStruct, error) {
	ticketJSON, err := json.Marshal(entry.Ticket)
	if err != nil {
		return nil, fmt.Errorf("marshaling ticket #%d: %w", entry.Ticket.Number, err)
	}

	level := string(entry.Ticket.SupportLevel)
	if level == "" {
		level = UnspecifiedSupportLevel
	}

	payload := map[string]*qdrant.Value{
		"ticket":           {Kind: &qdrant.Value_StringValue{StringValue: string(ticketJSON)}},
		"number":           {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(entry.Ticket.Number)}},
		"title":            {Kind: &qdrant.Value_StringValue{StringValue: entry.Ticket.Title}},
		"body":             {Kind: &qdrant.Value_StringValue{StringValue: entry.Ticket.Body}},
		"state":            {Kind: &qdrant.Value_StringValue{StringValue: string(entry.Ticket.State)}},
		"category":         {Kind: &qdrant.Value_StringValue{StringValue: string(entry.Ticket.Category)}},
		"support_level":    {Kind: &qdrant.Value_StringValue{StringValue: level}},
		"keywords":         {Kind: &qdrant.Value_StringValue{StringValue: strings.Join(entry.Keywords, ", ")}},
		"facts":            {Kind: &qdrant.Value_StringValue{StringValue: entry.Facts}},
		"complexity":       {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(entry.Complexity)}},
		"intent_summary":   {Kind: &qdrant.Value_StringValue{StringValue: entry.IntentSummary}},
		"actions_summary":  {Kind: &qdrant.Value_StringValue{StringValue: entry.ActionsSummary}},
		"solution_summary": {Kind: &qdrant.Value_StringValue{StringValue: entry.SolutionSummary}},
	}

	return &qdrant.PointStruct{
		Id: qdrant.NewIDNum(uint64(entry.Ticket.Number)),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
			vectorContent: qdrant.NewVector(entry.ContentVector...),
			vectorIntent:  qdrant.NewVector(entry.IntentVector...),
		}),
		Payload: payload,
	}, nil
}

// Search embeds the query and ranks against the intent vector, or the
// content vector when WithContentVector is set.
func (s *QdrantStore) Search(ctx context.Context, query string, k int, opts ...SearchOption) ([]SearchResult, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Search")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.CollectionName),
		attribute.Int("k", k),
	)

	if query == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = 5
	}
	o := applySearchOptions(opts)

	using := vectorIntent
	if o.useContentVector {
		using = vectorContent
	}
	span.SetAttributes(attribute.String("vector", using))

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	var filter *qdrant.Filter
	if o.category != "" {
		filter = &qdrant.Filter{
			Must: []*qdrant.Condition{keywordCondition("category", string(o.category))},
		}
	}

	var points []*qdrant.ScoredPoint
	err = s.retryOperation(ctx, "search", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.CollectionName,
			Query:          qdrant.NewQuery(queryVector...),
			Using:          qdrant.PtrOf(using),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         filter,
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		if st, ok := status.FromError(unwrapAll(err)); ok && st.Code() == grpccodes.NotFound {
			return nil, fmt.Errorf("%w: collection %s", ErrIndexNotInitialized, s.config.CollectionName)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", s.config.CollectionName, err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, point := range points {
		result, err := pointToResult(point)
		if err != nil {
			s.logger.Warn("skipping malformed point", zap.Error(err))
			continue
		}
		results = append(results, result)
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// pointToResult reconstructs a search result from the point payload.
func pointToResult(point *qdrant.ScoredPoint) (SearchResult, error) {
	result := SearchResult{Score: float64(point.Score)}

	raw, ok := stringField(point.Payload, "ticket")
	if !ok {
		return result, fmt.Errorf("point payload missing ticket field")
	}
	if err := json.Unmarshal([]byte(raw), &result.Ticket); err != nil {
		return result, fmt.Errorf("unmarshaling ticket payload: %w", err)
	}

	if keywords, ok := stringField(point.Payload, "keywords"); ok && keywords != "" {
		result.Keywords = strings.Split(keywords, ", ")
	}
	result.Facts, _ = stringField(point.Payload, "facts")
	result.IntentSummary, _ = stringField(point.Payload, "intent_summary")
	result.ActionsSummary, _ = stringField(point.Payload, "actions_summary")
	result.SolutionSummary, _ = stringField(point.Payload, "solution_summary")

	if v, ok := point.Payload["complexity"]; ok {
		if iv, ok := v.Kind.(*qdrant.Value_IntegerValue); ok {
			result.Complexity = int(iv.IntegerValue)
		}
	}
	return result, nil
}

func stringField(payload map[string]*qdrant.Value, key string) (string, bool) {
	v, ok := payload[key]
	if !ok {
		return "", false
	}
	sv, ok := v.Kind.(*qdrant.Value_StringValue)
	if !ok {
		return "", false
	}
	return sv.StringValue, true
}

// Stats counts points per facet with server-side filtered counts, one
// per enum value. The enums are closed sets so the counts are complete.
func (s *QdrantStore) Stats(ctx context.Context) (*Stats, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Stats")
	defer span.End()

	span.SetAttributes(attribute.String("collection", s.config.CollectionName))

	exists, err := s.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: collection %s", ErrIndexNotInitialized, s.config.CollectionName)
	}

	stats := NewStats()

	total, err := s.countFiltered(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	stats.Total = total

	for _, state := range []ticket.State{ticket.StateOpen, ticket.StateClosed} {
		n, err := s.countFiltered(ctx, keywordCondition("state", string(state)))
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if n > 0 {
			stats.ByState[string(state)] = n
		}
	}

	for _, category := range ticket.Categories() {
		n, err := s.countFiltered(ctx, keywordCondition("category", string(category)))
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if n > 0 {
			stats.ByCategory[string(category)] = n
		}
	}

	levels := []string{
		string(ticket.SupportLevelL1),
		string(ticket.SupportLevelL2),
		string(ticket.SupportLevelL3),
		UnspecifiedSupportLevel,
	}
	for _, level := range levels {
		n, err := s.countFiltered(ctx, keywordCondition("support_level", level))
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if n > 0 {
			stats.BySupportLevel[level] = n
		}
	}

	span.SetAttributes(attribute.Int("total", stats.Total))
	span.SetStatus(codes.Ok, "success")
	return stats, nil
}

// countFiltered runs an exact server-side count, optionally filtered.
func (s *QdrantStore) countFiltered(ctx context.Context, condition *qdrant.Condition) (int, error) {
	var filter *qdrant.Filter
	if condition != nil {
		filter = &qdrant.Filter{Must: []*qdrant.Condition{condition}}
	}

	var count uint64
	err := s.retryOperation(ctx, "count", func() error {
		n, err := s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: s.config.CollectionName,
			Filter:         filter,
			Exact:          qdrant.PtrOf(true),
		})
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting points in %s: %w", s.config.CollectionName, err)
	}
	return int(count), nil
}

// keywordCondition builds an exact-match condition on a keyword field.
func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

// unwrapAll walks the %w chain to the innermost error so gRPC status
// extraction sees the original status error.
func unwrapAll(err error) error {
	for {
		unwrapped := unwrapOne(err)
		if unwrapped == nil {
			return err
		}
		err = unwrapped
	}
}

func unwrapOne(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}

// truncate cuts s to at most n bytes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Ensure QdrantStore implements Store interface.
var _ Store = (*QdrantStore)(nil)
