package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/internal/util"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/metrics"
)

const connectTimeout = 2 * time.Second

// MongoOptions configure the Mongo store adapter.
type MongoOptions struct {
	URI      string
	Database string
	Logger   logging.Logger
}

// Mongo is a document store adapter backed by MongoDB. Construction never
// fails: if the server is unreachable within the connect timeout the adapter
// starts disconnected and every operation degrades per the Store contract.
type Mongo struct {
	client    *mongo.Client
	db        *mongo.Database
	connected bool
	logger    logging.Logger
}

type sessionDoc struct {
	ID           bson.ObjectID               `bson:"_id,omitempty"`
	CreatedAt    time.Time                   `bson:"created_at"`
	Messages     []Message                   `bson:"messages"`
	AgentHistory map[string][]core.AgentStep `bson:"agent_history,omitempty"`
}

type queryDoc struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	UserQuery string        `bson:"user_query"`
	SessionID string        `bson:"session_id,omitempty"`
	Timestamp time.Time     `bson:"timestamp"`
}

type agentOutputDoc struct {
	ID        bson.ObjectID  `bson:"_id,omitempty"`
	QueryID   string         `bson:"query_id"`
	Agent     string         `bson:"agent_name"`
	Output    string         `bson:"output"`
	Metadata  map[string]any `bson:"metadata,omitempty"`
	Timestamp time.Time      `bson:"timestamp"`
}

// NewMongo connects to MongoDB, degrading to disconnected mode when the
// server cannot be reached.
func NewMongo(ctx context.Context, optFns ...func(o *MongoOptions)) *Mongo {
	opts := MongoOptions{
		URI:      "mongodb://localhost:27017",
		Database: "researchmesh",
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	m := &Mongo{logger: opts.Logger}

	client, err := mongo.Connect(options.Client().
		ApplyURI(opts.URI).
		SetServerSelectionTimeout(connectTimeout))
	if err != nil {
		opts.Logger.Warn("mongodb client construction failed, running without persistence", "error", err)
		return m
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		opts.Logger.Warn("mongodb connection failed, running without persistence", "error", err)
		_ = client.Disconnect(context.Background())
		return m
	}

	m.client = client
	m.db = client.Database(opts.Database)
	m.connected = true
	opts.Logger.Info("mongodb connected", "database", opts.Database)
	return m
}

// Connected reports whether the adapter holds a live connection.
func (m *Mongo) Connected() bool { return m.connected }

// Ping checks store health.
func (m *Mongo) Ping(ctx context.Context) error {
	if !m.connected {
		return fmt.Errorf("store disconnected")
	}
	return m.client.Ping(ctx, nil)
}

// Close releases the underlying client.
func (m *Mongo) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	m.connected = false
	return m.client.Disconnect(ctx)
}

// CreateSession inserts an empty session document.
func (m *Mongo) CreateSession(ctx context.Context) (string, error) {
	if !m.connected {
		metrics.StoreWritesDropped.WithLabelValues("create_session").Inc()
		return util.NewID(), nil
	}
	res, err := m.db.Collection("sessions").InsertOne(ctx, sessionDoc{
		CreatedAt: time.Now().UTC(),
		Messages:  []Message{},
	})
	if err != nil {
		metrics.StoreWriteFailures.WithLabelValues("create_session").Inc()
		return "", fmt.Errorf("create session: %w", err)
	}
	return objectIDHex(res.InsertedID), nil
}

// GetSession loads one session by id. A missing or malformed id yields
// (nil, nil) so the HTTP layer can answer 404 without error plumbing.
func (m *Mongo) GetSession(ctx context.Context, id string) (*Session, error) {
	if !m.connected {
		return nil, nil
	}
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	var doc sessionDoc
	if err := m.db.Collection("sessions").FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	session := doc.toSession()
	return &session, nil
}

// ListSessions returns up to limit sessions, newest first.
func (m *Mongo) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if !m.connected {
		return []Session{}, nil
	}
	cursor, err := m.db.Collection("sessions").Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var docs []sessionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessions := make([]Session, 0, len(docs))
	for _, doc := range docs {
		sessions = append(sessions, doc.toSession())
	}
	return sessions, nil
}

// DeleteSession removes a session by id.
func (m *Mongo) DeleteSession(ctx context.Context, id string) (bool, error) {
	if !m.connected {
		return false, nil
	}
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	res, err := m.db.Collection("sessions").DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// AppendMessage pushes one transcript turn onto the session document.
func (m *Mongo) AppendMessage(ctx context.Context, sessionID, role, content string) error {
	if !m.connected {
		metrics.StoreWritesDropped.WithLabelValues("append_message").Inc()
		return nil
	}
	oid, err := bson.ObjectIDFromHex(sessionID)
	if err != nil {
		return nil
	}
	_, err = m.db.Collection("sessions").UpdateByID(ctx, oid, bson.M{
		"$push": bson.M{"messages": Message{Role: role, Content: content, Timestamp: time.Now().UTC()}},
	})
	if err != nil {
		metrics.StoreWriteFailures.WithLabelValues("append_message").Inc()
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// SaveAgentHistory merge-writes one query's audit trail into the owning
// session document under agent_history.<query_id>.
func (m *Mongo) SaveAgentHistory(ctx context.Context, sessionID, queryID string, history []core.AgentStep) error {
	if !m.connected {
		metrics.StoreWritesDropped.WithLabelValues("save_agent_history").Inc()
		return nil
	}
	oid, err := bson.ObjectIDFromHex(sessionID)
	if err != nil {
		return nil
	}
	_, err = m.db.Collection("sessions").UpdateByID(ctx, oid, bson.M{
		"$set": bson.M{"agent_history." + queryID: history},
	})
	if err != nil {
		metrics.StoreWriteFailures.WithLabelValues("save_agent_history").Inc()
		return fmt.Errorf("save agent history: %w", err)
	}
	return nil
}

// LogQuery appends one query record, returning its id.
func (m *Mongo) LogQuery(ctx context.Context, userQuery, sessionID string) (string, error) {
	if !m.connected {
		metrics.StoreWritesDropped.WithLabelValues("log_query").Inc()
		return util.NewID(), nil
	}
	res, err := m.db.Collection("queries").InsertOne(ctx, queryDoc{
		UserQuery: userQuery,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		metrics.StoreWriteFailures.WithLabelValues("log_query").Inc()
		return util.NewID(), fmt.Errorf("log query: %w", err)
	}
	return objectIDHex(res.InsertedID), nil
}

// ListQueries returns up to limit query records, newest first.
func (m *Mongo) ListQueries(ctx context.Context, limit int) ([]QueryRecord, error) {
	if !m.connected {
		return []QueryRecord{}, nil
	}
	cursor, err := m.db.Collection("queries").Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	var docs []queryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	records := make([]QueryRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, QueryRecord{
			ID:        doc.ID.Hex(),
			UserQuery: doc.UserQuery,
			SessionID: doc.SessionID,
			Timestamp: doc.Timestamp,
		})
	}
	return records, nil
}

// LogAgentOutput appends one raw agent output record, returning its id.
func (m *Mongo) LogAgentOutput(ctx context.Context, queryID, agent, output string, metadata map[string]any) (string, error) {
	if !m.connected {
		metrics.StoreWritesDropped.WithLabelValues("log_agent_output").Inc()
		return util.NewID(), nil
	}
	res, err := m.db.Collection("agent_outputs").InsertOne(ctx, agentOutputDoc{
		QueryID:   queryID,
		Agent:     agent,
		Output:    output,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		metrics.StoreWriteFailures.WithLabelValues("log_agent_output").Inc()
		return util.NewID(), fmt.Errorf("log agent output: %w", err)
	}
	return objectIDHex(res.InsertedID), nil
}

// AgentOutputsForQuery returns the outputs logged for one query in
// chronological order.
func (m *Mongo) AgentOutputsForQuery(ctx context.Context, queryID string) ([]AgentOutput, error) {
	if !m.connected {
		return []AgentOutput{}, nil
	}
	cursor, err := m.db.Collection("agent_outputs").Find(ctx, bson.M{"query_id": queryID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("agent outputs for query: %w", err)
	}
	return decodeAgentOutputs(ctx, cursor)
}

// ListAgentOutputs returns up to limit outputs across all queries, newest first.
func (m *Mongo) ListAgentOutputs(ctx context.Context, limit int) ([]AgentOutput, error) {
	if !m.connected {
		return []AgentOutput{}, nil
	}
	cursor, err := m.db.Collection("agent_outputs").Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("list agent outputs: %w", err)
	}
	return decodeAgentOutputs(ctx, cursor)
}

func decodeAgentOutputs(ctx context.Context, cursor *mongo.Cursor) ([]AgentOutput, error) {
	var docs []agentOutputDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode agent outputs: %w", err)
	}
	outputs := make([]AgentOutput, 0, len(docs))
	for _, doc := range docs {
		outputs = append(outputs, AgentOutput{
			ID:        doc.ID.Hex(),
			QueryID:   doc.QueryID,
			Agent:     doc.Agent,
			Output:    doc.Output,
			Metadata:  doc.Metadata,
			Timestamp: doc.Timestamp,
		})
	}
	return outputs, nil
}

func (d sessionDoc) toSession() Session {
	return Session{
		ID:           d.ID.Hex(),
		CreatedAt:    d.CreatedAt,
		Messages:     d.Messages,
		AgentHistory: d.AgentHistory,
	}
}

// objectIDHex converts an inserted id to its hex form, falling back to a
// generated uuid for non-ObjectID ids.
func objectIDHex(id any) string {
	if oid, ok := id.(bson.ObjectID); ok {
		return oid.Hex()
	}
	return util.NewID()
}
