package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Protocol-Lattice/meeting-agent/pkg/auth"
)

var tracer = otel.Tracer("github.com/Protocol-Lattice/meeting-agent/pkg/docstore")

// PostgresStore calls the Supabase search functions over a pgx pool. Every
// call runs in a read-only transaction carrying the identity's role and JWT
// claims so that row level security applies exactly as it does for PostgREST.
type PostgresStore struct {
	DB       *pgxpool.Pool
	resolver auth.Resolver
}

// NewPostgresStore connects to Postgres and returns a PostgresStore.
func NewPostgresStore(ctx context.Context, connStr string, resolver auth.Resolver) (*PostgresStore, error) {
	if resolver == nil {
		return nil, errors.New("postgres store requires a credential resolver")
	}
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return &PostgresStore{DB: db, resolver: resolver}, nil
}

// ResolveIdentity delegates to the configured resolver.
func (ps *PostgresStore) ResolveIdentity(ctx context.Context, credential string) (auth.Identity, error) {
	return ps.resolver.Resolve(ctx, credential)
}

// Bind returns a retriever acting as identity.
func (ps *PostgresStore) Bind(identity auth.Identity) Retriever {
	return &postgresRetriever{store: ps, identity: identity}
}

// Ping checks connectivity.
func (ps *PostgresStore) Ping(ctx context.Context) error {
	if ps == nil || ps.DB == nil {
		return errors.New("postgres store is not connected")
	}
	return ps.DB.Ping(ctx)
}

// Close releases the underlying Postgres connection pool.
func (ps *PostgresStore) Close() {
	if ps == nil || ps.DB == nil {
		return
	}
	ps.DB.Close()
}

type rpcArg struct {
	name  string
	value any
	cast  string
}

// rpcSQL renders a named-argument call of a set-returning function.
func rpcSQL(fn string, args []rpcArg) (string, []any) {
	parts := make([]string, len(args))
	values := make([]any, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprintf("%s => $%d%s", a.name, i+1, a.cast)
		values[i] = a.value
	}
	return fmt.Sprintf("SELECT * FROM %s(%s)", fn, strings.Join(parts, ", ")), values
}

func (ps *PostgresStore) rpc(ctx context.Context, identity auth.Identity, fn string, args []rpcArg) (records []Record, err error) {
	ctx, span := tracer.Start(ctx, "docstore.rpc")
	span.SetAttributes(attribute.String("db.function", fn))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("db.rows", len(records)))
		span.End()
	}()

	if ps == nil || ps.DB == nil {
		return nil, errors.New("postgres store is not connected")
	}

	tx, err := ps.DB.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("%s: begin: %w", fn, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	role := identity.Role
	if role != "service_role" {
		role = "authenticated"
	}
	if _, err := tx.Exec(ctx,
		"SELECT set_config('role', $1, true), set_config('request.jwt.claims', $2, true)",
		role, identity.ClaimsJSON(),
	); err != nil {
		return nil, fmt.Errorf("%s: set identity: %w", fn, err)
	}

	query, values := rpcSQL(fn, args)
	rows, err := tx.Query(ctx, query, values...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}

	records = make([]Record, 0, len(maps))
	for _, m := range maps {
		records = append(records, normalizeRecord(m))
	}
	return records, nil
}

type postgresRetriever struct {
	store    *PostgresStore
	identity auth.Identity
}

func (r *postgresRetriever) Identity() auth.Identity { return r.identity }

func (r *postgresRetriever) SearchMeetings(ctx context.Context, queryText string, embedding []float32, matchCount int) ([]Record, error) {
	return r.store.rpc(ctx, r.identity, "hybrid_search_meetings", []rpcArg{
		{name: "query_text", value: queryText},
		{name: "query_embedding", value: vectorLiteral(embedding), cast: "::vector"},
		{name: "match_count", value: matchCountOr(matchCount, DefaultMeetingMatchCount)},
	})
}

func (r *postgresRetriever) SearchMeetingsByOrganization(ctx context.Context, queryText string, embedding []float32, organization string, matchCount int) ([]Record, error) {
	return r.store.rpc(ctx, r.identity, "hybrid_search_meetings_organization", []rpcArg{
		{name: "query_text", value: queryText},
		{name: "query_embedding", value: vectorLiteral(embedding), cast: "::vector"},
		{name: "match_count", value: matchCountOr(matchCount, DefaultMeetingMatchCount)},
		{name: "organization_input", value: organization},
	})
}

func (r *postgresRetriever) SearchTravelPackages(ctx context.Context, vectors TravelVectors, matchCount int) ([]Record, error) {
	args := travelArgs(vectors, matchCountOr(matchCount, DefaultTravelMatchCount))
	records, err := r.store.rpc(ctx, r.identity, "search_travel_packages", args)
	if err != nil {
		return nil, err
	}
	SortByScore(records)
	return records, nil
}

func travelArgs(vectors TravelVectors, matchCount int) []rpcArg {
	ordered := vectors.Ordered()
	args := make([]rpcArg, 0, len(ordered)+1)
	for i, field := range TravelFields {
		args = append(args, rpcArg{name: field + "_vector", value: vectorLiteral(ordered[i]), cast: "::vector"})
	}
	return append(args, rpcArg{name: "match_count", value: matchCount})
}
