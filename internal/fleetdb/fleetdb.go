package fleetdb

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/orb-community/orb-acceptance/pkg/errors"
	"github.com/orb-community/orb-acceptance/pkg/probe"
)

const (
	agentsTable     = "agents"
	membershipTable = "agent_group_membership"
)

// Reader reads agent state straight from the fleet database.
type Reader struct {
	db   *sql.DB
	psql sq.StatementBuilderType
}

func Open(ctx context.Context, dsn string) (*Reader, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening fleet database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging fleet database: %w", err)
	}
	zap.S().Debugw("connected to fleet database")
	return &Reader{
		db:   db,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

func (r *Reader) Close() error {
	return r.db.Close()
}

func (r *Reader) agentStateQuery(agentID string) (string, []any, error) {
	return r.psql.Select("state").
		From(agentsTable).
		Where(sq.Eq{"mf_thing_id": agentID}).
		ToSql()
}

func (r *Reader) groupMembershipQuery(agentID string) (string, []any, error) {
	return r.psql.Select("agent_groups_id").
		From(membershipTable).
		Where(sq.Eq{"agent_mf_thing_id": agentID}).
		OrderBy("agent_groups_id").
		ToSql()
}

func (r *Reader) groupMembersQuery(groupID string) (string, []any, error) {
	return r.psql.Select("agent_mf_thing_id").
		From(membershipTable).
		Where(sq.Eq{"agent_groups_id": groupID}).
		OrderBy("agent_mf_thing_id").
		ToSql()
}

// AgentState returns the lifecycle state stored for the agent.
func (r *Reader) AgentState(ctx context.Context, agentID string) (string, error) {
	query, args, err := r.agentStateQuery(agentID)
	if err != nil {
		return "", err
	}

	var state string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&state)
	if err == sql.ErrNoRows {
		return "", errors.NewAgentNotFoundError(agentID)
	}
	if err != nil {
		return "", fmt.Errorf("reading state of agent %s: %w", agentID, err)
	}
	return state, nil
}

// AgentGroups returns the ids of the groups the agent belongs to.
func (r *Reader) AgentGroups(ctx context.Context, agentID string) ([]string, error) {
	query, args, err := r.groupMembershipQuery(agentID)
	if err != nil {
		return nil, err
	}
	return r.strings(ctx, query, args)
}

// GroupMembers returns the ids of the agents matched by the group.
func (r *Reader) GroupMembers(ctx context.Context, groupID string) ([]string, error) {
	query, args, err := r.groupMembersQuery(groupID)
	if err != nil {
		return nil, err
	}
	return r.strings(ctx, query, args)
}

func (r *Reader) strings(ctx context.Context, query string, args []any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AgentStateFetcher adapts AgentState to an equality probe.
func (r *Reader) AgentStateFetcher(agentID string) probe.Fetcher[string] {
	return func(ctx context.Context) (string, error) {
		return r.AgentState(ctx, agentID)
	}
}

// AgentGroupsFetcher adapts AgentGroups to a convergence probe.
func (r *Reader) AgentGroupsFetcher(agentID string) probe.Fetcher[[]string] {
	return func(ctx context.Context) ([]string, error) {
		return r.AgentGroups(ctx, agentID)
	}
}
