package fleetdb

import sq "github.com/Masterminds/squirrel"

func NewQueryReader() *Reader {
	return &Reader{psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

func (r *Reader) AgentStateQuery(id string) (string, []any, error) {
	return r.agentStateQuery(id)
}

func (r *Reader) GroupMembershipQuery(id string) (string, []any, error) {
	return r.groupMembershipQuery(id)
}

func (r *Reader) GroupMembersQuery(id string) (string, []any, error) {
	return r.groupMembersQuery(id)
}
