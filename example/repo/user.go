package repo

import (
	"context"

	"github.com/mickamy/relcount/example/model"
	"github.com/mickamy/relcount/example/query"
	"github.com/mickamy/relcount/orm"
	"github.com/mickamy/relcount/scope"
)

// UserRepository wraps the query factories with a repository pattern.
type UserRepository struct {
	db     orm.Querier
	schema *query.Schema
}

func NewUserRepository(db orm.Querier, schema *query.Schema) *UserRepository {
	return &UserRepository{db: db, schema: schema}
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	return r.schema.Users(r.db).Create(ctx, u)
}

func (r *UserRepository) FindByID(ctx context.Context, id int) (model.User, error) {
	return r.schema.Users(r.db).Where("id = ?", id).First(ctx)
}

func (r *UserRepository) FindAll(ctx context.Context, scopes ...scope.Scope) ([]model.User, error) {
	return r.schema.Users(r.db).Scopes(scopes...).OrderBy("id").All(ctx)
}

// FindWithActivity loads users with their published posts, drafts and
// archived comments counted. Comments newer than minCommentID only.
func (r *UserRepository) FindWithActivity(ctx context.Context, minCommentID int) ([]model.User, error) {
	return r.schema.Users(r.db).
		OrderBy("id").
		WithCount("posts", "drafts").
		WithCountFunc("comments as recent_comments", func(q *orm.CountQuery) {
			q.Where("id >= ?", minCommentID)
		}).
		All(ctx)
}
