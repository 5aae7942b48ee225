// Package query declares the example schema and the per-model query
// factories.
package query

import (
	"database/sql"

	"github.com/mickamy/relcount/example/model"
	"github.com/mickamy/relcount/orm"
	"github.com/mickamy/relcount/scope"
)

// ArchiveStore holds comments.
const ArchiveStore = model.ArchiveStore

// Schema holds the example entities.
type Schema struct {
	*orm.Schema
	users    *orm.Entity
	posts    *orm.Entity
	comments *orm.Entity
}

// NewSchema declares users, posts and comments. Posts carry a "published"
// global scope; the "drafts" relation opts out of it.
func NewSchema() (*Schema, error) {
	s := &Schema{Schema: orm.NewSchema()}

	var err error
	if s.users, err = orm.DefineModel[model.User](s.Schema, "User", orm.Columns("id", "name", "email")); err != nil {
		return nil, err
	}
	if s.posts, err = orm.DefineModel[model.Post](s.Schema, "Post", orm.Columns("id", "user_id", "title", "published")); err != nil {
		return nil, err
	}
	if s.comments, err = orm.DefineModel[model.Comment](s.Schema, "Comment", orm.Columns("id", "user_id", "body")); err != nil {
		return nil, err
	}

	if err := s.AddGlobalScope("Post", "published", scope.Where("published = ?", true)); err != nil {
		return nil, err
	}

	// The users table is "accounts", so the derived key would be account_id.
	fk := orm.ForeignKey("user_id")
	if _, err := s.HasMany("User", "posts", "Post", fk); err != nil {
		return nil, err
	}
	if _, err := s.HasMany("User", "drafts", "Post", fk,
		orm.WithoutGlobalScopes("published"),
		orm.Constrain(scope.Where("published = ?", false))); err != nil {
		return nil, err
	}
	if _, err := s.HasMany("User", "comments", "Comment", fk); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Schema) Users(db orm.Querier) *orm.Query[model.User] {
	return orm.NewQuery[model.User](db, s.users, scanUser, userColumnValuePairs, setUserPK)
}

func (s *Schema) Posts(db orm.Querier) *orm.Query[model.Post] {
	return orm.NewQuery[model.Post](db, s.posts, scanPost, postColumnValuePairs, setPostPK)
}

func (s *Schema) Comments(db orm.Querier) *orm.Query[model.Comment] {
	return orm.NewQuery[model.Comment](db, s.comments, scanComment, commentColumnValuePairs, setCommentPK)
}

func scanUser(rows *sql.Rows) (model.User, error) {
	var v model.User
	err := rows.Scan(&v.ID, &v.Name, &v.Email)
	return v, err
}

func userColumnValuePairs(v *model.User, includesPK bool) ([]string, []any) {
	if includesPK {
		return []string{"id", "name", "email"}, []any{v.ID, v.Name, v.Email}
	}
	return []string{"name", "email"}, []any{v.Name, v.Email}
}

func setUserPK(v *model.User, id int64) { v.ID = int(id) }

func scanPost(rows *sql.Rows) (model.Post, error) {
	var v model.Post
	err := rows.Scan(&v.ID, &v.UserID, &v.Title, &v.Published)
	return v, err
}

func postColumnValuePairs(v *model.Post, includesPK bool) ([]string, []any) {
	if includesPK {
		return []string{"id", "user_id", "title", "published"}, []any{v.ID, v.UserID, v.Title, v.Published}
	}
	return []string{"user_id", "title", "published"}, []any{v.UserID, v.Title, v.Published}
}

func setPostPK(v *model.Post, id int64) { v.ID = int(id) }

func scanComment(rows *sql.Rows) (model.Comment, error) {
	var v model.Comment
	err := rows.Scan(&v.ID, &v.UserID, &v.Body)
	return v, err
}

func commentColumnValuePairs(v *model.Comment, includesPK bool) ([]string, []any) {
	if includesPK {
		return []string{"id", "user_id", "body"}, []any{v.ID, v.UserID, v.Body}
	}
	return []string{"user_id", "body"}, []any{v.UserID, v.Body}
}

func setCommentPK(v *model.Comment, id int64) { v.ID = int(id) }
