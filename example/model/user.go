package model

import "github.com/mickamy/relcount/orm"

type User struct {
	ID    int
	Name  string
	Email string
	orm.Counts
}

// TableName overrides the derived "users" table.
func (User) TableName() string { return "accounts" }
