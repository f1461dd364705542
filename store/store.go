package store

import (
	"context"
	"time"
)

var (
	ContextTimeout = time.Duration(20) * time.Second
)

type Pagination struct {
	Offset int
	Limit  int
}

func DefaultPagination() Pagination {
	return Pagination{
		Offset: 0,
		Limit:  10,
	}
}

type Sort struct {
	Attribute string
	Ascending bool
}

func (s *Sort) Order() int {
	if s.Ascending {
		return 1
	}
	return -1
}

func (p Pagination) WithLimit(limit int) Pagination {
	p.Limit = limit
	return p
}

func NewDbContext() context.Context {
	ctx, _ := context.WithTimeout(context.Background(), ContextTimeout)
	return ctx
}
