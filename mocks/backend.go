package mocks

import (
	"context"

	"github.com/entmap/entmap/clause"
	"github.com/stretchr/testify/mock"
)

// Backend testify mock of a storage backend
type Backend struct {
	mock.Mock
}

func (_m *Backend) Connect(ctx context.Context) error {
	ret := _m.Called(ctx)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context) error); ok {
		r0 = rf(ctx)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}
func (_m *Backend) CreateSchema(ctx context.Context) error {
	ret := _m.Called(ctx)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context) error); ok {
		r0 = rf(ctx)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}
func (_m *Backend) FindAll(ctx context.Context, q *clause.Query, extra *[]map[string]interface{}) ([]interface{}, error) {
	ret := _m.Called(ctx, q, extra)

	var r0 []interface{}
	if rf, ok := ret.Get(0).(func(context.Context, *clause.Query, *[]map[string]interface{}) []interface{}); ok {
		r0 = rf(ctx, q, extra)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]interface{})
		}
	}

	return r0, ret.Error(1)
}
func (_m *Backend) Insert(ctx context.Context, q *clause.Query, item interface{}) error {
	ret := _m.Called(ctx, q, item)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, *clause.Query, interface{}) error); ok {
		r0 = rf(ctx, q, item)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}
func (_m *Backend) Delete(ctx context.Context, q *clause.Query, item interface{}) error {
	ret := _m.Called(ctx, q, item)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, *clause.Query, interface{}) error); ok {
		r0 = rf(ctx, q, item)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}
func (_m *Backend) Total(ctx context.Context, q *clause.Query) (int64, error) {
	ret := _m.Called(ctx, q)

	var r0 int64
	if rf, ok := ret.Get(0).(func(context.Context, *clause.Query) int64); ok {
		r0 = rf(ctx, q)
	} else {
		r0 = ret.Get(0).(int64)
	}

	return r0, ret.Error(1)
}
