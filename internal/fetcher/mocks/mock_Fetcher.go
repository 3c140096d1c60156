// Package mocks provides test doubles for the fetcher package.
package mocks

import (
	"context"

	fetcher "github.com/sells-group/ntripbrowser/internal/fetcher"
	mock "github.com/stretchr/testify/mock"
)

// MockFetcher is a mock type for the Fetcher interface.
type MockFetcher struct {
	mock.Mock
}

// Fetch provides a mock function with given fields: ctx, url
func (_m *MockFetcher) Fetch(ctx context.Context, url string) (*fetcher.Payload, error) {
	ret := _m.Called(ctx, url)

	if len(ret) == 0 {
		panic("no return value specified for Fetch")
	}

	var r0 *fetcher.Payload
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*fetcher.Payload, error)); ok {
		return rf(ctx, url)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) *fetcher.Payload); ok {
		r0 = rf(ctx, url)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*fetcher.Payload)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, url)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockFetcher creates a new instance of MockFetcher. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockFetcher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockFetcher {
	m := &MockFetcher{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
