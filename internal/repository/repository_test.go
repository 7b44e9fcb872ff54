package repository

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSort(t *testing.T) {
	tests := []struct {
		in   string
		want SortOrder
	}{
		{"", SortDateDesc},
		{"-date", SortDateDesc},
		{"-anything", SortDateDesc},
		{"date", SortDateAsc},
		{"created_at", SortDateAsc},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSort(tt.in))
		})
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

type fakeStore struct {
	Store
	closed bool
}

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}

func TestWithSessions_ClosesBoth(t *testing.T) {
	primary := &fakeStore{}
	boom := errors.New("boom")
	var sessionsClosed bool

	s := WithSessions(primary, nil, closerFunc(func() error {
		sessionsClosed = true
		return boom
	}))

	err := s.Close()
	assert.ErrorIs(t, err, boom)
	assert.True(t, primary.closed)
	assert.True(t, sessionsClosed)
}
