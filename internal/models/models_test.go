package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSubmissionStatus(t *testing.T) {
	cases := map[string]SubmissionStatus{
		"pending":    StatusPending,
		"Pendiente":  StatusPending,
		"approved":   StatusApproved,
		" validado ": StatusApproved,
		"rejected":   StatusRejected,
		"RECHAZADO":  StatusRejected,
	}
	for in, want := range cases {
		got, ok := ParseSubmissionStatus(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "received", "completed", "processing"} {
		_, ok := ParseSubmissionStatus(in)
		assert.False(t, ok, in)
	}
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole("user")
	assert.True(t, ok)
	assert.Equal(t, RoleClient, r)

	r, ok = ParseRole("Admin")
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, r)

	_, ok = ParseRole("manager")
	assert.False(t, ok)
}

func TestSubmissionPhotoURL(t *testing.T) {
	s := Submission{Photos: []SubmissionPhoto{
		{Kind: PhotoEntry, URL: "/entry.jpg"},
		{Kind: PhotoWeighing, URL: "/weighing.jpg"},
	}}
	assert.Equal(t, "/weighing.jpg", s.PhotoURL(PhotoWeighing))
	assert.Equal(t, "", s.PhotoURL(PhotoExtra))
}
