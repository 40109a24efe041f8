package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionIsAuthenticated(t *testing.T) {
	tests := []struct {
		name     string
		session  *Session
		expected bool
	}{
		{"nil session", nil, false},
		{"empty token", &Session{UserID: "u1"}, false},
		{"token without expiry", &Session{Token: "tok"}, true},
		{"token before expiry", &Session{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}, true},
		{"token past expiry", &Session{Token: "tok", ExpiresAt: time.Now().Add(-time.Minute)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.session.IsAuthenticated())
		})
	}
}
