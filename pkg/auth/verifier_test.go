package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticVerifier(t *testing.T) {
	v := StaticVerifier{"dev-token": "user-1", "other-token": "user-2"}

	tests := []struct {
		name    string
		token   string
		want    string
		wantErr bool
	}{
		{name: "known token", token: "dev-token", want: "user-1"},
		{name: "second token", token: "other-token", want: "user-2"},
		{name: "unknown token", token: "nope", wantErr: true},
		{name: "empty token", token: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Verify(context.Background(), tt.token)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInsecureVerifier(t *testing.T) {
	v := InsecureVerifier{UserID: "dev-user"}

	for _, token := range []string{"anything", "literally-anything"} {
		got, err := v.Verify(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "dev-user", got)
	}
}
