package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "defaults",
			cfg:  Config{port: 8080},
		},
		{
			name:    "cert without key",
			cfg:     Config{port: 8080, tlsCert: "cert.pem"},
			wantErr: true,
		},
		{
			name:    "key without cert",
			cfg:     Config{port: 8080, tlsKey: "key.pem"},
			wantErr: true,
		},
		{
			name: "cert and key",
			cfg:  Config{port: 8080, tlsCert: "cert.pem", tlsKey: "key.pem"},
		},
		{
			name:    "port too low",
			cfg:     Config{port: 0},
			wantErr: true,
		},
		{
			name:    "port too high",
			cfg:     Config{port: 65536},
			wantErr: true,
		},
		{
			name:    "negative flip delay",
			cfg:     Config{port: 8080, flipDelay: -time.Second},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfigScheme(t *testing.T) {
	require.Equal(t, "http", (&Config{}).scheme())
	require.Equal(t, "https", (&Config{tlsCert: "cert.pem", tlsKey: "key.pem"}).scheme())
}
