package storage

import "testing"

func TestNewMinIOStorageValidation(t *testing.T) {
	cases := []struct {
		name    string
		cfg     MinIOConfig
		wantErr bool
	}{
		{name: "missing endpoint", cfg: MinIOConfig{AccessKey: "a", SecretKey: "b"}, wantErr: true},
		{name: "missing access key", cfg: MinIOConfig{Endpoint: "127.0.0.1:9000", SecretKey: "b"}, wantErr: true},
		{name: "missing secret key", cfg: MinIOConfig{Endpoint: "127.0.0.1:9000", AccessKey: "a"}, wantErr: true},
		{name: "valid", cfg: MinIOConfig{Endpoint: "127.0.0.1:9000", AccessKey: "a", SecretKey: "b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewMinIOStorage(tc.cfg)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
