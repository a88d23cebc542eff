package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAirdropQuery(t *testing.T) {
	tests := []struct {
		name    string
		query   AirdropQuery
		wantErr bool
	}{
		{
			name:    "Valid checksummed account",
			query:   AirdropQuery{To: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"},
			wantErr: false,
		},
		{
			name:    "Valid account without prefix",
			query:   AirdropQuery{To: "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"},
			wantErr: false,
		},
		{
			name:    "Missing account",
			query:   AirdropQuery{},
			wantErr: true,
		},
		{
			name:    "Too short",
			query:   AirdropQuery{To: "0x5aAeb6053F3E94C9b9A09f"},
			wantErr: true,
		},
		{
			name:    "Not hex",
			query:   AirdropQuery{To: "5DAAnrj7VHTznn2AWBemMuyBwZWs6FNFjdyVXUeYum3PTXFy"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.ValidateAirdropQuery()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
