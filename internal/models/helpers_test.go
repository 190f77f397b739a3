package models

import (
	"testing"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

func TestRecordIDString(t *testing.T) {
	tests := []struct {
		name    string
		id      surrealmodels.RecordID
		want    string
		wantErr bool
	}{
		{"string id", surrealmodels.RecordID{Table: "passage", ID: "42"}, "42", false},
		{"numeric id", surrealmodels.RecordID{Table: "passage", ID: 42}, "42", false},
		{"unsupported id", surrealmodels.RecordID{Table: "passage", ID: []string{"a"}}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RecordIDString(tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RecordIDString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("RecordIDString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMustRecordIDStringPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unsupported ID type")
		}
	}()
	MustRecordIDString(surrealmodels.RecordID{Table: "passage", ID: 1.5})
}
