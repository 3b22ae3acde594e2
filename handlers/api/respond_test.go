package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"hizuke-thumb/core"
	"hizuke-thumb/editor"
	"hizuke-thumb/presets"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("preset p: %w", core.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("preset p: %w", core.ErrConflict), http.StatusConflict},
		{fmt.Errorf("%w: bad", presets.ErrInvalid), http.StatusBadRequest},
		{fmt.Errorf("import: %w", &presets.MissingAssetsError{Images: []string{"i"}}), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: disk full", editor.ErrPersistence), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
