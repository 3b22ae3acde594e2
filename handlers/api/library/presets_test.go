package library

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hizuke-thumb/core"
	"hizuke-thumb/handlers/api/apitest"
	"hizuke-thumb/presets"
)

// createPreset uploads a base image and returns the created preset.
func createPreset(t *testing.T, svc *presets.Service, name string) *core.Preset {
	t.Helper()
	p, err := svc.CreateFromImage(context.Background(), name+".png", apitest.PNG(t, 64, 32, color.White))
	if err != nil {
		t.Fatalf("CreateFromImage() failed: %v", err)
	}
	return p
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHandleCreatePreset_Multipart(t *testing.T) {
	svc := apitest.NewService(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "Weekly banner.png")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(apitest.PNG(t, 40, 20, color.Black))
	mw.Close()

	req := apitest.Request(http.MethodPost, "/api/presets", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	HandleCreatePreset(svc)(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Status code mismatch: got %d, want %d (%s)", rec.Code, http.StatusCreated, rec.Body)
	}
	p := decode[core.Preset](t, rec)
	if p.Name != "Weekly banner" || p.Canvas.Width != 40 || p.Canvas.Height != 20 {
		t.Errorf("Created preset = %+v", p)
	}
}

func TestHandleCreatePreset_RawBody(t *testing.T) {
	svc := apitest.NewService(t)
	req := apitest.Request(http.MethodPost, "/api/presets?filename=raw.png", bytes.NewReader(apitest.PNG(t, 8, 8, color.White)))
	req.Header.Set("Content-Type", "image/png")
	rec := httptest.NewRecorder()
	HandleCreatePreset(svc)(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusCreated)
	}
	if p := decode[core.Preset](t, rec); p.Name != "raw" {
		t.Errorf("Preset name = %q, want raw", p.Name)
	}
}

func TestHandleCreatePreset_NotAnImage(t *testing.T) {
	svc := apitest.NewService(t)
	req := apitest.Request(http.MethodPost, "/api/presets?filename=a.txt", strings.NewReader("plain text"))
	rec := httptest.NewRecorder()
	HandleCreatePreset(svc)(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleListPresets(t *testing.T) {
	svc := apitest.NewService(t)

	rec := httptest.NewRecorder()
	HandleListPresets(svc)(rec, apitest.Request(http.MethodGet, "/api/presets", nil))
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("Empty list body = %s, want []", got)
	}

	createPreset(t, svc, "one")
	createPreset(t, svc, "two")
	rec = httptest.NewRecorder()
	HandleListPresets(svc)(rec, apitest.Request(http.MethodGet, "/api/presets", nil))
	if list := decode[[]core.Preset](t, rec); len(list) != 2 {
		t.Errorf("Preset count mismatch: got %d, want 2", len(list))
	}
}

func TestHandleListPresets_StoreError(t *testing.T) {
	svc := apitest.ServiceFor(apitest.BrokenStore{})
	rec := httptest.NewRecorder()
	HandleListPresets(svc)(rec, apitest.Request(http.MethodGet, "/api/presets", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if strings.Contains(rec.Body.String(), apitest.ErrBackend.Error()) {
		t.Errorf("Server error leaked into response: %s", rec.Body)
	}
}

func TestHandleGetPreset_NotFound(t *testing.T) {
	svc := apitest.NewService(t)
	rec := httptest.NewRecorder()
	HandleGetPreset(svc)(rec, apitest.Request(http.MethodGet, "/api/presets/nope", nil, "id", "nope"))

	if rec.Code != http.StatusNotFound {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleSavePreset(t *testing.T) {
	svc := apitest.NewService(t)
	p := createPreset(t, svc, "orig")

	p.Name = "edited"
	p.Layers = core.Layers{core.NewTextLayer("t1", "title", core.StaticText("hi"), 1, core.DefaultTextStyle())}
	body, _ := json.Marshal(p)

	rec := httptest.NewRecorder()
	HandleSavePreset(svc)(rec, apitest.Request(http.MethodPut, "/api/presets/"+p.ID, bytes.NewReader(body), "id", p.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body)
	}

	stored, err := svc.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Name != "edited" || len(stored.Layers) != 1 {
		t.Errorf("Stored preset = %+v", stored)
	}
}

func TestHandleSavePreset_Invalid(t *testing.T) {
	svc := apitest.NewService(t)
	p := createPreset(t, svc, "orig")

	tests := map[string]string{
		"malformed":     `{"name":`,
		"empty name":    `{"name":"","canvas":{"width":10,"height":10}}`,
		"unknown layer": `{"name":"x","canvas":{"width":10,"height":10},"layers":[{"type":"video","id":"v"}]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleSavePreset(svc)(rec, apitest.Request(http.MethodPut, "/", strings.NewReader(body), "id", p.ID))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}

	rec := httptest.NewRecorder()
	HandleSavePreset(svc)(rec, apitest.Request(http.MethodPut, "/", strings.NewReader(`{"name":"x","canvas":{"width":1,"height":1}}`), "id", "missing"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Saving an unknown preset: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleRenamePreset(t *testing.T) {
	svc := apitest.NewService(t)
	p := createPreset(t, svc, "orig")

	rec := httptest.NewRecorder()
	HandleRenamePreset(svc)(rec, apitest.Request(http.MethodPatch, "/", strings.NewReader(`{"name":"月曜"}`), "id", p.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}
	if got := decode[core.Preset](t, rec); got.Name != "月曜" {
		t.Errorf("Renamed preset name = %q", got.Name)
	}

	rec = httptest.NewRecorder()
	HandleRenamePreset(svc)(rec, apitest.Request(http.MethodPatch, "/", strings.NewReader(`{"name":"  "}`), "id", p.ID))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Blank rename: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleDeletePreset(t *testing.T) {
	svc := apitest.NewService(t)
	p := createPreset(t, svc, "gone")

	rec := httptest.NewRecorder()
	HandleDeletePreset(svc)(rec, apitest.Request(http.MethodDelete, "/", nil, "id", p.ID))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusNoContent)
	}

	rec = httptest.NewRecorder()
	HandleDeletePreset(svc)(rec, apitest.Request(http.MethodDelete, "/", nil, "id", p.ID))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Second delete: got %d, want %d", rec.Code, http.StatusNotFound)
	}
	if _, err := svc.Image(context.Background(), p.Canvas.BaseImageID); err == nil {
		t.Error("Base image of the deleted preset still stored")
	}
}

func TestHandleDuplicatePreset(t *testing.T) {
	svc := apitest.NewService(t)
	p := createPreset(t, svc, "src")

	rec := httptest.NewRecorder()
	HandleDuplicatePreset(svc)(rec, apitest.Request(http.MethodPost, "/", nil, "id", p.ID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusCreated)
	}
	if dup := decode[core.Preset](t, rec); dup.Name != "src (コピー)" || dup.ID == p.ID {
		t.Errorf("Duplicate = %+v", dup)
	}

	rec = httptest.NewRecorder()
	HandleDuplicatePreset(svc)(rec, apitest.Request(http.MethodPost, "/", strings.NewReader(`{"name":"named"}`), "id", p.ID))
	if dup := decode[core.Preset](t, rec); dup.Name != "named" {
		t.Errorf("Named duplicate = %q", dup.Name)
	}
}

func TestHandleDefaultPreset(t *testing.T) {
	svc := apitest.NewService(t)

	rec := httptest.NewRecorder()
	HandleGetDefault(svc)(rec, apitest.Request(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("No default: got %d, want %d", rec.Code, http.StatusNotFound)
	}

	p := createPreset(t, svc, "main")
	rec = httptest.NewRecorder()
	HandleSetDefault(svc)(rec, apitest.Request(http.MethodPost, "/", nil, "id", p.ID))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusNoContent)
	}

	rec = httptest.NewRecorder()
	HandleGetDefault(svc)(rec, apitest.Request(http.MethodGet, "/", nil))
	if got := decode[core.Preset](t, rec); got.ID != p.ID || !got.IsDefault {
		t.Errorf("Default preset = %+v", got)
	}
}

func TestHandleExportImport(t *testing.T) {
	svc := apitest.NewService(t)
	p := createPreset(t, svc, "週刊")

	rec := httptest.NewRecorder()
	HandleExportPreset(svc)(rec, apitest.Request(http.MethodGet, "/", nil, "id", p.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment;") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	exported := rec.Body.Bytes()

	var exp core.PresetExport
	if err := json.Unmarshal(exported, &exp); err != nil {
		t.Fatal(err)
	}
	if exp.Version != core.ExportVersion || len(exp.RequiredAssets.Images) != 1 {
		t.Errorf("Export = %+v", exp)
	}

	rec = httptest.NewRecorder()
	HandleImportPreset(svc)(rec, apitest.Request(http.MethodPost, "/", bytes.NewReader(exported)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Import status mismatch: got %d, want %d (%s)", rec.Code, http.StatusCreated, rec.Body)
	}
	imported := decode[core.Preset](t, rec)
	if imported.ID == p.ID || imported.Canvas.BaseImageID != p.Canvas.BaseImageID {
		t.Errorf("Imported preset = %+v", imported)
	}
}

func TestHandleImportPreset_MissingAssets(t *testing.T) {
	svc := apitest.NewService(t)
	body := `{"version":"1.0","name":"x","canvas":{"width":10,"height":10},"layers":[{"type":"image","id":"i","imageId":"gone","opacity":1}],"requiredAssets":{"images":["base","gone"],"fonts":[]}}`

	rec := httptest.NewRecorder()
	HandleImportPreset(svc)(rec, apitest.Request(http.MethodPost, "/", strings.NewReader(body)))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
	resp := decode[struct {
		MissingImages []string `json:"missingImages"`
	}](t, rec)
	if len(resp.MissingImages) != 2 {
		t.Errorf("missingImages = %v, want [base gone]", resp.MissingImages)
	}
}
