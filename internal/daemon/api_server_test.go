package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"comic2kindle/internal/logging"
	"comic2kindle/internal/testsupport"
)

func startTestDaemon(t *testing.T) (*Daemon, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	d, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d, "http://" + d.Addr()
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func createSession(t *testing.T, base string) string {
	t.Helper()
	resp := postJSON(t, base+"/api/sessions", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session returned %d", resp.StatusCode)
	}
	var payload struct {
		SessionID string `json:"session_id"`
	}
	decodeBody(t, resp, &payload)
	if payload.SessionID == "" {
		t.Fatal("empty session id")
	}
	return payload.SessionID
}

func uploadArchive(t *testing.T, base, sessionID string, pageCount int) string {
	t.Helper()
	entries := make(map[string][]byte, pageCount)
	for i := 0; i < pageCount; i++ {
		entries[fmt.Sprintf("page%03d.jpg", i+1)] = testsupport.JPEGPage(t, 200, 300)
	}
	archive := filepath.Join(t.TempDir(), "upload.cbz")
	testsupport.WriteCBZ(t, archive, entries)
	data, err := os.ReadFile(archive)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "upload.cbz")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	resp, err := http.Post(base+"/api/sessions/"+sessionID+"/files", writer.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload returned %d", resp.StatusCode)
	}
	var payload struct {
		Files []struct {
			ID string `json:"id"`
		} `json:"files"`
	}
	decodeBody(t, resp, &payload)
	if len(payload.Files) != 1 || payload.Files[0].ID == "" {
		t.Fatalf("unexpected upload response: %+v", payload)
	}
	return payload.Files[0].ID
}

func waitForJob(t *testing.T, base, jobID string) jobStatusPayload {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for {
		resp, err := http.Get(base + "/api/convert/" + jobID + "/status")
		if err != nil {
			t.Fatalf("job status: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("job status returned %d", resp.StatusCode)
		}
		var payload jobStatusPayload
		decodeBody(t, resp, &payload)
		if payload.Status == "completed" || payload.Status == "failed" {
			return payload
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s did not finish, last status %s at %.0f%%", jobID, payload.Status, payload.Progress)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

type jobStatusPayload struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"`
	Progress    float64  `json:"progress"`
	OutputFiles []string `json:"output_files"`
	Error       string   `json:"error"`
}

func TestConversionRoundTrip(t *testing.T) {
	_, base := startTestDaemon(t)

	sessionID := createSession(t, base)
	fileID := uploadArchive(t, base, sessionID, 3)

	resp := postJSON(t, base+"/api/convert", map[string]any{
		"session_id": sessionID,
		"file_ids":   []string{fileID},
		"metadata":   map[string]any{"title": "Round Trip"},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("convert returned %d", resp.StatusCode)
	}
	var submitted jobStatusPayload
	decodeBody(t, resp, &submitted)
	if submitted.ID == "" || submitted.Status != "pending" {
		t.Fatalf("unexpected submit response: %+v", submitted)
	}

	done := waitForJob(t, base, submitted.ID)
	if done.Status != "completed" {
		t.Fatalf("job failed: %s", done.Error)
	}
	if done.Progress != 100 {
		t.Fatalf("completed job progress %v", done.Progress)
	}
	if len(done.OutputFiles) != 1 {
		t.Fatalf("expected one output, got %v", done.OutputFiles)
	}

	download, err := http.Get(base + "/api/download/" + sessionID + "/" + done.OutputFiles[0])
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer download.Body.Close()
	if download.StatusCode != http.StatusOK {
		t.Fatalf("download returned %d", download.StatusCode)
	}
	data, err := io.ReadAll(download.Body)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if len(data) == 0 || !bytes.HasPrefix(data, []byte("PK")) {
		t.Fatal("downloaded artifact is not a zip container")
	}

	bundle, err := http.Get(base + "/api/download/" + sessionID + "/bundle")
	if err != nil {
		t.Fatalf("bundle: %v", err)
	}
	defer bundle.Body.Close()
	if bundle.StatusCode != http.StatusOK {
		t.Fatalf("bundle returned %d", bundle.StatusCode)
	}
}

func TestConvertValidatesRequest(t *testing.T) {
	_, base := startTestDaemon(t)

	resp := postJSON(t, base+"/api/convert", map[string]any{
		"session_id": "nope",
		"file_ids":   []string{"nothing"},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", resp.StatusCode)
	}
}

func TestDevicesEndpoint(t *testing.T) {
	_, base := startTestDaemon(t)

	resp, err := http.Get(base + "/api/devices")
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	var payload struct {
		Devices []struct {
			ID     string `json:"id"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"devices"`
	}
	decodeBody(t, resp, &payload)
	if len(payload.Devices) < 6 {
		t.Fatalf("expected full device catalog, got %d entries", len(payload.Devices))
	}
	found := false
	for _, device := range payload.Devices {
		if device.ID == "kindle_paperwhite_5" && device.Width == 1236 && device.Height == 1648 {
			found = true
		}
	}
	if !found {
		t.Fatal("kindle_paperwhite_5 missing from catalog response")
	}
}

func TestDeleteSessionCancelsAndRemoves(t *testing.T) {
	_, base := startTestDaemon(t)

	sessionID := createSession(t, base)
	uploadArchive(t, base, sessionID, 1)

	req, err := http.NewRequest(http.MethodDelete, base+"/api/sessions/"+sessionID, nil)
	if err != nil {
		t.Fatalf("build delete: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete returned %d", resp.StatusCode)
	}

	list, err := http.Get(base + "/api/sessions/" + sessionID + "/files")
	if err != nil {
		t.Fatalf("list files: %v", err)
	}
	defer list.Body.Close()
	if list.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after removal, got %d", list.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	d, base := startTestDaemon(t)
	sessionID := createSession(t, base)
	uploadArchive(t, base, sessionID, 1)

	resp, err := http.Get(base + "/api/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var payload struct {
		Running      bool   `json:"running"`
		LockFilePath string `json:"lock_file_path"`
		UploadBytes  int64  `json:"upload_bytes"`
		OutputBytes  int64  `json:"output_bytes"`
	}
	decodeBody(t, resp, &payload)
	if !payload.Running {
		t.Fatal("daemon should report running")
	}
	if payload.LockFilePath != d.lockPath {
		t.Fatalf("lock path mismatch: %s vs %s", payload.LockFilePath, d.lockPath)
	}
	if payload.UploadBytes <= 0 {
		t.Fatalf("upload workspace usage should count the uploaded archive, got %d", payload.UploadBytes)
	}
	if payload.OutputBytes < 0 {
		t.Fatalf("output workspace usage must not be negative, got %d", payload.OutputBytes)
	}
}

func TestSecondInstanceRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("start first: %v", err)
	}
	t.Cleanup(func() { _ = first.Close() })

	second, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("new second daemon: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected second instance to be rejected by the lock")
	}
}
