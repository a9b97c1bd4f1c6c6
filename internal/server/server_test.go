package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/searchandrescuegg/firstaid/internal/config"
	"github.com/searchandrescuegg/firstaid/internal/emergency"
	"github.com/searchandrescuegg/firstaid/internal/firstaid"
	"github.com/searchandrescuegg/firstaid/internal/transcription"
	"github.com/searchandrescuegg/firstaid/internal/vision"
	"github.com/searchandrescuegg/firstaid/pkg/detect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTranscriber struct {
	text     string
	err      error
	calls    int
	sawPath  string
	sawBytes []byte
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audioPath string) (string, error) {
	f.calls++
	f.sawPath = audioPath
	f.sawBytes, _ = os.ReadFile(audioPath)
	return f.text, f.err
}

type fakeDetector struct {
	summary *emergency.DetectionSummary
	err     error
	calls   int
	sawPath string
}

func (f *fakeDetector) DetectEmergencyIndicators(_ context.Context, imagePath string) (*emergency.DetectionSummary, error) {
	f.calls++
	f.sawPath = imagePath
	return f.summary, f.err
}

type fakeNarrator struct {
	gotTranscription string
	gotImage         map[string]any
}

func (f *fakeNarrator) GenerateFirstAid(_ context.Context, transcription string, imageResult map[string]any) string {
	f.gotTranscription = transcription
	f.gotImage = imageResult
	return "Apply firm pressure to the wound."
}

type fakeCaller struct {
	handle *emergency.CallHandle
	err    error
	gotID  string
}

func (f *fakeCaller) InitiateCall(context.Context) (*emergency.CallHandle, error) {
	return f.handle, f.err
}

func (f *fakeCaller) GetCallStatusAndResults(_ context.Context, callID string) (*emergency.CallHandle, error) {
	f.gotID = callID
	return f.handle, f.err
}

type failingChatModel struct{}

func (failingChatModel) Complete(context.Context, emergency.ChatRequest) (string, error) {
	return "", errors.New("upstream unavailable")
}

type fixture struct {
	transcriber *fakeTranscriber
	detector    *fakeDetector
	narrator    *fakeNarrator
	caller      *fakeCaller
	tempDir     string
	handler     http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		transcriber: &fakeTranscriber{text: "my friend fell and is bleeding"},
		detector:    &fakeDetector{summary: &emergency.DetectionSummary{AllDetections: []emergency.Detection{}, EmergencyDetections: []emergency.Detection{}}},
		narrator:    &fakeNarrator{},
		caller:      &fakeCaller{handle: &emergency.CallHandle{CallID: "call_1", Status: emergency.CallStatusInitiated}},
		tempDir:     t.TempDir(),
	}
	f.handler = New(f.transcriber, f.detector, f.narrator, f.caller, Options{
		MaxUploadBytes: 1 << 20,
		TempDir:        f.tempDir,
	}).Handler()
	return f
}

func (f *fixture) assertTempDirEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "upload temp files should be removed")
}

func multipartRequest(t *testing.T, path, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func silentWAV(seconds int) []byte {
	const sampleRate = 16000
	dataLen := uint32(sampleRate * 2 * seconds)

	header := make([]byte, 44)
	copy(header[0:], "RIFF")
	binary.LittleEndian.PutUint32(header[4:], 36+dataLen)
	copy(header[8:], "WAVEfmt ")
	binary.LittleEndian.PutUint32(header[16:], 16)
	binary.LittleEndian.PutUint16(header[20:], 1)
	binary.LittleEndian.PutUint16(header[22:], 1)
	binary.LittleEndian.PutUint32(header[24:], sampleRate)
	binary.LittleEndian.PutUint32(header[28:], sampleRate*2)
	binary.LittleEndian.PutUint16(header[32:], 2)
	binary.LittleEndian.PutUint16(header[34:], 16)
	copy(header[36:], "data")
	binary.LittleEndian.PutUint32(header[40:], dataLen)

	return append(header, make([]byte, dataLen)...)
}

func TestRoot(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/", "/healthz", "/healthz/"} {
		rec := serve(f.handler, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := serve(f.handler, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.JSONEq(t, `{"message": "Emergency Response API is running"}`, rec.Body.String())
}

func TestTranscribeAudio(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/transcribe-audio/", "/transcribe-audio"} {
		t.Run(path, func(t *testing.T) {
			rec := serve(f.handler, multipartRequest(t, path, "file", "call.wav", []byte("RIFF....")))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"transcription": "my friend fell and is bleeding"}`, rec.Body.String())
			assert.Equal(t, []byte("RIFF...."), f.transcriber.sawBytes)
			assert.Equal(t, ".wav", filepath.Ext(f.transcriber.sawPath))
			assert.Equal(t, f.tempDir, filepath.Dir(f.transcriber.sawPath))
			f.assertTempDirEmpty(t)
		})
	}
}

func TestTranscribeAudioFailureRemovesTempFile(t *testing.T) {
	f := newFixture(t)
	f.transcriber.err = emergency.Upstream("asr", errors.New("connection refused to 10.0.0.4"))

	rec := serve(f.handler, multipartRequest(t, "/transcribe-audio/", "file", "call.wav", []byte("RIFF....")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail": "error processing audio"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "10.0.0.4")
	f.assertTempDirEmpty(t)
}

func TestUploadValidation(t *testing.T) {
	tests := []struct {
		name string
		req  func(t *testing.T) *http.Request
	}{
		{
			name: "missing file field",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/transcribe-audio/", "audio", "call.wav", []byte("data"))
			},
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return jsonRequest("/analyze-image/", `{}`)
			},
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/analyze-image/", "file", "scene.jpg", bytes.Repeat([]byte{0xff}, 2<<20))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			rec := serve(f.handler, tt.req(t))

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["detail"])
			assert.Empty(t, f.transcriber.sawPath)
			assert.Empty(t, f.detector.sawPath)
			f.assertTempDirEmpty(t)
		})
	}
}

func TestAnalyzeImageWithObjectDetector(t *testing.T) {
	detectorSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"detections": [
			{"class": "person", "confidence": 0.91},
			{"class": "dog", "confidence": 0.88},
			{"class": "blood", "confidence": 0.72},
			{"class": "fire", "confidence": 0.31}
		]}`))
	}))
	defer detectorSrv.Close()

	tempDir := t.TempDir()
	detector := vision.NewObjectDetector(detect.NewClient(detectorSrv.URL, time.Second, nil), 0.5)
	handler := New(&fakeTranscriber{}, detector, &fakeNarrator{}, &fakeCaller{}, Options{TempDir: tempDir}).Handler()

	rec := serve(handler, multipartRequest(t, "/analyze-image/", "file", "scene.jpg", []byte{0xff, 0xd8, 0xff}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body analyzeImageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	summary := body.InjuryDetected
	require.NotNil(t, summary)

	all := map[string]bool{}
	for _, d := range summary.AllDetections {
		all[d.Class] = true
	}
	for _, d := range summary.EmergencyDetections {
		assert.True(t, all[d.Class], "%s should also be in all_detections", d.Class)
	}
	assert.True(t, summary.HasEmergency)

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAnalyzeImageFailure(t *testing.T) {
	f := newFixture(t)
	f.detector.err = emergency.Upstream("detect", errors.New("model crashed"))

	rec := serve(f.handler, multipartRequest(t, "/analyze-image/", "file", "scene.png", []byte("png")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail": "error analyzing image"}`, rec.Body.String())
	f.assertTempDirEmpty(t)
}

func TestFirstAid(t *testing.T) {
	f := newFixture(t)

	rec := serve(f.handler, jsonRequest("/first-aid/", `{"transcription": "he is bleeding", "image_result": {"has_emergency": true}}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"response": "Apply firm pressure to the wound."}`, rec.Body.String())
	assert.Equal(t, "he is bleeding", f.narrator.gotTranscription)
	assert.Equal(t, map[string]any{"has_emergency": true}, f.narrator.gotImage)
}

func TestFirstAidValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"transcription": `},
		{name: "missing transcription", body: `{"image_result": {}}`},
		{name: "missing image_result", body: `{"transcription": "help"}`},
		{name: "image_result not an object", body: `{"transcription": "help", "image_result": [1, 2]}`},
		{name: "null image_result", body: `{"transcription": "help", "image_result": null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := serve(f.handler, jsonRequest("/first-aid/", tt.body))
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["detail"])
		})
	}
}

func TestFirstAidFallsBackWhenModelFails(t *testing.T) {
	narrator := firstaid.NewNarrator(failingChatModel{}, 0.3, 500)
	handler := New(&fakeTranscriber{}, &fakeDetector{}, narrator, &fakeCaller{}, Options{TempDir: t.TempDir()}).Handler()

	rec := serve(handler, jsonRequest("/first-aid/", `{"transcription": "", "image_result": {}}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, firstaid.FallbackInstructions, decode(t, rec)["response"])
}

func TestSilentRecordingFlow(t *testing.T) {
	asrSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = w.Write([]byte(`{"text": "", "language": "en", "segments": []}`))
	}))
	defer asrSrv.Close()

	cfg, err := config.NewConfig()
	require.NoError(t, err)
	cfg.ASREndpoint = asrSrv.URL
	cfg.ASRTimeout = 5 * time.Second

	handle := transcription.NewHandle(cfg)
	defer handle.Reset()

	tempDir := t.TempDir()
	handler := New(
		transcription.NewAdapter(handle),
		&fakeDetector{},
		firstaid.NewNarrator(failingChatModel{}, 0.3, 500),
		&fakeCaller{},
		Options{TempDir: tempDir},
	).Handler()

	rec := serve(handler, multipartRequest(t, "/transcribe-audio/", "file", "silence.wav", silentWAV(1)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"transcription": ""}`, rec.Body.String())

	rec = serve(handler, jsonRequest("/first-aid/", `{"transcription": "", "image_result": {}}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["response"])

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRepeatedUploadsServedFromResultCache(t *testing.T) {
	transcriber := &fakeTranscriber{text: "help, there's been a crash"}
	detector := &fakeDetector{summary: &emergency.DetectionSummary{
		AllDetections:       []emergency.Detection{{Class: "car", Confidence: emergency.ScoreConfidence(0.9)}},
		EmergencyDetections: []emergency.Detection{{Class: "car", Confidence: emergency.ScoreConfidence(0.9)}},
		HasEmergency:        true,
	}}
	tempDir := t.TempDir()
	handler := New(transcriber, detector, &fakeNarrator{}, &fakeCaller{}, Options{
		TempDir:         tempDir,
		ResultCacheSize: 8,
		ResultCacheTTL:  time.Minute,
	}).Handler()

	audio := []byte("RIFF-crash")
	for range 2 {
		rec := serve(handler, multipartRequest(t, "/transcribe-audio/", "file", "call.wav", audio))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"transcription": "help, there's been a crash"}`, rec.Body.String())
	}
	assert.Equal(t, 1, transcriber.calls)

	rec := serve(handler, multipartRequest(t, "/transcribe-audio/", "file", "call.wav", []byte("RIFF-other")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, transcriber.calls)

	image := []byte{0xff, 0xd8, 0xff, 0x01}
	for range 2 {
		rec := serve(handler, multipartRequest(t, "/analyze-image/", "file", "scene.jpg", image))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"has_emergency":true`)
	}
	assert.Equal(t, 1, detector.calls)

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFailedResultsAreNotCached(t *testing.T) {
	transcriber := &fakeTranscriber{err: emergency.Upstream("asr", errors.New("503"))}
	handler := New(transcriber, &fakeDetector{}, &fakeNarrator{}, &fakeCaller{}, Options{
		TempDir:         t.TempDir(),
		ResultCacheSize: 8,
		ResultCacheTTL:  time.Minute,
	}).Handler()

	rec := serve(handler, multipartRequest(t, "/transcribe-audio/", "file", "call.wav", []byte("RIFF")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	transcriber.err = nil
	transcriber.text = "recovered"
	rec = serve(handler, multipartRequest(t, "/transcribe-audio/", "file", "call.wav", []byte("RIFF")))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"transcription": "recovered"}`, rec.Body.String())
	assert.Equal(t, 2, transcriber.calls)
}

func TestJSONBodyTooLarge(t *testing.T) {
	narrator := &fakeNarrator{}
	caller := &fakeCaller{}
	handler := New(&fakeTranscriber{}, &fakeDetector{}, narrator, caller, Options{MaxJSONBytes: 64}).Handler()

	big := strings.Repeat("a", 256)
	for _, tt := range []struct{ path, body string }{
		{path: "/first-aid/", body: `{"transcription": "` + big + `", "image_result": {}}`},
		{path: "/call-status/", body: `{"call_id": "` + big + `"}`},
	} {
		rec := serve(handler, jsonRequest(tt.path, tt.body))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, tt.path)
		assert.Contains(t, decode(t, rec)["detail"], "exceeds 64 bytes")
	}

	assert.Empty(t, narrator.gotTranscription)
	assert.Empty(t, caller.gotID)
}

func TestEmergencyCall(t *testing.T) {
	tests := []struct {
		name       string
		caller     *fakeCaller
		wantStatus int
		wantBody   string
	}{
		{
			name:       "initiated",
			caller:     &fakeCaller{handle: &emergency.CallHandle{CallID: "call_1", Status: emergency.CallStatusInitiated}},
			wantStatus: http.StatusOK,
			wantBody:   `{"call_id": "call_1", "status": "initiated"}`,
		},
		{
			name:       "not configured",
			caller:     &fakeCaller{err: emergency.Configuration("phone numbers not configured in environment variables")},
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"detail": "emergency calling is not configured"}`,
		},
		{
			name:       "vendor failure",
			caller:     &fakeCaller{err: emergency.Upstream("create phone call", errors.New("402 payment required"))},
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"detail": "error initiating emergency call"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := New(&fakeTranscriber{}, &fakeDetector{}, &fakeNarrator{}, tt.caller, Options{}).Handler()

			rec := serve(handler, httptest.NewRequest(http.MethodPost, "/emergency-call/", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestCallStatus(t *testing.T) {
	transcript, recording := "Agent: Help is on the way.", "https://example.com/rec.wav"

	tests := []struct {
		name     string
		handle   *emergency.CallHandle
		wantKeys bool
	}{
		{name: "registered", handle: &emergency.CallHandle{CallID: "call_1", Status: "registered"}},
		{name: "ongoing", handle: &emergency.CallHandle{CallID: "call_1", Status: emergency.CallStatusOngoing}},
		{
			name:     "ended",
			handle:   &emergency.CallHandle{CallID: "call_1", Status: emergency.CallStatusEnded, Transcript: &transcript, RecordingURL: &recording},
			wantKeys: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := &fakeCaller{handle: tt.handle}
			handler := New(&fakeTranscriber{}, &fakeDetector{}, &fakeNarrator{}, caller, Options{}).Handler()

			rec := serve(handler, jsonRequest("/call-status/", `{"call_id": "call_1"}`))
			require.Equal(t, http.StatusOK, rec.Code)

			body := decode(t, rec)
			assert.Equal(t, "call_1", caller.gotID)
			assert.Equal(t, tt.handle.Status, body["status"])

			_, hasTranscript := body["transcript"]
			_, hasRecording := body["recording_url"]
			assert.Equal(t, tt.wantKeys, hasTranscript)
			assert.Equal(t, tt.wantKeys, hasRecording)
		})
	}
}

func TestCallStatusErrors(t *testing.T) {
	t.Run("empty call id", func(t *testing.T) {
		caller := &fakeCaller{}
		handler := New(&fakeTranscriber{}, &fakeDetector{}, &fakeNarrator{}, caller, Options{}).Handler()

		rec := serve(handler, jsonRequest("/call-status/", `{"call_id": ""}`))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Empty(t, caller.gotID)
	})

	t.Run("vendor failure", func(t *testing.T) {
		caller := &fakeCaller{err: emergency.Upstream("get call", errors.New("404 call not found"))}
		handler := New(&fakeTranscriber{}, &fakeDetector{}, &fakeNarrator{}, caller, Options{}).Handler()

		rec := serve(handler, jsonRequest("/call-status/", `{"call_id": "call_404"}`))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"detail": "error retrieving call status"}`, rec.Body.String())
	})
}

func TestCORS(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/first-aid/", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := serve(f.handler, req)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUploadExtension(t *testing.T) {
	tests := map[string]string{
		"call.WAV":            ".wav",
		"../../etc/passwd":    "",
		"photo.jpeg":          ".jpeg",
		"noext":               "",
		"a.verylongextension": "",
	}
	for in, want := range tests {
		assert.Equal(t, want, uploadExtension(in), in)
	}
}
