package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/searchandrescuegg/firstaid/internal/emergency"
)

type messageResponse struct {
	Message string `json:"message"`
}

type transcriptionResponse struct {
	Transcription string `json:"transcription"`
}

type analyzeImageResponse struct {
	InjuryDetected *emergency.DetectionSummary `json:"injury_detected"`
}

type firstAidResponse struct {
	Response string `json:"response"`
}

type callStatusRequest struct {
	CallID string `json:"call_id"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "Emergency Response API is running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTranscribeAudio(w http.ResponseWriter, r *http.Request) {
	up, cleanup, err := s.spoolUpload(w, r)
	if err != nil {
		writeUploadError(w, r, err, detailProcessingAudio)
		return
	}
	defer cleanup()

	if text, ok := s.results.transcription(up.digest); ok {
		writeJSON(w, http.StatusOK, transcriptionResponse{Transcription: text})
		return
	}

	text, err := s.transcriber.Transcribe(r.Context(), up.path)
	if err != nil {
		writeError(w, r, err, detailProcessingAudio)
		return
	}
	s.results.storeTranscription(up.digest, text)

	writeJSON(w, http.StatusOK, transcriptionResponse{Transcription: text})
}

func (s *Server) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	up, cleanup, err := s.spoolUpload(w, r)
	if err != nil {
		writeUploadError(w, r, err, detailAnalyzingImage)
		return
	}
	defer cleanup()

	if summary, ok := s.results.analysis(up.digest); ok {
		writeJSON(w, http.StatusOK, analyzeImageResponse{InjuryDetected: summary})
		return
	}

	summary, err := s.detector.DetectEmergencyIndicators(r.Context(), up.path)
	if err != nil {
		writeError(w, r, err, detailAnalyzingImage)
		return
	}
	s.results.storeAnalysis(up.digest, summary)

	writeJSON(w, http.StatusOK, analyzeImageResponse{InjuryDetected: summary})
}

func (s *Server) handleFirstAid(w http.ResponseWriter, r *http.Request) {
	var req emergency.FirstAidRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		writeValidation(w, r, err.Error())
		return
	}
	if req.Transcription == nil {
		writeValidation(w, r, "transcription is required")
		return
	}
	if req.ImageResult == nil {
		writeValidation(w, r, "image_result must be an object")
		return
	}

	response := s.narrator.GenerateFirstAid(r.Context(), *req.Transcription, req.ImageResult)
	if strings.TrimSpace(response) == "" {
		writeError(w, r, errors.New("narrator returned an empty response"), detailGeneratingAid)
		return
	}

	writeJSON(w, http.StatusOK, firstAidResponse{Response: response})
}

func (s *Server) handleEmergencyCall(w http.ResponseWriter, r *http.Request) {
	handle, err := s.caller.InitiateCall(r.Context())
	if err != nil {
		writeError(w, r, err, callDetail(err, detailInitiatingCall))
		return
	}

	writeJSON(w, http.StatusOK, handle)
}

func (s *Server) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	var req callStatusRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		writeValidation(w, r, err.Error())
		return
	}
	if strings.TrimSpace(req.CallID) == "" {
		writeValidation(w, r, "call_id is required")
		return
	}

	handle, err := s.caller.GetCallStatusAndResults(r.Context(), req.CallID)
	if err != nil {
		writeError(w, r, err, callDetail(err, detailRetrievingStatus))
		return
	}

	writeJSON(w, http.StatusOK, handle)
}

func callDetail(err error, fallback string) string {
	if emergency.KindOf(err) == emergency.KindConfiguration {
		return detailCallNotConfigured
	}
	return fallback
}

// writeUploadError surfaces validation text, which only describes the
// request, and hides everything else behind detail.
func writeUploadError(w http.ResponseWriter, r *http.Request, err error, detail string) {
	if emergency.KindOf(err) == emergency.KindValidation {
		writeValidation(w, r, strings.TrimPrefix(err.Error(), emergency.ErrValidation.Error()+": "))
		return
	}
	writeError(w, r, err, detail)
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	if s.maxJSONBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxJSONBytes)
	}

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return errors.New("request body must be valid JSON matching the endpoint schema")
	}
	return nil
}
