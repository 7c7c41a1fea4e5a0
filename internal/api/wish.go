package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"jinn/internal/logging"
	"jinn/internal/store"
	"jinn/internal/types"
	"jinn/internal/wish"
)

// wishResponse renders a wish result. Exactly one of Answer, Result, Craft
// and Error is meaningful.
type wishResponse struct {
	Answer        string                 `json:"answer,omitempty"`
	Result        interface{}            `json:"result,omitempty"`
	Craft         string                 `json:"craft,omitempty"`
	Error         string                 `json:"error,omitempty"`
	Traceback     string                 `json:"traceback,omitempty"`
	IncantationID int64                  `json:"incantation_id,omitempty"`
	Incantation   string                 `json:"incantation,omitempty"`
	Arguments     map[string]interface{} `json:"arguments,omitempty"`
	CraftedID     int64                  `json:"crafted_id,omitempty"`
	MishapID      int64                  `json:"mishap_id,omitempty"`
	Transcript    string                 `json:"transcript,omitempty"`
}

func (s *Server) handleWish(w http.ResponseWriter, r *http.Request) {
	s.serveWish(w, r, s.Resolver.Wish)
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	s.serveWish(w, r, s.Resolver.Prepare)
}

func (s *Server) serveWish(w http.ResponseWriter, r *http.Request, resolve func(ctx context.Context, p *store.Principal, text string) (*wish.Result, error)) {
	text, err := s.readText(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := resolve(r.Context(), principal(r), text)
	if res == nil {
		writeError(w, err)
		return
	}

	resp := renderWish(res)
	if isAudio(r.Header.Get("Content-Type")) {
		resp.Transcript = text
	}
	if err != nil {
		var exec *types.ExecutionError
		if !errors.As(err, &exec) {
			writeError(w, err)
			return
		}
		resp.Error = err.Error()
		resp.Traceback = exec.Trace
	}

	if s.Voice != nil && isAudio(r.Header.Get("Accept")) {
		s.speak(w, r, spoken(resp))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func renderWish(res *wish.Result) wishResponse {
	resp := wishResponse{
		Answer:    res.Answer,
		Result:    res.Value,
		Craft:     res.Craft,
		Arguments: res.Arguments,
	}
	if res.Tool != nil {
		resp.IncantationID = res.Tool.ID
		resp.Incantation = res.Tool.Name
	}
	if res.Crafted != nil {
		resp.CraftedID = res.Crafted.ID
	}
	if res.Mishap != nil {
		resp.MishapID = res.Mishap.ID
	}
	return resp
}

// spoken picks the part of a wish response worth reading aloud.
func spoken(resp wishResponse) string {
	switch {
	case resp.Error != "":
		return fmt.Sprintf("%s failed: %s", resp.Incantation, resp.Error)
	case resp.Answer != "":
		return resp.Answer
	case resp.Result != nil:
		return fmt.Sprint(resp.Result)
	case resp.Craft != "":
		return "I would craft an incantation to " + resp.Craft
	case resp.Incantation != "":
		return "I would use " + resp.Incantation
	}
	return "Done."
}

func (s *Server) speak(w http.ResponseWriter, r *http.Request, text string) {
	audio, mimeType, err := s.Voice.Synthesize(r.Context(), text)
	if err != nil {
		logging.APIError("voice synthesis failed: %v", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Disposition", `inline; filename="response.wav"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

// readText returns the text of a wish or craft request: the "text" field of
// a JSON body, or the transcript of an audio body.
func (s *Server) readText(w http.ResponseWriter, r *http.Request) (string, error) {
	contentType := r.Header.Get("Content-Type")
	if isAudio(contentType) {
		if s.Transcriber == nil {
			return "", fmt.Errorf("%w: audio input is not enabled", types.ErrInvalidArgument)
		}
		audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.MaxUploadBytes))
		if err != nil {
			return "", fmt.Errorf("%w: %v", types.ErrInvalidArgument, err)
		}
		mediaType, _, _ := mime.ParseMediaType(contentType)
		text, err := s.Transcriber.Transcribe(r.Context(), audio, mediaType)
		if err != nil {
			return "", &types.SynthesisError{Op: "transcribe", Attempts: 1, Err: err}
		}
		logging.APIDebug("transcribed %d bytes: %q", len(audio), text)
		return text, nil
	}

	var req craftRequest
	if err := s.decode(w, r, &req); err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Text) == "" {
		return "", fmt.Errorf("%w: text is required", types.ErrInvalidArgument)
	}
	return req.Text, nil
}

func isAudio(header string) bool {
	for _, part := range strings.Split(header, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && strings.HasPrefix(mediaType, "audio/") {
			return true
		}
	}
	return false
}
