package aiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matryer/is"
)

func aiStub(t *testing.T, status int, candidateText string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		resp := map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": candidateText}}}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestCheckAnswer(t *testing.T) {
	is := is.New(t)
	srv := aiStub(t, http.StatusOK, `{"accept": true}`)
	defer srv.Close()

	c := New(srv.URL, "key", "test-model")
	ok, err := c.CheckAnswer(context.Background(), "hond", "dog", "hound")
	is.NoErr(err)
	is.True(ok)
}

func TestCheckAnswerServerError(t *testing.T) {
	is := is.New(t)
	srv := aiStub(t, http.StatusInternalServerError, "")
	defer srv.Close()

	c := New(srv.URL, "key", "test-model")
	_, err := c.CheckAnswer(context.Background(), "hond", "dog", "hound")
	is.True(errors.Is(err, ErrUnavailable))
}

func TestCheckAnswerGarbageJSON(t *testing.T) {
	is := is.New(t)
	srv := aiStub(t, http.StatusOK, `not json at all`)
	defer srv.Close()

	c := New(srv.URL, "key", "test-model")
	_, err := c.CheckAnswer(context.Background(), "hond", "dog", "hound")
	is.True(errors.Is(err, ErrUnavailable))
}

func TestGenerateCards(t *testing.T) {
	is := is.New(t)
	srv := aiStub(t, http.StatusOK,
		`[{"question":"capital of France?","answer":"Paris"},{"question":"2+2","answer":"4"}]`)
	defer srv.Close()

	c := New(srv.URL, "key", "test-model")
	drafts, err := c.GenerateCards(context.Background(), "some notes", 10)
	is.NoErr(err)
	is.Equal(len(drafts), 2)
	is.Equal(drafts[0].Answer, "Paris")

	// The max is a hard cap even when the model overshoots.
	drafts, err = c.GenerateCards(context.Background(), "some notes", 1)
	is.NoErr(err)
	is.Equal(len(drafts), 1)
}

func TestParsePlan(t *testing.T) {
	is := is.New(t)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	srv := aiStub(t, http.StatusOK, `{"message":"review French vocab","at":"2025-03-02T19:00:00Z"}`)
	defer srv.Close()

	c := New(srv.URL, "key", "test-model")
	plan, err := c.ParsePlan(context.Background(), "quiz me on French vocab tomorrow at 7pm", now)
	is.NoErr(err)
	is.Equal(plan.Message, "review French vocab")
	is.Equal(plan.At, time.Date(2025, 3, 2, 19, 0, 0, 0, time.UTC))
}

func TestParsePlanRejectsPast(t *testing.T) {
	is := is.New(t)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	srv := aiStub(t, http.StatusOK, `{"message":"too late","at":"2020-01-01T00:00:00Z"}`)
	defer srv.Close()

	c := New(srv.URL, "key", "test-model")
	_, err := c.ParsePlan(context.Background(), "remind me yesterday", now)
	is.True(errors.Is(err, ErrUnavailable))
}

func TestDisabledClient(t *testing.T) {
	is := is.New(t)

	var c *Client
	is.True(!c.Enabled())

	c = New("", "", "")
	is.True(!c.Enabled())
	_, err := c.CheckAnswer(context.Background(), "q", "a", "b")
	is.True(errors.Is(err, ErrUnavailable))
}
