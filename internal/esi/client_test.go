package esi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"skillwatch/internal/monitor"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		ClientID:     "client",
		ClientSecret: "secret",
		BaseURL:      srv.URL,
		RatePerSec:   1000,
	}, zerolog.Nop())
}

func TestFetchSkills(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v4/characters/42/skills/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer access-token" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, `{
			"skills": [
				{"skill_id": 3300, "skillpoints_in_skill": 90510, "trained_skill_level": 4, "active_skill_level": 4},
				{"skill_id": 3301, "skillpoints_in_skill": 0, "trained_skill_level": 0, "active_skill_level": 0}
			],
			"total_sp": 5200000,
			"unallocated_sp": 150
		}`)
	}))

	got, err := c.FetchSkills(context.Background(), "access-token", 42)
	if err != nil {
		t.Fatalf("FetchSkills: %v", err)
	}
	want := []monitor.Skill{
		{SkillID: 3300, SkillpointsInSkill: 90510, TrainedSkillLevel: 4, ActiveSkillLevel: 4},
		{SkillID: 3301},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FetchSkills() = %+v, want %+v", got, want)
	}
}

func TestFetchSkillsErrorStatus(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"token is expired"}`, http.StatusForbidden)
	}))

	if _, err := c.FetchSkills(context.Background(), "access-token", 42); err == nil {
		t.Fatal("FetchSkills succeeded on a 403 response")
	}
}

func TestFetchQueue(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/characters/42/skillqueue/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `[
			{"skill_id": 3300, "finish_date": "2026-03-02T15:04:05Z", "finished_level": 5, "level_start_sp": 45255, "level_end_sp": 256000, "queue_position": 0},
			{"skill_id": 3301, "finished_level": 1, "queue_position": 1}
		]`)
	}))

	got, err := c.FetchQueue(context.Background(), "access-token", 42)
	if err != nil {
		t.Fatalf("FetchQueue: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("FetchQueue() returned %d items, want 2", len(got))
	}
	wantFinish := time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)
	if got[0].FinishDate == nil || !got[0].FinishDate.Equal(wantFinish) {
		t.Errorf("first finish date = %v, want %v", got[0].FinishDate, wantFinish)
	}
	if got[1].FinishDate != nil {
		t.Errorf("paused item finish date = %v, want nil", got[1].FinishDate)
	}
}

func TestSkillNameCachesForever(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != "/v3/universe/names/" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		fmt.Fprint(w, `[{"id": 3300, "category": "inventory_type", "name": "Gunnery"}]`)
	}))

	for i := 0; i < 3; i++ {
		name, err := c.SkillName(context.Background(), 3300)
		if err != nil {
			t.Fatalf("SkillName: %v", err)
		}
		if name != "Gunnery" {
			t.Errorf("SkillName() = %q, want Gunnery", name)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("name endpoint hit %d times, want 1", got)
	}
}

func TestSkillNameEmptyResponse(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))

	if _, err := c.SkillName(context.Background(), 3300); err == nil {
		t.Fatal("SkillName succeeded on an empty lookup response")
	}
}

func TestAuthorizeURL(t *testing.T) {
	t.Parallel()

	c := New(Config{ClientID: "client", ClientSecret: "secret", RedirectURL: "https://bot.example/callback"}, zerolog.Nop())
	u := c.AuthorizeURL("state-123")

	for _, want := range []string{ssoAuthURL, "state=state-123", "client_id=client", "esi-skills.read_skills.v1"} {
		if !strings.Contains(u, want) {
			t.Errorf("AuthorizeURL() = %q, want it to contain %q", u, want)
		}
	}
}
