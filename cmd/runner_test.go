package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/repositories"
	"github.com/desertthunder/bpmx/internal/services"
	"github.com/desertthunder/bpmx/internal/shared"
	th "github.com/desertthunder/bpmx/internal/testing"
	"github.com/urfave/cli/v3"
)

const (
	trackID  = "6f1c2a9e-0d4b-4b7e-9a43-2f3e8c1d5a70"
	renderID = "b8e4f0d2-7c6a-4e1f-8d93-5a2b1c0e9f64"
)

func ptr[T any](v T) *T { return &v }

// fakeBackend serves the subset of the API the commands call.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()

	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer test-token" {
				http.Error(w, `{"detail":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	track := models.Track{
		ID:                trackID,
		Title:             ptr("Tempo Run"),
		SourceFilename:    "tempo.mp3",
		MimeType:          "audio/mpeg",
		DurationSec:       ptr(185),
		OriginalObjectKey: "uploads/u1/tempo.mp3",
	}
	render := models.Render{ID: renderID, TrackID: trackID, TargetBPM: 170, PreservePitch: true, Status: models.StatusDone, OutputObjectKey: ptr("renders/r1.mp3")}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Email, Password string }
		json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "hunter22" {
			http.Error(w, `{"detail":"bad credentials"}`, http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]string{"token": "test-token"})
	})
	mux.HandleFunc("GET /api/me", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"user_id": "user-1"})
	}))
	mux.HandleFunc("GET /api/tracks", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []models.Track{track})
	}))
	mux.HandleFunc("GET /api/tracks/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, models.TrackDetail{Track: track, LatestRender: &render})
	}))
	mux.HandleFunc("POST /api/tracks/{id}/analyze", authed(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, models.JobAccepted{TrackID: trackID, Status: models.StatusQueued})
	}))
	mux.HandleFunc("GET /api/tracks/{id}/analysis", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, models.Analysis{ID: "a1", TrackID: trackID, Status: models.StatusDone, BPM: ptr(128.0), Confidence: ptr(0.9)})
	}))
	mux.HandleFunc("POST /api/tracks/{id}/render", authed(func(w http.ResponseWriter, r *http.Request) {
		var req services.RenderRequest
		json.NewDecoder(r.Body).Decode(&req)
		render.TargetBPM = req.TargetBPM
		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, models.RenderAccepted{RenderID: renderID, Status: models.StatusQueued})
	}))
	mux.HandleFunc("GET /api/renders/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, render)
	}))
	mux.HandleFunc("GET /api/render-files/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3-fake-audio"))
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestRunner(t *testing.T, baseURL string, input string) (*Runner, *bytes.Buffer) {
	t.Helper()

	dir := t.TempDir()
	config := shared.DefaultConfig()
	config.API.BaseURL = baseURL
	config.Auth.TokenPath = filepath.Join(dir, "token.json")
	config.Storage.CacheDir = filepath.Join(dir, "cache")
	config.Jobs.PollInterval = shared.Duration{Duration: 5 * time.Millisecond}

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config: config,
		Logger: shared.NewLogger(&bytes.Buffer{}),
		Output: output,
		Input:  strings.NewReader(input),
		DB:     db,
	})
	return runner, output
}

func login(t *testing.T, r *Runner) {
	t.Helper()
	if err := r.creds.Set("test-token"); err != nil {
		t.Fatalf("failed to store token: %v", err)
	}
}

func run(r *Runner, args ...string) error {
	app := &cli.Command{Name: "bpmx", Commands: r.register(), Writer: &bytes.Buffer{}}
	return app.Run(context.Background(), append([]string{"bpmx"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			creds := services.NewCredentials("")

			runner := NewRunner(RunnerOpts{
				Config:      config,
				Logger:      logger,
				Output:      output,
				HTTPClient:  httpClient,
				Credentials: creds,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.creds != creds {
				t.Error("expected credentials to be set")
			}
			if runner.backend == nil || runner.engine == nil || runner.fetcher == nil || runner.storage == nil {
				t.Error("expected services to be built")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses the configured timeout", func(t *testing.T) {
			config := shared.DefaultConfig()
			runner := NewRunner(RunnerOpts{Config: config})

			if runner.httpClient.Timeout != config.API.Timeout.Duration {
				t.Errorf("expected timeout %v, got %v", config.API.Timeout.Duration, runner.httpClient.Timeout)
			}
		})

		t.Run("engine takes job settings from config", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Jobs.Workers = 7
			config.Jobs.PollInterval = shared.Duration{Duration: 250 * time.Millisecond}

			opts := NewRunner(RunnerOpts{Config: config}).engine.Options()
			if opts.Workers != 7 || opts.PollInterval != 250*time.Millisecond {
				t.Errorf("unexpected engine options: %+v", opts)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		names := map[string]bool{}
		for _, c := range runner.register() {
			names[c.Name] = true
		}
		for _, want := range []string{"setup", "auth", "tracks", "analyze", "render", "play", "api", "tui"} {
			if !names[want] {
				t.Errorf("expected %s command to be registered", want)
			}
		}
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("compact", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]int{"bpm": 128}, false); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if output.String() != "{\"bpm\":128}\n" {
				t.Errorf("unexpected output %q", output.String())
			}
		})

		t.Run("pretty", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			runner.writeJSON(map[string]int{"bpm": 128}, true)
			if !strings.Contains(output.String(), "\n  \"bpm\": 128\n") {
				t.Errorf("expected indented output, got %q", output.String())
			}
		})

		t.Run("unmarshalable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
			if err := runner.writeJSON(make(chan int), false); err == nil {
				t.Error("expected marshal error")
			}
		})

		t.Run("write error", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &th.FWriter{}})
			if err := runner.writeJSON("x", false); err == nil {
				t.Error("expected write error")
			}
		})

		t.Run("newline write error", func(t *testing.T) {
			output := &bytes.Buffer{}
			lw := th.NewLimitedWriter(1, 0, output)
			runner := NewRunner(RunnerOpts{Output: &lw})

			err := runner.writeJSON(map[string]int{"bpm": 128}, false)
			if err == nil || !strings.Contains(err.Error(), "newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
			if output.String() != `{"bpm":128}` {
				t.Errorf("expected the body before the failure, got %q", output.String())
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		runner.writePlain("%d tracks", 3)
		runner.writePlainln("done")
		if output.String() != "3 tracks\ndone\n" {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("prompt reads successive lines", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}, Input: strings.NewReader("me@example.com\nhunter22\n")})

		email, _ := runner.prompt("Email")
		password, _ := runner.prompt("Password")
		if email != "me@example.com" || password != "hunter22" {
			t.Errorf("got %q / %q", email, password)
		}
	})
}

func TestRenderTarget(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    float64
		wantErr error
	}{
		{name: "bpm", args: []string{"--bpm", "150"}, want: 150},
		{name: "cadence per step", args: []string{"--cadence", "170"}, want: 170},
		{name: "cadence per stride", args: []string{"--cadence", "170", "--stride"}, want: 85},
		{name: "pace", args: []string{"--pace", "8:30"}, want: 169},
		{name: "none", args: nil, wantErr: shared.ErrInvalidFlag},
		{name: "two targets", args: []string{"--bpm", "150", "--cadence", "170"}, wantErr: shared.ErrInvalidFlag},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got float64
			var gotErr error
			cmd := renderCommand(NewRunner(RunnerOpts{}))
			cmd.Arguments = nil
			cmd.Action = func(ctx context.Context, c *cli.Command) error {
				got, gotErr = renderTarget(c)
				return nil
			}

			if err := cmd.Run(context.Background(), append([]string{"render"}, tt.args...)); err != nil {
				t.Fatalf("unexpected parse error: %v", err)
			}

			if tt.wantErr != nil {
				if !errors.Is(gotErr, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, gotErr)
				}
				return
			}
			if gotErr != nil {
				t.Fatalf("unexpected error: %v", gotErr)
			}
			if got < tt.want-1 || got > tt.want+1 {
				t.Errorf("expected ~%.0f bpm, got %.2f", tt.want, got)
			}
		})
	}
}

func TestCommands(t *testing.T) {
	srv := fakeBackend(t)

	t.Run("auth login prompts and stores the token", func(t *testing.T) {
		runner, output := newTestRunner(t, srv.URL, "me@example.com\nhunter22\n")

		if err := run(runner, "auth", "login"); err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if !strings.Contains(output.String(), "Logged in as me@example.com") {
			t.Errorf("unexpected output %q", output.String())
		}
		th.AssertFileExists(t, runner.creds.Path())

		if err := run(runner, "auth", "status"); err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if !strings.Contains(output.String(), "Authenticated as user user-1") {
			t.Errorf("status output missing user, got %q", output.String())
		}

		if err := run(runner, "auth", "logout"); err != nil {
			t.Fatalf("logout failed: %v", err)
		}
		th.AssertFileMissing(t, runner.creds.Path())
	})

	t.Run("auth login with bad password", func(t *testing.T) {
		runner, _ := newTestRunner(t, srv.URL, "")

		err := run(runner, "auth", "login", "--email", "me@example.com", "--password", "wrong")
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})

	t.Run("tracks list caches the listing", func(t *testing.T) {
		runner, output := newTestRunner(t, srv.URL, "")
		login(t, runner)

		if err := run(runner, "tracks", "list", "--format", "csv"); err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if !strings.Contains(output.String(), trackID+",Tempo Run,tempo.mp3") {
			t.Errorf("expected CSV row, got %q", output.String())
		}

		cached, err := repositories.NewTrackRepository(runner.db).List(context.Background())
		if err != nil {
			t.Fatalf("failed to read cache: %v", err)
		}
		if len(cached) != 1 || cached[0].ID != trackID {
			t.Errorf("expected the listing to be cached, got %+v", cached)
		}

		output.Reset()
		if err := run(runner, "tracks", "list", "--offline", "--format", "md"); err != nil {
			t.Fatalf("offline list failed: %v", err)
		}
		if !strings.Contains(output.String(), "1. Tempo Run (tempo.mp3)") {
			t.Errorf("expected cached track in offline listing, got %q", output.String())
		}
	})

	t.Run("tracks list without a token", func(t *testing.T) {
		runner, _ := newTestRunner(t, srv.URL, "")

		if err := run(runner, "tracks", "list"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("tracks show", func(t *testing.T) {
		runner, output := newTestRunner(t, srv.URL, "")
		login(t, runner)

		if err := run(runner, "tracks", "show", trackID); err != nil {
			t.Fatalf("show failed: %v", err)
		}
		if !strings.Contains(output.String(), "Track:    Tempo Run") || !strings.Contains(output.String(), "Render:   done") {
			t.Errorf("unexpected detail output %q", output.String())
		}
	})

	t.Run("analyze", func(t *testing.T) {
		runner, output := newTestRunner(t, srv.URL, "")
		login(t, runner)

		if err := run(runner, "analyze", "--json", trackID); err != nil {
			t.Fatalf("analyze failed: %v", err)
		}
		if !strings.Contains(output.String(), `"bpm": 128`) {
			t.Errorf("expected analysis JSON, got %q", output.String())
		}
	})

	t.Run("analyze all lists tracks when none given", func(t *testing.T) {
		runner, output := newTestRunner(t, srv.URL, "")
		login(t, runner)

		if err := run(runner, "analyze", "all", "--workers", "2"); err != nil {
			t.Fatalf("analyze all failed: %v", err)
		}
		if !strings.Contains(output.String(), "Succeeded: 1") {
			t.Errorf("expected one success, got %q", output.String())
		}
	})

	t.Run("render from cadence", func(t *testing.T) {
		runner, output := newTestRunner(t, srv.URL, "")
		login(t, runner)

		if err := run(runner, "render", "--cadence", "170", "--json", trackID); err != nil {
			t.Fatalf("render failed: %v", err)
		}

		var got models.Render
		out := output.String()
		if err := json.Unmarshal([]byte(out[strings.Index(out, "{"):]), &got); err != nil {
			t.Fatalf("invalid render JSON %q: %v", out, err)
		}
		if got.ID != renderID || got.TargetBPM != 170 {
			t.Errorf("unexpected render %+v", got)
		}
	})

	t.Run("render rejects out of range targets", func(t *testing.T) {
		runner, _ := newTestRunner(t, srv.URL, "")
		login(t, runner)

		if err := run(runner, "render", "--bpm", "400", trackID); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("play saves the render to the cache dir", func(t *testing.T) {
		runner, output := newTestRunner(t, srv.URL, "")
		login(t, runner)

		if err := run(runner, "play", renderID); err != nil {
			t.Fatalf("play failed: %v", err)
		}

		entries, err := os.ReadDir(runner.config.Storage.CacheDir)
		if err != nil || len(entries) != 1 {
			t.Fatalf("expected one cached file, got %v (%v)", entries, err)
		}
		path := filepath.Join(runner.config.Storage.CacheDir, entries[0].Name())
		if th.MustReadFile(t, path) != "ID3-fake-audio" {
			t.Error("unexpected cached audio")
		}
		if !strings.Contains(output.String(), "Fetching render "+renderID) {
			t.Errorf("expected fetch progress line, got %q", output.String())
		}
		if !strings.Contains(output.String(), path) {
			t.Errorf("expected output to name %s, got %q", path, output.String())
		}

		// a later run purges files no live handle holds
		next := NewRunner(RunnerOpts{
			Config:      runner.config,
			Credentials: runner.creds,
			Logger:      runner.logger,
			Output:      &bytes.Buffer{},
			DB:          runner.db,
		})
		if err := run(next, "play", renderID); err != nil {
			t.Fatalf("second play failed: %v", err)
		}
		if entries, _ := os.ReadDir(runner.config.Storage.CacheDir); len(entries) != 1 {
			t.Errorf("expected the earlier file to be purged, got %d files", len(entries))
		}
	})

	t.Run("tracks orphans", func(t *testing.T) {
		runner, output := newTestRunner(t, srv.URL, "")
		repo := repositories.NewUploadRepository(runner.db)
		ctx := context.Background()

		if err := repo.Record(ctx, &models.UploadRecord{
			ID:        "up1",
			Filename:  "lost.mp3",
			MimeType:  "audio/mpeg",
			ObjectKey: "uploads/u1/lost.mp3",
			Status:    models.UploadOrphaned,
		}); err != nil {
			t.Fatalf("failed to seed journal: %v", err)
		}

		if err := run(runner, "tracks", "orphans", "--forget"); err != nil {
			t.Fatalf("orphans failed: %v", err)
		}
		if !strings.Contains(output.String(), "lost.mp3") || !strings.Contains(output.String(), "Removed 1 entries") {
			t.Errorf("unexpected output %q", output.String())
		}

		if orphans, _ := repo.Orphans(ctx); len(orphans) != 0 {
			t.Errorf("expected journal to be cleared, got %d", len(orphans))
		}
	})

	t.Run("api get", func(t *testing.T) {
		runner, output := newTestRunner(t, srv.URL, "")
		login(t, runner)

		if err := run(runner, "api", "get", "--pretty=false", "/api/me"); err != nil {
			t.Fatalf("api get failed: %v", err)
		}
		if strings.TrimSpace(output.String()) != `{"user_id":"user-1"}` {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("api post rejects invalid JSON", func(t *testing.T) {
		runner, _ := newTestRunner(t, srv.URL, "")

		if err := run(runner, "api", "post", "--data", "{nope", "/api/tracks"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}
