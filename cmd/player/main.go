package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mdrv/python-game/internal/config"
	"github.com/mdrv/python-game/internal/content"
	"github.com/mdrv/python-game/internal/events"
	"github.com/mdrv/python-game/internal/mqtt"
	"github.com/mdrv/python-game/internal/profile"
	"github.com/mdrv/python-game/internal/storage"
	"github.com/mdrv/python-game/internal/storage/memory"
	"github.com/mdrv/python-game/internal/storage/postgres"
	"github.com/mdrv/python-game/internal/storage/sqlite"
	"github.com/mdrv/python-game/internal/story"
	"github.com/mdrv/python-game/internal/version"
)

type LogLine struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func logEvent(level, event, msg string, fields map[string]interface{}) {
	line := LogLine{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Event:     event,
		Message:   msg,
		Fields:    fields,
	}
	b, _ := json.Marshal(line)
	fmt.Fprintln(os.Stderr, string(b))
}

func main() {
	configPath := flag.String("config", "game.yaml", "path to game.yaml")
	profileID := flag.String("profile", "", "id of the profile to resume")
	name := flag.String("name", "", "name for a new profile")
	age := flag.Int("age", 8, "age for a new profile")
	chapter := flag.Int("chapter", 0, "chapter to start instead of resuming")
	autoplay := flag.Bool("autoplay", false, "advance without input, taking the first choice")
	replay := flag.Bool("replay", false, "rebuild progress from the event journal (postgres only)")
	list := flag.Bool("list", false, "list saved profiles and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.LoadGameConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load game.yaml: %v", err)
	}
	if err := config.ApplyEnv(cfg); err != nil {
		log.Fatalf("failed to apply environment: %v", err)
	}

	hostname, _ := os.Hostname()
	logEvent("info", "system.startup", "player starting", map[string]interface{}{
		"service":  "player",
		"version":  version.Version,
		"game_id":  cfg.Game.ID,
		"backend":  cfg.StorageBackend(),
		"hostname": hostname,
		"pid":      os.Getpid(),
	})

	catalog, err := content.LoadCatalog(cfg.ContentDir())
	if err != nil {
		log.Fatalf("failed to load content: %v", err)
	}

	gw, journal, err := openGateway(cfg)
	if err != nil {
		log.Fatalf("failed to configure storage: %v", err)
	}
	defer gw.Close()

	mgr := profile.NewManager(gw, profile.Options{
		Debounce:    cfg.DebounceDelay(),
		Interval:    cfg.SaveInterval(),
		SuccessHold: cfg.SuccessHold(),
		Language:    cfg.DefaultLanguage(),
		OnStatus: func(s profile.AutoSaveStatus) {
			if s == profile.StatusError {
				log.Printf("auto-save failed, progress will be retried")
			}
		},
	})
	if err := mgr.Init(ctx, storage.Config{}); err != nil {
		log.Printf("warning: playing without saving: %v", err)
	} else if journal != nil {
		events.SetJournal(journal)
		defer events.SetJournal(nil)
	}

	if *list {
		listProfiles(ctx, mgr)
		return
	}

	if cfg.MQTT.Enabled {
		client := mqtt.NewClient(fmt.Sprintf("%s-player-%d", cfg.Game.ID, os.Getpid()), cfg.BrokerURL())
		client.StartWithRetry()
		notifier := mqtt.NewNotifier(client, cfg.TopicPrefix())
		notifier.Start()
		defer client.Disconnect()
		defer notifier.Stop()
	}

	kid, err := selectProfile(ctx, mgr, *profileID, *name, *age)
	if err != nil {
		log.Fatalf("failed to select profile: %v", err)
	}

	engine := story.NewEngine(catalog, mgr)
	engine.SetProfileID(kid.ID)

	saved := kid.Story
	if *replay && journal != nil {
		st, n, err := story.ReplayJournal(ctx, journal, kid.ID, story.DefaultReplayLimit)
		if err != nil {
			log.Printf("warning: journal replay failed: %v", err)
		} else if st != nil {
			log.Printf("replayed %d journal events", n)
			saved = *st
			err := mgr.UpdateStoryProgress(profile.StoryUpdate{
				CurrentChapter:       profile.Ptr(st.CurrentChapter),
				CurrentScene:         profile.Ptr(st.CurrentScene),
				CurrentDialogueIndex: profile.Ptr(st.CurrentDialogueIndex),
				CompletedChapters:    st.CompletedChapters,
				Choices:              st.Choices,
				CodeSubmissions:      st.CodeSubmissions,
			})
			if err != nil {
				log.Printf("warning: replayed progress not recorded: %v", err)
			}
		}
	}

	if err := position(engine, saved, *chapter); err != nil {
		log.Fatalf("failed to position story: %v", err)
	}

	play(ctx, engine, os.Stdin, os.Stdout, *autoplay)

	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if !mgr.ForceSave(saveCtx) {
		log.Printf("warning: final save failed")
	}
	mgr.ClearProfile()

	events.Emit("info", "system.shutdown", "player stopped", map[string]interface{}{"profile_id": kid.ID})
	logEvent("info", "system.shutdown", "player stopped", nil)
}

// openGateway builds the configured backend. The postgres backend doubles as
// the event journal.
func openGateway(cfg *config.GameConfig) (profile.Gateway, *postgres.Client, error) {
	switch cfg.StorageBackend() {
	case config.BackendMemory:
		return memory.New(), nil, nil
	case config.BackendPostgres:
		dsn, err := postgres.DSNFromEnv()
		if err != nil {
			return nil, nil, err
		}
		pg := postgres.New(dsn, cfg.Game.ID)
		return pg, pg, nil
	default:
		return sqlite.New(cfg.StoragePath()), nil, nil
	}
}

func listProfiles(ctx context.Context, mgr *profile.Manager) {
	all, err := mgr.ListProfiles(ctx)
	if err != nil {
		log.Fatalf("failed to list profiles: %v", err)
	}
	for _, p := range all {
		fmt.Printf("%s\t%s\t%d\tchapter %d\t%s\n",
			p.ID, p.Name, p.Age, p.Story.CurrentChapter, p.LastPlayedAt.Local().Format(time.DateTime))
	}
}

func selectProfile(ctx context.Context, mgr *profile.Manager, id, name string, age int) (*profile.KidProfile, error) {
	if id != "" {
		p, err := mgr.LoadProfile(ctx, id)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, fmt.Errorf("profile %s not found", id)
		}
		mgr.UpdateLastPlayed()
		return p, nil
	}
	if name == "" {
		name = "Pemain"
	}
	return mgr.CreateProfile(name, age), nil
}

// position resumes the saved state, or starts a chapter when asked to or
// when the save is not yet positioned.
func position(e *story.Engine, saved profile.StoryState, chapter int) error {
	if err := e.Resume(saved); err != nil {
		log.Printf("warning: saved position is invalid, restarting chapter: %v", err)
		if chapter == 0 {
			chapter = saved.CurrentChapter
		}
	}
	if chapter != 0 {
		return e.StartChapter(chapter)
	}
	if e.CurrentScene() == nil {
		return e.StartChapter(e.State().CurrentChapter)
	}
	return nil
}

func play(ctx context.Context, e *story.Engine, in io.Reader, out io.Writer, autoplay bool) {
	input := bufio.NewScanner(in)
	readLine := func() (string, bool) {
		if autoplay {
			return "", true
		}
		if !input.Scan() {
			return "", false
		}
		return strings.TrimSpace(input.Text()), true
	}

	for ctx.Err() == nil {
		d := e.CurrentDialogue()
		if d == nil {
			return
		}
		if d.Speaker != "" {
			fmt.Fprintf(out, "%s: %s\n", d.Speaker, d.Text)
		} else {
			fmt.Fprintln(out, d.Text)
		}

		switch d.Type {
		case content.DialogueChoice:
			for i, c := range d.Choices {
				fmt.Fprintf(out, "  %d) %s\n", i+1, c.Text)
			}
			line, ok := readLine()
			if !ok {
				return
			}
			pick := 1
			if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(d.Choices) {
				pick = n
			}
			if err := e.Choose(d.Choices[pick-1].ID); err != nil {
				log.Printf("choice failed: %v", err)
				return
			}
			continue

		case content.DialogueCodeChallenge:
			c, last, _ := e.CurrentChallenge()
			if c != nil {
				if last == "" {
					last = c.StarterCode
				}
				fmt.Fprintf(out, "[%s] %s\n%s\n> ", c.Title, c.Description, last)
				line, ok := readLine()
				if !ok {
					return
				}
				if line == "" {
					line = last
				}
				e.RecordCodeSubmission(c.ID, line)
			}

		default:
			if _, ok := readLine(); !ok {
				return
			}
		}

		step, err := e.NextDialogue()
		if err != nil {
			log.Printf("story stopped: %v", err)
			return
		}
		switch step {
		case story.StepChapterCompleted:
			fmt.Fprintf(out, "*** chapter %d complete ***\n", e.State().CurrentChapter)
			return
		case story.StepTerminal:
			return
		}
	}
}
