package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sdgteacher/sdgchat/internal/backend"
	"github.com/sdgteacher/sdgchat/internal/chat"
	"github.com/sdgteacher/sdgchat/internal/config"
	"github.com/sdgteacher/sdgchat/internal/memory"
	"github.com/sdgteacher/sdgchat/internal/profile"
	"github.com/sdgteacher/sdgchat/internal/session"
	"github.com/sdgteacher/sdgchat/internal/storage"
)

// app holds the components a command works with.
type app struct {
	kv        storage.KV
	closeKV   func() error
	client    *backend.Client
	profiles  *profile.Manager
	session   *session.Identity
	extractor *memory.Extractor
	chat      *chat.Controller
}

// kvCloser is a KV that owns a connection.
type kvCloser interface {
	storage.KV
	Close() error
}

func openKV(ctx context.Context, c config.Config) (kvCloser, error) {
	switch c.Storage.Backend {
	case config.StorageRedis:
		kv, err := storage.OpenRedis(ctx, c.Storage.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("opening redis storage: %w", err)
		}
		return kv, nil
	default:
		store, err := storage.Open(c.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		return store, nil
	}
}

func loadExtractor(c config.Config) (*memory.Extractor, error) {
	if c.Memory.RulesFile == "" {
		return memory.New(nil), nil
	}
	rules, err := memory.LoadRules(c.Memory.RulesFile)
	if err != nil {
		return nil, err
	}
	slog.Debug("loaded extraction rules", "path", c.Memory.RulesFile)
	return memory.New(rules), nil
}

// newApp wires storage, the backend client and the chat controller from c.
// When --user is set the profile is selected before returning.
func newApp(ctx context.Context, c config.Config) (*app, error) {
	kv, err := openKV(ctx, c)
	if err != nil {
		return nil, err
	}

	a, err := newAppWith(ctx, c, kv, backend.NewClient(c.Server.BaseURL, c.Server.Timeout))
	if err != nil {
		kv.Close()
		return nil, err
	}
	a.closeKV = kv.Close
	return a, nil
}

func newAppWith(ctx context.Context, c config.Config, kv storage.KV, client *backend.Client) (*app, error) {
	ex, err := loadExtractor(c)
	if err != nil {
		return nil, err
	}
	sess, err := session.Load(kv)
	if err != nil {
		return nil, err
	}

	a := &app{
		kv:        kv,
		closeKV:   func() error { return nil },
		client:    client,
		profiles:  profile.NewManager(kv),
		session:   sess,
		extractor: ex,
	}

	var speaker chat.Speaker
	if strings.TrimSpace(speakCmd) != "" {
		speaker = newCommandSpeaker(speakCmd)
	}
	a.chat = chat.New(chat.Config{
		Backend:     client,
		Profiles:    a.profiles,
		Session:     sess,
		KV:          kv,
		Extractor:   ex,
		Speaker:     speaker,
		DefaultMode: c.Chat.DefaultMode,
	})

	if userFlag != "" && userFlag != a.chat.Username() {
		if _, err := a.chat.StartSession(ctx, userFlag); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *app) Close() error {
	return a.closeKV()
}
